// Package admin implements the web panel HTTP API: token-based login,
// invite-only registration, schedule settings and direct sheet editing.
package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shiragiku/toka/internal/toka/schedule"
	"github.com/shiragiku/toka/internal/toka/settings"
)

// Config holds options for creating an admin Server.
type Config struct {
	// SessionTTL is the lifetime of a login session.  When zero,
	// DefaultSessionTTL (12 hours) is used.
	SessionTTL time.Duration
}

// RouteRegistrar is satisfied by *http.ServeMux, so the admin server can
// register its routes without importing the app package directly.
type RouteRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// ScheduleTable is the minimal sheet surface the panel needs.  The
// production implementation is *sheet.Reconciler.
type ScheduleTable interface {
	List(ctx context.Context) ([]schedule.Record, error)
	ReplaceAll(ctx context.Context, records []schedule.Record) error
}

// Rescheduler is notified after schedule settings change so the reminder
// timer can pick up the new clock.  The production implementation is
// *reminder.Service.
type Rescheduler interface {
	Reschedule(ctx context.Context) error
}

// Server handles the admin panel HTTP routes.
type Server struct {
	sessions   *SessionStore
	invites    *InviteStore
	users      *UserStore
	settings   settings.Store
	table      ScheduleTable
	reschedule Rescheduler
}

// New creates an admin Server.  db must be the same *sql.DB used by the
// application store so that the admin tables live in the same SQLite file.
// rescheduler may be nil when reminders are not wired.
func New(db *sql.DB, st settings.Store, table ScheduleTable, rescheduler Rescheduler, cfg Config) *Server {
	return &Server{
		sessions:   newSessionStore(db, cfg.SessionTTL),
		invites:    newInviteStore(db),
		users:      newUserStore(db),
		settings:   st,
		table:      table,
		reschedule: rescheduler,
	}
}

// RegisterRoutes adds the admin HTTP routes to the given RouteRegistrar:
//
//   - POST /admin/api/login             — exchange credentials for a token.
//   - POST /admin/api/logout            — burn the presented token.
//   - POST /admin/api/register          — invite-only account creation.
//   - POST /admin/api/invites           — mint a code (super admin only).
//   - GET/POST /admin/api/settings/schedule — reminder + sheet settings.
//   - GET/POST /admin/api/settings/profile  — bot profile settings.
//   - GET/POST /admin/api/schedule/items    — read / replace the sheet rows.
//   - GET /api/schedule                 — public read-only schedule.
func (srv *Server) RegisterRoutes(r RouteRegistrar) {
	r.Handle("/admin/api/login", http.HandlerFunc(srv.handleLogin))
	r.Handle("/admin/api/logout", srv.authenticated(srv.handleLogout))
	r.Handle("/admin/api/register", http.HandlerFunc(srv.handleRegister))
	r.Handle("/admin/api/invites", srv.authenticated(srv.handleInvites))
	r.Handle("/admin/api/settings/schedule", srv.authenticated(srv.handleScheduleSettings))
	r.Handle("/admin/api/settings/profile", srv.authenticated(srv.handleProfileSettings))
	r.Handle("/admin/api/schedule/items", srv.authenticated(srv.handleScheduleItems))
	r.Handle("/api/schedule", http.HandlerFunc(srv.handlePublicSchedule))
}

// PruneExpired delegates to the underlying SessionStore.  Intended to be
// called from a background goroutine or a periodic task.
func (srv *Server) PruneExpired(ctx context.Context) error {
	return srv.sessions.PruneExpired(ctx)
}

// --- Auth ----------------------------------------------------------------------

type ctxKey int

const emailKey ctxKey = 0

// authenticated wraps h with bearer-token validation plus an admin-list
// check against the stored bot profile.
func (srv *Server) authenticated(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		email, err := srv.sessions.Validate(r.Context(), token)
		switch {
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		case err != nil:
			slog.Error("admin: validate session", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		profile, err := srv.loadProfile(r.Context())
		if err != nil {
			slog.Error("admin: load profile for auth", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !profile.IsAdmin(email) {
			writeError(w, http.StatusForbidden, "not an admin")
			return
		}

		h(w, r.WithContext(context.WithValue(r.Context(), emailKey, email)))
	})
}

func requestEmail(r *http.Request) string {
	email, _ := r.Context().Value(emailKey).(string)
	return email
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
}

// loadProfile returns the stored bot profile, or the zero profile when none
// has been saved yet (so the first registered account can bootstrap).
func (srv *Server) loadProfile(ctx context.Context) (settings.Profile, error) {
	profile, err := srv.settings.Profile(ctx)
	if errors.Is(err, settings.ErrNotFound) {
		return settings.Profile{}, nil
	}
	return profile, err
}

// --- Handlers ------------------------------------------------------------------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	DisplayName string    `json:"display_name"`
	SuperAdmin  bool      `json:"super_admin"`
}

func (srv *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	user, err := srv.users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrBadCredentials) {
		writeError(w, http.StatusUnauthorized, "bad credentials")
		return
	}
	if err != nil {
		slog.Error("admin: authenticate", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, expiresAt, err := srv.sessions.Issue(r.Context(), user.Email)
	if err != nil {
		slog.Error("admin: issue session", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	profile, err := srv.loadProfile(r.Context())
	if err != nil {
		slog.Error("admin: load profile after login", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("admin: login", "email", user.Email)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:       token,
		ExpiresAt:   expiresAt,
		DisplayName: user.DisplayName,
		SuperAdmin:  profile.SuperAdminEmail() == user.Email,
	})
}

func (srv *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := srv.sessions.Delete(r.Context(), bearerToken(r)); err != nil {
		slog.Error("admin: logout", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	Invite      string `json:"invite"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// handleRegister creates a new account from a one-time invite code and adds
// it to the bot profile's admin list.  The very first account registers
// without an invite and becomes the super admin.
func (srv *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	profile, err := srv.loadProfile(r.Context())
	if err != nil {
		slog.Error("admin: load profile for register", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	bootstrap := len(profile.Admins) == 0
	if !bootstrap {
		err := srv.invites.Redeem(r.Context(), req.Invite, normalizeEmail(req.Email))
		switch {
		case errors.Is(err, ErrInviteNotFound), errors.Is(err, ErrInviteUsed):
			writeError(w, http.StatusForbidden, "invalid invite code")
			return
		case err != nil:
			slog.Error("admin: redeem invite", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	if err := srv.users.Create(r.Context(), req.Email, req.DisplayName, req.Password); err != nil {
		if errors.Is(err, ErrUserExists) {
			writeError(w, http.StatusConflict, "account already exists")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile.Admins = append(profile.Admins, settings.Admin{
		Name:  req.DisplayName,
		Email: normalizeEmail(req.Email),
	})
	if err := srv.settings.SetProfile(r.Context(), profile); err != nil {
		slog.Error("admin: save profile after register", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("admin: account registered", "email", normalizeEmail(req.Email), "bootstrap", bootstrap)
	w.WriteHeader(http.StatusCreated)
}

type inviteResponse struct {
	Code string `json:"code"`
}

// handleInvites mints a one-time registration code.  Only the super admin
// (first entry of the admin list) may issue invites.
func (srv *Server) handleInvites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	profile, err := srv.loadProfile(r.Context())
	if err != nil {
		slog.Error("admin: load profile for invite", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	email := requestEmail(r)
	if profile.SuperAdminEmail() != email {
		writeError(w, http.StatusForbidden, "only the super admin can issue invites")
		return
	}

	code, err := srv.invites.Issue(r.Context(), email)
	if err != nil {
		slog.Error("admin: issue invite", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, inviteResponse{Code: code})
}

func (srv *Server) handleScheduleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := srv.settings.Schedule(r.Context())
		if errors.Is(err, settings.ErrNotFound) {
			writeJSON(w, http.StatusOK, settings.Schedule{})
			return
		}
		if err != nil {
			slog.Error("admin: load schedule settings", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	case http.MethodPost:
		var cfg settings.Schedule
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "bad request body")
			return
		}
		if cfg.RemindersEnabled {
			if _, _, ok := cfg.ReminderClock(); !ok {
				writeError(w, http.StatusBadRequest, "reminder time must be HH:MM")
				return
			}
		}
		if err := srv.settings.SetSchedule(r.Context(), cfg); err != nil {
			slog.Error("admin: save schedule settings", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if srv.reschedule != nil {
			if err := srv.reschedule.Reschedule(r.Context()); err != nil {
				slog.Warn("admin: reschedule reminders after settings change", "err", err)
			}
		}
		slog.Info("admin: schedule settings updated", "by", requestEmail(r))
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (srv *Server) handleProfileSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profile, err := srv.loadProfile(r.Context())
		if err != nil {
			slog.Error("admin: load profile", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, profile)

	case http.MethodPost:
		var profile settings.Profile
		if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
			writeError(w, http.StatusBadRequest, "bad request body")
			return
		}
		if err := srv.settings.SetProfile(r.Context(), profile); err != nil {
			slog.Error("admin: save profile", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		slog.Info("admin: profile updated", "by", requestEmail(r))
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type scheduleItemsResponse struct {
	Items []schedule.Record `json:"items"`
}

func (srv *Server) handleScheduleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := srv.table.List(r.Context())
		if err != nil {
			slog.Error("admin: list schedule items", "err", err)
			writeError(w, http.StatusBadGateway, "failed to read schedule sheet")
			return
		}
		writeJSON(w, http.StatusOK, scheduleItemsResponse{Items: records})

	case http.MethodPost:
		var req scheduleItemsResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request body")
			return
		}
		if err := srv.table.ReplaceAll(r.Context(), req.Items); err != nil {
			slog.Error("admin: replace schedule items", "err", err)
			writeError(w, http.StatusBadGateway, "failed to write schedule sheet")
			return
		}
		slog.Info("admin: schedule sheet replaced", "by", requestEmail(r), "rows", len(req.Items))
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handlePublicSchedule serves the schedule read-only without authentication.
func (srv *Server) handlePublicSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	records, err := srv.table.List(r.Context())
	if err != nil {
		slog.Error("admin: public schedule read", "err", err)
		writeError(w, http.StatusBadGateway, "failed to read schedule sheet")
		return
	}
	writeJSON(w, http.StatusOK, scheduleItemsResponse{Items: records})
}

// --- JSON helpers --------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
