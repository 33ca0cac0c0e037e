// Package settings provides the document store for toka's operator-tunable
// configuration: reminder schedule, target guild/role and sheet binding.
//
// Documents are JSON blobs stored under well-known keys in SQLite.  Secret
// material (bot token, API keys, service-account credentials) is NOT kept
// here — those come from the environment so the security boundary between
// credentials and plain settings stays clear.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shiragiku/toka/internal/toka/store"
)

// ErrNotFound is returned by getters when the document has never been saved.
var ErrNotFound = errors.New("settings: document not found")

// Well-known document keys.
const (
	keySchedule = "schedule_settings"
	keyProfile  = "bot_profile"
)

// Schedule holds the reminder/sheet configuration edited via the admin
// panel.
type Schedule struct {
	// RemindersEnabled turns the daily reminder sweep on or off.
	RemindersEnabled bool `json:"remindersEnabled"`
	// ReminderTime is the local wall-clock time of the daily sweep, "HH:MM".
	ReminderTime string `json:"reminderTime"`
	// SheetID is the spreadsheet the schedule table lives in.
	SheetID string `json:"googleSheetId"`
	// ReminderGuildID is the guild the reminder is posted to.
	ReminderGuildID string `json:"reminderGuildId"`
	// ReminderRoleID is the role mentioned in the reminder message.
	ReminderRoleID string `json:"reminderRoleId"`
	// ReminderChannelID is the channel the reminder is posted to.  When
	// empty, the guild's system channel is used.
	ReminderChannelID string `json:"reminderChannelId,omitempty"`
}

// ReminderClock parses ReminderTime into hour and minute.  ok is false when
// the field is empty or anything other than a bare HH:MM clock time.
func (s Schedule) ReminderClock() (hour, minute int, ok bool) {
	t, err := time.Parse("15:04", s.ReminderTime)
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}

// Admin is one admin-panel account reference kept in the profile document.
type Admin struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Profile holds the bot's presentation settings and the admin list.  The
// first admin is the super admin: only they may edit the admin list or
// issue invite codes.
type Profile struct {
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	Admins       []Admin `json:"admins"`
}

// SuperAdminEmail returns the super admin's email, or "" when no admins are
// registered yet (bootstrap state: everyone is allowed in).
func (p Profile) SuperAdminEmail() string {
	if len(p.Admins) == 0 {
		return ""
	}
	return p.Admins[0].Email
}

// IsAdmin reports whether email belongs to a registered admin.  An empty
// admin list admits everyone, mirroring the bootstrap behavior of
// SuperAdminEmail.
func (p Profile) IsAdmin(email string) bool {
	if len(p.Admins) == 0 {
		return true
	}
	for _, a := range p.Admins {
		if a.Email == email {
			return true
		}
	}
	return false
}

// Store reads and writes settings documents.  Implementations must be safe
// for concurrent use.
type Store interface {
	Schedule(ctx context.Context) (Schedule, error)
	SetSchedule(ctx context.Context, s Schedule) error
	Profile(ctx context.Context) (Profile, error)
	SetProfile(ctx context.Context, p Profile) error
}

type sqliteStore struct {
	db *store.Store
}

// New creates a Store backed by the application SQLite database.
func New(db *store.Store) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Schedule(ctx context.Context) (Schedule, error) {
	var out Schedule
	if err := s.get(ctx, keySchedule, &out); err != nil {
		return Schedule{}, err
	}
	return out, nil
}

func (s *sqliteStore) SetSchedule(ctx context.Context, sched Schedule) error {
	return s.set(ctx, keySchedule, sched)
}

func (s *sqliteStore) Profile(ctx context.Context) (Profile, error) {
	var out Profile
	if err := s.get(ctx, keyProfile, &out); err != nil {
		return Profile{}, err
	}
	return out, nil
}

func (s *sqliteStore) SetProfile(ctx context.Context, p Profile) error {
	return s.set(ctx, keyProfile, p)
}

func (s *sqliteStore) get(ctx context.Context, key string, dst any) error {
	var value string
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT value FROM documents WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("settings: get %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return fmt.Errorf("settings: decode %q: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) set(ctx context.Context, key string, doc any) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("settings: encode %q: %w", key, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO documents (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(value), now)
	if err != nil {
		return fmt.Errorf("settings: set %q: %w", key, err)
	}
	return nil
}
