package admin

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// sentinel errors returned by SessionStore methods.
var (
	// ErrSessionNotFound is returned when the presented token does not exist.
	ErrSessionNotFound = errors.New("admin: session not found")
	// ErrSessionExpired is returned when the session's TTL has elapsed.
	ErrSessionExpired = errors.New("admin: session expired")
)

// DefaultSessionTTL is the session lifetime when none is configured.
const DefaultSessionTTL = 12 * time.Hour

// SessionStore manages admin_sessions rows in SQLite.
type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

// newSessionStore creates a SessionStore. Pass ttl == 0 to use DefaultSessionTTL.
func newSessionStore(db *sql.DB, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{db: db, ttl: ttl}
}

// Issue creates and persists a new bearer token for email.  Returns the raw
// token string and its expiry time.
func (s *SessionStore) Issue(ctx context.Context, email string) (string, time.Time, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("admin: generate session entropy: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(raw)
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO admin_sessions (token, email, created_at, expires_at)
VALUES (?, ?, ?, ?)
`, token, email, now.Format(time.RFC3339), expiresAt.Format(time.RFC3339))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("admin: insert session: %w", err)
	}
	return token, expiresAt, nil
}

// Validate resolves token to the owning account's email.  Expired sessions
// are rejected (and left for PruneExpired to collect).
func (s *SessionStore) Validate(ctx context.Context, token string) (string, error) {
	var email, expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT email, expires_at FROM admin_sessions WHERE token = ?`, token,
	).Scan(&email, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("admin: load session: %w", err)
	}

	exp, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return "", fmt.Errorf("admin: parse session expiry: %w", err)
	}
	if time.Now().UTC().After(exp) {
		return "", ErrSessionExpired
	}
	return email, nil
}

// Delete removes token.  Deleting an unknown token is a no-op.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("admin: delete session: %w", err)
	}
	return nil
}

// PruneExpired removes all sessions past their expiry.  Intended to be
// called from a background goroutine or a periodic task.
func (s *SessionStore) PruneExpired(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE expires_at < ?`, now); err != nil {
		return fmt.Errorf("admin: prune sessions: %w", err)
	}
	return nil
}
