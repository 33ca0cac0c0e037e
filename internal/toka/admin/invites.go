package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// sentinel errors returned by InviteStore methods.
var (
	// ErrInviteNotFound is returned when a code does not exist.
	ErrInviteNotFound = errors.New("admin: invite not found")
	// ErrInviteUsed is returned when a code has already been redeemed.
	ErrInviteUsed = errors.New("admin: invite already used")
)

// InviteStore manages one-time registration codes.
type InviteStore struct {
	db *sql.DB
}

func newInviteStore(db *sql.DB) *InviteStore {
	return &InviteStore{db: db}
}

// Issue mints a new single-use invite code attributed to createdBy.
func (s *InviteStore) Issue(ctx context.Context, createdBy string) (string, error) {
	// Short uppercase code from the first UUID segment, easy to read aloud.
	code := strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO invite_codes (code, created_by, created_at, used)
VALUES (?, ?, ?, 0)
`, code, createdBy, now)
	if err != nil {
		return "", fmt.Errorf("admin: insert invite: %w", err)
	}
	return code, nil
}

// Redeem marks code as used by email.  A code can be redeemed exactly once.
func (s *InviteStore) Redeem(ctx context.Context, code, email string) error {
	var used bool
	err := s.db.QueryRowContext(ctx,
		`SELECT used FROM invite_codes WHERE code = ?`, strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInviteNotFound
	}
	if err != nil {
		return fmt.Errorf("admin: load invite: %w", err)
	}
	if used {
		return ErrInviteUsed
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
UPDATE invite_codes SET used = 1, used_by = ?, used_at = ?
WHERE code = ? AND used = 0
`, email, now, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fmt.Errorf("admin: redeem invite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with a concurrent redemption.
		return ErrInviteUsed
	}
	return nil
}
