package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// sentinel errors returned by UserStore methods.
var (
	// ErrUserExists is returned when registering an email that is taken.
	ErrUserExists = errors.New("admin: user already exists")
	// ErrBadCredentials is returned for an unknown email or wrong password.
	ErrBadCredentials = errors.New("admin: bad credentials")
)

// User is a registered panel account.
type User struct {
	Email       string
	DisplayName string
}

// UserStore manages admin_users rows with bcrypt-hashed passwords.
type UserStore struct {
	db *sql.DB
}

func newUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Create registers a new account.  The password is stored as a bcrypt hash.
func (s *UserStore) Create(ctx context.Context, email, displayName, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return errors.New("admin: email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("admin: hash password: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO admin_users (email, display_name, password_hash, created_at)
VALUES (?, ?, ?, ?)
`, email, displayName, string(hash), now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "constraint") {
			return ErrUserExists
		}
		return fmt.Errorf("admin: insert user: %w", err)
	}
	return nil
}

// Authenticate checks email/password and returns the account on success.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)

	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT email, display_name, password_hash FROM admin_users WHERE email = ?`, email,
	).Scan(&u.Email, &u.DisplayName, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("admin: load user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
