package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"daybook/crypto"
	"daybook/db"
	"daybook/models"
)

const MinPasswordLength = 6

var ErrPasswordTooShort = fmt.Errorf("%w: password too short", models.ErrValidation)

// CredentialStore persists usernames with hashed passwords and checks
// login attempts against them.
type CredentialStore struct {
	db     *sql.DB
	hasher *crypto.Hasher

	// compared against when the username is unknown so both failure
	// paths cost one hash check
	dummyHash string
}

func NewCredentialStore(conn *sql.DB, hasher *crypto.Hasher) (*CredentialStore, error) {
	dummy, err := hasher.HashPassword("daybook-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return &CredentialStore{db: conn, hasher: hasher, dummyHash: dummy}, nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: need at least %d characters", ErrPasswordTooShort, MinPasswordLength)
	}
	return nil
}

// Register creates a user. A taken username is reported as
// models.ErrConflict, detected from the UNIQUE constraint on insert.
func (s *CredentialStore) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", models.ErrValidation)
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		user.Username, user.PasswordHash, user.CreatedAt.UnixMilli())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("user %q: %w", username, models.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	user.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return user, nil
}

// Verify returns the user when username and password match. An unknown
// username and a wrong password both yield ok == false with a nil error.
func (s *CredentialStore) Verify(ctx context.Context, username, password string) (*models.User, bool, error) {
	user := &models.User{}
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		strings.TrimSpace(username)).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		crypto.CheckPassword(password, s.dummyHash)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select user: %w", err)
	}

	if !crypto.CheckPassword(password, user.PasswordHash) {
		return nil, false, nil
	}

	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return user, true, nil
}
