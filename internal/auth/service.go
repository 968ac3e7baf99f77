// Package auth implements operator login and token validation. Credential
// failures are deliberately generic so account names cannot be enumerated.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/asaskevich/govalidator"
	"golang.org/x/crypto/bcrypt"

	"routier/internal/platform/database"
	"routier/pkg/apperr"
)

// Schema holds the operator accounts table DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name     TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'agent',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// User is an operator account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Service authenticates operators against the users table.
type Service struct {
	handle *database.Handle
	tokens *TokenService
	log    *slog.Logger
}

func NewService(handle *database.Handle, tokens *TokenService, log *slog.Logger) *Service {
	return &Service{handle: handle, tokens: tokens, log: log}
}

// Login verifies credentials and returns an opaque access token plus the
// authenticated user.
func (s *Service) Login(ctx context.Context, username, password string) (string, User, error) {
	if err := validateCredentials(username, password); err != nil {
		return "", User{}, err
	}

	db, err := s.handle.DB(ctx)
	if err != nil {
		return "", User{}, err
	}

	var (
		user User
		hash string
	)
	row := db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, full_name, role FROM users WHERE username = $1`,
		strings.TrimSpace(username),
	)
	switch err := row.Scan(&user.ID, &user.Username, &hash, &user.FullName, &user.Role); {
	case errors.Is(err, sql.ErrNoRows):
		return "", User{}, badCredentials()
	case err != nil:
		return "", User{}, apperr.Wrap(err, apperr.CodeInternal, "load user")
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		s.log.DebugContext(ctx, "login rejected", "username", user.Username)
		return "", User{}, badCredentials()
	}

	token, err := s.tokens.Generate(user.Username, user.Role)
	if err != nil {
		return "", User{}, apperr.Wrap(err, apperr.CodeInternal, "issue token")
	}
	return token, user, nil
}

func validateCredentials(username, password string) error {
	fields := map[string]string{}
	if !govalidator.StringLength(strings.TrimSpace(username), "1", "100") {
		fields["credentials"] = "username and password are required"
	}
	if password == "" {
		fields["credentials"] = "username and password are required"
	}
	if len(fields) > 0 {
		return apperr.New(apperr.CodeValidation, "invalid login request").WithFields(fields)
	}
	return nil
}

// badCredentials is the single generic message for every credential failure.
func badCredentials() error {
	return apperr.New(apperr.CodeUnauthorized, "invalid credentials")
}
