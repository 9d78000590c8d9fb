package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/atelier-garage/garage/internal/shared"
)

// Service checks admin credentials against the configured email and bcrypt hash.
type Service struct {
	email string
	hash  []byte
}

// NewService constructs a Service. The hash must be a valid bcrypt hash.
func NewService(email, passwordHash string) (*Service, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("auth: admin email must be provided")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, errors.New("auth: admin password hash is not a bcrypt hash")
	}
	return &Service{email: email, hash: []byte(passwordHash)}, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(_ context.Context, email, password string) (Admin, error) {
	emailOK := subtle.ConstantTimeCompare([]byte(normalizeEmail(email)), []byte(s.email)) == 1
	// the hash is always compared so unknown emails cost the same time
	passErr := bcrypt.CompareHashAndPassword(s.hash, []byte(password))
	if !emailOK || passErr != nil {
		return Admin{}, shared.Unauthorized("invalid email or password")
	}
	return Admin{ID: AdminID, Email: s.email}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
