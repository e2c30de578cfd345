// Package auth models a verified bearer token.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/user"
)

var (
	ErrTokenRequired  = fmt.Errorf("%w: token is required", errkind.ErrForbidden)
	ErrUserRequired   = errors.New("auth: subject is required")
	ErrSessionExpired = fmt.Errorf("%w: session expired", errkind.ErrForbidden)
	ErrInvalidToken   = fmt.Errorf("%w: invalid token", errkind.ErrForbidden)
)

type Token string

// Session is the verified content of a bearer token.
type Session struct {
	Token     Token
	UserID    user.ID
	Email     string
	Name      string
	Roles     []user.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type SessionParams struct {
	Token     Token
	UserID    user.ID
	Email     string
	Name      string
	Roles     []user.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func NewSession(params SessionParams) (*Session, error) {
	token := strings.TrimSpace(string(params.Token))
	if token == "" {
		return nil, ErrTokenRequired
	}
	if strings.TrimSpace(string(params.UserID)) == "" {
		return nil, ErrUserRequired
	}
	return &Session{
		Token:     Token(token),
		UserID:    params.UserID,
		Email:     params.Email,
		Name:      params.Name,
		Roles:     append([]user.Role(nil), params.Roles...),
		IssuedAt:  params.IssuedAt.UTC(),
		ExpiresAt: params.ExpiresAt.UTC(),
	}, nil
}

// Expired reports whether the session is past its expiry. A zero expiry never expires.
func (s *Session) Expired(at time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(at.UTC())
}
