// Package auth resolves bearer tokens into principals. Tokens are issued
// elsewhere; the first request of an unknown subject provisions its user record.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainauth "carrental/internal/domain/auth"
	"carrental/internal/domain/shared/errkind"
	domainuser "carrental/internal/domain/user"
)

var ErrUnauthenticated = fmt.Errorf("%w: authentication required", errkind.ErrForbidden)

type TokenVerifier interface {
	Verify(token string) (*domainauth.Session, error)
}

type Service struct {
	Users    domainuser.Repository
	Verifier TokenVerifier
	Logger   *slog.Logger
	Now      func() time.Time
}

type ResolveResult struct {
	User      *domainuser.User
	Session   *domainauth.Session
	Principal Principal
}

func (s *Service) ResolveToken(ctx context.Context, token string) (*ResolveResult, error) {
	if s.Verifier == nil || s.Users == nil {
		return nil, errors.New("auth: service not configured")
	}
	session, err := s.Verifier.Verify(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, domainauth.ErrSessionExpired
	}
	user, err := s.Users.ByID(ctx, session.UserID)
	switch {
	case err == nil:
	case errors.Is(err, domainuser.ErrNotFound):
		user, err = s.provision(ctx, session)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return &ResolveResult{
		User:    user,
		Session: session,
		Principal: Principal{
			UserID: string(user.ID),
			Email:  user.Email,
			Name:   user.Name,
			Roles:  mergeRoles(user.Roles, session.Roles),
		},
	}, nil
}

func (s *Service) provision(ctx context.Context, session *domainauth.Session) (*domainuser.User, error) {
	user, err := domainuser.NewUser(domainuser.CreateParams{
		ID:        session.UserID,
		Email:     session.Email,
		Name:      session.Name,
		Roles:     session.Roles,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user provisioned from token", "user_id", user.ID)
	}
	return user, nil
}

func mergeRoles(a, b []domainuser.Role) []domainuser.Role {
	seen := make(map[domainuser.Role]struct{}, len(a)+len(b))
	out := make([]domainuser.Role, 0, len(a)+len(b))
	for _, list := range [][]domainuser.Role{a, b} {
		for _, r := range list {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
