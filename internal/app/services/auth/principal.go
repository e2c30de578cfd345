package auth

import (
	"context"
	"strings"

	domainuser "carrental/internal/domain/user"
)

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Roles  []domainuser.Role
}

func (p Principal) HasRole(role domainuser.Role) bool {
	want := strings.ToLower(strings.TrimSpace(string(role)))
	for _, r := range p.Roles {
		if strings.ToLower(string(r)) == want {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool { return p.HasRole(domainuser.RoleAdmin) }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}
