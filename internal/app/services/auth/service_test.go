package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "carrental/internal/domain/auth"
	"carrental/internal/domain/shared/errkind"
	domainuser "carrental/internal/domain/user"
)

var now = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

type stubVerifier struct {
	session *domainauth.Session
	err     error
}

func (v stubVerifier) Verify(string) (*domainauth.Session, error) { return v.session, v.err }

type userStore struct {
	users  map[domainuser.ID]*domainuser.User
	getErr error
	saves  int
}

func (s *userStore) ByID(_ context.Context, id domainuser.ID) (*domainuser.User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	return u, nil
}

func (s *userStore) Save(_ context.Context, u *domainuser.User) error {
	s.saves++
	s.users[u.ID] = u
	return nil
}

func session(roles ...domainuser.Role) *domainauth.Session {
	return &domainauth.Session{
		Token:     "tok",
		UserID:    "u-1",
		Email:     "Ana@Example.com",
		Name:      "Ana",
		Roles:     roles,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestResolveTokenProvisionsUnknownUser(t *testing.T) {
	users := &userStore{users: map[domainuser.ID]*domainuser.User{}}
	svc := &Service{Users: users, Verifier: stubVerifier{session: session()}, Now: func() time.Time { return now }}

	res, err := svc.ResolveToken(context.Background(), " tok ")
	require.NoError(t, err)
	assert.Equal(t, "u-1", res.Principal.UserID)
	assert.Equal(t, "ana@example.com", res.Principal.Email)
	assert.Equal(t, []domainuser.Role{domainuser.RoleRenter}, res.Principal.Roles)
	assert.Equal(t, 1, users.saves)

	_, err = svc.ResolveToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, users.saves, "second request finds the user")
}

func TestResolveTokenMergesRoles(t *testing.T) {
	stored, err := domainuser.NewUser(domainuser.CreateParams{ID: "u-1", Email: "ana@example.com", Roles: []domainuser.Role{domainuser.RoleOwner}, CreatedAt: now})
	require.NoError(t, err)
	users := &userStore{users: map[domainuser.ID]*domainuser.User{"u-1": stored}}
	svc := &Service{Users: users, Verifier: stubVerifier{session: session(domainuser.RoleAdmin, domainuser.RoleOwner)}, Now: func() time.Time { return now }}

	res, err := svc.ResolveToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []domainuser.Role{domainuser.RoleOwner, domainuser.RoleAdmin}, res.Principal.Roles)
	assert.True(t, res.Principal.IsAdmin())
}

func TestResolveTokenErrors(t *testing.T) {
	users := &userStore{users: map[domainuser.ID]*domainuser.User{}}

	expired := session()
	expired.ExpiresAt = now.Add(-time.Minute)
	svc := &Service{Users: users, Verifier: stubVerifier{session: expired}, Now: func() time.Time { return now }}
	_, err := svc.ResolveToken(context.Background(), "tok")
	assert.ErrorIs(t, err, domainauth.ErrSessionExpired)

	svc.Verifier = stubVerifier{err: domainauth.ErrInvalidToken}
	_, err = svc.ResolveToken(context.Background(), "tok")
	assert.ErrorIs(t, err, errkind.ErrForbidden)

	boom := errors.New("mongo down")
	svc = &Service{Users: &userStore{getErr: boom}, Verifier: stubVerifier{session: session()}, Now: func() time.Time { return now }}
	_, err = svc.ResolveToken(context.Background(), "tok")
	assert.ErrorIs(t, err, boom)

	_, err = (&Service{}).ResolveToken(context.Background(), "tok")
	assert.Error(t, err)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	_, ok = PrincipalFromContext(WithPrincipal(context.Background(), Principal{}))
	assert.False(t, ok, "anonymous principal")

	p, ok := PrincipalFromContext(WithPrincipal(context.Background(), Principal{UserID: "u-1", Roles: []domainuser.Role{"Admin"}}))
	require.True(t, ok)
	assert.True(t, p.HasRole(domainuser.RoleAdmin))
}
