package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"carrental/internal/app/services/auth"
	domainauth "carrental/internal/domain/auth"
	domainuser "carrental/internal/domain/user"
)

// Claims is the bearer token payload. Tokens are minted by the identity
// provider; Issue exists for local runs and tests.
type Claims struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

var _ auth.TokenVerifier = JWTVerifier{}

func NewJWTVerifier(secret, issuer string) JWTVerifier {
	return JWTVerifier{Secret: []byte(secret), Issuer: issuer}
}

func (v JWTVerifier) Verify(token string) (*domainauth.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainauth.ErrTokenRequired
	}
	if len(v.Secret) == 0 {
		return nil, errors.New("jwt: secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainauth.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", domainauth.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domainauth.ErrInvalidToken
	}
	params := domainauth.SessionParams{
		Token:  domainauth.Token(token),
		UserID: domainuser.ID(claims.Subject),
		Email:  claims.Email,
		Name:   claims.Name,
	}
	for _, r := range claims.Roles {
		params.Roles = append(params.Roles, domainuser.Role(r))
	}
	if claims.IssuedAt != nil {
		params.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		params.ExpiresAt = claims.ExpiresAt.Time
	}
	session, err := domainauth.NewSession(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainauth.ErrInvalidToken, err)
	}
	return session, nil
}

// Issue signs an HS256 token for userID valid for ttl.
func (v JWTVerifier) Issue(userID, email, name string, roles []string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Email: email,
		Name:  name,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}

func (v JWTVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
