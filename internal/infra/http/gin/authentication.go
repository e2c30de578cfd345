package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"carrental/internal/app/services/auth"
	domainauth "carrental/internal/domain/auth"
)

const principalContextKey = "carrental.principal"

// AuthMiddleware resolves the bearer token when one is sent. Requests without
// a token continue anonymously; handlers decide whether that is enough.
type AuthMiddleware struct {
	Service *auth.Service
	Logger  *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Service == nil {
		c.Next()
		return
	}
	resolved, err := m.Service.ResolveToken(c.Request.Context(), token)
	if err != nil {
		if m.Logger != nil {
			level := slog.LevelDebug
			if !errors.Is(err, domainauth.ErrInvalidToken) && !errors.Is(err, domainauth.ErrSessionExpired) {
				level = slog.LevelWarn
			}
			m.Logger.Log(c.Request.Context(), level, "token validation failed", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, resolved.Principal)
	c.Next()
}

// setPrincipal stores p on both the gin context and the request context, so
// the command bus authorizer sees the same caller.
func setPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(principalContextKey, p)
	c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
}

func currentPrincipal(c *gin.Context) (auth.Principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := val.(auth.Principal)
	return p, ok && p.UserID != ""
}

func requireUser(c *gin.Context) (auth.Principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, envelope{
			Success: false,
			Message: "authentication required",
			Error:   &errorBody{Kind: "Unauthenticated", Message: "authentication required"},
		})
		return auth.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
