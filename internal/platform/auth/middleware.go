// Package auth resolves the caller identity from a bearer JWT. Requests
// without an Authorization header continue as anonymous; it is up to each
// route to decide whether anonymous callers are allowed.
package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Roles recognised by the booking API.
const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleProvider = "provider"
)

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type Config struct {
	Issuer   string
	Audience string
	// SigningKey enables HS256 verification. When empty, keys come from JWKSURL.
	SigningKey []byte
	JWKSURL    string
}

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Roles   []string
}

func (id Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(id.Roles, r) {
			return true
		}
	}
	return slices.Contains(id.Roles, RoleAdmin)
}

// IsStaff reports whether the caller may move records on behalf of others.
func (id Identity) IsStaff() bool {
	return id.HasRole(RoleStaff, RoleProvider)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller and whether one was authenticated.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Subject != ""
}

// Authenticate verifies a bearer token when one is present. A malformed or
// invalid token is rejected with 401 rather than downgraded to anonymous.
func Authenticate(cfg Config) echo.MiddlewareFunc {
	var keyFunc jwt.Keyfunc
	methods := []string{"HS256"}
	if len(cfg.SigningKey) > 0 {
		key := cfg.SigningKey
		keyFunc = func(*jwt.Token) (any, error) { return key, nil }
	} else {
		keyFunc = NewJWKSCache(cfg.JWKSURL, defaultJWKSTTL).Keyfunc
		methods = []string{"RS256"}
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return next(c)
			}

			scheme, tokenStr, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(strings.TrimSpace(tokenStr), claims, keyFunc)
			if err != nil || !token.Valid || claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := WithIdentity(c.Request().Context(), Identity{Subject: claims.Subject, Roles: claims.Roles})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
