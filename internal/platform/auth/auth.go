package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const principalKey contextKey = "principal"

// Roles recognized across the platform. Staff roles are scoped to a clinic;
// platform_admin bypasses role checks entirely.
const (
	RolePatient       = "patient"
	RoleDoctor        = "doctor"
	RoleNurse         = "nurse"
	RoleClinicAdmin   = "clinic_admin"
	RoleLabAdmin      = "lab_admin"
	RolePlatformAdmin = "platform_admin"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	ID   int64
	Role string
}

// IsStaff reports whether the principal holds a clinic staff role.
func (p Principal) IsStaff() bool {
	switch p.Role {
	case RoleDoctor, RoleNurse, RoleClinicAdmin, RoleLabAdmin, RolePlatformAdmin:
		return true
	}
	return false
}

type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
}

// JWTMiddleware validates a bearer token and stores the caller's Principal on
// the request context. The tenant claim is surfaced on the echo context for
// the tenant middleware downstream.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}

			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			id, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
			}

			c.Set("jwt_tenant_id", claims.TenantID)

			ctx := WithPrincipal(c.Request().Context(), Principal{ID: id, Role: claims.Role})
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. Requests may
// declare who they are via X-User-ID and X-User-Role headers; absent those,
// the caller is a platform admin.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := Principal{ID: 1, Role: RolePlatformAdmin}

			if raw := c.Request().Header.Get("X-User-ID"); raw != "" {
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
					p.ID = id
				}
			}
			if role := c.Request().Header.Get("X-User-Role"); role != "" {
				p.Role = role
			}

			c.Set("jwt_tenant_id", "default")
			ctx := WithPrincipal(c.Request().Context(), p)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
