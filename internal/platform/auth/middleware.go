package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// RequireToken returns middleware that admits requests carrying a bearer
// token signed with signingKey that grants read access on scopeKey.
func RequireToken(signingKey []byte, scopeKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := ParseToken(parts[1], signingKey)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if !claims.Grants(scopeKey, "read") {
				return echo.NewHTTPError(http.StatusForbidden, "required permission: "+scopeKey+":read")
			}

			ctx := context.WithValue(c.Request().Context(), ClaimsKey, claims)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequirePermission returns middleware that admits requests whose token,
// already verified by RequireToken, grants action on scopeKey.
func RequirePermission(scopeKey, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFromContext(c.Request().Context())
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token claims")
			}
			if !claims.Grants(scopeKey, action) {
				return echo.NewHTTPError(http.StatusForbidden, "required permission: "+scopeKey+":"+action)
			}
			return next(c)
		}
	}
}

func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsKey).(*Claims)
	return claims
}
