package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openpreview/openpreview/internal/store"
)

type contextKey string

const (
	// ContextKeyOrgID is the echo context key for the authenticated org ID.
	ContextKeyOrgID contextKey = "org_id"
)

// SetOrgID stores the org ID in the echo context.
func SetOrgID(c echo.Context, orgID uuid.UUID) {
	c.Set(string(ContextKeyOrgID), orgID)
}

// GetOrgID retrieves the org ID from the echo context.
func GetOrgID(c echo.Context) (uuid.UUID, bool) {
	v := c.Get(string(ContextKeyOrgID))
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// PGAPIKeyMiddleware validates API keys against PostgreSQL.
// Falls back to static API key comparison if pg is nil (single-node mode).
func PGAPIKeyMiddleware(pg *store.Postgres, staticKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if pg == nil {
				return APIKeyMiddleware(staticKey)(next)(c)
			}

			key := c.Request().Header.Get("X-API-Key")
			if key == "" {
				key = c.QueryParam("api_key")
			}
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing API key",
				})
			}

			orgID, err := pg.ValidateAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid API key",
				})
			}
			SetOrgID(c, orgID)
			return next(c)
		}
	}
}

// ThreadJWTMiddleware validates thread-scoped JWTs for stream access.
// It verifies the token and checks that the thread_id in the token matches
// the :id URL param.
func ThreadJWTMiddleware(jwtIssuer *JWTIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := ""
			authHeader := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				tokenStr = strings.TrimPrefix(authHeader, "Bearer ")
			}
			if tokenStr == "" {
				// Browsers cannot set headers on WebSocket dials.
				tokenStr = c.QueryParam("token")
			}
			if tokenStr == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing stream token",
				})
			}

			claims, err := jwtIssuer.ValidateThreadToken(tokenStr)
			if err != nil {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid token: " + err.Error(),
				})
			}

			urlThreadID := c.Param("id")
			if urlThreadID != "" && claims.ThreadID != urlThreadID {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "token not valid for this thread",
				})
			}

			SetOrgID(c, claims.OrgID)
			c.Set("thread_id", claims.ThreadID)

			return next(c)
		}
	}
}
