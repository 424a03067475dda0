package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/workos/workos-go/v4/pkg/usermanagement"

	"github.com/openpreview/openpreview/internal/store"
)

// Auth cookie names shared by the middleware and the OAuth handlers.
const (
	sessionCookie = "workos_session"
	refreshCookie = "workos_refresh"
	stateCookie   = "oauth_state"
)

// WorkOSConfig holds WorkOS integration settings.
type WorkOSConfig struct {
	APIKey       string
	ClientID     string
	RedirectURI  string
	CookieDomain string
}

// WorkOSMiddleware guards the dashboard group. It resolves the session
// cookie (or a bearer token) to a locally provisioned user and stamps
// the user's org onto the request context. Orgs and users are created
// on first login.
type WorkOSMiddleware struct {
	cfg WorkOSConfig
	pg  *store.Postgres
	um  *usermanagement.Client
}

// NewWorkOSMiddleware creates WorkOS session middleware.
func NewWorkOSMiddleware(cfg WorkOSConfig, pg *store.Postgres) *WorkOSMiddleware {
	m := &WorkOSMiddleware{cfg: cfg, pg: pg}
	if cfg.APIKey != "" {
		m.um = usermanagement.NewClient(cfg.APIKey)
	}
	return m
}

// Middleware returns the Echo middleware function.
func (w *WorkOSMiddleware) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if w.um == nil {
				// WorkOS unconfigured: the dashboard stays open for
				// local development.
				return next(c)
			}

			token := sessionToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
				})
			}

			user, err := w.resolveSession(c.Request().Context(), token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "invalid session: " + err.Error(),
				})
			}

			SetOrgID(c, user.OrgID)
			c.Set("user_id", user.ID)
			c.Set("user_email", user.Email)

			return next(c)
		}
	}
}

// sessionToken pulls the WorkOS access token off the request: session
// cookie first, Authorization bearer as the API-client fallback.
func sessionToken(c echo.Context) string {
	if ck, err := c.Cookie(sessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	if h := c.Request().Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// WorkOSUser is a validated dashboard user.
type WorkOSUser struct {
	ID    uuid.UUID
	OrgID uuid.UUID
	Email string
	Name  string
}

// resolveSession maps an access token to its provisioned user. The token
// was stored during the OAuth callback; expiry is enforced by the session
// row, so revocation takes effect without waiting for the cookie to die.
func (w *WorkOSMiddleware) resolveSession(ctx context.Context, token string) (*WorkOSUser, error) {
	if w.pg == nil {
		return nil, fmt.Errorf("database not configured")
	}
	user, err := w.pg.GetUserByAccessToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("invalid or expired session")
	}
	return &WorkOSUser{
		ID:    user.ID,
		OrgID: user.OrgID,
		Email: user.Email,
		Name:  user.Name,
	}, nil
}

// ensureUser provisions the local rows backing a WorkOS identity. A known
// email resolves to its existing user; otherwise the org is found or
// created by slug, seeded with a default API key, and the user joins it
// as admin.
func (w *WorkOSMiddleware) ensureUser(ctx context.Context, email, name, orgName string) (*WorkOSUser, error) {
	if w.pg == nil {
		return nil, fmt.Errorf("database not configured")
	}

	if existing, err := w.pg.GetUserByEmail(ctx, email); err == nil {
		return &WorkOSUser{
			ID:    existing.ID,
			OrgID: existing.OrgID,
			Email: existing.Email,
			Name:  existing.Name,
		}, nil
	}

	slug := orgSlug(orgName)
	org, err := w.pg.GetOrgBySlug(ctx, slug)
	if err != nil {
		org, err = w.pg.CreateOrg(ctx, orgName, slug)
		if err != nil {
			return nil, fmt.Errorf("failed to create org: %w", err)
		}
		log.Printf("workos: provisioned org %s (%s)", org.Slug, org.ID)

		if key, err := GenerateAPIKey(); err == nil {
			prefix := key[:8]
			_, _ = w.pg.CreateAPIKey(ctx, org.ID, nil, store.HashAPIKey(key), prefix, "Default")
			log.Printf("workos: created default API key %s... for org %s", prefix, org.Slug)
		}
	}

	user, err := w.pg.CreateUser(ctx, org.ID, email, name, "admin")
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	log.Printf("workos: provisioned user %s (%s)", user.Email, user.ID)

	return &WorkOSUser{
		ID:    user.ID,
		OrgID: user.OrgID,
		Email: user.Email,
		Name:  user.Name,
	}, nil
}

// orgSlug derives a URL-safe slug from an org name: lowercased, with runs
// of anything outside [a-z0-9] collapsed to single dashes. Org names are
// usually emails (personal orgs) or WorkOS organization IDs.
func orgSlug(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
		default:
			pending = true
		}
	}
	if b.Len() == 0 {
		return "org"
	}
	return b.String()
}
