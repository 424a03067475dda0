package auth

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/workos/workos-go/v4/pkg/usermanagement"
)

// Session cookie lifetimes. The session TTL matches the server-side
// expiry default on user_sessions, so the cookie and the row die
// together.
const (
	stateTTL   = 10 * time.Minute
	sessionTTL = 7 * 24 * time.Hour
	refreshTTL = 30 * 24 * time.Hour
)

// OAuthHandlers implements the dashboard login flow against WorkOS
// AuthKit: redirect out with a CSRF state, trade the callback code for
// the WorkOS user, provision local rows, and manage session cookies.
type OAuthHandlers struct {
	w *WorkOSMiddleware
}

// NewOAuthHandlers creates new OAuth handlers.
func NewOAuthHandlers(w *WorkOSMiddleware) *OAuthHandlers {
	return &OAuthHandlers{w: w}
}

// HandleLogin sends the browser to WorkOS AuthKit with a one-shot state
// cookie for CSRF protection.
func (h *OAuthHandlers) HandleLogin(c echo.Context) error {
	state, err := randomState()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to generate state",
		})
	}
	c.SetCookie(authCookie(stateCookie, state, "", stateTTL, isSecureRequest(c)))

	authURL, err := h.w.um.GetAuthorizationURL(usermanagement.GetAuthorizationURLOpts{
		ClientID:    h.w.cfg.ClientID,
		RedirectURI: h.w.cfg.RedirectURI,
		Provider:    "authkit",
		State:       state,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to generate authorization URL: " + err.Error(),
		})
	}

	return c.Redirect(http.StatusFound, authURL.String())
}

// HandleCallback finishes the flow: verify the state, exchange the code,
// provision the org and user, persist the access token for server-side
// validation, then set the session cookies.
func (h *OAuthHandlers) HandleCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "missing authorization code",
		})
	}

	stateCk, err := c.Cookie(stateCookie)
	if err != nil || stateCk.Value != c.QueryParam("state") {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid state parameter",
		})
	}
	c.SetCookie(authCookie(stateCookie, "", "", -1, false))

	ctx := c.Request().Context()
	res, err := h.w.um.AuthenticateWithCode(ctx, usermanagement.AuthenticateWithCodeOpts{
		ClientID: h.w.cfg.ClientID,
		Code:     code,
	})
	if err != nil {
		log.Printf("workos: callback authentication failed: %v", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "authentication failed",
		})
	}

	name := res.User.FirstName
	if res.User.LastName != "" {
		name += " " + res.User.LastName
	}
	if name == "" {
		name = res.User.Email
	}

	// WorkOS organization when present, else a personal org keyed by
	// email.
	orgName := res.User.Email
	if res.OrganizationID != "" {
		orgName = res.OrganizationID
	}

	user, err := h.w.ensureUser(ctx, res.User.Email, name, orgName)
	if err != nil {
		log.Printf("workos: provisioning failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to provision user",
		})
	}

	if h.w.pg != nil {
		_ = h.w.pg.StoreAccessToken(ctx, user.ID, res.AccessToken)
	}

	secure := isSecureRequest(c)
	c.SetCookie(authCookie(sessionCookie, res.AccessToken, h.w.cfg.CookieDomain, sessionTTL, secure))
	if res.RefreshToken != "" {
		c.SetCookie(authCookie(refreshCookie, res.RefreshToken, h.w.cfg.CookieDomain, refreshTTL, secure))
	}

	return c.Redirect(http.StatusFound, "/dashboard/")
}

// HandleLogout invalidates the server-side session and clears every auth
// cookie.
func (h *OAuthHandlers) HandleLogout(c echo.Context) error {
	if ck, err := c.Cookie(sessionCookie); err == nil && ck.Value != "" && h.w.pg != nil {
		ctx := c.Request().Context()
		if user, err := h.w.pg.GetUserByAccessToken(ctx, ck.Value); err == nil {
			_ = h.w.pg.DeleteAccessTokensForUser(ctx, user.ID)
		}
	}

	for _, name := range []string{sessionCookie, refreshCookie, stateCookie} {
		c.SetCookie(authCookie(name, "", "", -1, false))
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// HandleMe returns the authenticated user's identity.
func (h *OAuthHandlers) HandleMe(c echo.Context) error {
	orgID, _ := GetOrgID(c)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":    c.Get("user_id"),
		"email": c.Get("user_email"),
		"orgId": orgID,
	})
}

// authCookie builds an auth cookie with the shared attributes. A
// negative ttl expires the cookie immediately.
func authCookie(name, value, domain string, ttl time.Duration, secure bool) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
	} else {
		ck.MaxAge = int(ttl / time.Second)
	}
	return ck
}

// isSecureRequest reports whether the request arrived over HTTPS, either
// directly or via a TLS-terminating proxy.
func isSecureRequest(c echo.Context) bool {
	if c.Request().TLS != nil {
		return true
	}
	return c.Request().Header.Get("X-Forwarded-Proto") == "https"
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
