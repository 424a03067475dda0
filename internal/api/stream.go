package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/openpreview/openpreview/internal/auth"
	"github.com/openpreview/openpreview/internal/metrics"
	"github.com/openpreview/openpreview/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now; tighten in production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamTokenTTL is the lifetime of minted thread-scoped stream tokens.
const streamTokenTTL = time.Hour

// mintStreamToken issues a short-lived thread-scoped token so browser
// clients can open the stream without holding the org API key.
func (s *Server) mintStreamToken(c echo.Context) error {
	if s.jwtIssuer == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "stream tokens not configured",
		})
	}

	orgID, _ := auth.GetOrgID(c)
	threadID := c.Param("id")

	token, err := s.jwtIssuer.IssueThreadToken(orgID, threadID, streamTokenTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to issue token: " + err.Error(),
		})
	}

	return c.JSON(http.StatusOK, types.StreamTokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(streamTokenTTL).UTC(),
	})
}

// authorizeStream accepts either an org API key (agent-side callers) or a
// thread-scoped token (browser preview panels). Returns nil when the
// request may proceed; otherwise the error response has been written.
func (s *Server) authorizeStream(c echo.Context) error {
	key := c.Request().Header.Get("X-API-Key")
	if key == "" {
		key = c.QueryParam("api_key")
	}
	if key != "" {
		if s.pg != nil {
			orgID, err := s.pg.ValidateAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid API key",
				})
			}
			auth.SetOrgID(c, orgID)
			return nil
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1 {
			return nil
		}
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "invalid API key",
		})
	}

	tokenStr := c.QueryParam("token")
	if tokenStr == "" {
		if h := c.Request().Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenStr = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if tokenStr != "" && s.jwtIssuer != nil {
		claims, err := s.jwtIssuer.ValidateThreadToken(tokenStr)
		if err != nil {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "invalid token: " + err.Error(),
			})
		}
		if claims.ThreadID != c.Param("id") {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "token not valid for this thread",
			})
		}
		auth.SetOrgID(c, claims.OrgID)
		return nil
	}

	// Development mode: nothing configured, nothing required.
	if s.pg == nil && s.apiKey == "" {
		return nil
	}

	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error": "missing credentials",
	})
}

// threadStream is the bidirectional WebSocket for one thread: the agent
// sends "update" frames, the server pushes "status" and "change" frames as
// the engine reacts.
func (s *Server) threadStream(c echo.Context) error {
	if err := s.authorizeStream(c); err != nil {
		return err
	}

	sess := s.engine.Thread(c.Param("id"))

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	metrics.StreamConnectionsActive.Inc()
	defer metrics.StreamConnectionsActive.Dec()

	// Current state first, so clients render without waiting for a tick.
	status := sess.Status()
	if err := ws.WriteJSON(types.StreamMessage{Type: "status", Status: &status}); err != nil {
		return nil
	}

	ch, cancel := sess.Subscribe()
	defer cancel()

	// Engine frames -> WebSocket
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			if err := ws.WriteJSON(msg); err != nil {
				return
			}
		}
	}()

	// WebSocket -> engine ticks
	for {
		var msg types.StreamMessage
		if err := ws.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == "update" && msg.Update != nil {
			sess.Apply(*msg.Update)
		}
	}

	cancel()
	<-done

	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	return nil
}
