package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openpreview/openpreview/internal/auth"
	"github.com/openpreview/openpreview/internal/store"
	"github.com/openpreview/openpreview/pkg/types"
)

// dashboardDeployments returns the thread listing for the dashboard:
// persisted deployments merged with live sessions.
func (s *Server) dashboardDeployments(c echo.Context) error {
	threads, err := s.engine.ListThreads(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, types.ThreadListResponse{Threads: threads})
}

// dashboardThreadEvents returns one thread's deployment event history.
func (s *Server) dashboardThreadEvents(c echo.Context) error {
	events, err := s.engine.Events(c.Request().Context(), c.Param("id"), 100)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	if events == nil {
		events = []types.DeploymentEvent{}
	}
	return c.JSON(http.StatusOK, events)
}

// dashboardListAPIKeys returns all API keys for the authenticated org.
func (s *Server) dashboardListAPIKeys(c echo.Context) error {
	if s.pg == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "database not configured",
		})
	}

	orgID, ok := auth.GetOrgID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "org context required",
		})
	}

	keys, err := s.pg.ListAPIKeys(c.Request().Context(), orgID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, keys)
}

// dashboardCreateAPIKey creates a new API key for the authenticated org.
// The plaintext key appears in this response only.
func (s *Server) dashboardCreateAPIKey(c echo.Context) error {
	if s.pg == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "database not configured",
		})
	}

	orgID, ok := auth.GetOrgID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "org context required",
		})
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if req.Name == "" {
		req.Name = "Untitled"
	}

	var createdBy *uuid.UUID
	if uid, ok := c.Get("user_id").(uuid.UUID); ok {
		createdBy = &uid
	}

	plainKey, err := auth.GenerateAPIKey()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to generate key",
		})
	}

	hash := store.HashAPIKey(plainKey)
	prefix := plainKey[:8]

	apiKey, err := s.pg.CreateAPIKey(c.Request().Context(), orgID, createdBy, hash, prefix, req.Name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	// Return the key with the plaintext key (only shown once)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":        apiKey.ID,
		"name":      apiKey.Name,
		"key":       plainKey,
		"keyPrefix": apiKey.KeyPrefix,
		"createdAt": apiKey.CreatedAt,
	})
}

// dashboardDeleteAPIKey revokes an API key (scoped to the authenticated org).
func (s *Server) dashboardDeleteAPIKey(c echo.Context) error {
	if s.pg == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "database not configured",
		})
	}

	orgID, ok := auth.GetOrgID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "org context required",
		})
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid key ID",
		})
	}

	if err := s.pg.DeleteAPIKeyForOrg(c.Request().Context(), keyID, orgID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	return c.NoContent(http.StatusNoContent)
}
