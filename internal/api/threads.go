package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/openpreview/openpreview/pkg/types"
)

func (s *Server) listThreads(c echo.Context) error {
	threads, err := s.engine.ListThreads(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, types.ThreadListResponse{Threads: threads})
}

// applyState ingests one snapshot tick from the agent stream. The response
// is the thread status after the tick, countdown included, so pull-based
// agents see the engine's reaction without a second request.
func (s *Server) applyState(c echo.Context) error {
	id := c.Param("id")

	var update types.SnapshotUpdate
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	status := s.engine.Thread(id).Apply(update)
	return c.JSON(http.StatusOK, status)
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Thread(c.Param("id")).Status())
}

func (s *Server) getTree(c echo.Context) error {
	tree := s.engine.Thread(c.Param("id")).Tree()
	if tree == nil {
		tree = []*types.TreeNode{}
	}
	return c.JSON(http.StatusOK, types.TreeResponse{Tree: tree})
}

func (s *Server) getChanges(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Thread(c.Param("id")).Changes())
}

func (s *Server) getFile(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "missing path parameter",
		})
	}

	file, ok := s.engine.Thread(c.Param("id")).File(path)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no such file in snapshot: " + path,
		})
	}
	return c.JSON(http.StatusOK, file)
}

func (s *Server) getRecord(c echo.Context) error {
	rec := s.engine.Thread(c.Param("id")).Record()
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no deployment for this thread",
		})
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) listEvents(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "invalid limit parameter",
			})
		}
		limit = n
	}

	events, err := s.engine.Events(c.Request().Context(), c.Param("id"), limit)
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
