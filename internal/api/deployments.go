package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openpreview/openpreview/internal/vercel"
	"github.com/openpreview/openpreview/pkg/types"
)

// deployNow starts a deployment immediately, short-circuiting any running
// countdown. 409 means an attempt is already in flight; 503 means no
// provider is configured.
func (s *Server) deployNow(c echo.Context) error {
	status, err := s.engine.Thread(c.Param("id")).DeployNow()
	if err != nil {
		var cfgErr *vercel.ConfigurationError
		if errors.As(err, &cfgErr) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"error": err.Error(),
			})
		}
		return c.JSON(http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) cancelCountdown(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Thread(c.Param("id")).CancelCountdown())
}

func (s *Server) resetThread(c echo.Context) error {
	status, err := s.engine.Thread(c.Param("id")).Reset(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) listFrameworks(c echo.Context) error {
	return c.JSON(http.StatusOK, types.FrameworkListResponse{
		Frameworks: s.engine.Registry().List(),
	})
}
