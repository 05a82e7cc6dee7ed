package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/playmesh/playmesh/internal/orchestration"
	"github.com/playmesh/playmesh/models"
)

// validate checks struct tags on request payloads.
var validate = validator.New()

// createSessionRequest is the POST /sessions payload.
type createSessionRequest struct {
	UserID       string             `json:"user_id" validate:"required"`
	Platform     string             `json:"platform" validate:"required"`
	UserCoord    *models.Coordinate `json:"user_coord,omitempty"`
	RomRef       string             `json:"rom_ref,omitempty"`
	SaveRef      string             `json:"save_ref,omitempty"`
	SaveFilename string             `json:"save_filename,omitempty"`
}

// createSession requests a session: a settled host for the user and
// platform is reused, otherwise provisioning starts in the background and
// the fresh host is returned in its provisioning state.
func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return BadRequestError(err.Error())
	}
	if req.UserCoord != nil && !req.UserCoord.Valid() {
		return BadRequestError("user_coord out of range")
	}

	host, reused, err := s.orchestrator.RequestSession(c.Request().Context(), orchestration.SessionRequest{
		UserID:       req.UserID,
		Platform:     req.Platform,
		UserCoord:    req.UserCoord,
		RomRef:       req.RomRef,
		SaveRef:      req.SaveRef,
		SaveFilename: req.SaveFilename,
	})
	if err != nil {
		return err
	}

	s.debugLog("api: session for %s/%s -> host %s (reused=%v)",
		req.UserID, req.Platform, host.ID, reused)

	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	return c.JSON(status, host)
}

// getSession returns a host record.
func (s *Server) getSession(c echo.Context) error {
	host, err := s.orchestrator.DescribeSession(c.Request().Context(), c.Param("host_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, host)
}

// stopSession requests an asynchronous stop.
func (s *Server) stopSession(c echo.Context) error {
	if err := s.orchestrator.StopSession(c.Request().Context(), c.Param("host_id")); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "stopping"})
}

// destroySession requests an asynchronous destroy.
func (s *Server) destroySession(c echo.Context) error {
	if err := s.orchestrator.DestroySession(c.Request().Context(), c.Param("host_id")); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "destroying"})
}
