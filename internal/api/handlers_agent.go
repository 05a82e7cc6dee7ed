package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// getManifest answers the agent's manifest fetch. The path carries the
// agent token itself; the host it was minted for is read from the claims.
func (s *Server) getManifest(c echo.Context) error {
	claims, err := s.authService.ValidateToken(c.Param("vm_token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid agent token")
	}

	manifest, err := s.orchestrator.Manifest(c.Request().Context(), claims.HostID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, manifest)
}

// agentAck is the success body for every agent callback, replays included.
func agentAck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// startedRequest is the POST /hosts/{host_id}/started payload.
type startedRequest struct {
	StartedAt time.Time `json:"started_at" validate:"required"`
	Seq       int64     `json:"seq"`
}

func (s *Server) agentStarted(c echo.Context) error {
	var req startedRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return BadRequestError(err.Error())
	}

	if err := s.orchestrator.HandleStarted(c.Request().Context(), c.Param("host_id"), req.StartedAt, req.Seq); err != nil {
		return err
	}
	return agentAck(c)
}

// saveEventRequest is the POST /hosts/{host_id}/save_event payload.
type saveEventRequest struct {
	WallClock              time.Time `json:"wall_clock" validate:"required"`
	SaveSlotID             string    `json:"save_slot_id" validate:"required"`
	BaseAccumulatedSeconds int64     `json:"base_accumulated_seconds"`
	Seq                    int64     `json:"seq"`
}

func (s *Server) agentSaveEvent(c echo.Context) error {
	var req saveEventRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return BadRequestError(err.Error())
	}

	if err := s.orchestrator.HandleSaveEvent(c.Request().Context(), c.Param("host_id"),
		req.SaveSlotID, req.WallClock, req.BaseAccumulatedSeconds, req.Seq); err != nil {
		return err
	}
	return agentAck(c)
}

// idleRequest is the POST /hosts/{host_id}/idle payload.
type idleRequest struct {
	LastClientDisconnect time.Time `json:"last_client_disconnect" validate:"required"`
	Seq                  int64     `json:"seq"`
}

func (s *Server) agentIdle(c echo.Context) error {
	var req idleRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return BadRequestError(err.Error())
	}

	if err := s.orchestrator.HandleIdle(c.Request().Context(), c.Param("host_id"), req.LastClientDisconnect, req.Seq); err != nil {
		return err
	}
	return agentAck(c)
}

// endedRequest is the POST /hosts/{host_id}/ended payload.
type endedRequest struct {
	EndedAt time.Time `json:"ended_at" validate:"required"`
	Seq     int64     `json:"seq"`
}

func (s *Server) agentEnded(c echo.Context) error {
	var req endedRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return BadRequestError(err.Error())
	}

	if err := s.orchestrator.HandleEnded(c.Request().Context(), c.Param("host_id"), req.EndedAt, req.Seq); err != nil {
		return err
	}
	return agentAck(c)
}
