package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/playmesh/playmesh/models"
)

// placementCandidates answers GET /placements/candidates: a ranked, side
// effect free placement query for one provider.
func (s *Server) placementCandidates(c echo.Context) error {
	provider := models.Provider(c.QueryParam("provider"))
	if provider == "" {
		return BadRequestError("provider query parameter is required")
	}

	var user *models.Coordinate
	latStr, lonStr := c.QueryParam("lat"), c.QueryParam("lon")
	if latStr != "" || lonStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr != nil || lonErr != nil {
			return BadRequestError("lat and lon must both be valid numbers")
		}
		coord := models.Coordinate{Lat: lat, Lon: lon}
		if !coord.Valid() {
			return BadRequestError("lat/lon out of range")
		}
		user = &coord
	}

	set, err := s.orchestrator.PlacementCandidates(
		c.Request().Context(), provider, user, c.QueryParam("platform"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, set)
}
