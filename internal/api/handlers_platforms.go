package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/models"
)

// listPlatforms returns every platform profile.
func (s *Server) listPlatforms(c echo.Context) error {
	profiles, err := s.storage.ListPlatforms()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profiles)
}

// getPlatform returns one platform profile.
func (s *Server) getPlatform(c echo.Context) error {
	profile, err := s.storage.GetPlatform(c.Param("platform"))
	if errors.Is(err, storage.ErrNotFound) {
		return NotFoundError("platform", c.Param("platform"))
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// putPlatform creates or replaces a platform profile. The path parameter is
// authoritative for the platform name.
func (s *Server) putPlatform(c echo.Context) error {
	var profile models.PlatformProfile
	if err := c.Bind(&profile); err != nil {
		return BadRequestError("invalid request body")
	}
	profile.Platform = c.Param("platform")

	if err := validate.Struct(&profile); err != nil {
		return BadRequestError(err.Error())
	}
	if err := profile.Validate(); err != nil {
		return BadRequestError(err.Error())
	}

	if err := s.storage.SavePlatform(&profile); err != nil {
		return err
	}

	s.debugLog("api: platform %s saved", profile.Platform)
	return c.JSON(http.StatusOK, &profile)
}
