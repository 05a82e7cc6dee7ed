package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/playmesh/playmesh/internal/billing"
	"github.com/playmesh/playmesh/models"
)

// billingReport answers GET /billing: a spend rollup over a time window,
// optionally filtered by provider and user. The window defaults to month to
// date.
func (s *Server) billingReport(c echo.Context) error {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := now

	if v := c.QueryParam("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return BadRequestError("from must be RFC 3339")
		}
		from = parsed
	}
	if v := c.QueryParam("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return BadRequestError("to must be RFC 3339")
		}
		to = parsed
	}
	if !to.After(from) {
		return BadRequestError("to must be after from")
	}

	report, err := s.billing.Rollup(c.Request().Context(), from, to, billing.Filter{
		Provider: models.Provider(c.QueryParam("provider")),
		UserID:   c.QueryParam("user_id"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
