package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ContextKeyClaims is the key for storing agent claims in the echo context.
const ContextKeyClaims = "agent_claims"

// Middleware guards the agent callback routes.
type Middleware struct {
	service *Service
}

// NewMiddleware creates the agent auth middleware.
func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// RequireAgent validates the bearer token and, when the route carries a
// :host_id parameter, checks the token was minted for that host.
func (m *Middleware) RequireAgent(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
		}

		claims, err := m.service.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has expired")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		if hostID := c.Param("host_id"); hostID != "" && hostID != claims.HostID {
			return echo.NewHTTPError(http.StatusForbidden, "token not valid for this host")
		}

		c.Set(ContextKeyClaims, claims)
		return next(c)
	}
}

// GetClaims extracts agent claims from the echo context.
func GetClaims(c echo.Context) (*Claims, bool) {
	claims, ok := c.Get(ContextKeyClaims).(*Claims)
	return claims, ok
}
