package api

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// ValidateContentType rejects write requests whose body is not JSON.
func ValidateContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		method := c.Request().Method

		if method == "POST" || method == "PUT" || method == "PATCH" {
			if c.Request().ContentLength == 0 {
				return next(c)
			}
			contentType := c.Request().Header.Get("Content-Type")
			if !strings.HasPrefix(contentType, "application/json") {
				return BadRequestError("Content-Type must be 'application/json', got: " + contentType)
			}
		}

		return next(c)
	}
}

// SecurityHeaders adds standard security headers to every response.
func SecurityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("X-Content-Type-Options", "nosniff")
		c.Response().Header().Set("X-Frame-Options", "DENY")
		c.Response().Header().Set("X-XSS-Protection", "1; mode=block")
		c.Response().Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		return next(c)
	}
}
