// Package middleware holds echo middleware for the local API.
package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets conservative response headers. API and metrics
// responses reflect live page state and are never cached.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			path := c.Request().URL.Path
			if strings.HasPrefix(path, "/api") || path == "/metrics" {
				h.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}
