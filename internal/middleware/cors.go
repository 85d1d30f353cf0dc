package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// corsHeaders are set on every relay response, success or failure.
var corsHeaders = [][2]string{
	{echo.HeaderAccessControlAllowOrigin, "*"},
	{echo.HeaderAccessControlAllowMethods, "GET, POST, PUT, DELETE, OPTIONS"},
	{echo.HeaderAccessControlAllowHeaders, "Content-Type, Authorization, x-api-version"},
	{echo.HeaderAccessControlMaxAge, "86400"},
}

// CORS returns an Echo middleware that grants any origin access to the
// relay and answers preflight OPTIONS requests itself with 200 and an
// empty body, so they never reach the upstream.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range corsHeaders {
				h.Set(kv[0], kv[1])
			}

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}

			return next(c)
		}
	}
}
