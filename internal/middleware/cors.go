package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CORSHeaders is the fixed cross-origin header set carried by every response.
var CORSHeaders = [...]struct{ Name, Value string }{
	{echo.HeaderAccessControlAllowOrigin, "*"},
	{echo.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS"},
	{echo.HeaderAccessControlAllowHeaders, "Content-Type, Authorization, Origin, Accept"},
	{echo.HeaderAccessControlMaxAge, "86400"},
}

// ApplyCORS sets the CORS header set on h, replacing any existing values.
func ApplyCORS(h http.Header) {
	for _, kv := range CORSHeaders {
		h.Set(kv.Name, kv.Value)
	}
}

// CORS returns an Echo middleware that decorates every response with the
// CORS header set and answers OPTIONS preflights with an empty 200.
// Headers are set before the handler runs, so error and 404 responses
// carry them too.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ApplyCORS(c.Response().Header())

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
