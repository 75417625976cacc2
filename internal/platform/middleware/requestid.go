package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header carrying the correlation id for a request.
const RequestIDHeader = "X-Request-ID"

// RequestID returns middleware that ensures every request carries a
// correlation id. An inbound X-Request-ID is preserved; otherwise a new
// UUID is generated. The id is stored on the echo context under
// "request_id" and echoed on the response so clients can cross-reference
// error reports with server logs.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.New().String()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}

// CorrelationID returns the correlation id stored on the echo context, or
// an empty string when the RequestID middleware did not run.
func CorrelationID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
