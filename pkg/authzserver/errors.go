package authzserver

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error is an OAuth2 error response as defined in RFC 6749 section 5.2.
// Handlers return it; ErrorHandlerMiddleware renders it as JSON.
type Error struct {
	HttpStatus  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// ErrorHandlerMiddleware converts errors returned by handlers into
// OAuth2 error JSON. Unknown errors become opaque server_error
// responses so internals never leak to clients.
func ErrorHandlerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			slog.Error("request failed", "error", err, "path", c.Path(), "remote_addr", c.RealIP())

			if authzError, ok := err.(*Error); ok {
				return c.JSON(authzError.HttpStatus, authzError)
			} else if echoErr, ok := err.(*echo.HTTPError); ok {
				return c.JSON(echoErr.Code, &Error{
					HttpStatus:  echoErr.Code,
					Code:        "server_error",
					Description: fmt.Sprintf("%v", echoErr.Message),
				})
			} else {
				return c.JSON(http.StatusInternalServerError, &Error{
					HttpStatus:  http.StatusInternalServerError,
					Code:        "server_error",
					Description: "internal server error",
				})
			}
		}
		return nil
	}
}
