package middleware

import (
	"net/http"

	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/errors"

	"github.com/labstack/echo/v4"
)

// StatusFromError predicts the status the central error handler will write
// for err. Middleware that runs before the handler commits needs it.
func StatusFromError(err error) int {
	var appErr domainerrors.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPCode()
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return http.StatusInternalServerError
}
