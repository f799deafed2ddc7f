package handler

import (
	"net/http"

	"athlo/config"
	"athlo/internal/delivery/api/response"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness.
type HealthHandler struct {
	version string
}

// NewHealthHandler is the constructor for HealthHandler
func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{version: cfg.Env.Version}
}

// Check answers as long as the process serves requests.
func (h *HealthHandler) Check(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}
