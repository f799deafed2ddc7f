package middleware

import (
	deliverymiddleware "athlo/internal/delivery/middleware"
	"athlo/internal/errors"
	"athlo/internal/infra/metrics"

	"github.com/labstack/echo/v4"
)

const unmatchedRoute = "unmatched"

// MetricsMiddleware records request counts and latencies per route template.
type MetricsMiddleware struct {
	metrics *metrics.Metrics
}

// NewMetricsMiddleware creates a new metrics middleware
func NewMetricsMiddleware(m *metrics.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

// Handle labels each observation with the registered path, never the raw URL.
func (m *MetricsMiddleware) Handle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		done := m.metrics.RequestStarted()

		err := next(c)

		status := c.Response().Status
		if err != nil {
			status = deliverymiddleware.StatusFromError(err)
		}

		route := c.Path()
		if route == "" || errors.Is(err, echo.ErrNotFound) {
			route = unmatchedRoute
		}
		done(c.Request().Method, route, status)

		return err
	}
}
