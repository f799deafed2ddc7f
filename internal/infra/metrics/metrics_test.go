package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"athlo/config"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveOutcome(t *testing.T) {
	m := New(nil)

	m.ObserveOutcome("login", "success")
	m.ObserveOutcome("login", "success")
	m.ObserveOutcome("login", "INVALID_CREDENTIALS")

	assert.InDelta(t, 2, testutil.ToFloat64(m.authOutcomes.WithLabelValues("login", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.authOutcomes.WithLabelValues("login", "INVALID_CREDENTIALS")), 0)
}

func TestMetrics_RequestStarted(t *testing.T) {
	m := New(nil)

	done := m.RequestStarted()
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpInFlight), 0)

	done(http.MethodPost, "/auth/login", http.StatusUnauthorized)
	assert.InDelta(t, 0, testutil.ToFloat64(m.httpInFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/auth/login", "401")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDurations))
}

func TestMetrics_Handler(t *testing.T) {
	cfg := &config.Config{}
	cfg.Env.Version = "1.2.3"
	cfg.Env.Env = "develop"
	m := New(cfg)
	m.ObserveOutcome("register", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `athlo_auth_operations_total{operation="register",outcome="success"} 1`))
	assert.True(t, strings.Contains(text, `athlo_build_info{env="develop",version="1.2.3"} 1`))
	assert.True(t, strings.Contains(text, "go_goroutines"))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	first := New(nil)
	second := New(nil)

	first.ObserveOutcome("logout", "success")
	assert.InDelta(t, 0, testutil.ToFloat64(second.authOutcomes.WithLabelValues("logout", "success")), 0)
}
