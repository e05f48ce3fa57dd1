package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yatuk/SOC-case-study-project/internal/observability"
	"github.com/yatuk/SOC-case-study-project/internal/pipeline"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/ingestion"
)

func seedOutputs(t *testing.T, dir string, events int) {
	t.Helper()
	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	evs := make([]telemetry.Event, events)
	for i := range evs {
		evs[i] = telemetry.Event{
			EventID:   fmt.Sprintf("ev-%04d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Source:    telemetry.SourceIdentityProvider,
			EventType: telemetry.EventLoginSuccess,
		}
	}
	require.NoError(t, ingestion.WriteJSONL(filepath.Join(dir, ingestion.EventsFile), evs))

	alerts := []telemetry.Alert{
		{AlertID: "a-1", Name: "Phishing Link Clicked", Severity: telemetry.LevelHigh},
		{AlertID: "a-2", Name: "Impossible Travel Detected", Severity: telemetry.LevelMedium},
		{AlertID: "a-3", Name: "Suspicious Mailbox Forwarding Rule", Severity: telemetry.LevelCritical},
	}
	require.NoError(t, ingestion.WriteJSONL(filepath.Join(dir, pipeline.AlertsFile), alerts))
	require.NoError(t, ingestion.WriteJSON(filepath.Join(dir, ingestion.ProfileFile), map[string]any{"totals": map[string]int{"events": events}}))
	require.NoError(t, ingestion.WriteJSON(filepath.Join(dir, pipeline.CorrelationsFile), map[string]any{"correlations": []any{}}))
	require.NoError(t, ingestion.WriteJSON(filepath.Join(dir, pipeline.RiskScoresFile), map[string]any{"entity_scores": map[string]any{}}))
}

func newTestServer(t *testing.T, dir string, limiter *RateLimiter) (*Server, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetrics()
	return NewServer(Options{OutputDir: dir, Version: "test", Limiter: limiter}, m, zaptest.NewLogger(t)), m
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

// =============================================================================
// Health and readiness
// =============================================================================

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir(), nil)

	rr := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	decode(t, rr, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestReady(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestServer(t, dir, nil)

	rr := get(t, s, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body struct {
		Status  string   `json:"status"`
		Missing []string `json:"missing"`
	}
	decode(t, rr, &body)
	assert.Equal(t, "not_ready", body.Status)
	assert.Len(t, body.Missing, len(requiredOutputs))

	seedOutputs(t, dir, 1)
	rr = get(t, s, "/ready")
	assert.Equal(t, http.StatusOK, rr.Code)
}

// =============================================================================
// Output endpoints
// =============================================================================

func TestFileEndpoints(t *testing.T) {
	dir := t.TempDir()
	seedOutputs(t, dir, 3)
	s, _ := newTestServer(t, dir, nil)

	for _, path := range []string{"/api/v1/profile", "/api/v1/correlations", "/api/v1/risk-scores"} {
		t.Run(path, func(t *testing.T) {
			rr := get(t, s, path)
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.True(t, json.Valid(rr.Body.Bytes()))
		})
	}
}

func TestFileEndpoints_NotProduced(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir(), nil)

	for _, path := range []string{"/api/v1/profile", "/api/v1/alerts", "/api/v1/events"} {
		rr := get(t, s, path)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
		var body map[string]string
		decode(t, rr, &body)
		assert.Contains(t, body["error"], "has not been produced yet")
	}
}

func TestAlerts(t *testing.T) {
	dir := t.TempDir()
	seedOutputs(t, dir, 1)
	s, _ := newTestServer(t, dir, nil)

	type alertsBody struct {
		Alerts []telemetry.Alert `json:"alerts"`
		Count  int               `json:"count"`
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"a-1", "a-2", "a-3"}},
		{"?severity=low", []string{"a-1", "a-2", "a-3"}},
		{"?severity=high", []string{"a-1", "a-3"}},
		{"?severity=critical", []string{"a-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := get(t, s, "/api/v1/alerts"+tt.query)
			require.Equal(t, http.StatusOK, rr.Code)
			var body alertsBody
			decode(t, rr, &body)
			ids := make([]string, len(body.Alerts))
			for i, a := range body.Alerts {
				ids[i] = a.AlertID
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, len(tt.want), body.Count)
		})
	}

	rr := get(t, s, "/api/v1/alerts?severity=urgent")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEvents_Limit(t *testing.T) {
	dir := t.TempDir()
	seedOutputs(t, dir, 150)
	s, _ := newTestServer(t, dir, nil)

	type eventsBody struct {
		Events []telemetry.Event `json:"events"`
		Count  int               `json:"count"`
		Limit  int               `json:"limit"`
	}

	var body eventsBody
	decode(t, get(t, s, "/api/v1/events"), &body)
	assert.Equal(t, DefaultEventLimit, body.Count)
	assert.Equal(t, "ev-0000", body.Events[0].EventID)

	body = eventsBody{}
	decode(t, get(t, s, "/api/v1/events?limit=7"), &body)
	assert.Equal(t, 7, body.Count)

	body = eventsBody{}
	decode(t, get(t, s, "/api/v1/events?limit=50000"), &body)
	assert.Equal(t, MaxEventLimit, body.Limit)
	assert.Equal(t, 150, body.Count)

	for _, bad := range []string{"0", "-3", "ten"} {
		rr := get(t, s, "/api/v1/events?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}

// =============================================================================
// Instrumentation
// =============================================================================

func TestInstrumentation(t *testing.T) {
	dir := t.TempDir()
	seedOutputs(t, dir, 1)
	s, m := newTestServer(t, dir, nil)

	get(t, s, "/api/v1/alerts")
	get(t, s, "/api/v1/alerts")
	get(t, s, "/api/v1/events?limit=x")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/alerts", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/events", "400")))

	rr := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "soc_http_requests_total")
}

func TestRateLimitedRoutes(t *testing.T) {
	dir := t.TempDir()
	seedOutputs(t, dir, 1)
	limiter := NewRateLimiter(nil, RateLimitConfig{RequestsPerMinute: 2, IncludeHeaders: true}, zaptest.NewLogger(t))
	s, _ := newTestServer(t, dir, limiter)

	assert.Equal(t, http.StatusOK, get(t, s, "/api/v1/alerts").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/api/v1/alerts").Code)
	rr := get(t, s, "/api/v1/alerts")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// health checks are never limited
	for range 5 {
		assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
	}
}
