package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit2swaz/sfg-rotate/internal/api/ratelimit"
	"github.com/bit2swaz/sfg-rotate/internal/engine"
	"github.com/bit2swaz/sfg-rotate/pkg/observability"
	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

type memDriver struct {
	snapshots []retention.Snapshot
	deleted   []string
}

func (m *memDriver) List(context.Context, string) ([]retention.Snapshot, error) {
	return m.snapshots, nil
}

func (m *memDriver) Delete(_ context.Context, s retention.Snapshot) error {
	m.deleted = append(m.deleted, s.ID)
	return nil
}

func newTestServer(t *testing.T, opts Options) (*Server, *memDriver) {
	t.Helper()
	policy, err := retention.NewPolicy(retention.Options{Mode: retention.ModeBasic, WeekBegins: "monday", MonthBegins: 1})
	require.NoError(t, err)

	driver := &memDriver{snapshots: []retention.Snapshot{
		{ID: "old", Created: retention.Date{Year: 2024, Month: time.March, Day: 1}},
		{ID: "new", Created: retention.Date{Year: 2024, Month: time.March, Day: 10}},
	}}
	runner := engine.NewRunner(policy, []engine.Target{
		{Tier: retention.Daily, Location: "daily", Kind: "local", Driver: driver},
	}, engine.Options{})
	clock := func() time.Time { return time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC) }
	scheduler := engine.NewScheduler(runner, "", time.UTC, engine.WithClock(clock))

	return NewServer(scheduler, opts), driver
}

func do(t *testing.T, srv *Server, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAuthRequiredWhenTokenSet(t *testing.T) {
	srv, _ := newTestServer(t, Options{Token: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/v1/plan", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/v1/plan", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/plan", "s3cret").Code)
}

func TestPlanDefaultsToSchedulerToday(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := do(t, srv, http.MethodGet, "/v1/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Mode      string `json:"mode"`
		Today     string `json:"today"`
		Decisions []struct {
			Tier      string `json:"tier"`
			Triggered bool   `json:"triggered"`
			Threshold string `json:"threshold"`
		} `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "basic", body.Mode)
	assert.Equal(t, "2024-03-12", body.Today)
	require.Len(t, body.Decisions, 3)
	assert.Equal(t, "daily", body.Decisions[0].Tier)
	assert.False(t, body.Decisions[0].Triggered)
	assert.Equal(t, "2024-03-05", body.Decisions[0].Threshold)
}

func TestPlanRejectsBadDate(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := do(t, srv, http.MethodGet, "/v1/plan?date=11-03-2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunAndLastReport(t *testing.T) {
	srv, driver := newTestServer(t, Options{})

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/runs/last", "").Code)

	rec := do(t, srv, http.MethodPost, "/v1/runs?date=2024-03-11&dry_run=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, driver.deleted)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/runs/last", "").Code)

	rec = do(t, srv, http.MethodPost, "/v1/runs?date=2024-03-11", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"old"}, driver.deleted)

	var report engine.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.DryRun)
	assert.Equal(t, "2024-03-11", report.Today.String())

	rec = do(t, srv, http.MethodGet, "/v1/runs/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), report.ID)
}

func TestRunRejectsBadDryRun(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := do(t, srv, http.MethodPost, "/v1/runs?dry_run=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, Options{Limiter: ratelimit.New(1, time.Hour)})

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/runs?dry_run=1", "").Code)

	rec := do(t, srv, http.MethodPost, "/v1/runs?dry_run=1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	srv, _ := newTestServer(t, Options{Gatherer: reg, Metrics: metrics})

	do(t, srv, http.MethodGet, "/health", "")
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "sfg_http_duration_seconds"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	assert.Equal(t, "10.0.0.5", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestFormatRetryAfter(t *testing.T) {
	assert.Equal(t, "0", formatRetryAfter(0))
	assert.Equal(t, "1", formatRetryAfter(200*time.Millisecond))
	assert.Equal(t, "90", formatRetryAfter(90*time.Second))
}
