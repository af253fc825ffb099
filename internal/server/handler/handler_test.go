package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthCheckNoDependencies(t *testing.T) {
	h := NewHealthHandler(nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "ok", body["status"])
	require.NotContains(t, body, "dependencies")
}

func TestHealthCheckFailingDependency(t *testing.T) {
	h := NewHealthHandler(map[string]HealthChecker{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	require.Equal(t, "ok", deps["postgres"])
	require.Equal(t, "connection refused", deps["redis"])
}

type fakeReporter struct {
	report engine.EngineReport
}

func (f *fakeReporter) Report() engine.EngineReport { return f.report }

func TestGetStatusWithEngine(t *testing.T) {
	h := NewStatusHandler("hedge", &fakeReporter{report: engine.EngineReport{
		Symbol:         "BTCUSDT",
		Running:        true,
		ExecutionState: "idle",
		Accepted:       3,
	}})
	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "hedge", body["mode"])
	eng := body["engine"].(map[string]any)
	require.Equal(t, "BTCUSDT", eng["symbol"])
	require.Equal(t, true, eng["running"])
	require.EqualValues(t, 3, eng["accepted"])
}

func TestGetStatusWithoutEngine(t *testing.T) {
	h := NewStatusHandler("archive", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "archive", body["mode"])
	require.NotContains(t, body, "engine")
}

type fakeExecStore struct {
	execs     []domain.HedgeExecution
	err       error
	lastLimit int
}

func (f *fakeExecStore) ListRecent(ctx context.Context, limit int) ([]domain.HedgeExecution, error) {
	f.lastLimit = limit
	return f.execs, f.err
}

func TestListRecentExecutions(t *testing.T) {
	store := &fakeExecStore{execs: []domain.HedgeExecution{
		{ID: "abc", Symbol: "BTCUSDT", Outcome: domain.OutcomeBothFilled, CompletedAt: time.Now()},
	}}
	h := NewExecutionHandler(store, testLogger())
	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/executions/recent?limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 10, store.lastLimit)
	body := decodeBody(t, rec)
	require.EqualValues(t, 1, body["count"])
}

func TestListRecentLimitDefaultsAndCap(t *testing.T) {
	store := &fakeExecStore{}
	h := NewExecutionHandler(store, testLogger())

	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/executions/recent", nil))
	require.Equal(t, 50, store.lastLimit)

	rec = httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/executions/recent?limit=9999", nil))
	require.Equal(t, 500, store.lastLimit)
}

func TestListRecentStoreError(t *testing.T) {
	store := &fakeExecStore{err: errors.New("boom")}
	h := NewExecutionHandler(store, testLogger())
	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/executions/recent", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "failed to list executions", body["error"])
}
