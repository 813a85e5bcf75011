package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func checkHealth(t *testing.T, h *HealthChecker) (int, healthReport) {
	t.Helper()
	r := mux.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var report healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return rec.Code, report
}

func TestHealthzReportsChecks(t *testing.T) {
	h := NewHealthChecker(zap.NewNop())
	h.AddCheck("store", func(context.Context) error { return nil })

	code, report := checkHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", report.Status)
	assert.Equal(t, "ok", report.Checks["store"])

	kafkaErr := errors.New("no brokers reachable")
	h.AddCheck("kafka", func(context.Context) error { return kafkaErr })
	code, report = checkHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, kafkaErr.Error(), report.Checks["kafka"])
	assert.Equal(t, "ok", report.Checks["store"])

	h.AddCheck("kafka", func(context.Context) error { return nil })
	code, _ = checkHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthzFailsAfterShutdown(t *testing.T) {
	h := NewHealthChecker(zap.NewNop())
	h.AddCheck("store", func(context.Context) error { return errors.New("closed") })
	require.NoError(t, h.Shutdown(context.Background()))

	code, report := checkHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "NOT_READY", report.Status)
	assert.Equal(t, "closed", report.Checks["store"])
}
