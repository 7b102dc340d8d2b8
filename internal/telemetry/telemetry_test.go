package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_HandlerExposesCounters(t *testing.T) {
	m := New()
	m.ReadFallbacks.With("list").Inc()
	m.MaterializeProcessed.Add(3)

	count, err := testutil.GatherAndCount(m.Registry(), "content_read_fallbacks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `content_read_fallbacks_total{op="list"} 1`)
	assert.Contains(t, string(body), "content_materialize_processed_total 3")
}

func TestNoop_RecordsNothing(t *testing.T) {
	m := OrNoop(nil)
	m.DraftWrites.With("create", "ok").Inc()
	m.HTTPDuration.With("GET", "/health").Observe(0.1)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
