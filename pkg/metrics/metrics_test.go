package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveConversion("freee", OutcomeSuccess, 0.2)
	m.ObserveConversion("freee", OutcomeSuccess, 0.3)
	m.ObserveConversion("", OutcomeFailure, 0.1)
	m.AddDiagnostics("warning", 3)
	m.AddDiagnostics("error", 0)
	m.SetSessions(4)
	m.IncDownloads()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Conversions.WithLabelValues("freee", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversions.WithLabelValues("unknown", OutcomeFailure)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Diagnostics.WithLabelValues("warning")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Diagnostics))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Downloads))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ParseDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveConversion("yayoi", OutcomeSuccess, 1)
		m.AddDiagnostics("error", 1)
		m.SetSessions(1)
		m.IncDownloads()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.IncDownloads()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taxconv_downloads_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
