package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservers(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ObserveDigest(notifier.Weekly, "success", 2*time.Second)
	m.ObserveDigest(notifier.Weekly, "success", time.Second)
	m.ObserveDigest(notifier.Daily, "failure", time.Second)
	m.ObserveEmail("resend", "success")
	m.ObserveJob("monthly", "failure", time.Minute)
	m.ObserveHTTP(http.MethodGet, "/notifications", 200, 10*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.DigestsTotal.WithLabelValues("weekly", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DigestsTotal.WithLabelValues("daily", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EmailsTotal.WithLabelValues("resend", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("monthly", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/notifications", "200")), 0)
}

func TestHandler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.ObserveEmail("mock", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `notification_emails_total{outcome="success",provider="mock"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
