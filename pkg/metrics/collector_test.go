package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollector_RecordRemoteRequest(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordRemoteRequest("generate", 200, 100*time.Millisecond)
	c.RecordRemoteRequest("generate", 200, 50*time.Millisecond)
	c.RecordRemoteRequest("generate", 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.remoteRequestsTotal.WithLabelValues("generate", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.remoteRequestsTotal.WithLabelValues("generate", "transport_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.remoteRequestDuration))
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordJobPoll("pending")
	c.RecordJobPoll("pending")
	c.RecordJobWait("succeeded", 3*time.Second)
	c.RecordResolution("inline_bytes", true)
	c.RecordToolCall("generate_image", false, time.Second)
	c.RecordCatalogLookup(true)
	c.RecordFallback("optimize", "job_manager")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobPollsTotal.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resolutionsTotal.WithLabelValues("inline_bytes", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("generate_image", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.catalogLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fallbackPromotions.WithLabelValues("optimize", "job_manager")))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRemoteRequest("x", 500, time.Second)
		c.RecordJobPoll("pending")
		c.RecordJobWait("timed_out", time.Second)
		c.RecordResolution("remote_token", false)
		c.RecordToolCall("x", true, time.Second)
		c.RecordCatalogLookup(false)
		c.RecordFallback("a", "b")
	})
	assert.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("imgsrv", zap.NewNop())
	c.RecordJobPoll("succeeded")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "imgsrv_job_polls_total")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
