// Package metrics collects prometheus metrics for remote calls, job polling,
// reference resolution and tool dispatch. A nil *Collector is valid and
// records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every metric exported by the server
type Collector struct {
	registry *prometheus.Registry

	remoteRequestsTotal   *prometheus.CounterVec
	remoteRequestDuration *prometheus.HistogramVec

	jobPollsTotal   *prometheus.CounterVec
	jobWaitDuration *prometheus.HistogramVec

	resolutionsTotal *prometheus.CounterVec

	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	catalogLookups     *prometheus.CounterVec
	fallbackPromotions *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers all metrics on a private registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.remoteRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Requests sent to the image service",
		},
		[]string{"operation", "status"},
	)
	c.remoteRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Image service request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	c.jobPollsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_polls_total",
			Help:      "Job result polls by observed state",
		},
		[]string{"state"},
	)
	c.jobWaitDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_wait_duration_seconds",
			Help:      "Time spent waiting for a job to reach a terminal state",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"outcome"},
	)
	c.resolutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_resolutions_total",
			Help:      "Image reference resolutions by variant",
		},
		[]string{"variant", "uploaded"},
	)
	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool calls by result",
		},
		[]string{"tool", "result"},
	)
	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "MCP tool call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
	c.catalogLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookups_total",
			Help:      "Model catalog cache lookups",
		},
		[]string{"result"},
	)
	c.fallbackPromotions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_promotions_total",
			Help:      "Strategy chain promotions to the next strategy",
		},
		[]string{"chain", "from"},
	)

	return c
}

// Registry exposes the private registry for the HTTP handler and tests
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordRemoteRequest records one call to the image service. status 0 means
// the request never got a response.
func (c *Collector) RecordRemoteRequest(operation string, status int, d time.Duration) {
	if c == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.remoteRequestsTotal.WithLabelValues(operation, label).Inc()
	c.remoteRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordJobPoll records the state seen by one poll
func (c *Collector) RecordJobPoll(state string) {
	if c == nil {
		return
	}
	c.jobPollsTotal.WithLabelValues(state).Inc()
}

// RecordJobWait records how long a polling loop ran
func (c *Collector) RecordJobWait(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobWaitDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordResolution records which reference variant was resolved
func (c *Collector) RecordResolution(variant string, uploaded bool) {
	if c == nil {
		return
	}
	c.resolutionsTotal.WithLabelValues(variant, strconv.FormatBool(uploaded)).Inc()
}

// RecordToolCall records one MCP tool call
func (c *Collector) RecordToolCall(tool string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	result := "error"
	if ok {
		result = "success"
	}
	c.toolCallsTotal.WithLabelValues(tool, result).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordCatalogLookup records a cache hit or miss
func (c *Collector) RecordCatalogLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.catalogLookups.WithLabelValues(result).Inc()
}

// RecordFallback records that chain moved past strategy from
func (c *Collector) RecordFallback(chain, from string) {
	if c == nil {
		return
	}
	c.fallbackPromotions.WithLabelValues(chain, from).Inc()
	c.logger.Debug("fallback promoted", zap.String("chain", chain), zap.String("from", from))
}
