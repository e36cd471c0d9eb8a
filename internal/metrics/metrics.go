// Package metrics collects Prometheus metrics for the HTTP transport.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the subset of metric recording the transport needs. The nil
// *Collector is a valid no-op, so metrics stay optional.
type Collector struct {
	requests     *prometheus.CounterVec
	retries      prometheus.Counter
	refreshes    prometheus.Counter
	refreshFails prometheus.Counter
	unauthorized prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sofi_client_requests_total",
			Help: "API responses observed by the transport, by status code.",
		}, []string{"status"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sofi_client_retries_total",
			Help: "Requests re-issued after a successful token refresh.",
		}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sofi_client_token_refreshes_total",
			Help: "Refresh calls issued against /auth/refresh.",
		}),
		refreshFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sofi_client_token_refresh_failures_total",
			Help: "Refresh calls that failed and tore the session down.",
		}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sofi_client_unauthorized_signals_total",
			Help: "Unauthorized signals published on the event bus.",
		}),
	}

	reg.MustRegister(c.requests, c.retries, c.refreshes, c.refreshFails, c.unauthorized)
	return c
}

// RecordStatus counts one response by HTTP status code.
func (c *Collector) RecordStatus(code int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordRetry counts one post-refresh re-issue of a request.
func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

// RecordRefresh counts one refresh attempt, failed or not.
func (c *Collector) RecordRefresh(failed bool) {
	if c == nil {
		return
	}
	c.refreshes.Inc()
	if failed {
		c.refreshFails.Inc()
	}
}

// RecordUnauthorized counts one unauthorized signal publication.
func (c *Collector) RecordUnauthorized() {
	if c == nil {
		return
	}
	c.unauthorized.Inc()
}
