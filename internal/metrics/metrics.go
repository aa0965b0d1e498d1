// Package metrics provides Prometheus metrics for TeamsBridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the adapter.
type Metrics struct {
	// Webhook metrics
	ActivitiesTotal *prometheus.CounterVec
	RejectedTotal   prometheus.Counter
	DroppedTotal    *prometheus.CounterVec

	// Credential cache metrics
	TokenRefreshesTotal *prometheus.CounterVec
	KeyRefreshesTotal   prometheus.Counter

	// Member cache metrics
	MemberLookupsTotal *prometheus.CounterVec

	// Outbound metrics
	DeliveriesTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance registered with the default
// Prometheus registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a new Metrics instance registered with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActivitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbridge",
			Name:      "activities_total",
			Help:      "Total number of inbound activities.",
		}, []string{"type", "conversation_type"}),
		RejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "teamsbridge",
			Name:      "rejected_requests_total",
			Help:      "Total number of webhook requests rejected by authentication.",
		}),
		DroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbridge",
			Name:      "dropped_activities_total",
			Help:      "Total number of activities dropped without dispatch.",
		}, []string{"reason"}),
		TokenRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbridge",
			Name:      "token_refreshes_total",
			Help:      "Total number of OAuth2 token exchanges.",
		}, []string{"audience"}),
		KeyRefreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "teamsbridge",
			Name:      "signing_key_refreshes_total",
			Help:      "Total number of signing key document fetches.",
		}),
		MemberLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbridge",
			Name:      "member_lookups_total",
			Help:      "Total number of conversation member lookups.",
		}, []string{"result"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbridge",
			Name:      "deliveries_total",
			Help:      "Total number of outbound activity deliveries.",
		}, []string{"status"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamsbridge",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teamsbridge",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.ActivitiesTotal,
		m.RejectedTotal,
		m.DroppedTotal,
		m.TokenRefreshesTotal,
		m.KeyRefreshesTotal,
		m.MemberLookupsTotal,
		m.DeliveriesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordActivity records an inbound activity.
func (m *Metrics) RecordActivity(activityType, conversationType string) {
	m.ActivitiesTotal.WithLabelValues(activityType, conversationType).Inc()
}

// RecordRejected records a webhook request rejected by authentication.
func (m *Metrics) RecordRejected() {
	m.RejectedTotal.Inc()
}

// RecordDropped records an activity dropped without dispatch.
func (m *Metrics) RecordDropped(reason string) {
	m.DroppedTotal.WithLabelValues(reason).Inc()
}

// RecordTokenRefresh records an OAuth2 token exchange.
func (m *Metrics) RecordTokenRefresh(audience string) {
	m.TokenRefreshesTotal.WithLabelValues(audience).Inc()
}

// RecordKeyRefresh records a signing key document fetch.
func (m *Metrics) RecordKeyRefresh() {
	m.KeyRefreshesTotal.Inc()
}

// RecordMemberLookup records a member cache inspection.
func (m *Metrics) RecordMemberLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.MemberLookupsTotal.WithLabelValues(result).Inc()
}

// RecordDelivery records an outbound delivery outcome.
func (m *Metrics) RecordDelivery(ok bool) {
	status := "error"
	if ok {
		status = "ok"
	}
	m.DeliveriesTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
