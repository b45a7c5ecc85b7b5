// Package metrics exposes the server's Prometheus counters and gauges.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge the server reports. A nil
// *Metrics is safe to call methods on — every method is a no-op in
// that case, so wiring metrics is optional at call sites.
type Metrics struct {
	ConnectionsTotal   prometheus.Counter
	ConnectionsActive  prometheus.Gauge
	RequestsTotal      *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	PushesTotal        *prometheus.CounterVec
	PMMessagesTotal    prometheus.Counter
	GMMessagesTotal    prometheus.Counter
}

// New constructs and registers a fresh Metrics set against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatserver_connections_total",
			Help: "Total TCP connections accepted.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatserver_connections_active",
			Help: "Currently open TCP connections.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatserver_requests_total",
			Help: "Requests handled, labeled by verb.",
		}, []string{"verb"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatserver_errors_total",
			Help: "Error responses emitted, labeled by verb and code.",
		}, []string{"verb", "code"}),
		PushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatserver_pushes_total",
			Help: "PUSH frames emitted, labeled by subject.",
		}, []string{"subject"}),
		PMMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatserver_pm_messages_total",
			Help: "Private messages sent.",
		}),
		GMMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatserver_gm_messages_total",
			Help: "Group messages sent.",
		}),
	}
	reg.MustRegister(
		m.ConnectionsTotal, m.ConnectionsActive, m.RequestsTotal,
		m.ErrorsTotal, m.PushesTotal, m.PMMessagesTotal, m.GMMessagesTotal,
	)
	return m
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) Request(verb string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(verb).Inc()
}

func (m *Metrics) Error(verb, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(verb, code).Inc()
}

func (m *Metrics) Push(subject string) {
	if m == nil {
		return
	}
	m.PushesTotal.WithLabelValues(subject).Inc()
}

func (m *Metrics) PMSent() {
	if m == nil {
		return
	}
	m.PMMessagesTotal.Inc()
}

func (m *Metrics) GMSent() {
	if m == nil {
		return
	}
	m.GMMessagesTotal.Inc()
}
