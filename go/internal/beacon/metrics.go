package beacon

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for collecting beacon metrics
type MetricsCollector interface {
	RecordPoll(success bool, duration time.Duration)
	RecordBroadcast(delivered int, dropped int)
	RecordSessions(count int)
	RecordClientMessage(kind string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordPoll(success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordBroadcast(delivered int, dropped int)      {}
func (n *NoOpMetricsCollector) RecordSessions(count int)                        {}
func (n *NoOpMetricsCollector) RecordClientMessage(kind string)                 {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	polls          *prometheus.CounterVec
	pollDuration   prometheus.Histogram
	deliveries     prometheus.Counter
	droppedClients prometheus.Counter
	sessions       prometheus.Gauge
	clientMessages *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fppsync",
			Name:      "polls_total",
			Help:      "Upstream status polls by result.",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fppsync",
			Name:      "poll_duration_seconds",
			Help:      "Latency of the upstream status fetch.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fppsync",
			Name:      "state_deliveries_total",
			Help:      "State pushes queued to client sessions.",
		}),
		droppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fppsync",
			Name:      "dropped_sessions_total",
			Help:      "Sessions removed after a failed delivery.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fppsync",
			Name:      "sessions",
			Help:      "Connected client sessions.",
		}),
		clientMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fppsync",
			Name:      "client_messages_total",
			Help:      "Inbound client messages by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.polls, m.pollDuration, m.deliveries, m.droppedClients, m.sessions, m.clientMessages)
	return m
}

func (m *PrometheusMetrics) RecordPoll(success bool, duration time.Duration) {
	result := "ok"
	if !success {
		result = "error"
	}
	m.polls.WithLabelValues(result).Inc()
	m.pollDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordBroadcast(delivered int, dropped int) {
	m.deliveries.Add(float64(delivered))
	m.droppedClients.Add(float64(dropped))
}

func (m *PrometheusMetrics) RecordSessions(count int) {
	m.sessions.Set(float64(count))
}

func (m *PrometheusMetrics) RecordClientMessage(kind string) {
	m.clientMessages.WithLabelValues(kind).Inc()
}
