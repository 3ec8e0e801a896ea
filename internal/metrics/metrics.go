package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SourceRequestsTotal tracks outbound source API calls by outcome.
	SourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yield_source_requests_total",
			Help: "Total number of source API requests (by source and status).",
		},
		[]string{"source", "status"}, // status = HTTP code | timeout | error
	)

	// SourceRequestDuration measures the duration of outbound source calls.
	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yield_source_request_duration_seconds",
			Help:    "Duration of source API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"source"},
	)

	// SourceRecords gauges how many records each source produced last cycle.
	SourceRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yield_source_records",
			Help: "Records produced by a source in the most recent cycle.",
		},
		[]string{"source"},
	)

	// SourceFailuresTotal counts isolated source failures.
	SourceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yield_source_failures_total",
			Help: "Number of refresh cycles in which a source failed.",
		},
		[]string{"source"},
	)

	// RefreshTotal counts refresh cycles by result.
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yield_refresh_total",
			Help: "Number of refresh cycles by result.",
		},
		[]string{"result"}, // ok | error
	)

	// RefreshDuration measures end-to-end refresh cycle time.
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yield_refresh_duration_seconds",
			Help:    "Duration of refresh cycles in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"result"},
	)

	// LastRefreshTimestamp is the unix time of the last published snapshot.
	LastRefreshTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yield_last_refresh_timestamp",
			Help: "Timestamp (unix seconds) of the last successfully published snapshot.",
		},
	)

	// SnapshotRecords gauges the size of the published snapshot.
	SnapshotRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yield_snapshot_records",
			Help: "Records in the published snapshot.",
		},
		[]string{"kind"}, // asset | pair
	)

	// SinkErrorsTotal counts failures pushing a snapshot to a sink.
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yield_sink_errors_total",
			Help: "Number of snapshot sink failures by sink.",
		},
		[]string{"sink"},
	)

	// NotificationsTotal counts outbound snapshot notifications.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yield_notifications_total",
			Help: "Snapshot notifications by transport and status.",
		},
		[]string{"transport", "status"}, // nats | amqp, ok | error
	)

	// NotificationLatency measures publish round-trip time.
	NotificationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yield_notification_latency_seconds",
			Help:    "Latency of publishing snapshot notifications.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)
)

// IncSourceRequest increments the source request counter.
func IncSourceRequest(source, status string) {
	SourceRequestsTotal.WithLabelValues(source, status).Inc()
}

// IncSinkError increments the sink error counter.
func IncSinkError(sink string) {
	SinkErrorsTotal.WithLabelValues(sink).Inc()
}

// IncNotification increments the notification counter.
func IncNotification(transport, status string) {
	NotificationsTotal.WithLabelValues(transport, status).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
