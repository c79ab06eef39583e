// Package metricshttp mirrors the counters the UDP sink emits as
// Prometheus metrics, served alongside a liveness endpoint, for
// operators who scrape instead of (or in addition to) collecting
// StatsD packets.
package metricshttp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rmq_connection_total",
		Help: "Total number of AMQP connection open attempts.",
	})
	connectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rmq_connection_active",
		Help: "1 when the process-wide AMQP connection is open, 0 otherwise.",
	})
	connectionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rmq_connection_errors_total",
		Help: "Total number of AMQP connection open failures.",
	}, []string{"error_type"})

	channelTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rmq_channel_total",
		Help: "Total number of AMQP channel open attempts.",
	})
	channelActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rmq_channel_active",
		Help: "1 when at least one AMQP channel is open, 0 otherwise.",
	})
	channelErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rmq_channel_errors_total",
		Help: "Total number of AMQP channel open failures.",
	}, []string{"error_type"})

	publishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rmq_publish_total",
		Help: "Total number of publish attempts.",
	})
	publishSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rmq_publish_success_total",
		Help: "Total number of successful publishes.",
	})
	publishErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rmq_publish_error_total",
		Help: "Total number of publish failures.",
	}, []string{"error_type"})
	publishDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rmq_publish_duration_ms",
		Help:    "Publish call duration in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})
	payloadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rmq_payload_bytes",
		Help:    "Published message body size in bytes.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	})
	publisherErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rmq_publisher_error_total",
		Help: "Total number of outbox/trace errors in the publish pipeline.",
	}, []string{"error_type"})

	eventStartedCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_started_count",
		Help: "Total number of deliveries that began processing.",
	})
	eventProcessedDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_processed_duration_ms",
		Help:    "Delivery processing duration in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
	}, []string{"exit_status", "retry"})
	eventProcessedMemoryBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "event_processed_memory_bytes",
		Help:    "Heap bytes allocated (runtime.MemStats.Alloc) observed at delivery completion.",
		Buckets: prometheus.ExponentialBuckets(1<<20, 2, 10),
	})
	consumerPayloadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rmq_consumer_payload_bytes",
		Help:    "Consumed message body size in bytes.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	})
	consumerAckFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rmq_consumer_ack_failed_total",
		Help: "Total number of failed AMQP acks.",
	})
	consumerDLXTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rmq_consumer_dlx_total",
		Help: "Total number of deliveries published to the failed queue.",
	}, []string{"reason"})
	consumerErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rmq_consumer_error_total",
		Help: "Total number of consumer-side errors.",
	}, []string{"error_type"})
	consumerConnectionReinitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rmq_consumer_connection_reinit_total",
		Help: "Total number of consumer connection reinitializations.",
	}, []string{"reason"})
	consumerConnectionReinitDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rmq_consumer_connection_reinit_duration_ms",
		Help:    "Duration of a consumer connection reinitialization, in milliseconds.",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
	})
)

// IncConnectionTotal records an AMQP connection open attempt.
func IncConnectionTotal() { connectionTotal.Inc() }

// SetConnectionActive reports whether the process-wide connection is open.
func SetConnectionActive(active bool) { connectionActive.Set(boolToFloat(active)) }

// IncConnectionErrors records a connection open failure.
func IncConnectionErrors(errorType string) { connectionErrorsTotal.WithLabelValues(errorType).Inc() }

// IncChannelTotal records an AMQP channel open attempt.
func IncChannelTotal() { channelTotal.Inc() }

// SetChannelActive reports whether at least one channel is open.
func SetChannelActive(active bool) { channelActive.Set(boolToFloat(active)) }

// IncChannelErrors records a channel open failure.
func IncChannelErrors(errorType string) { channelErrorsTotal.WithLabelValues(errorType).Inc() }

// IncPublishTotal records a publish attempt.
func IncPublishTotal() { publishTotal.Inc() }

// IncPublishSuccess records a successful publish.
func IncPublishSuccess() { publishSuccessTotal.Inc() }

// IncPublishError records a failed publish, tagged by its categorized error type.
func IncPublishError(errorType string) { publishErrorTotal.WithLabelValues(errorType).Inc() }

// ObservePublishDuration records how long a publish call took.
func ObservePublishDuration(ms float64) { publishDurationMs.Observe(ms) }

// ObservePayloadBytes records the size of a published message body.
func ObservePayloadBytes(n int) { payloadBytes.Observe(float64(n)) }

// IncPublisherError records an outbox or event-trace error in the publish pipeline.
func IncPublisherError(errorType string) { publisherErrorTotal.WithLabelValues(errorType).Inc() }

// IncEventStarted records that a delivery began processing.
func IncEventStarted() { eventStartedCount.Inc() }

// ObserveEventProcessedDuration records delivery processing time, tagged
// by outcome and retry position (first/retry/last).
func ObserveEventProcessedDuration(exitStatus, retry string, ms float64) {
	eventProcessedDuration.WithLabelValues(exitStatus, retry).Observe(ms)
}

// ObserveEventProcessedMemoryBytes records the heap bytes allocated at delivery completion.
func ObserveEventProcessedMemoryBytes(n uint64) { eventProcessedMemoryBytes.Observe(float64(n)) }

// ObserveConsumerPayloadBytes records the size of a consumed message body.
func ObserveConsumerPayloadBytes(n int) { consumerPayloadBytes.Observe(float64(n)) }

// IncConsumerAckFailed records a failed AMQP ack.
func IncConsumerAckFailed() { consumerAckFailedTotal.Inc() }

// IncConsumerDLX records a delivery routed to the failed queue.
func IncConsumerDLX(reason string) { consumerDLXTotal.WithLabelValues(reason).Inc() }

// IncConsumerError records a consumer-side error, tagged by its categorized error type.
func IncConsumerError(errorType string) { consumerErrorTotal.WithLabelValues(errorType).Inc() }

// IncConsumerConnectionReinit records a connection lifecycle reinitialization.
func IncConsumerConnectionReinit(reason string) {
	consumerConnectionReinitTotal.WithLabelValues(reason).Inc()
}

// ObserveConsumerConnectionReinitDuration records how long a reinit took.
func ObserveConsumerConnectionReinitDuration(ms float64) {
	consumerConnectionReinitDurationMs.Observe(ms)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
