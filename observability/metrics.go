package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	proofBatches  prometheus.Counter
	deliveries    *prometheus.CounterVec
	disputes      *prometheus.CounterVec
	breakerTrips  prometheus.Counter
	retries       prometheus.Counter
	feesBookmarks *prometheus.CounterVec
	batchSize     prometheus.Histogram
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// Engine returns the lazily-initialised metrics registry tracking engine
// activity.
func Engine() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			proofBatches: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "earlybird",
				Subsystem: "rukh",
				Name:      "proof_batches_committed_total",
				Help:      "Count of aggregate proof batches committed by oracles.",
			}),
			deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "earlybird",
				Subsystem: "rukh",
				Name:      "deliveries_total",
				Help:      "Count of message delivery attempts segmented by outcome.",
			}, []string{"outcome"}),
			disputes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "earlybird",
				Subsystem: "rukh",
				Name:      "disputes_total",
				Help:      "Count of dispute lifecycle transitions segmented by stage.",
			}, []string{"stage"}),
			breakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "earlybird",
				Subsystem: "rukh",
				Name:      "circuit_breaker_trips_total",
				Help:      "Count of applications paused by excess valid disputes.",
			}),
			retries: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "earlybird",
				Subsystem: "rukh",
				Name:      "failed_message_retries_total",
				Help:      "Count of paid redeliveries of failed messages.",
			}),
			feesBookmarks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "earlybird",
				Subsystem: "rukh",
				Name:      "fee_bookmarks_total",
				Help:      "Count of fee bookmark operations segmented by action.",
			}, []string{"action"}),
			batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "earlybird",
				Subsystem: "rukh",
				Name:      "delivery_batch_size",
				Help:      "Distribution of message counts per delivery submission.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			}),
		}
		prometheus.MustRegister(
			engineRegistry.proofBatches,
			engineRegistry.deliveries,
			engineRegistry.disputes,
			engineRegistry.breakerTrips,
			engineRegistry.retries,
			engineRegistry.feesBookmarks,
			engineRegistry.batchSize,
		)
	})
	return engineRegistry
}

// RecordProofBatch increments the committed batch counter.
func (m *engineMetrics) RecordProofBatch() {
	if m == nil {
		return
	}
	m.proofBatches.Inc()
}

// RecordDelivery increments the delivery counter for an outcome label.
func (m *engineMetrics) RecordDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// RecordDispute increments the dispute counter for a lifecycle stage.
func (m *engineMetrics) RecordDispute(stage string) {
	if m == nil {
		return
	}
	m.disputes.WithLabelValues(stage).Inc()
}

// RecordBreakerTrip increments the circuit-breaker counter.
func (m *engineMetrics) RecordBreakerTrip() {
	if m == nil {
		return
	}
	m.breakerTrips.Inc()
}

// RecordRetry increments the paid-retry counter.
func (m *engineMetrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// RecordBookmark increments the bookmark counter for an action label.
func (m *engineMetrics) RecordBookmark(action string) {
	if m == nil {
		return
	}
	m.feesBookmarks.WithLabelValues(action).Inc()
}

// ObserveBatchSize records the message count of one delivery submission.
func (m *engineMetrics) ObserveBatchSize(n int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}
