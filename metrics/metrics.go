// Package metrics exposes Prometheus collectors for the lock and queue
// packages.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LockAcquired counts successful lock acquisitions.
	LockAcquired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coord_lock_acquired_total",
		Help: "Total number of acquired locks",
	})
	// LockContended counts acquisition attempts that found the lock held.
	LockContended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coord_lock_contended_total",
		Help: "Total number of lock acquisition attempts that found the lock held",
	})
	// LockStoreErrors counts acquisition attempts that failed because the
	// store was unavailable.
	LockStoreErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coord_lock_store_errors_total",
		Help: "Total number of lock acquisition attempts failed by the store",
	})
	// LockTimeouts counts Acquire calls that exhausted their attempts.
	LockTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coord_lock_timeouts_total",
		Help: "Total number of lock acquisitions that gave up",
	})
	// LockReleased counts locks deleted by their holder.
	LockReleased = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coord_lock_released_total",
		Help: "Total number of released locks",
	})
	// LockAbandoned counts scopes collected while still holding a token.
	LockAbandoned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coord_lock_abandoned_total",
		Help: "Total number of lock scopes dropped without release",
	})

	QueuePublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_queue_published_total",
		Help: "Total number of messages enqueued",
	}, []string{"queue"})
	QueueRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_queue_rejected_total",
		Help: "Total number of messages rejected because the queue was full",
	}, []string{"queue"})
	QueueProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_queue_processed_total",
		Help: "Total number of messages handled successfully",
	}, []string{"queue"})
	QueueRetried = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_queue_retried_total",
		Help: "Total number of failed deliveries scheduled for retry",
	}, []string{"queue"})
	QueueDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_queue_discarded_total",
		Help: "Total number of messages dropped after exceeding max retries",
	}, []string{"queue"})
	QueueMalformed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_queue_malformed_total",
		Help: "Total number of unparseable items dropped",
	}, []string{"queue"})
	// QueueConsumers reports the number of running consumer loops.
	QueueConsumers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coord_queue_consumers",
		Help: "Current number of running consumer loops",
	}, []string{"queue"})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register registers all collectors on the provided registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		LockAcquired, LockContended, LockStoreErrors, LockTimeouts, LockReleased, LockAbandoned,
		QueuePublished, QueueRejected, QueueProcessed, QueueRetried,
		QueueDiscarded, QueueMalformed, QueueConsumers,
	)
}
