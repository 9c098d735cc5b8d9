package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docs"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	// VersionsCreated counts appended versions by cause: create|save|transition|revert.
	VersionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "versions_created_total", Help: "Number of document versions created by cause."},
		[]string{"cause"},
	)
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "status_transitions_total", Help: "Number of successful status transitions."},
		[]string{"from", "to"},
	)
	OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "operation_errors_total", Help: "Number of failed document operations by kind."},
		[]string{"op", "kind"},
	)
	LockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "lock_wait_seconds", Help: "Time spent waiting for a per-document lock.", Buckets: prometheus.DefBuckets},
	)
	SnapshotUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "snapshot_uploads_total", Help: "Version snapshots written to object storage by result."},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// RegisterCollectors registers all collectors once; later calls are no-ops.
func RegisterCollectors(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(RateLimitAllowed)
		reg.MustRegister(RateLimitRejected)
		reg.MustRegister(VersionsCreated)
		reg.MustRegister(Transitions)
		reg.MustRegister(OperationErrors)
		reg.MustRegister(LockWait)
		reg.MustRegister(SnapshotUploads)
	})
}
