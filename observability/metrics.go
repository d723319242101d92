package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Abort reasons recorded by UnitsAborted.
const (
	ReasonConflict = "conflict"
	ReasonNotFound = "not_found"
	ReasonRejected = "rejected"
	ReasonError    = "error"
	ReasonPanic    = "panic"
)

// Metrics tracks the storage core: CAS outcomes per entity kind, atomic
// unit outcomes and the population of parked long-poll waiters.
type Metrics struct {
	StoreConflicts  *prometheus.CounterVec
	StoreMutations  *prometheus.CounterVec
	UnitsCommitted  prometheus.Counter
	UnitsAborted    *prometheus.CounterVec
	UnitDuration    prometheus.Histogram
	PendingWaiters  prometheus.Gauge
	WaitersNotified prometheus.Counter
}

// NewMetrics registers every collector on reg. Tests pass a fresh
// prometheus.NewRegistry() so instances never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StoreConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inchat_store_conflicts_total",
			Help: "Compare-and-swap operations rejected because the expected version was stale",
		}, []string{"kind"}),
		StoreMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inchat_store_mutations_total",
			Help: "Successful save, update and delete operations",
		}, []string{"kind", "op"}),
		UnitsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "inchat_units_committed_total",
			Help: "Atomic units of work that committed",
		}),
		UnitsAborted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inchat_units_aborted_total",
			Help: "Atomic units of work that rolled back, by reason",
		}, []string{"reason"}),
		UnitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inchat_unit_duration_seconds",
			Help:    "Duration of atomic units of work, lock wait included",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		PendingWaiters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "inchat_pending_waiters",
			Help: "Long-poll waiters currently parked on a channel version",
		}),
		WaitersNotified: factory.NewCounter(prometheus.CounterOpts{
			Name: "inchat_waiters_notified_total",
			Help: "Waiters released by a committed change or deletion",
		}),
	}
}

func (m *Metrics) IncrementConflict(kind string) {
	m.StoreConflicts.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementMutation(kind, op string) {
	m.StoreMutations.WithLabelValues(kind, op).Inc()
}

func (m *Metrics) IncrementAborted(reason string) {
	m.UnitsAborted.WithLabelValues(reason).Inc()
}

// ObserveUnit records the duration of a unit of work.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveUnit(start time.Time) {
	m.UnitDuration.Observe(time.Since(start).Seconds())
}
