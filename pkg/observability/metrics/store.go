package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// RepositoryMetrics counts and times CRUD operations per subject. A nil *RepositoryMetrics
// is valid and records nothing.
type RepositoryMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewRepositoryMetrics creates repository collectors and registers them on reg.
func NewRepositoryMetrics(reg *Registry) (*RepositoryMetrics, error) {
	m := &RepositoryMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_operations_total",
				Help: "Total number of repository operations",
			},
			[]string{"subject", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repository_operation_duration_seconds",
				Help:    "Repository operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"subject", "operation"},
		),
	}
	if reg != nil {
		if err := reg.Register(m.operations); err != nil {
			return nil, err
		}
		if err := reg.Register(m.duration); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveOperation records one repository operation.
func (m *RepositoryMetrics) ObserveOperation(subject, operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(subject, operation, outcome(err)).Inc()
	m.duration.WithLabelValues(subject, operation).Observe(elapsed.Seconds())
}

// KeyValueMetrics counts cache and state lookups. A nil *KeyValueMetrics records nothing.
type KeyValueMetrics struct {
	lookups    *prometheus.CounterVec
	operations *prometheus.CounterVec
}

// NewKeyValueMetrics creates key-value collectors and registers them on reg.
func NewKeyValueMetrics(reg *Registry) (*KeyValueMetrics, error) {
	m := &KeyValueMetrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvalue_lookups_total",
				Help: "Total number of key-value lookups by result",
			},
			[]string{"type", "subject", "result"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyvalue_operations_total",
				Help: "Total number of key-value operations",
			},
			[]string{"type", "operation", "outcome"},
		),
	}
	if reg != nil {
		if err := reg.Register(m.lookups); err != nil {
			return nil, err
		}
		if err := reg.Register(m.operations); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveLookup records a hit or miss.
func (m *KeyValueMetrics) ObserveLookup(kind, subject string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(kind, subject, result).Inc()
}

// ObserveOperation records one key-value command group.
func (m *KeyValueMetrics) ObserveOperation(kind, operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind, operation, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
