// Package metrics exposes Prometheus instruments for the doorbell.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "doorbell"

type Metrics struct {
	VisitsCreated      prometheus.Counter
	Rings              *prometheus.CounterVec
	PushSends          *prometheus.CounterVec
	Deactivations      *prometheus.CounterVec
	SubscriptionSaves  *prometheus.CounterVec
	DispatchDuration   prometheus.Histogram
	MaintenanceDeletes prometheus.Counter
}

// New registers the doorbell metrics on reg. Passing a fresh registry keeps
// tests isolated from the global one.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VisitsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_created_total",
			Help:      "Total number of visits opened from a QR scan",
		}),
		Rings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rings_total",
			Help:      "Ring attempts by outcome",
		}, []string{"outcome"}),
		PushSends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_sends_total",
			Help:      "Individual Web Push deliveries by result",
		}, []string{"result"}),
		Deactivations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_deactivations_total",
			Help:      "Subscriptions soft-deactivated, by reason",
		}, []string{"reason"}),
		SubscriptionSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_saves_total",
			Help:      "Subscribe calls by kind (created, updated, reactivated)",
		}, []string{"kind"}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time until every send of a ring fan-out settled",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		MaintenanceDeletes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_visits_deleted_total",
			Help:      "Visits removed by the retention job",
		}),
	}
}

func (m *Metrics) IncVisitsCreated() {
	if m == nil {
		return
	}
	m.VisitsCreated.Inc()
}

func (m *Metrics) IncRing(outcome string) {
	if m == nil {
		return
	}
	m.Rings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncPushSend(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.PushSends.WithLabelValues(result).Inc()
}

func (m *Metrics) AddDeactivations(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Deactivations.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) IncSubscriptionSave(kind string) {
	if m == nil {
		return
	}
	m.SubscriptionSaves.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) AddMaintenanceDeletes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.MaintenanceDeletes.Add(float64(n))
}
