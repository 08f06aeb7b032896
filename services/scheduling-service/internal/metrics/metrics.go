// Package metrics exposes the scheduling core's Prometheus collectors.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	transitions   *prometheus.CounterVec
	conflictCheck *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	outbox        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Lifecycle events applied to appointments, by event and outcome.",
		}, []string{"event", "outcome"}),
		conflictCheck: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "conflict_check_seconds",
			Help:      "Latency of practitioner calendar conflict checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "notifications_total",
			Help:      "Notification requests emitted after lifecycle events.",
		}, []string{"outcome"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "outbox_relayed_total",
			Help:      "Outbox rows relayed to Kafka.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(r.transitions, r.conflictCheck, r.notifications, r.outbox)
	}
	return r
}

// Transition counts one lifecycle event. outcome is "ok" or an error kind.
func (r *Recorder) Transition(event, outcome string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(event, outcome).Inc()
}

func (r *Recorder) ConflictCheck(conflict bool, took time.Duration) {
	if r == nil {
		return
	}
	result := "clear"
	if conflict {
		result = "conflict"
	}
	r.conflictCheck.WithLabelValues(result).Observe(took.Seconds())
}

func (r *Recorder) Notification(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.notifications.WithLabelValues(outcome).Add(float64(n))
}

func (r *Recorder) OutboxBatch(published int, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.outbox.WithLabelValues("error").Inc()
		return
	}
	if published > 0 {
		r.outbox.WithLabelValues("published").Add(float64(published))
	}
}

// RegisterOutboxBacklog exposes the number of unrelayed outbox rows, read on
// every scrape. A failed count reports -1.
func RegisterOutboxBacklog(reg prometheus.Registerer, count func(context.Context) (int64, error)) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "clinic",
		Subsystem: "scheduling",
		Name:      "outbox_backlog",
		Help:      "Outbox rows waiting to be relayed to Kafka.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := count(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	}))
}
