package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Transition("schedule", "ok")
	r.Transition("schedule", "ok")
	r.Transition("schedule", "already_booked")
	r.ConflictCheck(true, 5*time.Millisecond)
	r.Notification("queued", 2)
	r.OutboxBatch(3, nil)
	r.OutboxBatch(0, errors.New("broker down"))

	if got := testutil.ToFloat64(r.transitions.WithLabelValues("schedule", "ok")); got != 2 {
		t.Fatalf("expected 2 ok schedules, got %v", got)
	}
	if got := testutil.ToFloat64(r.notifications.WithLabelValues("queued")); got != 2 {
		t.Fatalf("expected 2 queued notifications, got %v", got)
	}
	if got := testutil.ToFloat64(r.outbox.WithLabelValues("published")); got != 3 {
		t.Fatalf("expected 3 published, got %v", got)
	}
	if got := testutil.ToFloat64(r.outbox.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 error batch, got %v", got)
	}
	if n := testutil.CollectAndCount(r.conflictCheck); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Transition("cancel", "ok")
	r.ConflictCheck(false, time.Millisecond)
	r.Notification("queued", 1)
	r.OutboxBatch(1, nil)
}

func TestOutboxBacklogGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	var fail bool
	RegisterOutboxBacklog(reg, func(context.Context) (int64, error) {
		if fail {
			return 0, errors.New("db down")
		}
		return 7, nil
	})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetMetric()[0].GetGauge().GetValue() != 7 {
		t.Fatalf("unexpected backlog families %v", families)
	}

	fail = true
	families, _ = reg.Gather()
	if got := families[0].GetMetric()[0].GetGauge().GetValue(); got != -1 {
		t.Fatalf("expected -1 on error, got %v", got)
	}
}
