package notify

import (
	"context"
	"log/slog"
	"sync"
)

type job struct {
	ctx context.Context
	evt Event
}

// Async hands events to next on a background goroutine so the caller's
// request is not held up by delivery.
type Async struct {
	next   Dispatcher
	logger *slog.Logger
	jobs   chan job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Dispatcher, buffer int, logger *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{next: next, logger: logger, jobs: make(chan job, buffer)}
	a.wg.Add(1)
	go a.loop()
	return a
}

// Dispatch queues evt. The request context's values (trace, request id) are
// kept but its cancellation is not.
func (a *Async) Dispatch(ctx context.Context, evt Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn("notification dropped after shutdown", "appointment_id", evt.Appointment.ID, "event", evt.Event)
		return
	}
	select {
	case a.jobs <- job{ctx: context.WithoutCancel(ctx), evt: evt}:
	default:
		a.logger.Warn("notification queue full", "appointment_id", evt.Appointment.ID, "event", evt.Event)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Async) loop() {
	defer a.wg.Done()
	for j := range a.jobs {
		a.next.Dispatch(j.ctx, j.evt)
	}
}
