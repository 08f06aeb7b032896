package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
)

// Appender persists outbox events in their own transaction.
type Appender interface {
	Append(ctx context.Context, events ...outbox.Event) error
}

// Observer is told how many notices were queued or lost.
type Observer interface {
	Notification(outcome string, n int)
}

// OutboxDispatcher writes one outbox row per notice. The relay to Kafka and
// on to the notification service happens out of band.
type OutboxDispatcher struct {
	appender Appender
	loc      *time.Location
	logger   *slog.Logger
	observer Observer
}

func NewOutboxDispatcher(appender Appender, loc *time.Location, logger *slog.Logger, observer Observer) *OutboxDispatcher {
	return &OutboxDispatcher{appender: appender, loc: loc, logger: logger, observer: observer}
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context, evt Event) {
	notices := Plan(evt, d.loc)
	if len(notices) == 0 {
		return
	}

	events := make([]outbox.Event, 0, len(notices))
	for _, n := range notices {
		payload, err := json.Marshal(n)
		if err != nil {
			d.logger.Error("notification encode failed", "err", err, "appointment_id", n.AppointmentID)
			continue
		}
		events = append(events, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   n.AppointmentID,
			EventType:     Topic,
			Payload:       payload,
		})
	}

	if err := d.appender.Append(ctx, events...); err != nil {
		d.logger.Error("notification enqueue failed", "err", err,
			"appointment_id", evt.Appointment.ID, "event", evt.Event)
		d.observe("failed", len(events))
		return
	}
	d.observe("queued", len(events))
}

func (d *OutboxDispatcher) observe(outcome string, n int) {
	if d.observer != nil {
		d.observer.Notification(outcome, n)
	}
}
