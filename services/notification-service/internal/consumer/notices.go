package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	"github.com/md-rashed-zaman/clinicops/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// Topic carries notification requests produced by the scheduling service.
const Topic = "clinic.notification.requested.v1"

type notice struct {
	AppointmentID string    `json:"appointment_id"`
	Organization  string    `json:"organization_id"`
	Recipient     string    `json:"recipient_id"`
	RecipientKind string    `json:"recipient_kind"`
	Category      string    `json:"category"`
	Event         string    `json:"event"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Decode validates a notification request and converts it to the stored form.
func Decode(msg kafka.Message) (storage.Notification, error) {
	var n notice
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return storage.Notification{}, fmt.Errorf("decode notice: %w", err)
	}
	switch {
	case n.AppointmentID == "":
		return storage.Notification{}, errors.New("notice missing appointment_id")
	case n.Recipient == "":
		return storage.Notification{}, errors.New("notice missing recipient_id")
	case n.RecipientKind != "employee" && n.RecipientKind != "patient":
		return storage.Notification{}, fmt.Errorf("notice has unknown recipient_kind %q", n.RecipientKind)
	case n.Title == "":
		return storage.Notification{}, errors.New("notice missing title")
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = msg.Time
	}
	return storage.Notification{
		EventID:        kafkax.ExtractEventMeta(msg).EventID,
		RecipientID:    n.Recipient,
		RecipientKind:  n.RecipientKind,
		AppointmentID:  n.AppointmentID,
		OrganizationID: n.Organization,
		Category:       n.Category,
		Event:          n.Event,
		Title:          n.Title,
		Summary:        n.Summary,
		OccurredAt:     n.OccurredAt.UTC(),
	}, nil
}

type NotificationStore interface {
	Insert(ctx context.Context, tx pgx.Tx, n storage.Notification) error
}

// StoreNotices persists each valid request. Malformed requests are logged and
// acknowledged so they do not block the partition.
func StoreNotices(store NotificationStore, logger *slog.Logger) Handler {
	return func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		n, err := Decode(msg)
		if err != nil {
			logger.Error("invalid notification payload", "err", err, "offset", msg.Offset)
			return nil
		}
		if err := store.Insert(ctx, tx, n); err != nil {
			return fmt.Errorf("persist notification: %w", err)
		}
		logger.Info("notification stored",
			"appointment_id", n.AppointmentID,
			"recipient_id", n.RecipientID,
			"event", n.Event,
		)
		return nil
	}
}
