package outbox

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
)

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage(context.Background(), Record{
		ID:          7,
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   "clinic.notification.requested.v1",
		Payload:     []byte(`{"title":"x"}`),
	})

	if msg.Topic != "clinic.notification.requested.v1" {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	if string(msg.Key) != "appt-1" {
		t.Fatalf("expected aggregate id as key, got %q", msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "clinic.notification.requested.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}
