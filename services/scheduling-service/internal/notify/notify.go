// Package notify turns committed lifecycle events into notification requests
// for the practitioner and the patient.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

const (
	Category = "appointment"
	Topic    = "clinic.notification.requested.v1"
)

// Event describes a transition that has already been persisted.
type Event struct {
	Event       lifecycle.Event
	Appointment model.Appointment
	Actor       model.Actor
	Effects     []lifecycle.Effect
	At          time.Time
}

// Notice is one notification addressed to one party.
type Notice struct {
	AppointmentID string          `json:"appointment_id"`
	Organization  string          `json:"organization_id"`
	Recipient     string          `json:"recipient_id"`
	RecipientKind lifecycle.Party `json:"recipient_kind"`
	Category      string          `json:"category"`
	Event         string          `json:"event"`
	Title         string          `json:"title"`
	Summary       string          `json:"summary"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Dispatcher delivers notices for a committed event. Delivery failures are
// the dispatcher's to log; they never undo the transition.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt Event)
}

var titles = map[lifecycle.Event]string{
	lifecycle.EventSchedule:   "New appointment confirmed",
	lifecycle.EventReschedule: "Appointment rescheduled",
	lifecycle.EventCancel:     "Appointment cancelled",
	lifecycle.EventComplete:   "Appointment completed",
}

// Plan resolves evt into notices. Start times in summaries are rendered in loc.
// Parties without an id on the appointment are skipped.
func Plan(evt Event, loc *time.Location) []Notice {
	parties := lifecycle.Recipients(evt.Effects, evt.Actor.Role)
	if len(parties) == 0 {
		return nil
	}
	title, ok := titles[evt.Event]
	if !ok {
		title = "Appointment updated"
	}
	if loc == nil {
		loc = time.UTC
	}
	appt := evt.Appointment
	summary := fmt.Sprintf("%s on %s (%d min)", title, appt.StartTime.In(loc).Format("2006-01-02 15:04"), appt.DurationMinutes)

	out := make([]Notice, 0, len(parties))
	for _, p := range parties {
		recipient := appt.Practitioner
		if p == lifecycle.PartyPatient {
			recipient = appt.Patient
		}
		if recipient == "" {
			continue
		}
		out = append(out, Notice{
			AppointmentID: appt.ID,
			Organization:  appt.Organization,
			Recipient:     recipient,
			RecipientKind: p,
			Category:      Category,
			Event:         string(evt.Event),
			Title:         title,
			Summary:       summary,
			OccurredAt:    evt.At.UTC(),
		})
	}
	return out
}

// Discard drops every event.
type Discard struct{}

func (Discard) Dispatch(context.Context, Event) {}
