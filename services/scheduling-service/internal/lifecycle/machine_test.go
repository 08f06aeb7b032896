package lifecycle

import (
	"errors"
	"reflect"
	"testing"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

var allEvents = []Event{EventCreate, EventEdit, EventDelete, EventSchedule, EventReschedule, EventCancel, EventComplete}

var allStatuses = []model.Status{model.StatusAvailable, model.StatusScheduled, model.StatusCancelled, model.StatusCompleted}

func TestNextAllowsTableEdges(t *testing.T) {
	cases := []struct {
		from  model.Status
		event Event
		to    model.Status
	}{
		{model.StatusAvailable, EventEdit, model.StatusAvailable},
		{model.StatusAvailable, EventDelete, Removed},
		{model.StatusAvailable, EventSchedule, model.StatusScheduled},
		{model.StatusScheduled, EventReschedule, model.StatusScheduled},
		{model.StatusScheduled, EventCancel, model.StatusCancelled},
		{model.StatusScheduled, EventComplete, model.StatusCompleted},
	}
	for _, tc := range cases {
		r, err := Next(tc.from, tc.event)
		if err != nil {
			t.Fatalf("%s from %s: unexpected error %v", tc.event, tc.from, err)
		}
		if r.To != tc.to {
			t.Fatalf("%s from %s: expected %q, got %q", tc.event, tc.from, tc.to, r.To)
		}
	}
	if Initial().To != model.StatusAvailable {
		t.Fatalf("creation must yield available, got %q", Initial().To)
	}
}

func TestTransitionClosure(t *testing.T) {
	legal := map[model.Status]map[Event]bool{
		model.StatusAvailable: {EventEdit: true, EventDelete: true, EventSchedule: true},
		model.StatusScheduled: {EventReschedule: true, EventCancel: true, EventComplete: true},
	}
	for _, from := range allStatuses {
		for _, ev := range allEvents {
			_, err := Next(from, ev)
			if legal[from][ev] {
				continue
			}
			if !errors.Is(err, apperr.ErrInvalidTransition) {
				t.Fatalf("%s from %s: expected invalid transition, got %v", ev, from, err)
			}
		}
	}
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	for _, s := range []model.Status{model.StatusCancelled, model.StatusCompleted} {
		if !Terminal(s) {
			t.Fatalf("%s should be terminal", s)
		}
		for _, ev := range allEvents {
			if _, err := Next(s, ev); err == nil {
				t.Fatalf("%s accepted %s", s, ev)
			}
		}
	}
}

func TestRecipients(t *testing.T) {
	cancel, _ := Next(model.StatusScheduled, EventCancel)
	complete, _ := Next(model.StatusScheduled, EventComplete)
	schedule, _ := Next(model.StatusAvailable, EventSchedule)
	reschedule, _ := Next(model.StatusScheduled, EventReschedule)
	edit, _ := Next(model.StatusAvailable, EventEdit)

	cases := []struct {
		name  string
		rule  Rule
		actor model.Role
		want  []Party
	}{
		{"practitioner cancels", cancel, model.RoleEmployee, []Party{PartyPatient}},
		{"patient cancels", cancel, model.RolePatient, []Party{PartyPractitioner}},
		{"admin cancels", cancel, model.RoleAdmin, []Party{PartyPractitioner, PartyPatient}},
		{"complete", complete, model.RoleEmployee, []Party{PartyPractitioner, PartyPatient}},
		{"schedule", schedule, model.RolePatient, []Party{PartyPractitioner}},
		{"reschedule", reschedule, model.RolePatient, []Party{PartyPatient}},
		{"edit", edit, model.RoleEmployee, nil},
	}
	for _, tc := range cases {
		if got := Recipients(tc.rule.Effects, tc.actor); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
