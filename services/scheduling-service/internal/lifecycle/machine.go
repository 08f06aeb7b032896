// Package lifecycle holds the appointment state machine: which events are
// legal from which status, and who must be told when they happen.
package lifecycle

import (
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

type Event string

const (
	EventCreate     Event = "create"
	EventEdit       Event = "edit"
	EventDelete     Event = "delete"
	EventSchedule   Event = "schedule"
	EventReschedule Event = "reschedule"
	EventCancel     Event = "cancel"
	EventComplete   Event = "complete"
)

// Effect is a notification obligation attached to a transition.
type Effect int

const (
	NotifyPractitioner Effect = iota + 1
	NotifyPatient
	// NotifyCounterpart resolves against the actor: practitioner acting tells
	// the patient, patient acting tells the practitioner, admin tells both.
	NotifyCounterpart
)

// Removed is the pseudo status of a deleted slot.
const Removed model.Status = ""

// Rule is one row of the transition table.
type Rule struct {
	From    model.Status
	Event   Event
	To      model.Status
	Effects []Effect
}

// none marks the pre-creation state.
const none model.Status = "none"

var rules = []Rule{
	{From: none, Event: EventCreate, To: model.StatusAvailable},
	{From: model.StatusAvailable, Event: EventEdit, To: model.StatusAvailable},
	{From: model.StatusAvailable, Event: EventDelete, To: Removed},
	{From: model.StatusAvailable, Event: EventSchedule, To: model.StatusScheduled, Effects: []Effect{NotifyPractitioner}},
	{From: model.StatusScheduled, Event: EventReschedule, To: model.StatusScheduled, Effects: []Effect{NotifyPatient}},
	{From: model.StatusScheduled, Event: EventCancel, To: model.StatusCancelled, Effects: []Effect{NotifyCounterpart}},
	{From: model.StatusScheduled, Event: EventComplete, To: model.StatusCompleted, Effects: []Effect{NotifyPatient, NotifyPractitioner}},
}

type key struct {
	from  model.Status
	event Event
}

var table = func() map[key]Rule {
	m := make(map[key]Rule, len(rules))
	for _, r := range rules {
		m[key{r.From, r.Event}] = r
	}
	return m
}()

// Initial returns the creation rule.
func Initial() Rule {
	return table[key{none, EventCreate}]
}

// Next returns the rule for applying event to a record in status from.
func Next(from model.Status, event Event) (Rule, error) {
	r, ok := table[key{from, event}]
	if !ok {
		if Terminal(from) {
			return Rule{}, apperr.Newf(apperr.KindInvalidTransition, "appointment is already %s", from)
		}
		return Rule{}, apperr.Newf(apperr.KindInvalidTransition, "cannot %s an appointment that is %s", event, from)
	}
	return r, nil
}

func Terminal(s model.Status) bool {
	return s == model.StatusCancelled || s == model.StatusCompleted
}

// Rules returns a copy of the transition table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}
