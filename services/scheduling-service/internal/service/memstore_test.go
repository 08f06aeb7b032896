package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/notify"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/policy"
)

// memStore mirrors the Postgres store's conditional-write contract under a
// single mutex.
type memStore struct {
	mu   sync.Mutex
	rows map[string]model.Appointment
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]model.Appointment{}}
}

func (m *memStore) Get(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.rows[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, apperr.ErrNotFound)
	}
	return appt, nil
}

func (m *memStore) ActiveIntervals(_ context.Context, practitionerID string, from, to time.Time) ([]availability.Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []availability.Interval
	for _, a := range m.rows {
		if a.Practitioner == practitionerID && a.Status.Active() && availability.Overlaps(a.StartTime, a.EndTime, from, to) {
			out = append(out, availability.Interval{ID: a.ID, Start: a.StartTime, End: a.EndTime})
		}
	}
	return out, nil
}

func (m *memStore) overlapsLocked(practitionerID string, start, end time.Time, excludeID string) bool {
	for _, a := range m.rows {
		if a.ID == excludeID || a.Practitioner != practitionerID || !a.Status.Active() {
			continue
		}
		if availability.Overlaps(start, end, a.StartTime, a.EndTime) {
			return true
		}
	}
	return false
}

func (m *memStore) InsertSlot(_ context.Context, appt model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overlapsLocked(appt.Practitioner, appt.StartTime, appt.EndTime, "") {
		return apperr.ErrConflict
	}
	m.rows[appt.ID] = appt
	return nil
}

func (m *memStore) MoveWindow(_ context.Context, id string, expected model.Status, start, end time.Time, durationMinutes int) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.rows[id]
	if !ok || appt.Status != expected {
		return model.Appointment{}, apperr.ErrStale
	}
	if m.overlapsLocked(appt.Practitioner, start, end, id) {
		return model.Appointment{}, apperr.ErrConflict
	}
	appt.StartTime, appt.EndTime, appt.DurationMinutes = start, end, durationMinutes
	m.rows[id] = appt
	return appt, nil
}

func (m *memStore) DeleteSlot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.rows[id]
	if !ok || appt.Status != model.StatusAvailable {
		return apperr.ErrStale
	}
	delete(m.rows, id)
	return nil
}

func (m *memStore) Claim(_ context.Context, id, patientID string, at time.Time) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.rows[id]
	if !ok || appt.Status != model.StatusAvailable || appt.Patient != "" {
		return model.Appointment{}, apperr.ErrStale
	}
	appt.Status = model.StatusScheduled
	appt.Patient = patientID
	appt.AcceptedAt = &at
	m.rows[id] = appt
	return appt, nil
}

func (m *memStore) Transition(_ context.Context, id string, from, to model.Status) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.rows[id]
	if !ok || appt.Status != from {
		return model.Appointment{}, apperr.ErrStale
	}
	appt.Status = to
	m.rows[id] = appt
	return appt, nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.rows {
		if policy.Value(a, f.Field) != f.Value || a.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && !a.StartTime.After(f.From) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) all() []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Appointment, 0, len(m.rows))
	for _, a := range m.rows {
		out = append(out, a)
	}
	return out
}

type memDirectory struct {
	practitioners map[string]string
	patients      map[string]model.Patient
}

func (d memDirectory) PractitionerOrganization(_ context.Context, id string) (string, error) {
	org, ok := d.practitioners[id]
	if !ok {
		return "", fmt.Errorf("practitioner %s: %w", id, apperr.ErrNotFound)
	}
	return org, nil
}

func (d memDirectory) Patient(_ context.Context, id string) (model.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return model.Patient{}, fmt.Errorf("patient %s: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Dispatch(_ context.Context, evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingNotifier) snapshot() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}
