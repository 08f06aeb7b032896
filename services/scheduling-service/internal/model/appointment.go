package model

import "time"

type Status string

const (
	StatusAvailable Status = "available"
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Active statuses occupy the practitioner's calendar.
func (s Status) Active() bool {
	return s == StatusAvailable || s == StatusScheduled
}

// Appointment is a practitioner time window. It starts life as an open slot
// (available) and becomes an appointment once a patient claims it.
type Appointment struct {
	ID              string
	Status          Status
	Practitioner    string
	Organization    string
	Patient         string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	CreatedAt       time.Time
	AcceptedAt      *time.Time
}

// EndFor derives the end of a window from its start and duration.
func EndFor(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute)
}
