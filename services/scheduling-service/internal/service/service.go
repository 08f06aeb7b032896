// Package service orchestrates the appointment lifecycle. Every write runs
// validate, authorize, conflict check, then a conditional persist; lifecycle
// notifications are dispatched only after the persist has committed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/notify"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/policy"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "scheduling-service"

// MaxDurationMinutes caps a single window; nothing longer fits in a clinic day.
const MaxDurationMinutes = 24 * 60

// ListFilter selects appointments whose policy field equals Value.
// A zero From disables the lower bound on start time.
type ListFilter struct {
	Field  policy.Field
	Value  string
	Status model.Status
	From   time.Time
}

// Store persists appointments. Conditional writes return apperr.ErrStale when
// the row no longer has the expected status, and interval writes return a
// conflict error when another active window of the practitioner overlaps.
type Store interface {
	availability.IntervalSource
	Get(ctx context.Context, id string) (model.Appointment, error)
	InsertSlot(ctx context.Context, appt model.Appointment) error
	MoveWindow(ctx context.Context, id string, expected model.Status, start, end time.Time, durationMinutes int) (model.Appointment, error)
	DeleteSlot(ctx context.Context, id string) error
	Claim(ctx context.Context, id, patientID string, at time.Time) (model.Appointment, error)
	Transition(ctx context.Context, id string, from, to model.Status) (model.Appointment, error)
	List(ctx context.Context, f ListFilter) ([]model.Appointment, error)
}

// Directory resolves the profile relations the core needs. Lookups of unknown
// ids return an error matching apperr.ErrNotFound.
type Directory interface {
	PractitionerOrganization(ctx context.Context, practitionerID string) (string, error)
	Patient(ctx context.Context, patientID string) (model.Patient, error)
}

type Deps struct {
	Store     Store
	Directory Directory
	Hours     *availability.BusinessHours
	Zone      *clock.Zone
	Notifier  notify.Dispatcher
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

type Service struct {
	store     Store
	directory Directory
	hours     *availability.BusinessHours
	zone      *clock.Zone
	detector  *availability.ConflictDetector
	notifier  notify.Dispatcher
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

func New(d Deps) *Service {
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		store:     d.Store,
		directory: d.Directory,
		hours:     d.Hours,
		zone:      d.Zone,
		detector:  availability.NewConflictDetector(d.Store),
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
}

func (s *Service) CreateAvailability(ctx context.Context, actor model.Actor, start time.Time, durationMinutes int) (appt model.Appointment, err error) {
	ctx, done := s.track(ctx, string(lifecycle.EventCreate), attribute.String("actor.role", string(actor.Role)))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return model.Appointment{}, err
	}
	if err := validateWindow(start, durationMinutes); err != nil {
		return model.Appointment{}, err
	}
	if actor.Role != model.RoleEmployee {
		return model.Appointment{}, apperr.New(apperr.KindAuthorization, "only practitioners can publish availability")
	}
	org, err := s.directory.PractitionerOrganization(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Appointment{}, apperr.New(apperr.KindAuthorization, "practitioner profile not found")
		}
		return model.Appointment{}, apperr.Internal(err)
	}

	rule := lifecycle.Initial()
	end := model.EndFor(start, durationMinutes)
	if err := s.hours.Validate(start, end); err != nil {
		return model.Appointment{}, err
	}
	if err := s.checkConflict(ctx, actor.ID, start, end, ""); err != nil {
		return model.Appointment{}, err
	}

	appt = model.Appointment{
		ID:              uuid.NewString(),
		Status:          rule.To,
		Practitioner:    actor.ID,
		Organization:    org,
		StartTime:       start.UTC(),
		EndTime:         end.UTC(),
		DurationMinutes: durationMinutes,
		CreatedAt:       s.zone.Now().UTC(),
	}
	if err := s.store.InsertSlot(ctx, appt); err != nil {
		return model.Appointment{}, storeErr(err)
	}
	s.emit(ctx, rule, appt, actor)
	return appt, nil
}

// ListAvailable returns future open slots visible to actor, earliest first.
// Practitioners see their own, patients those of their assigned practitioner,
// administrators those of their organization.
func (s *Service) ListAvailable(ctx context.Context, actor model.Actor) (out []model.Appointment, err error) {
	ctx, done := s.track(ctx, "list_available", attribute.String("actor.role", string(actor.Role)))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return nil, err
	}
	filter := ListFilter{Status: model.StatusAvailable, From: s.zone.Now()}
	switch actor.Role {
	case model.RoleEmployee:
		filter.Field, filter.Value = policy.FieldPractitioner, actor.ID
	case model.RolePatient:
		p, err := s.directory.Patient(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.New(apperr.KindAuthorization, "patient profile not found")
			}
			return nil, apperr.Internal(err)
		}
		if p.Practitioner == "" {
			return []model.Appointment{}, nil
		}
		filter.Field, filter.Value = policy.FieldPractitioner, p.Practitioner
	case model.RoleAdmin:
		filter.Field, filter.Value = policy.FieldOrganization, actor.ID
	default:
		return nil, apperr.ErrAuthorization
	}

	return s.list(ctx, filter)
}

func (s *Service) UpdateAvailability(ctx context.Context, actor model.Actor, id string, newStart time.Time, newDurationMinutes int) (appt model.Appointment, err error) {
	ctx, done := s.track(ctx, string(lifecycle.EventEdit), attribute.String("appointment.id", id))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return model.Appointment{}, err
	}
	if err := validateID(id); err != nil {
		return model.Appointment{}, err
	}
	if err := validateWindow(newStart, newDurationMinutes); err != nil {
		return model.Appointment{}, err
	}

	current, rule, err := s.loadOwnedSlot(ctx, actor, id, lifecycle.EventEdit)
	if err != nil {
		return model.Appointment{}, err
	}
	end := model.EndFor(newStart, newDurationMinutes)
	if err := s.hours.Validate(newStart, end); err != nil {
		return model.Appointment{}, err
	}
	if err := s.checkConflict(ctx, current.Practitioner, newStart, end, current.ID); err != nil {
		return model.Appointment{}, err
	}

	appt, err = s.store.MoveWindow(ctx, id, rule.From, newStart.UTC(), end.UTC(), newDurationMinutes)
	if err != nil {
		if errors.Is(err, apperr.ErrStale) {
			return model.Appointment{}, slotGone()
		}
		return model.Appointment{}, storeErr(err)
	}
	s.emit(ctx, rule, appt, actor)
	return appt, nil
}

func (s *Service) DeleteAvailability(ctx context.Context, actor model.Actor, id string) (err error) {
	ctx, done := s.track(ctx, string(lifecycle.EventDelete), attribute.String("appointment.id", id))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	current, rule, err := s.loadOwnedSlot(ctx, actor, id, lifecycle.EventDelete)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSlot(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrStale) {
			return slotGone()
		}
		return storeErr(err)
	}
	s.emit(ctx, rule, current, actor)
	return nil
}

// ScheduleAppointment lets the calling patient claim an open slot of their
// organization. Of two concurrent claims exactly one wins; the other gets
// already_booked.
func (s *Service) ScheduleAppointment(ctx context.Context, actor model.Actor, id string) (appt model.Appointment, err error) {
	ctx, done := s.track(ctx, string(lifecycle.EventSchedule), attribute.String("appointment.id", id))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return model.Appointment{}, err
	}
	if err := validateID(id); err != nil {
		return model.Appointment{}, err
	}
	if actor.Role != model.RolePatient {
		return model.Appointment{}, apperr.New(apperr.KindAuthorization, "only patients can schedule appointments")
	}
	patient, err := s.directory.Patient(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Appointment{}, apperr.New(apperr.KindAuthorization, "patient profile not found")
		}
		return model.Appointment{}, apperr.Internal(err)
	}

	current, err := s.get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !policy.CanClaim(current, patient) {
		return model.Appointment{}, apperr.New(apperr.KindOwnership, "slot belongs to another organization")
	}
	if current.Status == model.StatusScheduled {
		return model.Appointment{}, apperr.ErrAlreadyBooked
	}
	rule, err := lifecycle.Next(current.Status, lifecycle.EventSchedule)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Patient != "" {
		return model.Appointment{}, apperr.ErrAlreadyBooked
	}

	appt, err = s.store.Claim(ctx, id, actor.ID, s.zone.Now().UTC())
	if err != nil {
		if errors.Is(err, apperr.ErrStale) {
			return model.Appointment{}, apperr.ErrAlreadyBooked
		}
		return model.Appointment{}, storeErr(err)
	}
	s.emit(ctx, rule, appt, actor)
	return appt, nil
}

// RescheduleAppointment moves a scheduled appointment to newStart keeping its
// duration. newStart must be strictly in the future.
func (s *Service) RescheduleAppointment(ctx context.Context, actor model.Actor, id string, newStart time.Time) (appt model.Appointment, err error) {
	ctx, done := s.track(ctx, string(lifecycle.EventReschedule), attribute.String("appointment.id", id))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return model.Appointment{}, err
	}
	if err := validateID(id); err != nil {
		return model.Appointment{}, err
	}
	if newStart.IsZero() {
		return model.Appointment{}, apperr.New(apperr.KindValidation, "start time is required")
	}
	if !newStart.After(s.zone.Now()) {
		return model.Appointment{}, apperr.ErrPastDate
	}

	current, err := s.get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := authorize(current, actor); err != nil {
		return model.Appointment{}, err
	}
	rule, err := lifecycle.Next(current.Status, lifecycle.EventReschedule)
	if err != nil {
		return model.Appointment{}, err
	}

	end := model.EndFor(newStart, current.DurationMinutes)
	if err := s.hours.Validate(newStart, end); err != nil {
		return model.Appointment{}, err
	}
	if err := s.checkConflict(ctx, current.Practitioner, newStart, end, current.ID); err != nil {
		return model.Appointment{}, err
	}

	appt, err = s.store.MoveWindow(ctx, id, rule.From, newStart.UTC(), end.UTC(), current.DurationMinutes)
	if err != nil {
		if errors.Is(err, apperr.ErrStale) {
			return model.Appointment{}, apperr.New(apperr.KindInvalidTransition, "appointment changed before it could be rescheduled")
		}
		return model.Appointment{}, storeErr(err)
	}
	s.emit(ctx, rule, appt, actor)
	return appt, nil
}

func (s *Service) CancelAppointment(ctx context.Context, actor model.Actor, id string) (model.Appointment, error) {
	return s.finish(ctx, actor, id, lifecycle.EventCancel)
}

func (s *Service) CompleteAppointment(ctx context.Context, actor model.Actor, id string) (model.Appointment, error) {
	return s.finish(ctx, actor, id, lifecycle.EventComplete)
}

// finish applies a status-only transition into a terminal state.
func (s *Service) finish(ctx context.Context, actor model.Actor, id string, event lifecycle.Event) (appt model.Appointment, err error) {
	ctx, done := s.track(ctx, string(event), attribute.String("appointment.id", id))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return model.Appointment{}, err
	}
	if err := validateID(id); err != nil {
		return model.Appointment{}, err
	}
	current, err := s.get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := authorize(current, actor); err != nil {
		return model.Appointment{}, err
	}
	rule, err := lifecycle.Next(current.Status, event)
	if err != nil {
		return model.Appointment{}, err
	}

	appt, err = s.store.Transition(ctx, id, rule.From, rule.To)
	if err != nil {
		if errors.Is(err, apperr.ErrStale) {
			return model.Appointment{}, apperr.Newf(apperr.KindInvalidTransition, "appointment changed before it could be %s", rule.To)
		}
		return model.Appointment{}, storeErr(err)
	}
	s.emit(ctx, rule, appt, actor)
	return appt, nil
}

// GetAppointment returns one appointment to an actor that owns it under the
// same role to field table used for transitions.
func (s *Service) GetAppointment(ctx context.Context, actor model.Actor, id string) (appt model.Appointment, err error) {
	ctx, done := s.track(ctx, "get", attribute.String("appointment.id", id))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return model.Appointment{}, err
	}
	if err := validateID(id); err != nil {
		return model.Appointment{}, err
	}
	appt, err = s.get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := authorize(appt, actor); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// ListByStatus scopes by the same role to field table as authorization.
func (s *Service) ListByStatus(ctx context.Context, actor model.Actor, status model.Status) (out []model.Appointment, err error) {
	ctx, done := s.track(ctx, "list_by_status", attribute.String("status", string(status)))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.Newf(apperr.KindValidation, "unknown status %q", status)
	}
	field, ok := policy.FieldFor(actor.Role)
	if !ok {
		return nil, apperr.ErrAuthorization
	}
	return s.list(ctx, ListFilter{Field: field, Value: actor.ID, Status: status})
}

// SuggestOpenings lists start times on the local calendar day of day where a
// practitioner could still publish a window of durationMinutes. Candidates
// step by stepMinutes (the duration when zero) and skip past instants.
func (s *Service) SuggestOpenings(ctx context.Context, actor model.Actor, day time.Time, durationMinutes, stepMinutes int) (out []time.Time, err error) {
	ctx, done := s.track(ctx, "suggest_openings", attribute.String("actor.role", string(actor.Role)))
	defer func() { done(err) }()

	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if err := validateWindow(day, durationMinutes); err != nil {
		return nil, err
	}
	if stepMinutes < 0 {
		return nil, apperr.New(apperr.KindValidation, "step must not be negative")
	}
	if stepMinutes == 0 {
		stepMinutes = durationMinutes
	}
	if actor.Role != model.RoleEmployee {
		return nil, apperr.New(apperr.KindAuthorization, "only practitioners can request openings")
	}

	from := s.zone.At(day, s.hours.Open())
	to := s.zone.At(day, s.hours.Close())
	busy, err := s.store.ActiveIntervals(ctx, actor.ID, from, to)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	starts := s.hours.Suggest(day, time.Duration(durationMinutes)*time.Minute, time.Duration(stepMinutes)*time.Minute, busy, s.zone.Now())
	if starts == nil {
		starts = []time.Time{}
	}
	return starts, nil
}

// loadOwnedSlot fetches an open slot for edit or delete by its practitioner.
// Missing slots and slots that are no longer available both read as not found.
func (s *Service) loadOwnedSlot(ctx context.Context, actor model.Actor, id string, event lifecycle.Event) (model.Appointment, lifecycle.Rule, error) {
	if actor.Role != model.RoleEmployee {
		return model.Appointment{}, lifecycle.Rule{}, apperr.New(apperr.KindAuthorization, "only practitioners can change availability")
	}
	current, err := s.get(ctx, id)
	if err != nil {
		return model.Appointment{}, lifecycle.Rule{}, err
	}
	if err := authorize(current, actor); err != nil {
		return model.Appointment{}, lifecycle.Rule{}, err
	}
	rule, err := lifecycle.Next(current.Status, event)
	if err != nil {
		return model.Appointment{}, lifecycle.Rule{}, slotGone()
	}
	return current, rule, nil
}

func (s *Service) get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Appointment{}, apperr.ErrNotFound
		}
		return model.Appointment{}, apperr.Internal(err)
	}
	return appt, nil
}

func (s *Service) list(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	slices.SortStableFunc(out, func(a, b model.Appointment) int {
		return a.StartTime.Compare(b.StartTime)
	})
	if out == nil {
		out = []model.Appointment{}
	}
	return out, nil
}

func (s *Service) checkConflict(ctx context.Context, practitionerID string, start, end time.Time, excludeID string) error {
	began := time.Now()
	hit, err := s.detector.HasConflict(ctx, practitionerID, start, end, excludeID)
	s.metrics.ConflictCheck(hit, time.Since(began))
	if err != nil {
		return apperr.Internal(err)
	}
	if hit {
		return apperr.ErrConflict
	}
	return nil
}

// emit hands a committed transition to the notifier. It never fails.
func (s *Service) emit(ctx context.Context, rule lifecycle.Rule, appt model.Appointment, actor model.Actor) {
	if len(rule.Effects) == 0 {
		return
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Event:       rule.Event,
		Appointment: appt,
		Actor:       actor,
		Effects:     rule.Effects,
		At:          s.zone.Now(),
	})
}

// track opens a span for op and returns the func that closes it, counts the
// outcome and logs internal failures.
func (s *Service) track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otelx.Start(ctx, tracerName, "appointments."+op, attrs...)
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(apperr.KindOf(err))
			if outcome == string(apperr.KindInternal) {
				s.logger.ErrorContext(ctx, "appointment operation failed", "op", op, "err", err)
			}
		}
		s.metrics.Transition(op, outcome)
		otelx.End(span, err)
	}
}

// authorize distinguishes roles the policy does not know from known roles
// whose field does not match.
func authorize(appt model.Appointment, actor model.Actor) error {
	if _, ok := policy.FieldFor(actor.Role); !ok {
		return apperr.ErrAuthorization
	}
	if !policy.Authorize(appt, actor) {
		return apperr.ErrOwnership
	}
	return nil
}

func storeErr(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Internal(err)
}

func slotGone() error {
	return apperr.New(apperr.KindNotFound, "slot not found or no longer available")
}

func validateActor(actor model.Actor) error {
	if strings.TrimSpace(actor.ID) == "" || actor.Role == "" {
		return apperr.New(apperr.KindValidation, "actor is required")
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.New(apperr.KindValidation, "appointment id is required")
	}
	return nil
}

func validateWindow(start time.Time, durationMinutes int) error {
	if start.IsZero() {
		return apperr.New(apperr.KindValidation, "start time is required")
	}
	if durationMinutes <= 0 || durationMinutes > MaxDurationMinutes {
		return apperr.Newf(apperr.KindValidation, "duration must be between 1 and %d minutes", MaxDurationMinutes)
	}
	return nil
}
