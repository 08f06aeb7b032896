package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/report"
)

// Scheduler is the appointment core as seen by the HTTP layer.
type Scheduler interface {
	CreateAvailability(ctx context.Context, actor model.Actor, start time.Time, durationMinutes int) (model.Appointment, error)
	ListAvailable(ctx context.Context, actor model.Actor) ([]model.Appointment, error)
	UpdateAvailability(ctx context.Context, actor model.Actor, id string, newStart time.Time, newDurationMinutes int) (model.Appointment, error)
	DeleteAvailability(ctx context.Context, actor model.Actor, id string) error
	ScheduleAppointment(ctx context.Context, actor model.Actor, id string) (model.Appointment, error)
	RescheduleAppointment(ctx context.Context, actor model.Actor, id string, newStart time.Time) (model.Appointment, error)
	CancelAppointment(ctx context.Context, actor model.Actor, id string) (model.Appointment, error)
	CompleteAppointment(ctx context.Context, actor model.Actor, id string) (model.Appointment, error)
	ListByStatus(ctx context.Context, actor model.Actor, status model.Status) ([]model.Appointment, error)
	SuggestOpenings(ctx context.Context, actor model.Actor, day time.Time, durationMinutes, stepMinutes int) ([]time.Time, error)
	GetAppointment(ctx context.Context, actor model.Actor, id string) (model.Appointment, error)
}

type AppointmentHandler struct {
	core   Scheduler
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

func NewAppointmentHandler(core Scheduler, loc *time.Location, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{core: core, loc: loc, logger: logger, now: time.Now}
}

// Register mounts the routes on mux. Callers wrap mux with auth.RequireBearer.
func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/availability", h.Availability)
	mux.HandleFunc("/api/v1/availability/update", h.UpdateAvailability)
	mux.HandleFunc("/api/v1/availability/delete", h.DeleteAvailability)
	mux.HandleFunc("/api/v1/availability/suggestions", h.Suggestions)
	mux.HandleFunc("/api/v1/appointments", h.ListByStatus)
	mux.HandleFunc("/api/v1/appointments/schedule", h.Schedule)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/complete", h.Complete)
	mux.HandleFunc("/api/v1/appointments/get", h.Get)
	mux.HandleFunc("/api/v1/appointments/pdf", h.PDF)
}

type createAvailabilityRequest struct {
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type updateAvailabilityRequest struct {
	AppointmentID   string `json:"appointment_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type appointmentIDRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	StartTime     string `json:"start_time"`
}

type appointmentResponse struct {
	AppointmentID   string `json:"appointment_id"`
	Status          string `json:"status"`
	PractitionerID  string `json:"practitioner_id"`
	OrganizationID  string `json:"organization_id"`
	PatientID       string `json:"patient_id,omitempty"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	CreatedAt       string `json:"created_at"`
	AcceptedAt      string `json:"accepted_at,omitempty"`
}

type listResponse struct {
	Items []appointmentResponse `json:"items"`
}

type suggestionsResponse struct {
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes"`
	Starts          []string `json:"starts"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Availability serves POST (publish a slot) and GET (list open slots).
func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAvailability(w, r)
	case http.MethodGet:
		h.listAvailable(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentHandler) createAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createAvailabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseTime(req.StartTime)
	if err != nil {
		h.writeError(w, r, apperr.New(apperr.KindValidation, "invalid start_time"))
		return
	}

	appt, err := h.core.CreateAvailability(r.Context(), actor, start, req.DurationMinutes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h.toResponse(appt))
}

func (h *AppointmentHandler) listAvailable(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.core.ListAvailable(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toList(list))
}

func (h *AppointmentHandler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req updateAvailabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseTime(req.StartTime)
	if err != nil {
		h.writeError(w, r, apperr.New(apperr.KindValidation, "invalid start_time"))
		return
	}

	appt, err := h.core.UpdateAvailability(r.Context(), actor, strings.TrimSpace(req.AppointmentID), start, req.DurationMinutes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toResponse(appt))
}

func (h *AppointmentHandler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req appointmentIDRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.core.DeleteAvailability(r.Context(), actor, strings.TrimSpace(req.AppointmentID)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Suggestions lists open start times for ?date=YYYY-MM-DD (clinic local date),
// &duration=<minutes> and optional &step=<minutes>.
func (h *AppointmentHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	day, err := time.ParseInLocation("2006-01-02", q.Get("date"), h.loc)
	if err != nil {
		h.writeError(w, r, apperr.New(apperr.KindValidation, "invalid date, expected YYYY-MM-DD"))
		return
	}
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil {
		h.writeError(w, r, apperr.New(apperr.KindValidation, "invalid duration"))
		return
	}
	step := 0
	if raw := q.Get("step"); raw != "" {
		if step, err = strconv.Atoi(raw); err != nil {
			h.writeError(w, r, apperr.New(apperr.KindValidation, "invalid step"))
			return
		}
	}

	starts, err := h.core.SuggestOpenings(r.Context(), actor, day, duration, step)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := suggestionsResponse{Date: day.Format("2006-01-02"), DurationMinutes: duration, Starts: make([]string, 0, len(starts))}
	for _, s := range starts {
		resp.Starts = append(resp.Starts, s.In(h.loc).Format(time.RFC3339))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// ListByStatus serves GET /api/v1/appointments?status=scheduled. The status
// parameter is required.
func (h *AppointmentHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	status := model.Status(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status == "" {
		h.writeError(w, r, apperr.New(apperr.KindValidation, "status is required"))
		return
	}
	list, err := h.core.ListByStatus(r.Context(), actor, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toList(list))
}

func (h *AppointmentHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.core.ScheduleAppointment)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.core.CancelAppointment)
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.core.CompleteAppointment)
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseTime(req.StartTime)
	if err != nil {
		h.writeError(w, r, apperr.New(apperr.KindValidation, "invalid start_time"))
		return
	}

	appt, err := h.core.RescheduleAppointment(r.Context(), actor, strings.TrimSpace(req.AppointmentID), start)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toResponse(appt))
}

// Get serves GET /api/v1/appointments/get?appointment_id=.
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, ok := h.fetch(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toResponse(appt))
}

// PDF serves GET /api/v1/appointments/pdf?appointment_id= as a download.
func (h *AppointmentHandler) PDF(w http.ResponseWriter, r *http.Request) {
	appt, ok := h.fetch(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.Render(&buf, appt, h.loc, h.now()); err != nil {
		h.writeError(w, r, apperr.Internal(err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="appointment-`+appt.ID+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *AppointmentHandler) fetch(w http.ResponseWriter, r *http.Request) (model.Appointment, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return model.Appointment{}, false
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return model.Appointment{}, false
	}
	appt, err := h.core.GetAppointment(r.Context(), actor, strings.TrimSpace(r.URL.Query().Get("appointment_id")))
	if err != nil {
		h.writeError(w, r, err)
		return model.Appointment{}, false
	}
	return appt, true
}

type idAction func(ctx context.Context, actor model.Actor, id string) (model.Appointment, error)

func (h *AppointmentHandler) byID(w http.ResponseWriter, r *http.Request, action idAction) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req appointmentIDRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, err := action(r.Context(), actor, strings.TrimSpace(req.AppointmentID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toResponse(appt))
}

// actor builds the explicit actor from the verified token.
func (h *AppointmentHandler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok || p.Subject == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return model.Actor{}, false
	}
	httpx.Annotate(r.Context(), "actor_id", p.Subject, "actor_role", p.Role)
	return model.Actor{ID: p.Subject, Role: model.Role(p.Role)}, true
}

func (h *AppointmentHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		h.writeError(w, r, apperr.New(apperr.KindValidation, "invalid json body"))
		return false
	}
	return true
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindBusinessHours:     http.StatusUnprocessableEntity,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindOwnership:         http.StatusForbidden,
	apperr.KindAuthorization:     http.StatusForbidden,
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindInvalidTransition: http.StatusConflict,
	apperr.KindAlreadyBooked:     http.StatusConflict,
	apperr.KindPastDate:          http.StatusUnprocessableEntity,
	apperr.KindInternal:          http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	if code, ok := statusByKind[apperr.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (h *AppointmentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	httpx.Annotate(r.Context(), "error_kind", string(kind))
	if kind == apperr.KindInternal {
		h.logger.Error("request failed", "err", err, "path", r.URL.Path)
	}
	httpx.WriteJSON(w, StatusFor(err), errorResponse{Error: string(kind), Message: apperr.ReasonOf(err)})
}

func (h *AppointmentHandler) toResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:   appt.ID,
		Status:          string(appt.Status),
		PractitionerID:  appt.Practitioner,
		OrganizationID:  appt.Organization,
		PatientID:       appt.Patient,
		StartTime:       appt.StartTime.In(h.loc).Format(time.RFC3339),
		EndTime:         appt.EndTime.In(h.loc).Format(time.RFC3339),
		DurationMinutes: appt.DurationMinutes,
		CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.AcceptedAt != nil {
		resp.AcceptedAt = appt.AcceptedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *AppointmentHandler) toList(list []model.Appointment) listResponse {
	resp := listResponse{Items: make([]appointmentResponse, 0, len(list))}
	for _, a := range list {
		resp.Items = append(resp.Items, h.toResponse(a))
	}
	return resp
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}
