package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

type fakeCore struct {
	gotActor model.Actor
	gotID    string
	gotStart time.Time
	gotDur   int
	gotDay   time.Time
	gotStep  int
	status   model.Status
	err      error
	appt     model.Appointment
}

func (f *fakeCore) CreateAvailability(_ context.Context, a model.Actor, start time.Time, d int) (model.Appointment, error) {
	f.gotActor, f.gotStart, f.gotDur = a, start, d
	return f.appt, f.err
}

func (f *fakeCore) ListAvailable(_ context.Context, a model.Actor) ([]model.Appointment, error) {
	f.gotActor = a
	return []model.Appointment{f.appt}, f.err
}

func (f *fakeCore) UpdateAvailability(_ context.Context, a model.Actor, id string, start time.Time, d int) (model.Appointment, error) {
	f.gotActor, f.gotID, f.gotStart, f.gotDur = a, id, start, d
	return f.appt, f.err
}

func (f *fakeCore) DeleteAvailability(_ context.Context, a model.Actor, id string) error {
	f.gotActor, f.gotID = a, id
	return f.err
}

func (f *fakeCore) ScheduleAppointment(_ context.Context, a model.Actor, id string) (model.Appointment, error) {
	f.gotActor, f.gotID = a, id
	return f.appt, f.err
}

func (f *fakeCore) RescheduleAppointment(_ context.Context, a model.Actor, id string, start time.Time) (model.Appointment, error) {
	f.gotActor, f.gotID, f.gotStart = a, id, start
	return f.appt, f.err
}

func (f *fakeCore) CancelAppointment(_ context.Context, a model.Actor, id string) (model.Appointment, error) {
	f.gotActor, f.gotID = a, id
	return f.appt, f.err
}

func (f *fakeCore) CompleteAppointment(_ context.Context, a model.Actor, id string) (model.Appointment, error) {
	f.gotActor, f.gotID = a, id
	return f.appt, f.err
}

func (f *fakeCore) ListByStatus(_ context.Context, a model.Actor, s model.Status) ([]model.Appointment, error) {
	f.gotActor, f.status = a, s
	return nil, f.err
}

func (f *fakeCore) SuggestOpenings(_ context.Context, a model.Actor, day time.Time, d, step int) ([]time.Time, error) {
	f.gotActor, f.gotDay, f.gotDur, f.gotStep = a, day, d, step
	return []time.Time{day.Add(9 * time.Hour)}, f.err
}

func (f *fakeCore) GetAppointment(_ context.Context, a model.Actor, id string) (model.Appointment, error) {
	f.gotActor, f.gotID = a, id
	return f.appt, f.err
}

func newTestHandler(core Scheduler) http.Handler {
	loc := time.FixedZone("BRT", -3*60*60)
	h := NewAppointmentHandler(core, loc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, target, body string, p *auth.Principal) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var employee = &auth.Principal{Subject: "emp-1", Role: "employee"}

func TestCreateAvailabilityPassesActorExplicitly(t *testing.T) {
	start := time.Date(2030, 3, 4, 13, 0, 0, 0, time.UTC)
	core := &fakeCore{appt: model.Appointment{
		ID: "appt-1", Status: model.StatusAvailable, Practitioner: "emp-1", Organization: "org-1",
		StartTime: start, EndTime: start.Add(30 * time.Minute), DurationMinutes: 30,
	}}
	rec := do(t, newTestHandler(core), http.MethodPost, "/api/v1/availability",
		`{"start_time":"2030-03-04T10:00:00-03:00","duration_minutes":30}`, employee)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if core.gotActor != (model.Actor{ID: "emp-1", Role: model.RoleEmployee}) {
		t.Fatalf("unexpected actor %+v", core.gotActor)
	}
	if !core.gotStart.Equal(start) || core.gotDur != 30 {
		t.Fatalf("unexpected window %s/%d", core.gotStart, core.gotDur)
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StartTime != "2030-03-04T10:00:00-03:00" || resp.Status != "available" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperr.New(apperr.KindValidation, "x"), http.StatusBadRequest},
		{apperr.New(apperr.KindBusinessHours, "x"), http.StatusUnprocessableEntity},
		{apperr.ErrConflict, http.StatusConflict},
		{apperr.ErrOwnership, http.StatusForbidden},
		{apperr.ErrAuthorization, http.StatusForbidden},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrInvalidTransition, http.StatusConflict},
		{apperr.ErrAlreadyBooked, http.StatusConflict},
		{apperr.ErrPastDate, http.StatusUnprocessableEntity},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		core := &fakeCore{err: tc.err}
		rec := do(t, newTestHandler(core), http.MethodPost, "/api/v1/appointments/schedule",
			`{"appointment_id":"appt-1"}`, &auth.Principal{Subject: "pat-1", Role: "patient"})
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
		var body errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error != string(apperr.KindOf(tc.err)) || body.Message == "" {
			t.Fatalf("unexpected error body %+v", body)
		}
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	core := &fakeCore{err: apperr.Internal(io.ErrUnexpectedEOF)}
	rec := do(t, newTestHandler(core), http.MethodPost, "/api/v1/appointments/cancel", `{"appointment_id":"a"}`, employee)
	if strings.Contains(rec.Body.String(), "unexpected EOF") {
		t.Fatalf("internal cause leaked: %s", rec.Body.String())
	}
}

func TestRequestsWithoutPrincipalAreRejected(t *testing.T) {
	rec := do(t, newTestHandler(&fakeCore{}), http.MethodGet, "/api/v1/availability", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMethodChecks(t *testing.T) {
	h := newTestHandler(&fakeCore{})
	for _, target := range []string{"/api/v1/appointments/schedule", "/api/v1/appointments/reschedule", "/api/v1/availability/delete"} {
		if rec := do(t, h, http.MethodGet, target, "", employee); rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", target, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodPut, "/api/v1/availability", "", employee); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestBadInputIsValidationError(t *testing.T) {
	h := newTestHandler(&fakeCore{})
	cases := []struct{ target, body string }{
		{"/api/v1/availability", `{"start_time":"tomorrow","duration_minutes":30}`},
		{"/api/v1/availability", `{"start_time":"2030-03-04T10:00:00Z","unknown":1}`},
		{"/api/v1/appointments/reschedule", `{"appointment_id":"a","start_time":""}`},
		{"/api/v1/appointments/cancel", ``},
	}
	for _, tc := range cases {
		rec := do(t, h, http.MethodPost, tc.target, tc.body, employee)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", tc.target, tc.body, rec.Code)
		}
	}
}

func TestListByStatusRequiresStatus(t *testing.T) {
	core := &fakeCore{}
	h := newTestHandler(core)

	rec := do(t, h, http.MethodGet, "/api/v1/appointments", "", employee)
	if rec.Code != http.StatusBadRequest || core.status != "" {
		t.Fatalf("expected 400 without reaching the core, got %d/%q", rec.Code, core.status)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/appointments?status=scheduled", "", employee)
	if rec.Code != http.StatusOK || core.status != model.StatusScheduled {
		t.Fatalf("expected scheduled listing, got %d/%q", rec.Code, core.status)
	}
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %s", rec.Body.String())
	}

	do(t, h, http.MethodGet, "/api/v1/appointments?status=Completed", "", employee)
	if core.status != model.StatusCompleted {
		t.Fatalf("expected completed, got %q", core.status)
	}
}

func TestSuggestionsParsesLocalDate(t *testing.T) {
	core := &fakeCore{}
	rec := do(t, newTestHandler(core), http.MethodGet, "/api/v1/availability/suggestions?date=2030-03-04&duration=30&step=15", "", employee)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if core.gotDur != 30 || core.gotStep != 15 {
		t.Fatalf("unexpected params %d/%d", core.gotDur, core.gotStep)
	}
	if want := time.Date(2030, 3, 4, 3, 0, 0, 0, time.UTC); !core.gotDay.Equal(want) {
		t.Fatalf("expected local midnight %s, got %s", want, core.gotDay)
	}
	var resp suggestionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Starts) != 1 || resp.Starts[0] != "2030-03-04T09:00:00-03:00" {
		t.Fatalf("unexpected starts %v", resp.Starts)
	}

	rec = do(t, newTestHandler(core), http.MethodGet, "/api/v1/availability/suggestions?date=04/03/2030&duration=30", "", employee)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAppointmentPDFDownload(t *testing.T) {
	start := time.Date(2030, 3, 4, 13, 0, 0, 0, time.UTC)
	core := &fakeCore{appt: model.Appointment{
		ID: "appt-1", Status: model.StatusScheduled, Practitioner: "emp-1", Organization: "org-1", Patient: "pat-1",
		StartTime: start, EndTime: start.Add(30 * time.Minute), DurationMinutes: 30, CreatedAt: start.Add(-time.Hour),
	}}
	rec := do(t, newTestHandler(core), http.MethodGet, "/api/v1/appointments/pdf?appointment_id=appt-1", "", employee)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if core.gotID != "appt-1" {
		t.Fatalf("unexpected id %q", core.gotID)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF-") {
		t.Fatal("body is not a pdf")
	}

	core.err = apperr.ErrOwnership
	rec = do(t, newTestHandler(core), http.MethodGet, "/api/v1/appointments/pdf?appointment_id=appt-1", "", employee)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGetAppointment(t *testing.T) {
	core := &fakeCore{appt: model.Appointment{ID: "appt-9", Status: model.StatusCompleted}}
	rec := do(t, newTestHandler(core), http.MethodGet, "/api/v1/appointments/get?appointment_id=appt-9", "", employee)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"completed"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, newTestHandler(core), http.MethodPost, "/api/v1/appointments/get", "", employee); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
