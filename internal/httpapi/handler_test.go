package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/models"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/queue"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/store"
)

type fakeEngine struct {
	checkIn       func(ctx context.Context, input queue.CheckInInput) (queue.CheckInResult, error)
	callNext      func(ctx context.Context, input queue.CallNextInput) (queue.CallNextResult, error)
	markCompleted func(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	markNoShow    func(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	prioritize    func(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	skip          func(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	closeQueue    func(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	snapshot      func(ctx context.Context, key store.QueueKey) (queue.Snapshot, error)
	position      func(ctx context.Context, appointmentID string) (models.Appointment, error)
}

func (f *fakeEngine) CheckIn(ctx context.Context, input queue.CheckInInput) (queue.CheckInResult, error) {
	return f.checkIn(ctx, input)
}

func (f *fakeEngine) CallNext(ctx context.Context, input queue.CallNextInput) (queue.CallNextResult, error) {
	return f.callNext(ctx, input)
}

func (f *fakeEngine) MarkCompleted(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error) {
	return f.markCompleted(ctx, input)
}

func (f *fakeEngine) MarkNoShow(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error) {
	return f.markNoShow(ctx, input)
}

func (f *fakeEngine) Prioritize(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error) {
	return f.prioritize(ctx, input)
}

func (f *fakeEngine) Skip(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error) {
	return f.skip(ctx, input)
}

func (f *fakeEngine) CloseQueue(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error) {
	return f.closeQueue(ctx, input)
}

func (f *fakeEngine) Snapshot(ctx context.Context, key store.QueueKey) (queue.Snapshot, error) {
	return f.snapshot(ctx, key)
}

func (f *fakeEngine) Position(ctx context.Context, appointmentID string) (models.Appointment, error) {
	return f.position(ctx, appointmentID)
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload errorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

func TestCheckInSuccess(t *testing.T) {
	engine := &fakeEngine{
		checkIn: func(ctx context.Context, input queue.CheckInInput) (queue.CheckInResult, error) {
			if input.OrganizationID != "org-1" || input.ServiceID != "svc-1" || input.Date != "2026-08-31" || input.AppointmentID != "appt-1" {
				t.Fatalf("unexpected input: %+v", input)
			}
			return queue.CheckInResult{QueueID: "q-1", AppointmentID: "appt-1", Status: models.StatusCheckedIn, Position: 1, TicketNumber: "Q-001"}, nil
		},
	}
	handler := NewHandler(engine).Routes()

	recorder := postJSON(t, handler, "/api/queues/checkin",
		`{"organization_id":"org-1","service_id":"svc-1","date":"2026-08-31","appointment_id":"appt-1"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", recorder.Code, recorder.Body.String())
	}

	var result queue.CheckInResult
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Position != 1 || result.TicketNumber != "Q-001" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckInValidation(t *testing.T) {
	engine := &fakeEngine{}
	handler := NewHandler(engine).Routes()

	cases := []struct {
		name string
		body string
	}{
		{"missing fields", `{"organization_id":"org-1"}`},
		{"bad date", `{"organization_id":"org-1","service_id":"svc-1","date":"31-08-2026","appointment_id":"a"}`},
		{"bad json", `{`},
		{"unknown field", `{"organization_id":"org-1","service_id":"svc-1","date":"2026-08-31","appointment_id":"a","extra":1}`},
	}
	for _, tt := range cases {
		recorder := postJSON(t, handler, "/api/queues/checkin", tt.body)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tt.name, recorder.Code)
		}
	}
}

func TestCheckInAlreadyQueued(t *testing.T) {
	engine := &fakeEngine{
		checkIn: func(ctx context.Context, input queue.CheckInInput) (queue.CheckInResult, error) {
			return queue.CheckInResult{}, store.ErrAlreadyQueued
		},
	}
	handler := NewHandler(engine).Routes()

	recorder := postJSON(t, handler, "/api/queues/checkin",
		`{"organization_id":"org-1","service_id":"svc-1","date":"2026-08-31","appointment_id":"appt-1"}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
	if code := errorCode(t, recorder); code != "already_queued" {
		t.Fatalf("error code = %s", code)
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	engine := &fakeEngine{
		callNext: func(ctx context.Context, input queue.CallNextInput) (queue.CallNextResult, error) {
			return queue.CallNextResult{}, store.ErrEmptyQueue
		},
	}
	handler := NewHandler(engine).Routes()

	recorder := postJSON(t, handler, "/api/queues/actions/call-next",
		`{"organization_id":"org-1","queue_id":"q-1"}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
	if code := errorCode(t, recorder); code != "queue_empty" {
		t.Fatalf("error code = %s", code)
	}
}

func TestQueueActionRouting(t *testing.T) {
	var called string
	var gotInput queue.ActionInput
	record := func(name string) func(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error) {
		return func(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error) {
			called = name
			gotInput = input
			return queue.ActionResult{QueueID: input.QueueID}, nil
		}
	}
	engine := &fakeEngine{
		markCompleted: record("complete"),
		markNoShow:    record("no-show"),
		prioritize:    record("prioritize"),
		skip:          record("skip"),
		closeQueue:    record("close"),
	}
	handler := NewHandler(engine).Routes()

	cases := []struct {
		action string
		body   string
	}{
		{"complete", `{"organization_id":"org-1","appointment_id":"a"}`},
		{"no-show", `{"organization_id":"org-1","appointment_id":"a"}`},
		{"prioritize", `{"organization_id":"org-1","appointment_id":"a"}`},
		{"skip", `{"organization_id":"org-1","appointment_id":"a","reason":"left"}`},
		{"close", `{"organization_id":"org-1"}`},
	}
	for _, tt := range cases {
		called = ""
		recorder := postJSON(t, handler, "/api/queues/q-42/actions/"+tt.action, tt.body)
		if recorder.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", tt.action, recorder.Code, recorder.Body.String())
		}
		if called != tt.action {
			t.Fatalf("action %s dispatched to %q", tt.action, called)
		}
		if gotInput.QueueID != "q-42" {
			t.Fatalf("%s: queue id = %q", tt.action, gotInput.QueueID)
		}
	}

	recorder := postJSON(t, handler, "/api/queues/q-42/actions/transfer", `{"organization_id":"org-1","appointment_id":"a"}`)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unknown action: status = %d, want 404", recorder.Code)
	}
}

func TestSkipRequiresReason(t *testing.T) {
	engine := &fakeEngine{
		skip: func(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error) {
			t.Fatal("skip must not be called without a reason")
			return queue.ActionResult{}, nil
		},
	}
	handler := NewHandler(engine).Routes()

	recorder := postJSON(t, handler, "/api/queues/q-1/actions/skip", `{"organization_id":"org-1","appointment_id":"a"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestSnapshot(t *testing.T) {
	engine := &fakeEngine{
		snapshot: func(ctx context.Context, key store.QueueKey) (queue.Snapshot, error) {
			if key.OrganizationID != "org-1" || key.ServiceID != "svc-1" || key.Date != "2026-08-31" {
				t.Fatalf("unexpected key: %+v", key)
			}
			return queue.Snapshot{QueueID: "q-1", Waiting: 2, IsActive: true}, nil
		},
	}
	handler := NewHandler(engine).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/queues/snapshot?organization_id=org-1&service_id=svc-1&date=2026-08-31", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", recorder.Code, recorder.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/queues/snapshot?organization_id=org-1", nil)
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestPositionNotFound(t *testing.T) {
	engine := &fakeEngine{
		position: func(ctx context.Context, appointmentID string) (models.Appointment, error) {
			return models.Appointment{}, store.ErrAppointmentNotFound
		},
	}
	handler := NewHandler(engine).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/queues/position?appointment_id=ghost", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}

type fakeSessionStore struct {
	getSession func(ctx context.Context, sessionID string) (store.Session, error)
}

func (f *fakeSessionStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	return f.getSession(ctx, sessionID)
}

func TestAuthMiddleware(t *testing.T) {
	sessions := &fakeSessionStore{
		getSession: func(ctx context.Context, sessionID string) (store.Session, error) {
			if sessionID != "valid-session" {
				return store.Session{}, store.ErrSessionNotFound
			}
			return store.Session{
				SessionID:      sessionID,
				UserID:         "user-1",
				OrganizationID: "org-1",
				Role:           "operator",
				ExpiresAt:      time.Now().Add(time.Hour),
			}, nil
		},
	}
	engine := &fakeEngine{
		callNext: func(ctx context.Context, input queue.CallNextInput) (queue.CallNextResult, error) {
			return queue.CallNextResult{QueueID: input.QueueID}, nil
		},
		checkIn: func(ctx context.Context, input queue.CheckInInput) (queue.CheckInResult, error) {
			return queue.CheckInResult{QueueID: "q-1", Position: 1}, nil
		},
	}
	handler := AuthMiddleware(sessions, NewHandler(engine).Routes())

	// Staff endpoint without a session.
	recorder := postJSON(t, handler, "/api/queues/actions/call-next", `{"organization_id":"org-1","queue_id":"q-1"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("no session: status = %d, want 401", recorder.Code)
	}

	// Invalid session.
	req := httptest.NewRequest(http.MethodPost, "/api/queues/actions/call-next", strings.NewReader(`{"organization_id":"org-1","queue_id":"q-1"}`))
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid session: status = %d, want 401", rec.Code)
	}

	// Valid session, wrong organization.
	req = httptest.NewRequest(http.MethodPost, "/api/queues/actions/call-next", strings.NewReader(`{"organization_id":"org-other","queue_id":"q-1"}`))
	req.Header.Set("Authorization", "Bearer valid-session")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong organization: status = %d, want 403", rec.Code)
	}

	// Valid session, matching organization.
	req = httptest.NewRequest(http.MethodPost, "/api/queues/actions/call-next", strings.NewReader(`{"organization_id":"org-1","queue_id":"q-1"}`))
	req.Header.Set("Authorization", "Bearer valid-session")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid session: status = %d body=%s", rec.Code, rec.Body.String())
	}

	// Check-in stays public.
	recorder = postJSON(t, handler, "/api/queues/checkin", `{"organization_id":"org-1","service_id":"svc-1","date":"2026-08-31","appointment_id":"a"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("public check-in: status = %d", recorder.Code)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 60, IPBurst: 2})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, recorder.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("burst exceeded: status = %d, want 429", recorder.Code)
	}
}
