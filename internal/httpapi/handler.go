package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/models"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/queue"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/store"
)

// QueueEngine is what the handler needs from the engine; tests substitute a
// fake.
type QueueEngine interface {
	CheckIn(ctx context.Context, input queue.CheckInInput) (queue.CheckInResult, error)
	CallNext(ctx context.Context, input queue.CallNextInput) (queue.CallNextResult, error)
	MarkCompleted(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	MarkNoShow(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	Prioritize(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	Skip(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	CloseQueue(ctx context.Context, input queue.ActionInput) (queue.ActionResult, error)
	Snapshot(ctx context.Context, key store.QueueKey) (queue.Snapshot, error)
	Position(ctx context.Context, appointmentID string) (models.Appointment, error)
}

type Handler struct {
	engine QueueEngine
}

func NewHandler(engine QueueEngine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/queues/checkin", h.handleCheckIn)
	mux.HandleFunc("/api/queues/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/queues/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/queues/position", h.handlePosition)
	mux.HandleFunc("/api/queues/", h.handleQueueActions)
	return mux
}

type checkInRequest struct {
	RequestID      string `json:"request_id"`
	OrganizationID string `json:"organization_id"`
	ServiceID      string `json:"service_id"`
	Date           string `json:"date"`
	AppointmentID  string `json:"appointment_id"`
}

type callNextRequest struct {
	RequestID      string `json:"request_id"`
	OrganizationID string `json:"organization_id"`
	QueueID        string `json:"queue_id"`
}

type queueActionRequest struct {
	RequestID      string `json:"request_id"`
	OrganizationID string `json:"organization_id"`
	AppointmentID  string `json:"appointment_id"`
	Reason         string `json:"reason"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req checkInRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Date = strings.TrimSpace(req.Date)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)

	if req.OrganizationID == "" || req.ServiceID == "" || req.Date == "" || req.AppointmentID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "organization_id, service_id, date, and appointment_id are required")
		return
	}
	if !isValidDate(req.Date) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	result, err := h.engine.CheckIn(r.Context(), queue.CheckInInput{
		RequestID:      req.RequestID,
		OrganizationID: req.OrganizationID,
		ServiceID:      req.ServiceID,
		Date:           req.Date,
		AppointmentID:  req.AppointmentID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.QueueID = strings.TrimSpace(req.QueueID)

	if req.OrganizationID == "" || req.QueueID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "organization_id and queue_id are required")
		return
	}
	if !requireOrganization(w, r, req.RequestID, req.OrganizationID) {
		return
	}

	result, err := h.engine.CallNext(r.Context(), queue.CallNextInput{
		RequestID:      req.RequestID,
		OrganizationID: req.OrganizationID,
		QueueID:        req.QueueID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	organizationID := strings.TrimSpace(r.URL.Query().Get("organization_id"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if organizationID == "" || serviceID == "" || date == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "organization_id, service_id, and date are required")
		return
	}
	if !isValidDate(date) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	if !requireOrganization(w, r, "", organizationID) {
		return
	}

	snapshot, err := h.engine.Snapshot(r.Context(), store.QueueKey{
		OrganizationID: organizationID,
		ServiceID:      serviceID,
		Date:           date,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "appointment_id is required")
		return
	}

	appt, err := h.engine.Position(r.Context(), appointmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) handleQueueActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/queues/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	queueID := parts[0]
	action := parts[2]

	var req queueActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)

	if req.OrganizationID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "organization_id is required")
		return
	}
	if action != "close" && req.AppointmentID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "appointment_id is required")
		return
	}
	if !requireOrganization(w, r, req.RequestID, req.OrganizationID) {
		return
	}

	input := queue.ActionInput{
		RequestID:      req.RequestID,
		OrganizationID: req.OrganizationID,
		QueueID:        queueID,
		AppointmentID:  req.AppointmentID,
		Reason:         req.Reason,
	}

	var result queue.ActionResult
	var err error
	switch action {
	case "complete":
		result, err = h.engine.MarkCompleted(r.Context(), input)
	case "no-show":
		result, err = h.engine.MarkNoShow(r.Context(), input)
	case "prioritize":
		result, err = h.engine.Prioritize(r.Context(), input)
	case "skip":
		if input.Reason == "" {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "reason is required for skip")
			return
		}
		result, err = h.engine.Skip(r.Context(), input)
	case "close":
		result, err = h.engine.CloseQueue(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func isValidDate(value string) bool {
	_, err := time.Parse(models.DateFormat, value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrQueueNotFound):
		return http.StatusNotFound, "queue_not_found", "queue not found"
	case errors.Is(err, store.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found", "appointment not found"
	case errors.Is(err, store.ErrCustomerNotFound):
		return http.StatusNotFound, "customer_not_found", "customer not found"
	case errors.Is(err, store.ErrAlreadyQueued):
		return http.StatusConflict, "already_queued", "appointment is already in the queue"
	case errors.Is(err, store.ErrEmptyQueue):
		return http.StatusConflict, "queue_empty", "no appointments waiting"
	case errors.Is(err, store.ErrAlreadyServing):
		return http.StatusConflict, "already_serving", "finish the current appointment first"
	case errors.Is(err, store.ErrNotServing):
		return http.StatusConflict, "not_serving", "appointment is not being served"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "appointment status does not allow this action"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "queue changed concurrently, retry the request"
	case errors.Is(err, store.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable", "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
