package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/models"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/notify"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TicketCounter issues display ticket numbers; check-in falls back to the
// queue position when the counter is unavailable.
type TicketCounter interface {
	Next(ctx context.Context, organizationID, serviceID, date string) (int64, error)
}

// Engine applies queue lifecycle transitions. Every operation is a
// read-modify-write over one queue aggregate: load, validate, compute the
// new state, replace with compare-and-swap, then update the appointment
// projection. On a write conflict the whole operation restarts from a fresh
// read, up to maxAttempts.
type Engine struct {
	queues       store.QueueRepository
	appointments store.AppointmentStore
	customers    store.CustomerStore
	sink         notify.Sink
	tickets      TicketCounter
	maxAttempts  int
	noShowLimit  int
	tracer       trace.Tracer
}

type Options struct {
	// MaxAttempts bounds the optimistic-concurrency retry loop.
	MaxAttempts int
	// NoShowLimit caps no-show requeues per token per day; the limit-th
	// no-show cancels the token instead of requeueing it. Zero disables
	// the cap.
	NoShowLimit int
}

func New(queues store.QueueRepository, appointments store.AppointmentStore, customers store.CustomerStore, sink notify.Sink, tickets TicketCounter, options Options) *Engine {
	attempts := options.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Engine{
		queues:       queues,
		appointments: appointments,
		customers:    customers,
		sink:         sink,
		tickets:      tickets,
		maxAttempts:  attempts,
		noShowLimit:  options.NoShowLimit,
		tracer:       otel.Tracer("queue-engine"),
	}
}

type CheckInInput struct {
	RequestID      string
	OrganizationID string
	ServiceID      string
	Date           string
	AppointmentID  string
}

type CallNextInput struct {
	RequestID      string
	OrganizationID string
	QueueID        string
}

type ActionInput struct {
	RequestID      string
	OrganizationID string
	QueueID        string
	AppointmentID  string
	Reason         string
}

type CheckInResult struct {
	QueueID       string `json:"queue_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Position      int    `json:"position"`
	TicketNumber  string `json:"ticket_number,omitempty"`
}

type CallNextResult struct {
	QueueID       string `json:"queue_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Waiting       int    `json:"waiting"`
}

type ActionResult struct {
	QueueID       string `json:"queue_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Status        string `json:"status,omitempty"`
	Position      *int   `json:"position,omitempty"`
	Waiting       int    `json:"waiting"`
	TotalServed   int    `json:"total_served"`
}

type Snapshot struct {
	QueueID        string         `json:"queue_id"`
	OrganizationID string         `json:"organization_id"`
	ServiceID      string         `json:"service_id"`
	Date           string         `json:"date"`
	CurrentToken   string         `json:"current_token,omitempty"`
	Tokens         []models.Token `json:"tokens"`
	Waiting        int            `json:"waiting"`
	TotalServed    int            `json:"total_served"`
	NoShows        int            `json:"no_shows"`
	IsActive       bool           `json:"is_active"`
}

// CheckIn appends the appointment to the back of the waiting line, lazily
// creating the day's queue on first use.
func (e *Engine) CheckIn(ctx context.Context, input CheckInInput) (CheckInResult, error) {
	ctx, span := e.tracer.Start(ctx, "queue.CheckIn")
	defer span.End()

	appt, found, err := e.appointments.GetAppointment(ctx, input.AppointmentID)
	if err != nil {
		return CheckInResult{}, err
	}
	if !found {
		return CheckInResult{}, store.ErrAppointmentNotFound
	}
	if !ValidTransition("check_in", appt.Status) {
		if appt.Status == models.StatusCheckedIn || appt.Status == models.StatusInProgress {
			return CheckInResult{}, store.ErrAlreadyQueued
		}
		return CheckInResult{}, fmt.Errorf("%w: check_in from %s", store.ErrInvalidTransition, appt.Status)
	}

	key := store.QueueKey{OrganizationID: input.OrganizationID, ServiceID: input.ServiceID, Date: input.Date}
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		current, exists, err := e.queues.GetQueue(ctx, key)
		if err != nil {
			return CheckInResult{}, err
		}

		var queue models.Queue
		if !exists {
			now := time.Now().UTC()
			fresh := models.Queue{
				QueueID:        uuid.NewString(),
				OrganizationID: key.OrganizationID,
				ServiceID:      key.ServiceID,
				Date:           key.Date,
				IsActive:       true,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			fresh.Append(input.AppointmentID)
			queue, err = e.queues.CreateQueue(ctx, fresh)
			if errors.Is(err, store.ErrConflict) {
				// Lost the creation race; retry against the winner's queue.
				continue
			}
			if err != nil {
				return CheckInResult{}, err
			}
		} else {
			if !current.IsActive {
				return CheckInResult{}, store.ErrQueueNotFound
			}
			if current.Contains(input.AppointmentID) {
				return CheckInResult{}, store.ErrAlreadyQueued
			}
			current.Append(input.AppointmentID)
			queue, err = e.queues.ReplaceQueue(ctx, current)
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				return CheckInResult{}, err
			}
		}

		position := len(queue.ActiveTokens)
		ticketNumber := e.ticketNumber(ctx, key, position)
		now := time.Now().UTC()
		status := models.StatusCheckedIn
		update := store.AppointmentUpdate{
			Status:        &status,
			QueuePosition: &position,
			CheckedInAt:   &now,
		}
		if ticketNumber != "" {
			update.TicketNumber = &ticketNumber
		}
		e.updateProjection(ctx, input.AppointmentID, update)
		e.applyPositions(ctx, queue)

		return CheckInResult{
			QueueID:       queue.QueueID,
			AppointmentID: input.AppointmentID,
			Status:        status,
			Position:      position,
			TicketNumber:  ticketNumber,
		}, nil
	}
	return CheckInResult{}, store.ErrConflict
}

// CallNext pops the head of the waiting line into the serving slot and
// notifies the called customer.
func (e *Engine) CallNext(ctx context.Context, input CallNextInput) (CallNextResult, error) {
	ctx, span := e.tracer.Start(ctx, "queue.CallNext")
	defer span.End()

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		queue, err := e.loadQueue(ctx, input.QueueID, input.OrganizationID)
		if err != nil {
			return CallNextResult{}, err
		}
		if queue.CurrentToken != "" {
			return CallNextResult{}, store.ErrAlreadyServing
		}
		head, ok := queue.PeekHead()
		if !ok {
			return CallNextResult{}, store.ErrEmptyQueue
		}

		appt, found, err := e.appointments.GetAppointment(ctx, head)
		if err != nil {
			return CallNextResult{}, err
		}
		if found && !ValidTransition("call_next", appt.Status) {
			return CallNextResult{}, fmt.Errorf("%w: call_next from %s", store.ErrInvalidTransition, appt.Status)
		}

		queue.PopHead()
		queue.CurrentToken = head
		replaced, err := e.queues.ReplaceQueue(ctx, queue)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return CallNextResult{}, err
		}

		status := models.StatusInProgress
		serving := 0
		e.updateProjection(ctx, head, store.AppointmentUpdate{
			Status:        &status,
			QueuePosition: &serving,
		})
		e.applyPositions(ctx, replaced)

		e.dispatch(notify.New(appt.CustomerID, replaced.OrganizationID, notify.KindYourTurn, map[string]string{
			"ticket_number":  appt.TicketNumber,
			"appointment_id": head,
		}))

		return CallNextResult{
			QueueID:       replaced.QueueID,
			AppointmentID: head,
			Status:        status,
			Waiting:       len(replaced.ActiveTokens),
		}, nil
	}
	return CallNextResult{}, store.ErrConflict
}

// MarkCompleted finishes service for the token currently being served. The
// appointment must be the queue's current token.
func (e *Engine) MarkCompleted(ctx context.Context, input ActionInput) (ActionResult, error) {
	ctx, span := e.tracer.Start(ctx, "queue.MarkCompleted")
	defer span.End()

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		queue, err := e.loadQueue(ctx, input.QueueID, input.OrganizationID)
		if err != nil {
			return ActionResult{}, err
		}
		if queue.CurrentToken != input.AppointmentID {
			return ActionResult{}, store.ErrNotServing
		}

		queue.CurrentToken = ""
		queue.CompletedTokens = append(queue.CompletedTokens, input.AppointmentID)
		queue.TotalServed++
		replaced, err := e.queues.ReplaceQueue(ctx, queue)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return ActionResult{}, err
		}

		now := time.Now().UTC()
		status := models.StatusCompleted
		e.updateProjection(ctx, input.AppointmentID, store.AppointmentUpdate{
			Status:        &status,
			ClearPosition: true,
			CompletedAt:   &now,
		})
		e.applyPositions(ctx, replaced)

		return ActionResult{
			QueueID:       replaced.QueueID,
			AppointmentID: input.AppointmentID,
			Status:        status,
			Waiting:       len(replaced.ActiveTokens),
			TotalServed:   replaced.TotalServed,
		}, nil
	}
	return ActionResult{}, store.ErrConflict
}

// MarkNoShow demotes the token to the back of the line (second-chance
// policy). When the per-day no-show cap is reached the token is cancelled
// terminally instead. The customer's lifetime no-show counter is always
// incremented.
func (e *Engine) MarkNoShow(ctx context.Context, input ActionInput) (ActionResult, error) {
	ctx, span := e.tracer.Start(ctx, "queue.MarkNoShow")
	defer span.End()

	appt, found, err := e.appointments.GetAppointment(ctx, input.AppointmentID)
	if err != nil {
		return ActionResult{}, err
	}
	if !found {
		return ActionResult{}, store.ErrAppointmentNotFound
	}
	if !ValidTransition("no_show", appt.Status) {
		return ActionResult{}, fmt.Errorf("%w: no_show from %s", store.ErrInvalidTransition, appt.Status)
	}

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		queue, err := e.loadQueue(ctx, input.QueueID, input.OrganizationID)
		if err != nil {
			return ActionResult{}, err
		}
		if !queue.Contains(input.AppointmentID) {
			return ActionResult{}, fmt.Errorf("%w: appointment not in queue", store.ErrInvalidTransition)
		}

		queue.Remove(input.AppointmentID)
		queue.MarkNoShow(input.AppointmentID)
		capped := e.noShowLimit > 0 && queue.NoShowCount(input.AppointmentID) >= e.noShowLimit
		position := 0
		if !capped {
			position = queue.Append(input.AppointmentID)
		}
		replaced, err := e.queues.ReplaceQueue(ctx, queue)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return ActionResult{}, err
		}

		now := time.Now().UTC()
		result := ActionResult{
			QueueID:       replaced.QueueID,
			AppointmentID: input.AppointmentID,
			Waiting:       len(replaced.ActiveTokens),
			TotalServed:   replaced.TotalServed,
		}
		if capped {
			status := models.StatusNoShow
			reason := "no-show limit reached"
			e.updateProjection(ctx, input.AppointmentID, store.AppointmentUpdate{
				Status:             &status,
				ClearPosition:      true,
				NoShowAt:           &now,
				CancelledAt:        &now,
				CancellationReason: &reason,
			})
			result.Status = status
			e.dispatch(notify.New(appt.CustomerID, replaced.OrganizationID, notify.KindCancelled, map[string]string{
				"ticket_number": appt.TicketNumber,
			}))
		} else {
			status := models.StatusCheckedIn
			e.updateProjection(ctx, input.AppointmentID, store.AppointmentUpdate{
				Status:        &status,
				QueuePosition: &position,
				NoShowAt:      &now,
			})
			result.Status = status
			result.Position = &position
			e.dispatch(notify.New(appt.CustomerID, replaced.OrganizationID, notify.KindRequeued, map[string]string{
				"ticket_number": appt.TicketNumber,
				"position":      strconv.Itoa(position),
			}))
		}

		if appt.CustomerID != "" {
			if _, err := e.customers.IncrementNoShowCount(ctx, appt.CustomerID); err != nil {
				log.Printf("no-show counter increment failed customer=%s: %v", appt.CustomerID, err)
			}
		}
		e.applyPositions(ctx, replaced)

		return result, nil
	}
	return ActionResult{}, store.ErrConflict
}

// Prioritize moves a waiting token to the front of the line. Idempotent for
// a token already at the front.
func (e *Engine) Prioritize(ctx context.Context, input ActionInput) (ActionResult, error) {
	ctx, span := e.tracer.Start(ctx, "queue.Prioritize")
	defer span.End()

	appt, found, err := e.appointments.GetAppointment(ctx, input.AppointmentID)
	if err != nil {
		return ActionResult{}, err
	}
	if !found {
		return ActionResult{}, store.ErrAppointmentNotFound
	}
	if !ValidTransition("prioritize", appt.Status) {
		return ActionResult{}, fmt.Errorf("%w: prioritize from %s", store.ErrInvalidTransition, appt.Status)
	}

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		queue, err := e.loadQueue(ctx, input.QueueID, input.OrganizationID)
		if err != nil {
			return ActionResult{}, err
		}
		if !queue.Promote(input.AppointmentID) {
			return ActionResult{}, fmt.Errorf("%w: appointment not in waiting line", store.ErrInvalidTransition)
		}
		replaced, err := e.queues.ReplaceQueue(ctx, queue)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return ActionResult{}, err
		}

		now := time.Now().UTC()
		prioritized := true
		front := 1
		e.updateProjection(ctx, input.AppointmentID, store.AppointmentUpdate{
			QueuePosition: &front,
			Prioritized:   &prioritized,
			PrioritizedAt: &now,
		})
		e.applyPositions(ctx, replaced)

		return ActionResult{
			QueueID:       replaced.QueueID,
			AppointmentID: input.AppointmentID,
			Status:        appt.Status,
			Position:      &front,
			Waiting:       len(replaced.ActiveTokens),
			TotalServed:   replaced.TotalServed,
		}, nil
	}
	return ActionResult{}, store.ErrConflict
}

// Skip removes the token from the queue permanently and cancels the
// appointment. This is the only operation that exits the queue without
// completing.
func (e *Engine) Skip(ctx context.Context, input ActionInput) (ActionResult, error) {
	ctx, span := e.tracer.Start(ctx, "queue.Skip")
	defer span.End()

	appt, found, err := e.appointments.GetAppointment(ctx, input.AppointmentID)
	if err != nil {
		return ActionResult{}, err
	}
	if !found {
		return ActionResult{}, store.ErrAppointmentNotFound
	}
	if !ValidTransition("skip", appt.Status) {
		return ActionResult{}, fmt.Errorf("%w: skip from %s", store.ErrInvalidTransition, appt.Status)
	}

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		queue, err := e.loadQueue(ctx, input.QueueID, input.OrganizationID)
		if err != nil {
			return ActionResult{}, err
		}
		if !queue.Remove(input.AppointmentID) {
			return ActionResult{}, fmt.Errorf("%w: appointment not in queue", store.ErrInvalidTransition)
		}
		replaced, err := e.queues.ReplaceQueue(ctx, queue)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return ActionResult{}, err
		}

		now := time.Now().UTC()
		status := models.StatusCancelled
		reason := input.Reason
		e.updateProjection(ctx, input.AppointmentID, store.AppointmentUpdate{
			Status:             &status,
			ClearPosition:      true,
			CancelledAt:        &now,
			CancellationReason: &reason,
		})
		e.applyPositions(ctx, replaced)

		e.dispatch(notify.New(appt.CustomerID, replaced.OrganizationID, notify.KindCancelled, map[string]string{
			"ticket_number": appt.TicketNumber,
		}))

		return ActionResult{
			QueueID:       replaced.QueueID,
			AppointmentID: input.AppointmentID,
			Status:        status,
			Waiting:       len(replaced.ActiveTokens),
			TotalServed:   replaced.TotalServed,
		}, nil
	}
	return ActionResult{}, store.ErrConflict
}

// CloseQueue deactivates a queue at end of day. Queues are never deleted;
// operations against a closed queue fail as not found.
func (e *Engine) CloseQueue(ctx context.Context, input ActionInput) (ActionResult, error) {
	ctx, span := e.tracer.Start(ctx, "queue.CloseQueue")
	defer span.End()

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		queue, err := e.loadQueue(ctx, input.QueueID, input.OrganizationID)
		if err != nil {
			return ActionResult{}, err
		}
		queue.IsActive = false
		replaced, err := e.queues.ReplaceQueue(ctx, queue)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return ActionResult{}, err
		}
		return ActionResult{
			QueueID:     replaced.QueueID,
			Waiting:     len(replaced.ActiveTokens),
			TotalServed: replaced.TotalServed,
		}, nil
	}
	return ActionResult{}, store.ErrConflict
}

// Snapshot returns the current waiting line for operator and display UIs.
func (e *Engine) Snapshot(ctx context.Context, key store.QueueKey) (Snapshot, error) {
	ctx, span := e.tracer.Start(ctx, "queue.Snapshot")
	defer span.End()

	queue, found, err := e.queues.GetQueue(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	if !found {
		return Snapshot{}, store.ErrQueueNotFound
	}

	tokens := make([]models.Token, 0, len(queue.ActiveTokens))
	for i, id := range queue.ActiveTokens {
		tokens = append(tokens, models.Token{AppointmentID: id, Position: i + 1})
	}
	return Snapshot{
		QueueID:        queue.QueueID,
		OrganizationID: queue.OrganizationID,
		ServiceID:      queue.ServiceID,
		Date:           queue.Date,
		CurrentToken:   queue.CurrentToken,
		Tokens:         tokens,
		Waiting:        len(queue.ActiveTokens),
		TotalServed:    queue.TotalServed,
		NoShows:        len(queue.NoShowTokens),
		IsActive:       queue.IsActive,
	}, nil
}

// Position returns the appointment projection for customer-facing lookups.
func (e *Engine) Position(ctx context.Context, appointmentID string) (models.Appointment, error) {
	appt, found, err := e.appointments.GetAppointment(ctx, appointmentID)
	if err != nil {
		return models.Appointment{}, err
	}
	if !found {
		return models.Appointment{}, store.ErrAppointmentNotFound
	}
	return appt, nil
}

func (e *Engine) loadQueue(ctx context.Context, queueID, organizationID string) (models.Queue, error) {
	queue, found, err := e.queues.GetQueueByID(ctx, queueID)
	if err != nil {
		return models.Queue{}, err
	}
	if !found || !queue.IsActive || queue.OrganizationID != organizationID {
		return models.Queue{}, store.ErrQueueNotFound
	}
	return queue, nil
}

// updateProjection writes the affected appointment's denormalized fields
// after the queue write committed. The queue is the source of truth for
// order; a failed projection write is logged and left to the
// reconciliation sweep.
func (e *Engine) updateProjection(ctx context.Context, appointmentID string, update store.AppointmentUpdate) {
	if err := e.appointments.UpdateAppointment(ctx, appointmentID, update); err != nil {
		log.Printf("appointment projection update failed id=%s: %v", appointmentID, err)
	}
}

// applyPositions recomputes queue_position for every remaining token so
// that the projection read by consumers always matches index+1 in the
// aggregate's waiting line.
func (e *Engine) applyPositions(ctx context.Context, queue models.Queue) {
	positions := queue.Positions()
	if len(positions) == 0 {
		return
	}
	if err := e.appointments.SetQueuePositions(ctx, positions); err != nil {
		log.Printf("position fan-out failed queue=%s: %v", queue.QueueID, err)
	}
}

func (e *Engine) dispatch(note notify.Notification) {
	if e.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.sink.Notify(ctx, note); err != nil {
			log.Printf("notify failed kind=%s customer=%s: %v", note.Kind, note.CustomerID, err)
		}
	}()
}

func (e *Engine) ticketNumber(ctx context.Context, key store.QueueKey, fallback int) string {
	seq := int64(fallback)
	if e.tickets != nil {
		next, err := e.tickets.Next(ctx, key.OrganizationID, key.ServiceID, key.Date)
		if err != nil {
			log.Printf("ticket number fallback org=%s service=%s: %v", key.OrganizationID, key.ServiceID, err)
		} else {
			seq = next
		}
	}
	return fmt.Sprintf("Q-%03d", seq)
}
