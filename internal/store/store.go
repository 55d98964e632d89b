package store

import (
	"context"
	"time"

	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/models"
)

// QueueKey is the natural key of a queue. At most one active queue exists
// per key at any time.
type QueueKey struct {
	OrganizationID string
	ServiceID      string
	Date           string
}

// AppointmentUpdate names the fields a queue transition may write on the
// appointment projection. Nil pointers leave the column untouched;
// ClearPosition removes queue_position entirely (terminal statuses).
type AppointmentUpdate struct {
	Status             *string
	QueuePosition      *int
	ClearPosition      bool
	TicketNumber       *string
	Prioritized        *bool
	PrioritizedAt      *time.Time
	CheckedInAt        *time.Time
	NoShowAt           *time.Time
	CancelledAt        *time.Time
	CompletedAt        *time.Time
	CancellationReason *string
}

// QueueRepository stores whole queue aggregates. ReplaceQueue is
// compare-and-swap on Version: it fails with ErrConflict when the aggregate
// changed between read and write, and with ErrQueueNotFound when the queue
// row is gone.
type QueueRepository interface {
	GetQueue(ctx context.Context, key QueueKey) (models.Queue, bool, error)
	GetQueueByID(ctx context.Context, queueID string) (models.Queue, bool, error)
	CreateQueue(ctx context.Context, queue models.Queue) (models.Queue, error)
	ReplaceQueue(ctx context.Context, queue models.Queue) (models.Queue, error)
}

// AppointmentStore is the external appointment aggregate, referenced but not
// owned by the engine. SetQueuePositions is the reposition fan-out applied
// after every queue mutation.
type AppointmentStore interface {
	GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, bool, error)
	UpdateAppointment(ctx context.Context, appointmentID string, update AppointmentUpdate) error
	SetQueuePositions(ctx context.Context, positions map[string]int) error
}

// CustomerStore tracks lifetime no-show counts on the customer record.
type CustomerStore interface {
	IncrementNoShowCount(ctx context.Context, customerID string) (int, error)
}

type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

// Store is the full surface the service binary wires up.
type Store interface {
	QueueRepository
	AppointmentStore
	CustomerStore
	SessionStore

	// ReconcilePositions rewrites every waiting appointment's queue_position
	// from the authoritative aggregate order and returns how many rows it
	// touched. It is the repair mechanism for the eventual-consistency
	// window between the queue write and the projection write.
	ReconcilePositions(ctx context.Context) (int, error)
}

type Session struct {
	SessionID      string
	UserID         string
	OrganizationID string
	Role           string
	ExpiresAt      time.Time
}
