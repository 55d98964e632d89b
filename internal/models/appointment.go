package models

import "time"

type Appointment struct {
	AppointmentID      string     `json:"appointment_id"`
	OrganizationID     string     `json:"organization_id,omitempty"`
	ServiceID          string     `json:"service_id,omitempty"`
	CustomerID         string     `json:"customer_id,omitempty"`
	Date               string     `json:"date,omitempty"`
	Status             string     `json:"status"`
	QueuePosition      *int       `json:"queue_position,omitempty"`
	TicketNumber       string     `json:"ticket_number,omitempty"`
	Prioritized        bool       `json:"prioritized,omitempty"`
	PrioritizedAt      *time.Time `json:"prioritized_at,omitempty"`
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty"`
	NoShowAt           *time.Time `json:"no_show_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

const (
	StatusBooked     = "booked"
	StatusCheckedIn  = "checked_in"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Terminal statuses never transition again; queue_position is absent for them.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}
