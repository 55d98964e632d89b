package models

import "time"

// Queue is the waiting line for one (organization, service, date) key.
// ActiveTokens order is the source of truth for service order; appointment
// queue_position values are a projection recomputed after every mutation.
type Queue struct {
	QueueID         string    `json:"queue_id"`
	OrganizationID  string    `json:"organization_id"`
	ServiceID       string    `json:"service_id"`
	Date            string    `json:"date"`
	ActiveTokens    []string  `json:"active_tokens"`
	CurrentToken    string    `json:"current_token,omitempty"`
	CompletedTokens []string  `json:"completed_tokens"`
	NoShowTokens    []string  `json:"no_show_tokens"`
	TotalServed     int       `json:"total_served"`
	IsActive        bool      `json:"is_active"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Token is the read-model view of one waiting entry.
type Token struct {
	AppointmentID string `json:"appointment_id"`
	Position      int    `json:"position"`
}

const DateFormat = "2006-01-02"

func (q *Queue) Contains(appointmentID string) bool {
	if q.CurrentToken == appointmentID {
		return true
	}
	return indexOf(q.ActiveTokens, appointmentID) >= 0
}

// Append adds the token to the back of the waiting line and returns its
// 1-based position. The caller must have checked Contains first.
func (q *Queue) Append(appointmentID string) int {
	q.ActiveTokens = append(q.ActiveTokens, appointmentID)
	return len(q.ActiveTokens)
}

// PeekHead returns the next token to be served without removing it.
func (q *Queue) PeekHead() (string, bool) {
	if len(q.ActiveTokens) == 0 {
		return "", false
	}
	return q.ActiveTokens[0], true
}

// PopHead removes and returns the head of the waiting line.
func (q *Queue) PopHead() (string, bool) {
	if len(q.ActiveTokens) == 0 {
		return "", false
	}
	head := q.ActiveTokens[0]
	q.ActiveTokens = append([]string{}, q.ActiveTokens[1:]...)
	return head, true
}

// Remove deletes the token from the waiting line or clears the serving slot.
// Relative order of the remaining tokens is preserved.
func (q *Queue) Remove(appointmentID string) bool {
	if q.CurrentToken == appointmentID {
		q.CurrentToken = ""
		return true
	}
	idx := indexOf(q.ActiveTokens, appointmentID)
	if idx < 0 {
		return false
	}
	q.ActiveTokens = append(q.ActiveTokens[:idx:idx], q.ActiveTokens[idx+1:]...)
	return true
}

// Promote moves a waiting token to the front of the line. Promoting the
// token already at the front is a no-op.
func (q *Queue) Promote(appointmentID string) bool {
	idx := indexOf(q.ActiveTokens, appointmentID)
	if idx < 0 {
		return false
	}
	if idx == 0 {
		return true
	}
	rest := append(q.ActiveTokens[:idx:idx], q.ActiveTokens[idx+1:]...)
	q.ActiveTokens = append([]string{appointmentID}, rest...)
	return true
}

// MarkNoShow records the no-show occurrence. It does not requeue; the engine
// decides between requeue and terminal cancellation.
func (q *Queue) MarkNoShow(appointmentID string) {
	q.NoShowTokens = append(q.NoShowTokens, appointmentID)
}

// NoShowCount returns how many times the token has no-showed on this queue.
func (q *Queue) NoShowCount(appointmentID string) int {
	count := 0
	for _, id := range q.NoShowTokens {
		if id == appointmentID {
			count++
		}
	}
	return count
}

// Positions maps every waiting token to its 1-based position; the serving
// token maps to 0.
func (q *Queue) Positions() map[string]int {
	positions := make(map[string]int, len(q.ActiveTokens)+1)
	for i, id := range q.ActiveTokens {
		positions[id] = i + 1
	}
	if q.CurrentToken != "" {
		positions[q.CurrentToken] = 0
	}
	return positions
}

func indexOf(tokens []string, appointmentID string) int {
	for i, id := range tokens {
		if id == appointmentID {
			return i
		}
	}
	return -1
}
