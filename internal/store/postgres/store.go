package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/models"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Store persists queue aggregates as single rows with a version column.
// ReplaceQueue compares the version in the same UPDATE that bumps it, which
// is what makes the engine's read-modify-write loop safe across replicas.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const queueColumns = "queue_id, organization_id, service_id, date, current_token, active_tokens, completed_tokens, no_show_tokens, total_served, is_active, version, created_at, updated_at"

func (s *Store) GetQueue(ctx context.Context, key store.QueueKey) (models.Queue, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE organization_id = $1 AND service_id = $2 AND date = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, key.OrganizationID, key.ServiceID, key.Date)
	queue, err := scanQueue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Queue{}, false, nil
	}
	if err != nil {
		return models.Queue{}, false, err
	}
	return queue, true, nil
}

func (s *Store) GetQueueByID(ctx context.Context, queueID string) (models.Queue, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE queue_id = $1
	`, queueID)
	queue, err := scanQueue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Queue{}, false, nil
	}
	if err != nil {
		return models.Queue{}, false, err
	}
	return queue, true, nil
}

func (s *Store) CreateQueue(ctx context.Context, queue models.Queue) (models.Queue, error) {
	active, completed, noShow, err := encodeTokenLists(queue)
	if err != nil {
		return models.Queue{}, err
	}
	now := time.Now().UTC()
	if queue.CreatedAt.IsZero() {
		queue.CreatedAt = now
	}
	queue.UpdatedAt = now
	queue.Version = 1

	_, err = s.pool.Exec(ctx, `
		INSERT INTO queues (`+queueColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, queue.QueueID, queue.OrganizationID, queue.ServiceID, queue.Date,
		nullIfEmpty(queue.CurrentToken), active, completed, noShow,
		queue.TotalServed, queue.IsActive, queue.Version, queue.CreatedAt, queue.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Another writer created the day's queue first.
			return models.Queue{}, store.ErrConflict
		}
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *Store) ReplaceQueue(ctx context.Context, queue models.Queue) (models.Queue, error) {
	active, completed, noShow, err := encodeTokenLists(queue)
	if err != nil {
		return models.Queue{}, err
	}
	now := time.Now().UTC()

	var version int64
	row := s.pool.QueryRow(ctx, `
		UPDATE queues
		SET current_token = $1,
			active_tokens = $2,
			completed_tokens = $3,
			no_show_tokens = $4,
			total_served = $5,
			is_active = $6,
			version = version + 1,
			updated_at = $7
		WHERE queue_id = $8 AND version = $9
		RETURNING version
	`, nullIfEmpty(queue.CurrentToken), active, completed, noShow,
		queue.TotalServed, queue.IsActive, now, queue.QueueID, queue.Version)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			probe := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queues WHERE queue_id = $1)`, queue.QueueID)
			if err := probe.Scan(&exists); err != nil {
				return models.Queue{}, err
			}
			if !exists {
				return models.Queue{}, store.ErrQueueNotFound
			}
			return models.Queue{}, store.ErrConflict
		}
		return models.Queue{}, err
	}
	queue.Version = version
	queue.UpdatedAt = now
	return queue, nil
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, bool, error) {
	var appt models.Appointment
	var customerIDNull sql.NullString
	var positionNull sql.NullInt64
	var ticketNull sql.NullString
	var prioritizedAtNull sql.NullTime
	var checkedInAtNull sql.NullTime
	var noShowAtNull sql.NullTime
	var cancelledAtNull sql.NullTime
	var completedAtNull sql.NullTime
	var reasonNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT appointment_id, organization_id, service_id, customer_id, date, status,
			queue_position, ticket_number, prioritized, prioritized_at,
			checked_in_at, no_show_at, cancelled_at, completed_at, cancellation_reason
		FROM appointments
		WHERE appointment_id = $1
	`, appointmentID)
	if err := row.Scan(&appt.AppointmentID, &appt.OrganizationID, &appt.ServiceID, &customerIDNull, &appt.Date, &appt.Status,
		&positionNull, &ticketNull, &appt.Prioritized, &prioritizedAtNull,
		&checkedInAtNull, &noShowAtNull, &cancelledAtNull, &completedAtNull, &reasonNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, false, nil
		}
		return models.Appointment{}, false, err
	}
	if customerIDNull.Valid {
		appt.CustomerID = customerIDNull.String
	}
	if positionNull.Valid {
		pos := int(positionNull.Int64)
		appt.QueuePosition = &pos
	}
	if ticketNull.Valid {
		appt.TicketNumber = ticketNull.String
	}
	if reasonNull.Valid {
		appt.CancellationReason = reasonNull.String
	}
	appt.PrioritizedAt = nullTimePtr(prioritizedAtNull)
	appt.CheckedInAt = nullTimePtr(checkedInAtNull)
	appt.NoShowAt = nullTimePtr(noShowAtNull)
	appt.CancelledAt = nullTimePtr(cancelledAtNull)
	appt.CompletedAt = nullTimePtr(completedAtNull)
	return appt, true, nil
}

func (s *Store) UpdateAppointment(ctx context.Context, appointmentID string, update store.AppointmentUpdate) error {
	query, args := buildAppointmentUpdate(appointmentID, update)
	if query == "" {
		return nil
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAppointmentNotFound
	}
	return nil
}

// buildAppointmentUpdate renders the partial UPDATE for the fields the
// transition touched. An empty query means nothing to write.
func buildAppointmentUpdate(appointmentID string, update store.AppointmentUpdate) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	set := func(column string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		set("status", *update.Status)
	}
	if update.ClearPosition {
		clauses = append(clauses, "queue_position = NULL")
	} else if update.QueuePosition != nil {
		set("queue_position", *update.QueuePosition)
	}
	if update.TicketNumber != nil {
		set("ticket_number", *update.TicketNumber)
	}
	if update.Prioritized != nil {
		set("prioritized", *update.Prioritized)
	}
	if update.PrioritizedAt != nil {
		set("prioritized_at", *update.PrioritizedAt)
	}
	if update.CheckedInAt != nil {
		set("checked_in_at", *update.CheckedInAt)
	}
	if update.NoShowAt != nil {
		set("no_show_at", *update.NoShowAt)
	}
	if update.CancelledAt != nil {
		set("cancelled_at", *update.CancelledAt)
	}
	if update.CompletedAt != nil {
		set("completed_at", *update.CompletedAt)
	}
	if update.CancellationReason != nil {
		set("cancellation_reason", *update.CancellationReason)
	}
	if len(clauses) == 0 {
		return "", nil
	}

	args = append(args, appointmentID)
	query := fmt.Sprintf("UPDATE appointments SET %s WHERE appointment_id = $%d",
		strings.Join(clauses, ", "), len(args))
	return query, args
}

func (s *Store) SetQueuePositions(ctx context.Context, positions map[string]int) error {
	if len(positions) == 0 {
		return nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for appointmentID, position := range positions {
		if _, err = tx.Exec(ctx, `
			UPDATE appointments
			SET queue_position = $1
			WHERE appointment_id = $2
		`, position, appointmentID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) IncrementNoShowCount(ctx context.Context, customerID string) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		INSERT INTO customers (customer_id, no_show_count)
		VALUES ($1, 1)
		ON CONFLICT (customer_id)
		DO UPDATE SET no_show_count = customers.no_show_count + 1
		RETURNING no_show_count
	`, customerID)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, organization_id, role, expires_at
		FROM sessions
		WHERE session_id = $1
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.OrganizationID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	if time.Now().After(session.ExpiresAt) {
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

// ReconcilePositions rewrites queue_position for every token of every active
// queue from the aggregate order. Only rows that actually drifted are
// touched, so the returned count is the number of repaired projections.
func (s *Store) ReconcilePositions(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE is_active = TRUE
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var queues []models.Queue
	for rows.Next() {
		queue, err := scanQueue(rows)
		if err != nil {
			return 0, err
		}
		queues = append(queues, queue)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	repaired := 0
	for _, queue := range queues {
		for appointmentID, position := range queue.Positions() {
			tag, err := s.pool.Exec(ctx, `
				UPDATE appointments
				SET queue_position = $1
				WHERE appointment_id = $2
					AND status IN ('checked_in', 'in_progress')
					AND queue_position IS DISTINCT FROM $1
			`, position, appointmentID)
			if err != nil {
				return repaired, err
			}
			repaired += int(tag.RowsAffected())
		}
	}
	return repaired, nil
}

func scanQueue(row pgx.Row) (models.Queue, error) {
	var queue models.Queue
	var currentNull sql.NullString
	var active, completed, noShow []byte
	if err := row.Scan(&queue.QueueID, &queue.OrganizationID, &queue.ServiceID, &queue.Date,
		&currentNull, &active, &completed, &noShow,
		&queue.TotalServed, &queue.IsActive, &queue.Version, &queue.CreatedAt, &queue.UpdatedAt); err != nil {
		return models.Queue{}, err
	}
	if currentNull.Valid {
		queue.CurrentToken = currentNull.String
	}
	var err error
	if queue.ActiveTokens, err = decodeTokens(active); err != nil {
		return models.Queue{}, err
	}
	if queue.CompletedTokens, err = decodeTokens(completed); err != nil {
		return models.Queue{}, err
	}
	if queue.NoShowTokens, err = decodeTokens(noShow); err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func encodeTokenLists(queue models.Queue) ([]byte, []byte, []byte, error) {
	active, err := encodeTokens(queue.ActiveTokens)
	if err != nil {
		return nil, nil, nil, err
	}
	completed, err := encodeTokens(queue.CompletedTokens)
	if err != nil {
		return nil, nil, nil, err
	}
	noShow, err := encodeTokens(queue.NoShowTokens)
	if err != nil {
		return nil, nil, nil, err
	}
	return active, completed, noShow, nil
}

func encodeTokens(tokens []string) ([]byte, error) {
	if tokens == nil {
		tokens = []string{}
	}
	return json.Marshal(tokens)
}

func decodeTokens(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	return tokens, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
