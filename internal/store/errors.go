package store

import "errors"

var (
	ErrQueueNotFound       = errors.New("queue not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrAlreadyQueued       = errors.New("appointment already queued")
	ErrEmptyQueue          = errors.New("queue is empty")
	ErrAlreadyServing      = errors.New("a token is already being served")
	ErrNotServing          = errors.New("appointment is not being served")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrConflict            = errors.New("concurrent queue modification")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrSessionNotFound     = errors.New("session not found")
)
