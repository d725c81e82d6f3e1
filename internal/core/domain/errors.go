package domain

import "errors"

var (
	// ErrUnavailable marks a transient ledger failure; callers retry with backoff.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrInvalidRange is returned by the ledger for a block range it will never serve.
	ErrInvalidRange = errors.New("invalid block range")

	// ErrMalformedLog marks a log that could not be decoded. It is ingested as an anomaly.
	ErrMalformedLog = errors.New("malformed log")

	// ErrUnauthorized is returned when an actor lacks the capability for a validation action.
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrNotFound is returned for an unknown record id.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when the cursor moved underneath a batch commit.
	ErrConflict = errors.New("cursor conflict")

	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCycleInFlight is returned when a scan cycle is already running.
	ErrCycleInFlight = errors.New("scan cycle already in flight")
)
