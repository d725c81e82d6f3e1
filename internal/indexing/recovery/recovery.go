// Package recovery decides how the scanner reacts to a failed cycle: wait and retry the
// same range, or stop and raise an alert.
package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

// FailureCategory groups errors by how they are retried.
type FailureCategory int

const (
	// CategoryTransient failures are retried for as long as they last.
	CategoryTransient FailureCategory = iota
	// CategoryStorage failures are retried a bounded number of times.
	CategoryStorage
	// CategoryFatal failures stop the loop immediately.
	CategoryFatal
)

func (c FailureCategory) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryStorage:
		return "storage"
	case CategoryFatal:
		return "fatal"
	}
	return "unknown"
}

// Classifier maps an error to a category.
type Classifier func(err error) FailureCategory

// ClassifyScanError is the classifier used by the scanner. Ledger hiccups and cursor
// conflicts are transient, an invalid range is fatal, and everything else is assumed
// to come from storage.
func ClassifyScanError(err error) FailureCategory {
	switch {
	case errors.Is(err, domain.ErrInvalidRange):
		return CategoryFatal
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrCycleInFlight),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	}
	return CategoryStorage
}

// Tracker counts consecutive failures of a loop and turns each into a decision.
type Tracker struct {
	strategy RetryStrategy

	mu            sync.Mutex
	attempts      int
	lastErr       error
	lastFailureAt time.Time
}

// NewTracker creates a tracker using strategy.
func NewTracker(strategy RetryStrategy) *Tracker {
	return &Tracker{strategy: strategy}
}

// Failure records err and returns how long to wait before retrying, or retry=false
// when the loop must stop.
func (t *Tracker) Failure(err error) (delay time.Duration, retry bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	attempt := t.attempts
	t.attempts++
	t.lastErr = err
	t.lastFailureAt = time.Now()

	if !t.strategy.ShouldRetry(err, attempt) {
		return 0, false
	}
	return t.strategy.GetDelay(attempt), true
}

// Success clears the failure streak.
func (t *Tracker) Success() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts = 0
	t.lastErr = nil
}

// ConsecutiveFailures returns the length of the current failure streak.
func (t *Tracker) ConsecutiveFailures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// LastError returns the most recent failure of the current streak.
func (t *Tracker) LastError() (error, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr, t.lastFailureAt
}
