package recovery

import (
	"math"
	"math/rand"
	"time"
)

// RetryStrategy defines how retries should be handled.
type RetryStrategy interface {
	// GetDelay returns the delay for the given attempt (0-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRetry checks if we should retry based on the error and attempt count.
	ShouldRetry(err error, attempt int) bool
}

// ExponentialBackoff implements a capped, jittered backoff. MaxAttempts bounds only
// storage failures; transient failures are retried indefinitely at MaxDelay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	// Jitter spreads each delay uniformly over ±Jitter of its value (0..1).
	Jitter     float64
	Classifier Classifier
}

// DefaultBackoff returns sensible defaults for ledger scanning.
// 1s, 2s, 4s, 8s ... (Max 60s), 5 storage attempts, 20% jitter.
func DefaultBackoff(classifier Classifier) *ExponentialBackoff {
	if classifier == nil {
		classifier = ClassifyScanError
	}
	return &ExponentialBackoff{
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		MaxAttempts:  5,
		Jitter:       0.2,
		Classifier:   classifier,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt, capped and jittered.
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		delay = float64(s.MaxDelay)
	}
	if s.Jitter > 0 {
		j := math.Min(s.Jitter, 1)
		delay *= 1 - j + 2*j*rand.Float64()
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt is allowed after attempt failed with err.
func (s *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	switch s.Classifier(err) {
	case CategoryTransient:
		return true
	case CategoryStorage:
		return attempt+1 < s.MaxAttempts
	}
	return false
}
