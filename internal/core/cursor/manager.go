package cursor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// Manager handles cursor reads and moves.
type Manager interface {
	// Get retrieves the current cursor.
	Get(ctx context.Context) (*domain.Cursor, error)

	// Advance commits batch and moves the cursor from expected to next atomically.
	Advance(ctx context.Context, expected, next uint64, batch *storage.Batch) error

	// Reset overrides the cursor. Administrative only.
	Reset(ctx context.Context, block uint64, reason string) error

	// GetLag returns blocks behind the ledger head.
	GetLag(ctx context.Context, latestBlock uint64) (int64, error)

	// GetMetrics returns throughput and reset history.
	GetMetrics() Metrics
}

// DefaultManager implements Manager over a storage.CursorRepository.
type DefaultManager struct {
	repo      storage.CursorRepository
	initial   uint64
	mu        sync.Mutex
	collector *MetricsCollector
}

// Get retrieves the current cursor.
func (m *DefaultManager) Get(ctx context.Context) (*domain.Cursor, error) {
	c, err := m.repo.Get(ctx, m.initial)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return c, nil
}

// Advance moves the cursor forward together with the batch it covers.
func (m *DefaultManager) Advance(
	ctx context.Context,
	expected, next uint64,
	batch *storage.Batch,
) error {
	if next < expected {
		return fmt.Errorf("%w: cannot move cursor back from %d to %d", domain.ErrConflict, expected, next)
	}

	if err := m.repo.Advance(ctx, expected, next, batch); err != nil {
		return fmt.Errorf("failed to advance cursor to %d: %w", next, err)
	}

	m.mu.Lock()
	m.collector.RecordAdvance(expected, next, batch.Size(), time.Now())
	m.mu.Unlock()
	return nil
}

// Reset overrides the cursor and keeps a record of it.
func (m *DefaultManager) Reset(ctx context.Context, block uint64, reason string) error {
	var from uint64
	if c, err := m.repo.Get(ctx, m.initial); err == nil {
		from = c.LastBlock
	}

	if err := m.repo.Reset(ctx, block, reason); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	m.mu.Lock()
	m.collector.RecordReset(Reset{From: from, To: block, Reason: reason, Timestamp: time.Now()})
	m.mu.Unlock()
	return nil
}

// GetLag returns how many blocks behind the ledger head the cursor is.
func (m *DefaultManager) GetLag(ctx context.Context, latestBlock uint64) (int64, error) {
	c, err := m.Get(ctx)
	if err != nil {
		return 0, err
	}
	return int64(latestBlock) - int64(c.LastBlock), nil
}

// GetMetrics returns throughput and reset history.
func (m *DefaultManager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collector.GetMetrics()
}
