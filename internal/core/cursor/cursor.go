// Package cursor tracks the ingestion watermark.
//
// # Purpose
//
// The cursor is the last block whose logs are fully ingested. Every block at or below
// it has committed records; nothing above it has been committed by the scanner.
//
// # Key Features
//
// Atomic Updates - Advance commits the batch of record upserts and the cursor move in a
// single unit of work. A failed commit leaves both untouched.
//
// Compare-and-Set - Advance names the value it expects. If another writer moved the
// cursor first the call fails with domain.ErrConflict and the caller retries from the
// stored value.
//
// Administrative Reset - Reset moves the cursor anywhere, with a reason. It does not
// replay history; the scanner re-scans from the new value on its next cycle.
//
// # Quick Start
//
//	manager := cursor.NewManager(cursorRepo, startBlock)
//
//	c, _ := manager.Get(ctx)
//	err := manager.Advance(ctx, c.LastBlock, target, batch)
//	if errors.Is(err, domain.ErrConflict) {
//	    // re-read and retry
//	}
//
// # Package Structure
//
//   - manager.go - Manager implementation over storage.CursorRepository
//   - metrics.go - Throughput and reset history
package cursor

import (
	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// Cursor is the ingestion watermark.
type Cursor = domain.Cursor

// NewManager creates a new cursor manager. initial is the value the cursor takes the
// first time it is read from an empty store.
func NewManager(repo storage.CursorRepository, initial uint64) *DefaultManager {
	return &DefaultManager{
		repo:      repo,
		initial:   initial,
		collector: NewMetricsCollector(100),
	}
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize: windowSize,
		advances:   make([]advanceRecord, 0, windowSize),
		resets:     make([]Reset, 0, 10),
	}
}
