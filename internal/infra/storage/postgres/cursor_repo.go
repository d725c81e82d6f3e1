package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository and storage.BatchApplier using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get returns the cursor, creating the singleton row at initial on first use.
func (r *CursorRepo) Get(ctx context.Context, initial uint64) (*domain.Cursor, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO indexer_cursor (id, last_block, updated_at) VALUES (1, $1, now()) ON CONFLICT (id) DO NOTHING`,
		int64(initial),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init cursor: %w", err)
	}

	var row cursorRow
	if err := r.db.GetContext(ctx, &row,
		`SELECT last_block, updated_at, reset_reason FROM indexer_cursor WHERE id = 1`,
	); err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &domain.Cursor{
		LastBlock:   uint64(row.LastBlock),
		UpdatedAt:   row.UpdatedAt,
		ResetReason: row.ResetReason,
	}, nil
}

// Advance upserts batch and moves the cursor in one transaction.
func (r *CursorRepo) Advance(
	ctx context.Context,
	expected, next uint64,
	batch *storage.Batch,
) error {
	if next < expected {
		return fmt.Errorf("%w: cursor cannot move back from %d to %d", domain.ErrConflict, expected, next)
	}

	uow, err := r.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback() }()

	if err := uow.SaveBatch(ctx, batch); err != nil {
		return mapTxError(err)
	}
	if err := uow.AdvanceCursor(ctx, expected, next); err != nil {
		return mapTxError(err)
	}
	return mapTxError(uow.Commit())
}

// Apply upserts batch without touching the cursor.
func (r *CursorRepo) Apply(ctx context.Context, batch *storage.Batch) error {
	if batch.Empty() {
		return nil
	}
	uow, err := r.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback() }()

	if err := uow.SaveBatch(ctx, batch); err != nil {
		return mapTxError(err)
	}
	return mapTxError(uow.Commit())
}

// Reset overrides the cursor regardless of its current value.
func (r *CursorRepo) Reset(ctx context.Context, block uint64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO indexer_cursor (id, last_block, updated_at, reset_reason) VALUES (1, $1, now(), $2)
ON CONFLICT (id) DO UPDATE SET last_block = EXCLUDED.last_block, updated_at = now(), reset_reason = EXCLUDED.reset_reason`,
		int64(block), reason,
	)
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}
