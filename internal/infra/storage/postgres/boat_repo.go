package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

// BoatRepo implements storage.BoatRepository using PostgreSQL.
type BoatRepo struct {
	db *DB
}

// NewBoatRepo creates a new PostgreSQL boat repository.
func NewBoatRepo(db *DB) *BoatRepo {
	return &BoatRepo{db: db}
}

// MintedAt returns the boat if it was minted at or before block.
func (r *BoatRepo) MintedAt(ctx context.Context, boatID string, block uint64) (*domain.Boat, error) {
	var row boatRow
	err := r.db.GetContext(ctx, &row, `
SELECT boat_id, minted_block, minted_tx, owner, updated_block
FROM boats WHERE boat_id = $1 AND minted_block <= $2`,
		boatID, int64(block),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get boat %s: %w", boatID, err)
	}
	return row.toDomain(), nil
}
