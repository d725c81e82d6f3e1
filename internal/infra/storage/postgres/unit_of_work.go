package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/indexing/metrics"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

const upsertBoatSQL = `
INSERT INTO boats (boat_id, minted_block, minted_tx, owner, updated_block)
VALUES (:boat_id, :minted_block, :minted_tx, :owner, :updated_block)
ON CONFLICT (boat_id) DO NOTHING`

const insertTransferSQL = `
INSERT INTO boat_transfers (tx_hash, log_index, boat_id, from_address, to_address, block_number)
VALUES (:tx_hash, :log_index, :boat_id, :from_address, :to_address, :block_number)
ON CONFLICT (tx_hash, log_index) DO NOTHING`

const updateOwnerSQL = `
UPDATE boats SET owner = $1, updated_block = $2
WHERE boat_id = $3 AND updated_block <= $2`

// Re-ingestion only rewrites rows no validator has touched.
const upsertEventSQL = `
INSERT INTO boat_events (
    id, boat_id, kind, event_time, author, content_hash, tx_hash, log_index,
    block_number, status, anomalies, raw_payload
) VALUES (
    :id, :boat_id, :kind, :event_time, :author, :content_hash, :tx_hash, :log_index,
    :block_number, :status, :anomalies, :raw_payload
)
ON CONFLICT (tx_hash, log_index) DO UPDATE SET
    boat_id = EXCLUDED.boat_id,
    kind = EXCLUDED.kind,
    event_time = EXCLUDED.event_time,
    author = EXCLUDED.author,
    content_hash = EXCLUDED.content_hash,
    block_number = EXCLUDED.block_number,
    status = EXCLUDED.status,
    anomalies = EXCLUDED.anomalies,
    raw_payload = EXCLUDED.raw_payload
WHERE boat_events.validated_by IS NULL
  AND boat_events.status IN ('pending', 'suspicious')`

const upsertCertificateSQL = `
INSERT INTO boat_certificates (
    id, boat_id, issuer, issued_date, title, certificate_type, expires_date, description,
    content_hash, tx_hash, log_index, block_number, status, anomalies, raw_payload
) VALUES (
    :id, :boat_id, :issuer, :issued_date, :title, :certificate_type, :expires_date, :description,
    :content_hash, :tx_hash, :log_index, :block_number, :status, :anomalies, :raw_payload
)
ON CONFLICT (issuer, boat_id, tx_hash) DO UPDATE SET
    issued_date = EXCLUDED.issued_date,
    title = EXCLUDED.title,
    certificate_type = EXCLUDED.certificate_type,
    expires_date = EXCLUDED.expires_date,
    description = EXCLUDED.description,
    content_hash = EXCLUDED.content_hash,
    log_index = EXCLUDED.log_index,
    block_number = EXCLUDED.block_number,
    status = EXCLUDED.status,
    anomalies = EXCLUDED.anomalies,
    raw_payload = EXCLUDED.raw_payload
WHERE boat_certificates.validated_by IS NULL
  AND boat_certificates.status IN ('pending', 'suspicious')`

// UnitOfWork bundles all persistence operations into a single database transaction,
// ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// SaveBatch upserts every write in the batch.
func (u *UnitOfWork) SaveBatch(ctx context.Context, batch *storage.Batch) error {
	if batch.Empty() {
		return nil
	}
	if err := u.SaveMints(ctx, batch.Mints); err != nil {
		return err
	}
	if err := u.SaveTransfers(ctx, batch.Transfers); err != nil {
		return err
	}
	if err := u.SaveEvents(ctx, batch.Events); err != nil {
		return err
	}
	return u.SaveCertificates(ctx, batch.Certificates)
}

// SaveMints records newly minted boats. A boat is minted once.
func (u *UnitOfWork) SaveMints(ctx context.Context, boats []*domain.Boat) error {
	if len(boats) == 0 {
		return nil
	}
	metrics.DBBatchSize.WithLabelValues("save_mints").Observe(float64(len(boats)))

	for _, b := range boats {
		row := boatRow{
			BoatID:       b.BoatID,
			MintedBlock:  int64(b.MintedBlock),
			MintedTx:     b.MintedTx,
			Owner:        b.Owner,
			UpdatedBlock: int64(b.UpdatedBlock),
		}
		if _, err := u.tx.NamedExecContext(ctx, upsertBoatSQL, row); err != nil {
			return fmt.Errorf("failed to save boat %s: %w", b.BoatID, err)
		}
	}
	return nil
}

// SaveTransfers records ownership changes and moves the current owner forward.
func (u *UnitOfWork) SaveTransfers(ctx context.Context, transfers []*domain.OwnershipChange) error {
	if len(transfers) == 0 {
		return nil
	}
	metrics.DBBatchSize.WithLabelValues("save_transfers").Observe(float64(len(transfers)))

	for _, t := range transfers {
		row := transferRow{
			TxHash:      t.TxHash,
			LogIndex:    int64(t.LogIndex),
			BoatID:      t.BoatID,
			From:        t.From,
			To:          t.To,
			BlockNumber: int64(t.BlockNumber),
		}
		if _, err := u.tx.NamedExecContext(ctx, insertTransferSQL, row); err != nil {
			return fmt.Errorf("failed to save transfer %s:%d: %w", t.TxHash, t.LogIndex, err)
		}
		if _, err := u.tx.ExecContext(ctx, updateOwnerSQL, t.To, int64(t.BlockNumber), t.BoatID); err != nil {
			return fmt.Errorf("failed to update owner of boat %s: %w", t.BoatID, err)
		}
	}
	return nil
}

// SaveEvents upserts boat events keyed by (tx_hash, log_index).
func (u *UnitOfWork) SaveEvents(ctx context.Context, events []*domain.BoatEvent) error {
	if len(events) == 0 {
		return nil
	}
	metrics.DBBatchSize.WithLabelValues("save_events").Observe(float64(len(events)))

	for _, e := range events {
		if _, err := u.tx.NamedExecContext(ctx, upsertEventSQL, newEventRow(e)); err != nil {
			return fmt.Errorf("failed to save event %s:%d: %w", e.TxHash, e.LogIndex, err)
		}
	}
	return nil
}

// SaveCertificates upserts certificates keyed by (issuer, boat_id, tx_hash).
func (u *UnitOfWork) SaveCertificates(ctx context.Context, certs []*domain.BoatCertificate) error {
	if len(certs) == 0 {
		return nil
	}
	metrics.DBBatchSize.WithLabelValues("save_certificates").Observe(float64(len(certs)))

	for _, c := range certs {
		if _, err := u.tx.NamedExecContext(ctx, upsertCertificateSQL, newCertificateRow(c)); err != nil {
			return fmt.Errorf("failed to save certificate %s: %w", c.TxHash, err)
		}
	}
	return nil
}

// AdvanceCursor moves the cursor from expected to next within the transaction.
// Returns domain.ErrConflict if the stored value is no longer expected.
func (u *UnitOfWork) AdvanceCursor(ctx context.Context, expected, next uint64) error {
	res, err := u.tx.ExecContext(ctx,
		`UPDATE indexer_cursor SET last_block = $1, updated_at = now(), reset_reason = '' WHERE id = 1 AND last_block = $2`,
		int64(next), int64(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: cursor is not at %d", domain.ErrConflict, expected)
	}
	return nil
}
