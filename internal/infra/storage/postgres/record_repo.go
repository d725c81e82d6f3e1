package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

const eventColumns = `id, boat_id, kind, event_time, author, content_hash, tx_hash, log_index,
block_number, status, validated_by, validated_at, anomalies, raw_payload`

const certificateColumns = `id, boat_id, issuer, issued_date, title, certificate_type, expires_date,
description, content_hash, tx_hash, log_index, block_number, status, validated_by, validated_at,
anomalies, raw_payload`

// RecordRepo implements storage.RecordRepository and storage.StatsRepository using PostgreSQL.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new PostgreSQL record repository.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

func (r *RecordRepo) GetEvent(ctx context.Context, id string) (*domain.BoatEvent, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM boat_events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (r *RecordRepo) GetCertificate(ctx context.Context, id string) (*domain.BoatCertificate, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	var row certificateRow
	err := r.db.GetContext(ctx, &row, `SELECT `+certificateColumns+` FROM boat_certificates WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (r *RecordRepo) ListEvents(
	ctx context.Context,
	filter storage.RecordFilter,
) ([]*domain.BoatEvent, error) {
	query, args := listQuery("boat_events", eventColumns, filter)
	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := make([]*domain.BoatEvent, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *RecordRepo) ListCertificates(
	ctx context.Context,
	filter storage.RecordFilter,
) ([]*domain.BoatCertificate, error) {
	query, args := listQuery("boat_certificates", certificateColumns, filter)
	var rows []certificateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	out := make([]*domain.BoatCertificate, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func listQuery(table, columns string, filter storage.RecordFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.BoatID != "" {
		args = append(args, filter.BoatID)
		where = append(where, fmt.Sprintf("boat_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columns)
	b.WriteString(" FROM ")
	b.WriteString(table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, storage.NormalizeLimit(filter.Limit), filter.Offset)
	fmt.Fprintf(&b, " ORDER BY block_number, log_index LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}

// GetRecord resolves id against events first, then certificates.
func (r *RecordRepo) GetRecord(ctx context.Context, id string) (*domain.Record, error) {
	e, err := r.GetEvent(ctx, id)
	if err == nil {
		return e.Record(), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	c, err := r.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Record(), nil
}

// CompareAndSetStatus writes the validation triple in a single conditional UPDATE.
func (r *RecordRepo) CompareAndSetStatus(
	ctx context.Context,
	id string,
	expected domain.Status,
	next domain.Validation,
) (bool, error) {
	if !validID(id) {
		return false, domain.ErrNotFound
	}
	for _, table := range []string{"boat_events", "boat_certificates"} {
		res, err := r.db.ExecContext(ctx,
			`UPDATE `+table+` SET status = $1, validated_by = $2, validated_at = $3 WHERE id = $4 AND status = $5`,
			string(next.Status), nullString(next.ValidatedBy), nullTime(next.ValidatedAt), id, string(expected),
		)
		if err != nil {
			return false, fmt.Errorf("failed to update status of %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to update status of %s: %w", id, err)
		}
		if n == 1 {
			return true, nil
		}
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `
SELECT EXISTS (SELECT 1 FROM boat_events WHERE id = $1)
    OR EXISTS (SELECT 1 FROM boat_certificates WHERE id = $1)`, id,
	); err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", id, err)
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

// validID rejects ids that could never match the uuid primary keys.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

// CountByStatus tallies both record tables by status.
func (r *RecordRepo) CountByStatus(
	ctx context.Context,
) (storage.StatusCounts, storage.StatusCounts, error) {
	events, err := r.countTable(ctx, "boat_events")
	if err != nil {
		return nil, nil, err
	}
	certs, err := r.countTable(ctx, "boat_certificates")
	if err != nil {
		return nil, nil, err
	}
	return events, certs, nil
}

func (r *RecordRepo) countTable(ctx context.Context, table string) (storage.StatusCounts, error) {
	var rows []statusCount
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT status, count(*) AS count FROM `+table+` GROUP BY status`,
	); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}
	out := make(storage.StatusCounts, len(rows))
	for _, row := range rows {
		out[domain.Status(row.Status)] = row.Count
	}
	return out, nil
}
