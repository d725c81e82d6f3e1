package postgres

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

type cursorRow struct {
	LastBlock   int64     `db:"last_block"`
	UpdatedAt   time.Time `db:"updated_at"`
	ResetReason string    `db:"reset_reason"`
}

type boatRow struct {
	BoatID       string `db:"boat_id"`
	MintedBlock  int64  `db:"minted_block"`
	MintedTx     string `db:"minted_tx"`
	Owner        string `db:"owner"`
	UpdatedBlock int64  `db:"updated_block"`
}

func (r boatRow) toDomain() *domain.Boat {
	return &domain.Boat{
		BoatID:       r.BoatID,
		MintedBlock:  uint64(r.MintedBlock),
		MintedTx:     r.MintedTx,
		Owner:        r.Owner,
		UpdatedBlock: uint64(r.UpdatedBlock),
	}
}

type transferRow struct {
	TxHash      string `db:"tx_hash"`
	LogIndex    int64  `db:"log_index"`
	BoatID      string `db:"boat_id"`
	From        string `db:"from_address"`
	To          string `db:"to_address"`
	BlockNumber int64  `db:"block_number"`
}

type eventRow struct {
	ID          string         `db:"id"`
	BoatID      string         `db:"boat_id"`
	Kind        string         `db:"kind"`
	EventTime   time.Time      `db:"event_time"`
	Author      string         `db:"author"`
	ContentHash string         `db:"content_hash"`
	TxHash      string         `db:"tx_hash"`
	LogIndex    int64          `db:"log_index"`
	BlockNumber int64          `db:"block_number"`
	Status      string         `db:"status"`
	ValidatedBy sql.NullString `db:"validated_by"`
	ValidatedAt sql.NullTime   `db:"validated_at"`
	Anomalies   pq.StringArray `db:"anomalies"`
	RawPayload  []byte         `db:"raw_payload"`
}

func newEventRow(e *domain.BoatEvent) eventRow {
	return eventRow{
		ID:          e.ID,
		BoatID:      e.BoatID,
		Kind:        string(e.Kind),
		EventTime:   e.Timestamp,
		Author:      e.Author,
		ContentHash: e.ContentHash,
		TxHash:      e.TxHash,
		LogIndex:    int64(e.LogIndex),
		BlockNumber: int64(e.BlockNumber),
		Status:      string(e.Status),
		ValidatedBy: nullString(e.ValidatedBy),
		ValidatedAt: nullTime(e.ValidatedAt),
		Anomalies:   anomalies(e.Anomalies),
		RawPayload:  e.RawPayload,
	}
}

func (r eventRow) toDomain() *domain.BoatEvent {
	return &domain.BoatEvent{
		ID:          r.ID,
		BoatID:      r.BoatID,
		Kind:        domain.EventKind(r.Kind),
		Timestamp:   r.EventTime,
		Author:      r.Author,
		ContentHash: r.ContentHash,
		TxHash:      r.TxHash,
		LogIndex:    uint64(r.LogIndex),
		BlockNumber: uint64(r.BlockNumber),
		Status:      domain.Status(r.Status),
		ValidatedBy: r.ValidatedBy.String,
		ValidatedAt: timePtr(r.ValidatedAt),
		Anomalies:   []string(r.Anomalies),
		RawPayload:  r.RawPayload,
	}
}

type certificateRow struct {
	ID              string         `db:"id"`
	BoatID          string         `db:"boat_id"`
	Issuer          string         `db:"issuer"`
	IssuedDate      time.Time      `db:"issued_date"`
	Title           string         `db:"title"`
	CertificateType string         `db:"certificate_type"`
	ExpiresDate     sql.NullTime   `db:"expires_date"`
	Description     string         `db:"description"`
	ContentHash     string         `db:"content_hash"`
	TxHash          string         `db:"tx_hash"`
	LogIndex        int64          `db:"log_index"`
	BlockNumber     int64          `db:"block_number"`
	Status          string         `db:"status"`
	ValidatedBy     sql.NullString `db:"validated_by"`
	ValidatedAt     sql.NullTime   `db:"validated_at"`
	Anomalies       pq.StringArray `db:"anomalies"`
	RawPayload      []byte         `db:"raw_payload"`
}

func newCertificateRow(c *domain.BoatCertificate) certificateRow {
	return certificateRow{
		ID:              c.ID,
		BoatID:          c.BoatID,
		Issuer:          c.Issuer,
		IssuedDate:      c.IssuedDate,
		Title:           c.Title,
		CertificateType: string(c.CertificateType),
		ExpiresDate:     nullTime(c.ExpiresDate),
		Description:     c.Description,
		ContentHash:     c.ContentHash,
		TxHash:          c.TxHash,
		LogIndex:        int64(c.LogIndex),
		BlockNumber:     int64(c.BlockNumber),
		Status:          string(c.Status),
		ValidatedBy:     nullString(c.ValidatedBy),
		ValidatedAt:     nullTime(c.ValidatedAt),
		Anomalies:       anomalies(c.Anomalies),
		RawPayload:      c.RawPayload,
	}
}

func (r certificateRow) toDomain() *domain.BoatCertificate {
	return &domain.BoatCertificate{
		ID:              r.ID,
		BoatID:          r.BoatID,
		Issuer:          r.Issuer,
		IssuedDate:      r.IssuedDate,
		Title:           r.Title,
		CertificateType: domain.CertificateType(r.CertificateType),
		ExpiresDate:     timePtr(r.ExpiresDate),
		Description:     r.Description,
		ContentHash:     r.ContentHash,
		TxHash:          r.TxHash,
		LogIndex:        uint64(r.LogIndex),
		BlockNumber:     uint64(r.BlockNumber),
		Status:          domain.Status(r.Status),
		ValidatedBy:     r.ValidatedBy.String,
		ValidatedAt:     timePtr(r.ValidatedAt),
		Anomalies:       []string(r.Anomalies),
		RawPayload:      r.RawPayload,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// anomalies never writes NULL into the NOT NULL array column.
func anomalies(a []string) pq.StringArray {
	if a == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(a)
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
