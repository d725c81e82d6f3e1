package domain

import "time"

// Cursor is the ingestion watermark: every block <= LastBlock is fully ingested.
type Cursor struct {
	LastBlock   uint64
	UpdatedAt   time.Time
	ResetReason string
}
