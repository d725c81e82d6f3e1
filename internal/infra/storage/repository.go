package storage

import (
	"context"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

// Batch is the set of upserts produced by one scan range. It commits atomically with
// the cursor move, or on its own for a targeted re-scan.
type Batch struct {
	Mints        []*domain.Boat
	Transfers    []*domain.OwnershipChange
	Events       []*domain.BoatEvent
	Certificates []*domain.BoatCertificate
}

// Empty reports whether the batch carries no writes.
func (b *Batch) Empty() bool {
	return b == nil ||
		len(b.Mints) == 0 && len(b.Transfers) == 0 && len(b.Events) == 0 && len(b.Certificates) == 0
}

// Size returns the number of writes in the batch.
func (b *Batch) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Mints) + len(b.Transfers) + len(b.Events) + len(b.Certificates)
}

// CursorRepository persists the single ingestion watermark.
type CursorRepository interface {
	// Get returns the cursor, creating it at initial if it does not exist yet.
	Get(ctx context.Context, initial uint64) (*domain.Cursor, error)

	// Advance upserts batch and moves the cursor from expected to next in one transaction.
	// Returns domain.ErrConflict if the stored cursor is no longer expected.
	Advance(ctx context.Context, expected, next uint64, batch *Batch) error

	// Reset overrides the cursor. Administrative only.
	Reset(ctx context.Context, block uint64, reason string) error
}

// BatchApplier upserts a batch without touching the cursor.
type BatchApplier interface {
	Apply(ctx context.Context, batch *Batch) error
}

// BoatRepository answers the mint questions the normalizer asks.
type BoatRepository interface {
	// MintedAt returns the boat if it was minted at or before block, nil otherwise.
	MintedAt(ctx context.Context, boatID string, block uint64) (*domain.Boat, error)
}

// RecordFilter narrows record listings. Zero values mean "any".
type RecordFilter struct {
	BoatID   string
	Statuses []domain.Status
	Limit    int
	Offset   int
}

// RecordRepository is the query and transition surface over events and certificates.
type RecordRepository interface {
	GetEvent(ctx context.Context, id string) (*domain.BoatEvent, error)
	GetCertificate(ctx context.Context, id string) (*domain.BoatCertificate, error)
	ListEvents(ctx context.Context, filter RecordFilter) ([]*domain.BoatEvent, error)
	ListCertificates(ctx context.Context, filter RecordFilter) ([]*domain.BoatCertificate, error)

	// GetRecord resolves an id against both tables.
	GetRecord(ctx context.Context, id string) (*domain.Record, error)

	// CompareAndSetStatus applies next only if the record is still in expected.
	// Returns false, nil when another writer got there first.
	CompareAndSetStatus(
		ctx context.Context,
		id string,
		expected domain.Status,
		next domain.Validation,
	) (bool, error)
}

// StatusCounts is a per-status record tally used by health and the status command.
type StatusCounts map[domain.Status]int

// StatsRepository reports ingestion totals.
type StatsRepository interface {
	CountByStatus(ctx context.Context) (events StatusCounts, certificates StatusCounts, err error)
}

// DefaultListLimit caps listings that do not set a limit.
const DefaultListLimit = 100

// MaxListLimit is the largest limit a listing accepts.
const MaxListLimit = 1000

// NormalizeLimit clamps a listing limit into [1, MaxListLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Rederivable reports whether re-ingestion may overwrite a stored record. Rows a
// validator has acted on, and terminal rows, are left untouched.
func Rederivable(status domain.Status, validatedBy string) bool {
	return validatedBy == "" && (status == domain.StatusPending || status == domain.StatusSuspicious)
}
