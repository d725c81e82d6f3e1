package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// MemoryStorage keeps every table in process memory behind one lock, so a batch and
// its cursor move are applied as a unit.
type MemoryStorage struct {
	cursor       *domain.Cursor
	boats        map[string]*domain.Boat
	transfers    map[string]*domain.OwnershipChange
	events       map[string]*domain.BoatEvent
	certificates map[string]*domain.BoatCertificate
	mu           sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		boats:        make(map[string]*domain.Boat),
		transfers:    make(map[string]*domain.OwnershipChange),
		events:       make(map[string]*domain.BoatEvent),
		certificates: make(map[string]*domain.BoatCertificate),
	}
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, initial uint64) (*domain.Cursor, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.cursor == nil {
		r.store.cursor = &domain.Cursor{LastBlock: initial, UpdatedAt: time.Now()}
	}
	c := *r.store.cursor
	return &c, nil
}

func (r *CursorRepo) Advance(
	ctx context.Context,
	expected, next uint64,
	batch *storage.Batch,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.cursor == nil || r.store.cursor.LastBlock != expected || next < expected {
		return domain.ErrConflict
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.store.applyLocked(batch)
	r.store.cursor.LastBlock = next
	r.store.cursor.UpdatedAt = time.Now()
	r.store.cursor.ResetReason = ""
	return nil
}

func (r *CursorRepo) Reset(ctx context.Context, block uint64, reason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cursor = &domain.Cursor{LastBlock: block, UpdatedAt: time.Now(), ResetReason: reason}
	return nil
}

// Apply upserts a batch without moving the cursor.
func (r *CursorRepo) Apply(ctx context.Context, batch *storage.Batch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.applyLocked(batch)
	return nil
}

func (s *MemoryStorage) applyLocked(batch *storage.Batch) {
	if batch == nil {
		return
	}
	for _, b := range batch.Mints {
		if existing, ok := s.boats[b.BoatID]; ok && existing.MintedBlock <= b.MintedBlock {
			continue
		}
		c := *b
		s.boats[b.BoatID] = &c
	}
	for _, t := range batch.Transfers {
		key := t.TxHash + ":" + uint64Key(t.LogIndex)
		if _, ok := s.transfers[key]; ok {
			continue
		}
		c := *t
		s.transfers[key] = &c
		if boat, ok := s.boats[t.BoatID]; ok && t.BlockNumber >= boat.UpdatedBlock {
			boat.Owner = t.To
			boat.UpdatedBlock = t.BlockNumber
		}
	}
	for _, e := range batch.Events {
		if existing, ok := s.events[e.ID]; ok && !storage.Rederivable(existing.Status, existing.ValidatedBy) {
			continue
		}
		c := *e
		s.events[e.ID] = &c
	}
	for _, cert := range batch.Certificates {
		if existing, ok := s.certificates[cert.ID]; ok && !storage.Rederivable(existing.Status, existing.ValidatedBy) {
			continue
		}
		c := *cert
		s.certificates[cert.ID] = &c
	}
}

// -----------------------------------------------------------------------------
// Boat Repository
// -----------------------------------------------------------------------------

type BoatRepo struct {
	store *MemoryStorage
}

func NewBoatRepo(store *MemoryStorage) *BoatRepo {
	return &BoatRepo{store: store}
}

func (r *BoatRepo) MintedAt(ctx context.Context, boatID string, block uint64) (*domain.Boat, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.boats[boatID]
	if !ok || b.MintedBlock > block {
		return nil, nil
	}
	c := *b
	return &c, nil
}

// -----------------------------------------------------------------------------
// Record Repository
// -----------------------------------------------------------------------------

type RecordRepo struct {
	store *MemoryStorage
}

func NewRecordRepo(store *MemoryStorage) *RecordRepo {
	return &RecordRepo{store: store}
}

func (r *RecordRepo) GetEvent(ctx context.Context, id string) (*domain.BoatEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	e, ok := r.store.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (r *RecordRepo) GetCertificate(ctx context.Context, id string) (*domain.BoatCertificate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cert, ok := r.store.certificates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *cert
	return &c, nil
}

func (r *RecordRepo) ListEvents(
	ctx context.Context,
	filter storage.RecordFilter,
) ([]*domain.BoatEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.BoatEvent, 0)
	for _, e := range r.store.events {
		if matches(filter, e.BoatID, e.Status) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return page(out, filter), nil
}

func (r *RecordRepo) ListCertificates(
	ctx context.Context,
	filter storage.RecordFilter,
) ([]*domain.BoatCertificate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.BoatCertificate, 0)
	for _, cert := range r.store.certificates {
		if matches(filter, cert.BoatID, cert.Status) {
			c := *cert
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return page(out, filter), nil
}

func (r *RecordRepo) GetRecord(ctx context.Context, id string) (*domain.Record, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if e, ok := r.store.events[id]; ok {
		return e.Record(), nil
	}
	if c, ok := r.store.certificates[id]; ok {
		return c.Record(), nil
	}
	return nil, domain.ErrNotFound
}

func (r *RecordRepo) CompareAndSetStatus(
	ctx context.Context,
	id string,
	expected domain.Status,
	next domain.Validation,
) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if e, ok := r.store.events[id]; ok {
		if e.Status != expected {
			return false, nil
		}
		e.Status, e.ValidatedBy, e.ValidatedAt = next.Status, next.ValidatedBy, next.ValidatedAt
		return true, nil
	}
	if c, ok := r.store.certificates[id]; ok {
		if c.Status != expected {
			return false, nil
		}
		c.Status, c.ValidatedBy, c.ValidatedAt = next.Status, next.ValidatedBy, next.ValidatedAt
		return true, nil
	}
	return false, domain.ErrNotFound
}

func (r *RecordRepo) CountByStatus(
	ctx context.Context,
) (storage.StatusCounts, storage.StatusCounts, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	events := make(storage.StatusCounts)
	for _, e := range r.store.events {
		events[e.Status]++
	}
	certs := make(storage.StatusCounts)
	for _, c := range r.store.certificates {
		certs[c.Status]++
	}
	return events, certs, nil
}

func matches(filter storage.RecordFilter, boatID string, status domain.Status) bool {
	if filter.BoatID != "" && filter.BoatID != boatID {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, s := range filter.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func page[T any](items []T, filter storage.RecordFilter) []T {
	if filter.Offset >= len(items) {
		return items[:0]
	}
	items = items[filter.Offset:]
	limit := storage.NormalizeLimit(filter.Limit)
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func uint64Key(v uint64) string {
	return strconv.FormatUint(v, 10)
}
