package scanner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/boatwatch/internal/core/authz"
	"github.com/vietddude/boatwatch/internal/core/cursor"
	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/indexing/normalizer"
	"github.com/vietddude/boatwatch/internal/indexing/recovery"
	"github.com/vietddude/boatwatch/internal/infra/ledger"
	"github.com/vietddude/boatwatch/internal/infra/ledger/ledgertest"
	"github.com/vietddude/boatwatch/internal/infra/storage"
	"github.com/vietddude/boatwatch/internal/infra/storage/memory"
)

const (
	owner        = "0x0000000000000000000000000000000000000a01"
	professional = "0x0000000000000000000000000000000000000c03"
	contentHash  = "0x1b4f0e9851971998e732078544c96b36c3d01cedf7caa332359d6f1d83567014"
)

func TestWindow(t *testing.T) {
	tests := []struct {
		name             string
		cursor, height   uint64
		depth, maxBatch  uint64
		wantFrom, wantTo uint64
		wantOK           bool
	}{
		{"head not above cursor", 100, 100, 5, 50, 0, 0, false},
		{"head below cursor", 100, 90, 5, 50, 0, 0, false},
		{"nothing confirmed", 100, 103, 5, 50, 0, 0, false},
		{"exactly confirmed edge", 100, 105, 5, 50, 0, 0, false},
		{"one confirmed block", 100, 106, 5, 50, 101, 101, true},
		{"batch bound", 100, 1000, 5, 50, 101, 150, true},
		{"confirmation bound", 100, 120, 5, 50, 101, 115, true},
		{"young chain", 0, 3, 5, 50, 0, 0, false},
		{"zero depth", 10, 12, 0, 50, 11, 12, true},
		{"zero batch means one", 10, 100, 0, 0, 11, 11, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, ok := Window(tt.cursor, tt.height, tt.depth, tt.maxBatch)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantFrom, from)
			assert.Equal(t, tt.wantTo, to)
		})
	}
}

// flakyCursorRepo fails the first n Advance calls.
type flakyCursorRepo struct {
	*memory.CursorRepo
	failures atomic.Int32
	err      error
}

func (r *flakyCursorRepo) Advance(ctx context.Context, expected, next uint64, batch *storage.Batch) error {
	if r.failures.Load() > 0 {
		r.failures.Add(-1)
		return r.err
	}
	return r.CursorRepo.Advance(ctx, expected, next, batch)
}

type fixture struct {
	chain   *ledgertest.Chain
	store   *memory.MemoryStorage
	repo    *flakyCursorRepo
	records *memory.RecordRepo
	manager *cursor.DefaultManager
	scanner *Scanner
}

func newFixture(t *testing.T, height, start uint64, cfg Config) *fixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	table := authz.NewStaticTable().Grant(professional, domain.CapabilityCertifiedProfessional, 0)
	norm := normalizer.New(memory.NewBoatRepo(store), authz.NewGate(table, table))
	repo := &flakyCursorRepo{CursorRepo: memory.NewCursorRepo(store), err: errors.New("connection reset")}
	manager := cursor.NewManager(repo, start)
	chain := ledgertest.NewChain(height)

	strategy := recovery.DefaultBackoff(nil)
	strategy.InitialDelay = time.Millisecond
	strategy.MaxDelay = 5 * time.Millisecond
	strategy.MaxAttempts = 3

	return &fixture{
		chain:   chain,
		store:   store,
		repo:    repo,
		records: memory.NewRecordRepo(store),
		manager: manager,
		scanner: New(cfg, chain, norm, manager, nil, strategy),
	}
}

func (f *fixture) cursorAt(t *testing.T) uint64 {
	t.Helper()
	c, err := f.manager.Get(context.Background())
	require.NoError(t, err)
	return c.LastBlock
}

func (f *fixture) counts(t *testing.T) (events, certs int) {
	t.Helper()
	e, c, err := f.records.CountByStatus(context.Background())
	require.NoError(t, err)
	for _, n := range e {
		events += n
	}
	for _, n := range c {
		certs += n
	}
	return events, certs
}

func boatLogs() []*ledger.LogJSONRPC {
	return []*ledger.LogJSONRPC{
		ledgertest.Transfer(102, 0, ledgertest.Hash(1), ledger.ZeroAddress, owner, 7),
		ledgertest.Event(104, 0, ledgertest.Hash(2), 7, 1, 1700000000, professional, contentHash),
		ledgertest.Event(106, 1, ledgertest.Hash(3), 42, 3, 1700000000, professional, contentHash),
		ledgertest.Certificate(108, 0, ledgertest.Hash(4), ledgertest.CertificateArgs{
			BoatID: 7, Issuer: professional, CertificateType: 0, IssuedDate: 1700000000, ContentHash: contentHash,
		}),
	}
}

// Cursor 100, depth 5, head 103: nothing confirmed, no fetch.
func TestRunCycle_NothingConfirmed(t *testing.T) {
	f := newFixture(t, 103, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})

	res, err := f.scanner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Scanned)
	assert.Empty(t, f.chain.GetLogsCalls())
	assert.Equal(t, uint64(100), f.cursorAt(t))
}

func TestRunCycle_EmptyRangeStillAdvances(t *testing.T) {
	f := newFixture(t, 120, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})

	res, err := f.scanner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Scanned)
	assert.Equal(t, 0, res.Logs)
	assert.Equal(t, [][2]uint64{{101, 115}}, f.chain.GetLogsCalls())
	assert.Equal(t, uint64(115), f.cursorAt(t))
}

func TestRunCycle_IngestsRange(t *testing.T) {
	f := newFixture(t, 120, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})
	f.chain.AddLogs(boatLogs()...)

	res, err := f.scanner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Logs)
	assert.Equal(t, uint64(115), f.cursorAt(t))

	events, certs := f.counts(t)
	assert.Equal(t, 2, events)
	assert.Equal(t, 1, certs)

	repair, err := f.records.GetEvent(context.Background(), domain.EventID(ledgertest.Hash(2), 0))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, repair.Status)

	unknown, err := f.records.GetEvent(context.Background(), domain.EventID(ledgertest.Hash(3), 1))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspicious, unknown.Status)

	boat, err := memory.NewBoatRepo(f.store).MintedAt(context.Background(), "7", 200)
	require.NoError(t, err)
	require.NotNil(t, boat)
	assert.Equal(t, uint64(102), boat.MintedBlock)
}

func TestRunCycle_BatchBound(t *testing.T) {
	f := newFixture(t, 1000, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 3})
	f.chain.AddLogs(boatLogs()...)

	for want := uint64(103); want <= 109; want += 3 {
		_, err := f.scanner.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, f.cursorAt(t))
	}
	assert.Equal(t, [][2]uint64{{101, 103}, {104, 106}, {107, 109}}, f.chain.GetLogsCalls())

	events, certs := f.counts(t)
	assert.Equal(t, 2, events)
	assert.Equal(t, 1, certs)
}

// Re-running a committed range after a reset changes nothing: no duplicates, and
// reviewer decisions survive.
func TestRunCycle_IdempotentRescan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 120, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})
	f.chain.AddLogs(boatLogs()...)

	_, err := f.scanner.RunCycle(ctx)
	require.NoError(t, err)

	repairID := domain.EventID(ledgertest.Hash(2), 0)
	at := time.Now().UTC()
	won, err := f.records.CompareAndSetStatus(ctx, repairID, domain.StatusPending,
		domain.Validation{Status: domain.StatusValidated, ValidatedBy: professional, ValidatedAt: &at})
	require.NoError(t, err)
	require.True(t, won)
	before, err := f.records.GetEvent(ctx, repairID)
	require.NoError(t, err)
	suspiciousBefore, err := f.records.GetEvent(ctx, domain.EventID(ledgertest.Hash(3), 1))
	require.NoError(t, err)

	require.NoError(t, f.manager.Reset(ctx, 100, "test rescan"))
	_, err = f.scanner.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(115), f.cursorAt(t))

	events, certs := f.counts(t)
	assert.Equal(t, 2, events)
	assert.Equal(t, 1, certs)

	after, err := f.records.GetEvent(ctx, repairID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	suspiciousAfter, err := f.records.GetEvent(ctx, domain.EventID(ledgertest.Hash(3), 1))
	require.NoError(t, err)
	assert.Equal(t, suspiciousBefore, suspiciousAfter, "non-terminal records are re-derived byte-identically")
}

// A failed commit leaves the cursor and records untouched; the next cycle reprocesses
// the full range.
func TestRunCycle_CommitFailureDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 120, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})
	f.chain.AddLogs(boatLogs()...)
	f.repo.failures.Store(1)

	_, err := f.scanner.RunCycle(ctx)
	require.Error(t, err)
	assert.Equal(t, uint64(100), f.cursorAt(t))
	events, certs := f.counts(t)
	assert.Zero(t, events+certs)

	_, err = f.scanner.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{101, 115}, {101, 115}}, f.chain.GetLogsCalls())
	events, certs = f.counts(t)
	assert.Equal(t, 3, events+certs)
}

func TestRunCycle_LedgerFailureDoesNotAdvance(t *testing.T) {
	f := newFixture(t, 120, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})
	f.chain.FailGetLogs(domain.ErrUnavailable)

	_, err := f.scanner.RunCycle(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, uint64(100), f.cursorAt(t))
}

func TestRunCycle_ConcurrentMoveIsConflict(t *testing.T) {
	f := newFixture(t, 120, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})
	f.chain.AddLogs(boatLogs()...)

	// Another writer moves the cursor between read and commit.
	f.repo.failures.Store(1)
	f.repo.err = domain.ErrConflict

	_, err := f.scanner.RunCycle(context.Background())
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, uint64(100), f.cursorAt(t))
}

// blockingLedger holds BlockHeight until released.
type blockingLedger struct {
	*ledgertest.Chain
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLedger) BlockHeight(ctx context.Context) (uint64, error) {
	close(b.entered)
	<-b.release
	return b.Chain.BlockHeight(ctx)
}

func TestRunCycle_SingleFlight(t *testing.T) {
	f := newFixture(t, 120, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})
	bl := &blockingLedger{Chain: f.chain, entered: make(chan struct{}), release: make(chan struct{})}
	f.scanner.ledger = bl

	done := make(chan error, 1)
	go func() {
		_, err := f.scanner.RunCycle(context.Background())
		done <- err
	}()
	<-bl.entered

	_, err := f.scanner.RunCycle(context.Background())
	assert.ErrorIs(t, err, domain.ErrCycleInFlight)

	close(bl.release)
	require.NoError(t, <-done)
	assert.Equal(t, uint64(115), f.cursorAt(t))
	assert.Len(t, f.chain.GetLogsCalls(), 1)
}

type fakeLock struct {
	held     bool
	released int
}

func (l *fakeLock) TryAcquire(context.Context) (bool, error) { return !l.held, nil }
func (l *fakeLock) Release(context.Context) error            { l.released++; return nil }

func TestRunCycle_DistributedLock(t *testing.T) {
	f := newFixture(t, 120, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})
	lock := &fakeLock{held: true}
	f.scanner.lock = lock

	_, err := f.scanner.RunCycle(context.Background())
	assert.ErrorIs(t, err, domain.ErrCycleInFlight)
	assert.Empty(t, f.chain.GetLogsCalls())

	lock.held = false
	_, err = f.scanner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, lock.released)
}

// cancellingLedger cancels the cycle's context while logs are being fetched.
type cancellingLedger struct {
	*ledgertest.Chain
	cancel context.CancelFunc
}

func (c *cancellingLedger) GetLogs(ctx context.Context, from, to uint64) ([]*ledger.LogJSONRPC, error) {
	c.cancel()
	return c.Chain.GetLogs(ctx, from, to)
}

func TestRunCycle_CancelBeforeCommit(t *testing.T) {
	f := newFixture(t, 120, 100, Config{ConfirmationDepth: 5, MaxBatchBlocks: 50})
	ctx, cancel := context.WithCancel(context.Background())
	f.scanner.ledger = &cancellingLedger{Chain: f.chain, cancel: cancel}

	_, err := f.scanner.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(100), f.cursorAt(t))
}

func TestRun_CatchesUpAndStops(t *testing.T) {
	f := newFixture(t, 1000, 100, Config{PollInterval: time.Hour, ConfirmationDepth: 5, MaxBatchBlocks: 300})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.scanner.Run(ctx) }()

	require.Eventually(t, func() bool { return f.scanner.Status().Cursor == 995 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.scanner.Status().Running)
	assert.ErrorIs(t, f.scanner.Run(ctx), ErrAlreadyRunning)

	f.scanner.Stop()
	require.NoError(t, <-done)
	assert.False(t, f.scanner.Status().Running)
}

// Catching up runs cycles back to back; Stop still ends the loop between them.
func TestRun_StopWhileCatchingUp(t *testing.T) {
	f := newFixture(t, 1_000_000, 100, Config{PollInterval: time.Hour, ConfirmationDepth: 5, MaxBatchBlocks: 1})
	f.scanner.Stop()

	done := make(chan error, 1)
	go func() { done <- f.scanner.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scanner kept catching up after Stop")
	}
	assert.Equal(t, uint64(101), f.cursorAt(t))
	assert.False(t, f.scanner.Status().Running)
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t, 120, 100, Config{PollInterval: time.Hour, ConfirmationDepth: 5, MaxBatchBlocks: 50})
	f.chain.FailGetLogs(domain.ErrUnavailable, domain.ErrUnavailable, domain.ErrUnavailable, domain.ErrUnavailable)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.scanner.Run(ctx) }()

	require.Eventually(t, func() bool {
		st := f.scanner.Status()
		return st.Cursor == 115 && st.ConsecutiveFailures == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, f.chain.GetLogsCalls(), 5)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_HaltsOnInvalidRange(t *testing.T) {
	f := newFixture(t, 120, 100, Config{PollInterval: time.Millisecond, ConfirmationDepth: 5, MaxBatchBlocks: 50})
	f.chain.FailGetLogs(domain.ErrInvalidRange)

	err := f.scanner.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
	assert.True(t, f.scanner.Status().Halted)
	assert.Equal(t, uint64(100), f.cursorAt(t))
}

func TestRun_HaltsAfterRepeatedStorageFailures(t *testing.T) {
	f := newFixture(t, 120, 100, Config{PollInterval: time.Millisecond, ConfirmationDepth: 5, MaxBatchBlocks: 50})
	f.repo.failures.Store(10)

	err := f.scanner.Run(context.Background())
	require.Error(t, err)
	st := f.scanner.Status()
	assert.True(t, st.Halted)
	assert.Equal(t, 3, st.ConsecutiveFailures)
	assert.Contains(t, st.LastError, "connection reset")
	assert.Len(t, f.chain.GetLogsCalls(), 3)
}
