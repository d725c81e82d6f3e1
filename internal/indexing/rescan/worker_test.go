package rescan

import (
	"context"
	"errors"
	"sort"
	"sync"
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
	redisclient "github.com/vietddude/boatwatch/internal/infra/redis"
	"github.com/vietddude/boatwatch/internal/infra/storage/memory"
)

const (
	owner        = "0x0000000000000000000000000000000000000a01"
	professional = "0x0000000000000000000000000000000000000c03"
	admin        = "0x0000000000000000000000000000000000000d04"
	contentHash  = "0x1b4f0e9851971998e732078544c96b36c3d01cedf7caa332359d6f1d83567014"
)

// memQueue mirrors the Redis sorted-set queue: members are unique and pop lowest start first.
type memQueue struct {
	mu       sync.Mutex
	ranges   map[string]Range
	progress map[string]uint64
}

func newMemQueue() *memQueue {
	return &memQueue{ranges: map[string]Range{}, progress: map[string]uint64{}}
}

func (q *memQueue) PushRange(_ context.Context, start, end uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	r := Range{Start: start, End: end}
	q.ranges[r.String()] = r
	return nil
}

func (q *memQueue) PopRange(_ context.Context) (uint64, uint64, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ranges) == 0 {
		return 0, 0, false, nil
	}
	var first *Range
	for _, r := range q.ranges {
		if first == nil || r.Start < first.Start {
			r := r
			first = &r
		}
	}
	delete(q.ranges, first.String())
	return first.Start, first.End, true, nil
}

func (q *memQueue) PendingRanges(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.ranges))
	for k := range q.ranges {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (q *memQueue) ClearQueue(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ranges = map[string]Range{}
	return nil
}

func (q *memQueue) GetProgress(_ context.Context, start, end uint64) (uint64, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.progress[redisclient.FormatRange(start, end)]
	return v, ok, nil
}

func (q *memQueue) SetProgress(_ context.Context, start, end, current uint64, _ time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress[redisclient.FormatRange(start, end)] = current
	return nil
}

func (q *memQueue) ClearProgress(_ context.Context, start, end uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.progress, redisclient.FormatRange(start, end))
	return nil
}

type fixedLock struct {
	acquired bool
	released bool
}

func (l *fixedLock) TryAcquire(context.Context) (bool, error) {
	return l.acquired, nil
}

func (l *fixedLock) Release(context.Context) error {
	l.released = true
	return nil
}

type fixture struct {
	chain   *ledgertest.Chain
	queue   *memQueue
	store   *memory.MemoryStorage
	records *memory.RecordRepo
	manager *cursor.DefaultManager
	worker  *Worker
}

func newFixture(t *testing.T, cursorAt uint64, chunk uint64, locks LockFactory) *fixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	table := authz.NewStaticTable().Grant(professional, domain.CapabilityCertifiedProfessional, 0)
	norm := normalizer.New(memory.NewBoatRepo(store), authz.NewGate(table, table))
	cursorRepo := memory.NewCursorRepo(store)
	manager := cursor.NewManager(cursorRepo, cursorAt)
	chain := ledgertest.NewChain(cursorAt + 10)
	queue := newMemQueue()

	strategy := recovery.DefaultBackoff(nil)
	strategy.InitialDelay = time.Millisecond
	strategy.MaxDelay = time.Millisecond

	cfg := WorkerConfig{ChunkSize: chunk, EmptySleep: time.Millisecond}
	return &fixture{
		chain:   chain,
		queue:   queue,
		store:   store,
		records: memory.NewRecordRepo(store),
		manager: manager,
		worker:  NewWorker(cfg, queue, chain, norm, cursorRepo, manager, locks, strategy),
	}
}

func (f *fixture) eventStatus(t *testing.T, tx string, index uint64) *domain.BoatEvent {
	t.Helper()
	e, err := f.records.GetEvent(context.Background(), domain.EventID(tx, index))
	require.NoError(t, err)
	return e
}

func TestRange_Split(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		size uint64
		want []Range
	}{
		{"fits", Range{1, 5}, 10, []Range{{1, 5}}},
		{"exact", Range{1, 6}, 3, []Range{{1, 3}, {4, 6}}},
		{"remainder", Range{1, 7}, 3, []Range{{1, 3}, {4, 6}, {7, 7}}},
		{"single block", Range{9, 9}, 1, []Range{{9, 9}}},
		{"zero size", Range{1, 2}, 0, []Range{{1, 1}, {2, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Split(tt.size))
		})
	}
}

func TestMergeRanges(t *testing.T) {
	in := []Range{{200, 210}, {100, 110}, {111, 120}, {105, 107}}
	assert.Equal(t, []Range{{100, 120}, {200, 210}}, MergeRanges(in))
	assert.Equal(t, Range{200, 210}, in[0], "input is left untouched")
}

func TestRange_From(t *testing.T) {
	r := Range{10, 20}
	tail, ok := r.From(15)
	assert.True(t, ok)
	assert.Equal(t, Range{15, 20}, tail)

	tail, ok = r.From(5)
	assert.True(t, ok)
	assert.Equal(t, r, tail)

	_, ok = r.From(21)
	assert.False(t, ok)
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("12000-12500")
	require.NoError(t, err)
	assert.Equal(t, Range{12000, 12500}, r)

	_, err = ParseRange("12500-12000")
	assert.Error(t, err)
	_, err = ParseRange("nope")
	assert.Error(t, err)
}

func TestEnqueue_Validation(t *testing.T) {
	f := newFixture(t, 200, 10, nil)
	ctx := context.Background()

	err := f.worker.Enqueue(ctx, 150, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	err = f.worker.Enqueue(ctx, 150, 201)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	require.NoError(t, f.worker.Enqueue(ctx, 150, 200))
	pending, err := f.queue.PendingRanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"150-200"}, pending)
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	f := newFixture(t, 200, 10, nil)

	found, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, f.chain.GetLogsCalls())
}

func TestRunOnce_ChunksAndLeavesCursor(t *testing.T) {
	f := newFixture(t, 200, 3, nil)
	ctx := context.Background()
	f.chain.AddLogs(
		ledgertest.Transfer(101, 0, ledgertest.Hash(1), ledger.ZeroAddress, owner, 7),
		ledgertest.Event(105, 0, ledgertest.Hash(2), 7, 1, 1700000000, professional, contentHash),
	)
	require.NoError(t, f.worker.Enqueue(ctx, 101, 110))

	found, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, [][2]uint64{{101, 103}, {104, 106}, {107, 109}, {110, 110}}, f.chain.GetLogsCalls())

	assert.Equal(t, domain.StatusPending, f.eventStatus(t, ledgertest.Hash(2), 0).Status)

	c, err := f.manager.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), c.LastBlock)

	_, ok, _ := f.queue.GetProgress(ctx, 101, 110)
	assert.False(t, ok, "progress cleared on completion")
}

// A repaired mint flips unreviewed anomalies back to pending but leaves reviewed rows alone.
func TestRunOnce_RederivesOnlyUnreviewed(t *testing.T) {
	f := newFixture(t, 200, 50, nil)
	ctx := context.Background()
	f.chain.AddLogs(
		ledgertest.Event(103, 0, ledgertest.Hash(2), 42, 1, 1700000000, professional, contentHash),
		ledgertest.Event(105, 0, ledgertest.Hash(3), 42, 1, 1700000000, professional, contentHash),
	)
	require.NoError(t, f.worker.Enqueue(ctx, 101, 110))
	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuspicious, f.eventStatus(t, ledgertest.Hash(2), 0).Status)
	assert.Equal(t, domain.StatusSuspicious, f.eventStatus(t, ledgertest.Hash(3), 0).Status)

	now := time.Now()
	ok, err := f.records.CompareAndSetStatus(ctx, domain.EventID(ledgertest.Hash(2), 0), domain.StatusSuspicious,
		domain.Validation{Status: domain.StatusRejected, ValidatedBy: admin, ValidatedAt: &now})
	require.NoError(t, err)
	require.True(t, ok)

	f.chain.AddLogs(ledgertest.Transfer(101, 0, ledgertest.Hash(1), ledger.ZeroAddress, owner, 42))
	require.NoError(t, f.worker.Enqueue(ctx, 101, 110))
	_, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)

	reviewed := f.eventStatus(t, ledgertest.Hash(2), 0)
	assert.Equal(t, domain.StatusRejected, reviewed.Status)
	assert.Equal(t, admin, reviewed.ValidatedBy)
	assert.Equal(t, domain.StatusPending, f.eventStatus(t, ledgertest.Hash(3), 0).Status)
}

func TestRunOnce_ResumesFromProgress(t *testing.T) {
	f := newFixture(t, 200, 5, nil)
	ctx := context.Background()
	require.NoError(t, f.queue.PushRange(ctx, 101, 120))
	require.NoError(t, f.queue.SetProgress(ctx, 101, 120, 110, time.Hour))

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{111, 115}, {116, 120}}, f.chain.GetLogsCalls())
}

func TestRunOnce_FailureRequeuesWithProgress(t *testing.T) {
	f := newFixture(t, 200, 5, nil)
	ctx := context.Background()
	require.NoError(t, f.worker.Enqueue(ctx, 101, 115))
	// First chunk succeeds, second hits an outage.
	failing := &failAfter{Chain: f.chain, ok: 1, err: domain.ErrUnavailable}
	f.worker.ledger = failing

	found, err := f.worker.RunOnce(ctx)
	assert.True(t, found)
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	pending, _ := f.queue.PendingRanges(ctx)
	assert.Equal(t, []string{"101-115"}, pending)
	last, ok, _ := f.queue.GetProgress(ctx, 101, 115)
	require.True(t, ok)
	assert.Equal(t, uint64(105), last)

	failing.err = nil
	_, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{106, 110}, {111, 115}}, failing.calls[2:])
}

func TestRunOnce_InvalidRangeIsDropped(t *testing.T) {
	f := newFixture(t, 200, 50, nil)
	ctx := context.Background()
	require.NoError(t, f.worker.Enqueue(ctx, 101, 110))
	f.worker.ledger = &failAfter{Chain: f.chain, err: domain.ErrInvalidRange}

	found, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	pending, _ := f.queue.PendingRanges(ctx)
	assert.Empty(t, pending)
}

func TestRunOnce_LockedRangeSkipped(t *testing.T) {
	lock := &fixedLock{acquired: false}
	f := newFixture(t, 200, 50, func(string) Lock { return lock })
	ctx := context.Background()
	require.NoError(t, f.worker.Enqueue(ctx, 101, 110))

	found, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, f.chain.GetLogsCalls())
	assert.False(t, lock.released)
}

func TestRunOnce_LockReleased(t *testing.T) {
	lock := &fixedLock{acquired: true}
	var keys []string
	f := newFixture(t, 200, 50, func(key string) Lock {
		keys = append(keys, key)
		return lock
	})
	ctx := context.Background()
	require.NoError(t, f.worker.Enqueue(ctx, 101, 110))

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"101-110"}, keys)
	assert.True(t, lock.released)
}

func TestRunOnce_MergesQueue(t *testing.T) {
	f := newFixture(t, 300, 100, nil)
	ctx := context.Background()
	for _, r := range []Range{{100, 110}, {111, 120}, {200, 210}} {
		require.NoError(t, f.worker.Enqueue(ctx, r.Start, r.End))
	}

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{100, 120}}, f.chain.GetLogsCalls())

	pending, _ := f.queue.PendingRanges(ctx)
	assert.Equal(t, []string{"200-210"}, pending)
}

func TestRun_DrainsAndStops(t *testing.T) {
	f := newFixture(t, 200, 50, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.worker.Enqueue(ctx, 101, 110))
	f.chain.FailGetLogs(errors.New("connection reset"))

	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	assert.Eventually(t, func() bool {
		pending, _ := f.queue.PendingRanges(context.Background())
		return len(pending) == 0 && len(f.chain.GetLogsCalls()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

// failAfter lets ok GetLogs calls through, then returns err while err is set.
type failAfter struct {
	*ledgertest.Chain
	mu    sync.Mutex
	ok    int
	err   error
	calls [][2]uint64
}

func (l *failAfter) GetLogs(ctx context.Context, from, to uint64) ([]*ledger.LogJSONRPC, error) {
	l.mu.Lock()
	l.calls = append(l.calls, [2]uint64{from, to})
	fail := l.err != nil && len(l.calls) > l.ok
	err := l.err
	l.mu.Unlock()
	if fail {
		return nil, err
	}
	return l.Chain.GetLogs(ctx, from, to)
}
