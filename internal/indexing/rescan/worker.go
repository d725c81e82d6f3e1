// Package rescan re-ingests block ranges behind the cursor. Ranges come from a queue,
// are fetched in chunks and upserted through the same normalizer as the scanner, so
// rows a validator already acted on keep their decision.
package rescan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/indexing/metrics"
	"github.com/vietddude/boatwatch/internal/indexing/recovery"
	"github.com/vietddude/boatwatch/internal/infra/ledger"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// Queue is the shared list of pending ranges plus per-range progress.
type Queue interface {
	PushRange(ctx context.Context, start, end uint64) error
	PopRange(ctx context.Context) (start, end uint64, found bool, err error)
	PendingRanges(ctx context.Context) ([]string, error)
	ClearQueue(ctx context.Context) error
	GetProgress(ctx context.Context, start, end uint64) (uint64, bool, error)
	SetProgress(ctx context.Context, start, end, current uint64, ttl time.Duration) error
	ClearProgress(ctx context.Context, start, end uint64) error
}

// Ledger fetches logs for a chunk.
type Ledger interface {
	GetLogs(ctx context.Context, from, to uint64) ([]*ledger.LogJSONRPC, error)
}

// Normalizer converts the logs of one chunk into a batch.
type Normalizer interface {
	NormalizeRange(ctx context.Context, logs []*ledger.LogJSONRPC) (*storage.Batch, error)
}

// CursorReader exposes the watermark; ranges past it are the scanner's job.
type CursorReader interface {
	Get(ctx context.Context) (*domain.Cursor, error)
}

// Lock guards one range against concurrent workers.
type Lock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory returns the lock for a range key. Nil disables locking.
type LockFactory func(key string) Lock

// WorkerConfig holds configuration for the rescan worker.
type WorkerConfig struct {
	ChunkSize   uint64        // Max blocks per GetLogs call (default: 1000)
	ProgressTTL time.Duration // Progress TTL (default: 24h)
	EmptySleep  time.Duration // Sleep when queue empty (default: 10s)
}

// DefaultConfig returns default worker configuration.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		ChunkSize:   1000,
		ProgressTTL: 24 * time.Hour,
		EmptySleep:  10 * time.Second,
	}
}

// Worker processes rescan ranges from the queue.
type Worker struct {
	cfg     WorkerConfig
	queue   Queue
	ledger  Ledger
	norm    Normalizer
	applier storage.BatchApplier
	cursor  CursorReader
	locks   LockFactory
	tracker *recovery.Tracker
	log     *slog.Logger
}

// NewWorker creates a new rescan worker.
func NewWorker(
	cfg WorkerConfig,
	queue Queue,
	ledger Ledger,
	norm Normalizer,
	applier storage.BatchApplier,
	cursor CursorReader,
	locks LockFactory,
	strategy recovery.RetryStrategy,
) *Worker {
	def := DefaultConfig()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ProgressTTL == 0 {
		cfg.ProgressTTL = def.ProgressTTL
	}
	if cfg.EmptySleep == 0 {
		cfg.EmptySleep = def.EmptySleep
	}
	if strategy == nil {
		strategy = recovery.DefaultBackoff(nil)
	}
	return &Worker{
		cfg:     cfg,
		queue:   queue,
		ledger:  ledger,
		norm:    norm,
		applier: applier,
		cursor:  cursor,
		locks:   locks,
		tracker: recovery.NewTracker(strategy),
		log:     slog.Default().With("component", "rescan"),
	}
}

// Enqueue validates a range and queues it. Ranges must end at or below the cursor.
func (w *Worker) Enqueue(ctx context.Context, start, end uint64) error {
	r, err := NewRange(start, end)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRange, err)
	}
	if w.cursor != nil {
		c, err := w.cursor.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to read cursor: %w", err)
		}
		if r.End > c.LastBlock {
			return fmt.Errorf("%w: %s ends after cursor %d", domain.ErrInvalidRange, r, c.LastBlock)
		}
	}
	if err := w.queue.PushRange(ctx, r.Start, r.End); err != nil {
		return fmt.Errorf("failed to queue range %s: %w", r, err)
	}
	w.log.Info("Range queued", "range", r.String())
	return nil
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting rescan worker")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Rescan worker stopped")
			return nil
		default:
		}

		found, err := w.RunOnce(ctx)
		if err != nil {
			delay, retry := w.tracker.Failure(err)
			if !retry {
				delay = w.cfg.EmptySleep
			}
			w.log.Warn("Rescan attempt failed", "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}
		w.tracker.Success()
		if !found && !sleep(ctx, w.cfg.EmptySleep) {
			return nil
		}
	}
}

// RunOnce pops and processes one range. found is false when the queue was empty.
// A failed range is re-queued with its progress kept, unless the ledger refuses it.
func (w *Worker) RunOnce(ctx context.Context) (found bool, err error) {
	if err := w.mergeQueueRanges(ctx); err != nil {
		w.log.Warn("Failed to merge ranges", "error", err)
	}

	start, end, found, err := w.queue.PopRange(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to pop range: %w", err)
	}
	if !found {
		return false, nil
	}
	r := Range{Start: start, End: end}

	if err := w.processRange(ctx, r); err != nil {
		if recovery.ClassifyScanError(err) == recovery.CategoryFatal {
			metrics.RescanRanges.WithLabelValues("dropped").Inc()
			w.log.Error("Dropping range", "range", r.String(), "error", err)
			_ = w.queue.ClearProgress(context.WithoutCancel(ctx), r.Start, r.End)
			return true, nil
		}
		metrics.RescanRanges.WithLabelValues("failed").Inc()
		if reqErr := w.queue.PushRange(context.WithoutCancel(ctx), r.Start, r.End); reqErr != nil {
			w.log.Error("Failed to re-queue range", "range", r.String(), "error", reqErr)
		}
		return true, err
	}
	return true, nil
}

// processRange applies every chunk of r after the recorded progress.
func (w *Worker) processRange(ctx context.Context, r Range) error {
	if w.locks != nil {
		lock := w.locks(r.String())
		ok, err := lock.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("%w: lock %s: %v", domain.ErrUnavailable, r, err)
		}
		if !ok {
			metrics.RescanRanges.WithLabelValues("skipped").Inc()
			w.log.Debug("Range locked by another worker", "range", r.String())
			return nil
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				w.log.Warn("Failed to release lock", "range", r.String(), "error", err)
			}
		}()
	}

	todo := r
	last, ok, err := w.queue.GetProgress(ctx, r.Start, r.End)
	if err != nil {
		return fmt.Errorf("failed to get progress: %w", err)
	}
	if ok {
		if todo, ok = r.From(last + 1); !ok {
			w.finish(ctx, r)
			return nil
		}
		w.log.Info("Resuming range", "range", r.String(), "from", todo.Start)
	}

	for _, chunk := range todo.Split(w.cfg.ChunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.processChunk(ctx, chunk)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", chunk, err)
		}
		if err := w.queue.SetProgress(ctx, r.Start, r.End, chunk.End, w.cfg.ProgressTTL); err != nil {
			w.log.Warn("Failed to update progress", "range", r.String(), "error", err)
		}
		w.log.Debug("Chunk applied", "chunk", chunk.String(), "records", n)
	}

	w.finish(ctx, r)
	return nil
}

func (w *Worker) finish(ctx context.Context, r Range) {
	if err := w.queue.ClearProgress(context.WithoutCancel(ctx), r.Start, r.End); err != nil {
		w.log.Warn("Failed to clear progress", "range", r.String(), "error", err)
	}
	metrics.RescanRanges.WithLabelValues("completed").Inc()
	w.log.Info("Range completed", "range", r.String())
}

func (w *Worker) processChunk(ctx context.Context, chunk Range) (int, error) {
	logs, err := w.ledger.GetLogs(ctx, chunk.Start, chunk.End)
	if err != nil {
		return 0, err
	}
	batch, err := w.norm.NormalizeRange(ctx, logs)
	if err != nil {
		return 0, err
	}
	if batch.Empty() {
		return 0, nil
	}
	if err := w.applier.Apply(ctx, batch); err != nil {
		return 0, fmt.Errorf("apply failed: %w", err)
	}
	metrics.DBBatchSize.WithLabelValues("rescan").Observe(float64(batch.Size()))
	return batch.Size(), nil
}

// mergeQueueRanges merges overlapping or adjacent ranges in the queue.
func (w *Worker) mergeQueueRanges(ctx context.Context) error {
	rangeStrs, err := w.queue.PendingRanges(ctx)
	if err != nil {
		return err
	}
	if len(rangeStrs) <= 1 {
		return nil
	}

	ranges, err := RangesFromStrings(rangeStrs)
	if err != nil {
		return err
	}
	merged := MergeRanges(ranges)
	if len(merged) == len(ranges) {
		return nil
	}

	w.log.Info("Merging ranges", "before", len(ranges), "after", len(merged))
	if err := w.queue.ClearQueue(ctx); err != nil {
		return err
	}
	for _, r := range merged {
		if err := w.queue.PushRange(ctx, r.Start, r.End); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
