// Package scanner drives ingestion: it polls the ledger head, fetches the logs of the
// next confirmed range, normalizes them and commits the records together with the
// cursor move.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/boatwatch/internal/core/cursor"
	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/indexing/metrics"
	"github.com/vietddude/boatwatch/internal/indexing/recovery"
	"github.com/vietddude/boatwatch/internal/infra/ledger"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("scanner already running")

// Ledger is the read side of the ledger the scanner needs.
type Ledger interface {
	BlockHeight(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, from, to uint64) ([]*ledger.LogJSONRPC, error)
}

// Normalizer converts the logs of one range into a batch.
type Normalizer interface {
	NormalizeRange(ctx context.Context, logs []*ledger.LogJSONRPC) (*storage.Batch, error)
}

// Lock is an optional lease shared with other scanner processes.
type Lock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Config holds scanner settings.
type Config struct {
	PollInterval      time.Duration
	ConfirmationDepth uint64
	MaxBatchBlocks    uint64
	// CommitTimeout bounds the cursor commit, which is not cancelled by shutdown.
	CommitTimeout time.Duration
}

// Result describes one cycle.
type Result struct {
	Height   uint64
	Cursor   uint64
	From, To uint64
	Scanned  bool
	Logs     int
	Records  int
}

// Status is a snapshot of the loop for health reporting.
type Status struct {
	Running             bool
	Halted              bool
	Cursor              uint64
	Height              uint64
	LastAdvanceAt       time.Time
	ConsecutiveFailures int
	LastError           string
}

// Scanner is the ingestion loop.
type Scanner struct {
	cfg     Config
	ledger  Ledger
	norm    Normalizer
	cursor  cursor.Manager
	lock    Lock
	tracker *recovery.Tracker
	log     *slog.Logger

	running atomic.Bool
	halted  atomic.Bool
	cycle   sync.Mutex
	stop    chan struct{}
	stopped sync.Once

	mu     sync.RWMutex
	status Status
}

// New creates a scanner. lock may be nil.
func New(cfg Config, l Ledger, norm Normalizer, cur cursor.Manager, lock Lock, strategy recovery.RetryStrategy) *Scanner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxBatchBlocks == 0 {
		cfg.MaxBatchBlocks = 1000
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 30 * time.Second
	}
	if strategy == nil {
		strategy = recovery.DefaultBackoff(nil)
	}
	return &Scanner{
		cfg:     cfg,
		ledger:  l,
		norm:    norm,
		cursor:  cur,
		lock:    lock,
		tracker: recovery.NewTracker(strategy),
		log:     slog.Default().With("component", "scanner"),
		stop:    make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or Stop is called. It returns an error only when
// the loop halts on a failure that must not be retried.
func (s *Scanner) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.log.Info("Scanner started",
		"interval", s.cfg.PollInterval,
		"confirmations", s.cfg.ConfirmationDepth,
		"maxBatch", s.cfg.MaxBatchBlocks,
	)

	for {
		wait := s.cfg.PollInterval

		res, err := s.RunCycle(ctx)
		switch {
		case err == nil:
			s.tracker.Success()
			metrics.ScannerConsecutiveFailures.Set(0)
			if res.Scanned && s.behind(res) {
				wait = 0
			}
		case ctx.Err() != nil:
			s.log.Info("Scanner stopped", "reason", ctx.Err())
			return nil
		case errors.Is(err, domain.ErrCycleInFlight):
			s.log.Debug("Cycle already in flight, skipping")
		default:
			delay, retry := s.tracker.Failure(err)
			failures := s.tracker.ConsecutiveFailures()
			metrics.ScannerConsecutiveFailures.Set(float64(failures))
			s.setError(err, failures)
			if !retry {
				s.halted.Store(true)
				metrics.ScannerHalted.Set(1)
				s.log.Error("Scanner halted",
					"error", err,
					"category", recovery.ClassifyScanError(err).String(),
					"failures", failures,
				)
				return fmt.Errorf("scanner halted: %w", err)
			}
			s.log.Warn("Scan cycle failed, retrying same range",
				"error", err,
				"failures", failures,
				"retryIn", delay,
			)
			wait = delay
		}

		if wait == 0 {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case <-s.stop:
				s.log.Info("Scanner stopped")
				return nil
			default:
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("Scanner stopped", "reason", ctx.Err())
			return nil
		case <-s.stop:
			timer.Stop()
			s.log.Info("Scanner stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Stop ends Run after the current cycle.
func (s *Scanner) Stop() {
	s.stopped.Do(func() { close(s.stop) })
}

// behind reports whether confirmed blocks remain above the committed range.
func (s *Scanner) behind(res Result) bool {
	return res.Height >= s.cfg.ConfirmationDepth && res.To < res.Height-s.cfg.ConfirmationDepth
}

// RunCycle performs a single cycle. Only one cycle runs at a time; a concurrent call
// returns domain.ErrCycleInFlight without doing anything.
func (s *Scanner) RunCycle(ctx context.Context) (Result, error) {
	if !s.cycle.TryLock() {
		return Result{}, domain.ErrCycleInFlight
	}
	defer s.cycle.Unlock()

	if s.lock != nil {
		ok, err := s.lock.TryAcquire(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("%w: scanner lock: %v", domain.ErrUnavailable, err)
		}
		if !ok {
			return Result{}, fmt.Errorf("%w: held by another process", domain.ErrCycleInFlight)
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("Failed to release scanner lock", "error", err)
			}
		}()
	}

	start := time.Now()
	res, err := s.cycleOnce(ctx)
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !res.Scanned:
		result = "idle"
	}
	metrics.ScanCycles.WithLabelValues(result).Inc()
	if err == nil && res.Scanned {
		s.log.Info("Range committed",
			"from", res.From,
			"to", res.To,
			"height", res.Height,
			"logs", res.Logs,
			"records", res.Records,
			"duration", time.Since(start),
		)
	}
	return res, err
}

func (s *Scanner) cycleOnce(ctx context.Context) (Result, error) {
	height, err := s.ledger.BlockHeight(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read block height: %w", err)
	}
	metrics.ChainLatestBlock.Set(float64(height))

	cur, err := s.cursor.Get(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Height: height, Cursor: cur.LastBlock}
	s.observe(cur.LastBlock, height)

	from, to, ok := Window(cur.LastBlock, height, s.cfg.ConfirmationDepth, s.cfg.MaxBatchBlocks)
	if !ok {
		return res, nil
	}
	res.From, res.To = from, to

	logs, err := s.ledger.GetLogs(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("fetch logs %d-%d: %w", from, to, err)
	}
	res.Logs = len(logs)

	batch, err := s.norm.NormalizeRange(ctx, logs)
	if err != nil {
		return res, fmt.Errorf("normalize %d-%d: %w", from, to, err)
	}
	res.Records = batch.Size()

	// Shutdown may abort the cycle up to here; the commit itself always completes.
	if err := ctx.Err(); err != nil {
		return res, err
	}
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CommitTimeout)
	defer cancel()

	commitStart := time.Now()
	if err := s.cursor.Advance(commitCtx, cur.LastBlock, to, batch); err != nil {
		return res, fmt.Errorf("commit %d-%d: %w", from, to, err)
	}
	metrics.CommitDuration.Observe(time.Since(commitStart).Seconds())
	metrics.BlocksProcessed.Add(float64(to - cur.LastBlock))

	res.Scanned = true
	res.Cursor = to
	s.advanced(to, height)
	return res, nil
}

func (s *Scanner) observe(cur, height uint64) {
	metrics.IndexerLatestBlock.Set(float64(cur))
	if height > cur {
		metrics.ScannerLag.Set(float64(height - cur))
	} else {
		metrics.ScannerLag.Set(0)
	}
	s.mu.Lock()
	s.status.Cursor, s.status.Height = cur, height
	s.mu.Unlock()
}

func (s *Scanner) advanced(cur, height uint64) {
	s.observe(cur, height)
	s.mu.Lock()
	s.status.LastAdvanceAt = time.Now()
	s.status.ConsecutiveFailures = 0
	s.status.LastError = ""
	s.mu.Unlock()
}

func (s *Scanner) setError(err error, failures int) {
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.status.ConsecutiveFailures = failures
	s.mu.Unlock()
}

// Status returns a snapshot of the loop.
func (s *Scanner) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	st.Running = s.running.Load()
	st.Halted = s.halted.Load()
	return st
}
