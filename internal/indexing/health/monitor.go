package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/boatwatch/internal/indexing/scanner"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// ScannerStatus reports the ingestion loop state.
type ScannerStatus interface {
	Status() scanner.Status
}

// Check probes one dependency, such as the database or Redis.
type Check func(ctx context.Context) error

// Thresholds decide when the scanner is degraded or critical.
type Thresholds struct {
	DegradedLag uint64
	CriticalLag uint64
	// StaleAfter marks the scanner degraded when it is behind and has not advanced for this long.
	StaleAfter time.Duration
	// CacheFor rate limits checks against the dependencies.
	CacheFor time.Duration
}

// DefaultThresholds returns default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedLag: 10,
		CriticalLag: 100,
		StaleAfter:  5 * time.Minute,
		CacheFor:    10 * time.Second,
	}
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	scanner      ScannerStatus
	stats        storage.StatsRepository
	dependencies map[string]Check
	thresholds   Thresholds
	now          func() time.Time

	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. stats and dependencies may be nil.
func NewMonitor(
	scanner ScannerStatus,
	stats storage.StatsRepository,
	dependencies map[string]Check,
	thresholds Thresholds,
) *Monitor {
	return &Monitor{
		scanner:      scanner,
		stats:        stats,
		dependencies: dependencies,
		thresholds:   thresholds,
		now:          time.Now,
	}
}

// CheckHealth builds a report, reusing the previous one within CacheFor.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < m.thresholds.CacheFor {
		return *m.lastReport
	}

	report := HealthReport{Scanner: m.scannerHealth(now)}
	status := report.Scanner.Status

	if len(m.dependencies) > 0 {
		report.Dependencies = make(map[string]SystemStatus, len(m.dependencies))
		for name, check := range m.dependencies {
			depStatus := StatusHealthy
			if err := check(ctx); err != nil {
				depStatus = StatusCritical
			}
			report.Dependencies[name] = depStatus
			status = worse(status, depStatus)
		}
	}

	if m.stats != nil {
		events, certs, err := m.stats.CountByStatus(ctx)
		if err == nil {
			report.Records = &RecordCounts{Events: events, Certificates: certs}
		}
	}

	report.SystemStatus = status
	m.lastCheck = now
	m.lastReport = &report
	return report
}

func (m *Monitor) scannerHealth(now time.Time) ScannerHealth {
	st := m.scanner.Status()
	h := ScannerHealth{
		Status:              StatusHealthy,
		Running:             st.Running,
		Halted:              st.Halted,
		Cursor:              st.Cursor,
		Height:              st.Height,
		ConsecutiveFailures: st.ConsecutiveFailures,
		LastError:           st.LastError,
	}
	if st.Height > st.Cursor {
		h.BlockLag = st.Height - st.Cursor
	}
	if !st.LastAdvanceAt.IsZero() {
		h.SecondsSinceAdvance = now.Sub(st.LastAdvanceAt).Seconds()
	}

	stale := h.BlockLag > m.thresholds.DegradedLag && !st.LastAdvanceAt.IsZero() &&
		now.Sub(st.LastAdvanceAt) > m.thresholds.StaleAfter

	switch {
	case st.Halted || h.BlockLag > m.thresholds.CriticalLag:
		h.Status = StatusCritical
	case h.BlockLag > m.thresholds.DegradedLag || st.ConsecutiveFailures > 0 || stale:
		h.Status = StatusDegraded
	}
	return h
}
