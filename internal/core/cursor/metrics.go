package cursor

import (
	"time"
)

// advanceRecord holds timing data for one committed range.
type advanceRecord struct {
	From        uint64
	To          uint64
	Records     int
	CommittedAt time.Time
}

// Reset is an administrative cursor override.
type Reset struct {
	From      uint64
	To        uint64
	Reason    string
	Timestamp time.Time
}

// Metrics holds cursor performance data.
type Metrics struct {
	BlocksPerSecond  float64
	RecordsCommitted int
	LastAdvanceAt    *time.Time
	LastResetAt      *time.Time
	ResetHistory     []Reset
}

// MetricsCollector tracks cursor performance over time.
type MetricsCollector struct {
	windowSize int             // number of advances to track
	advances   []advanceRecord // ring buffer of committed ranges
	resets     []Reset         // recent overrides
	records    int
}

// RecordAdvance records a committed range.
func (mc *MetricsCollector) RecordAdvance(from, to uint64, records int, at time.Time) {
	record := advanceRecord{From: from, To: to, Records: records, CommittedAt: at}
	mc.records += records

	if len(mc.advances) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.advances, mc.advances[1:])
		mc.advances[len(mc.advances)-1] = record
	} else {
		mc.advances = append(mc.advances, record)
	}
}

// RecordReset records an administrative override.
func (mc *MetricsCollector) RecordReset(r Reset) {
	// Keep only last 10 resets
	if len(mc.resets) >= 10 {
		copy(mc.resets, mc.resets[1:])
		mc.resets[len(mc.resets)-1] = r
	} else {
		mc.resets = append(mc.resets, r)
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{
		RecordsCommitted: mc.records,
		ResetHistory:     make([]Reset, len(mc.resets)),
	}
	copy(m.ResetHistory, mc.resets)

	if n := len(mc.resets); n > 0 {
		at := mc.resets[n-1].Timestamp
		m.LastResetAt = &at
	}

	if n := len(mc.advances); n > 0 {
		at := mc.advances[n-1].CommittedAt
		m.LastAdvanceAt = &at
	}

	// Blocks per second across the window
	if len(mc.advances) >= 2 {
		first := mc.advances[0]
		last := mc.advances[len(mc.advances)-1]
		duration := last.CommittedAt.Sub(first.CommittedAt)
		if duration > 0 {
			m.BlocksPerSecond = float64(last.To-first.To) / duration.Seconds()
		}
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.advances = mc.advances[:0]
	mc.resets = mc.resets[:0]
	mc.records = 0
}
