// Package health provides system health monitoring and status reporting.
package health

import (
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// ScannerHealth contains health metrics for the ingestion loop.
type ScannerHealth struct {
	Status              SystemStatus `json:"status"`
	Running             bool         `json:"running"`
	Halted              bool         `json:"halted"`
	Cursor              uint64       `json:"cursor"`
	Height              uint64       `json:"height"`
	BlockLag            uint64       `json:"block_lag"`
	SecondsSinceAdvance float64      `json:"seconds_since_advance"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastError           string       `json:"last_error,omitempty"`
}

// RecordCounts tallies stored records by status.
type RecordCounts struct {
	Events       storage.StatusCounts `json:"events"`
	Certificates storage.StatusCounts `json:"certificates"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus            `json:"system_status"`
	Scanner      ScannerHealth           `json:"scanner"`
	Dependencies map[string]SystemStatus `json:"dependencies,omitempty"`
	Records      *RecordCounts           `json:"records,omitempty"`
}
