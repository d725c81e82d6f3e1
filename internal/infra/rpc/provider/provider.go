// Package provider implements JSON-RPC endpoints for the ledger.
//
// This package contains:
//   - Provider interface: core abstraction for RPC endpoints
//   - HTTPProvider: JSON-RPC 2.0 over HTTP
//   - ProviderMonitor: latency and throttle tracking
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Provider defines the lifecycle and health surface of an RPC endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "alchemy", "local-node")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Close cleans up resources
	Close() error
}

// RPCProvider extends Provider with JSON-RPC calls.
type RPCProvider interface {
	Provider

	// Call makes a single RPC request and returns the raw result.
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
