// Package routing handles provider selection, rotation, and failover logic.
//
// This package contains:
//   - Router: round-robin provider selection with a circuit breaker
//   - Retry: retry logic with exponential backoff, jitter and failover
package routing

import (
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/boatwatch/internal/infra/rpc/provider"
)

// circuitThreshold is the number of consecutive failures that opens a provider's circuit.
const circuitThreshold = 5

// circuitCooldown is how long an open circuit keeps a provider out of rotation.
const circuitCooldown = 30 * time.Second

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpen      bool
}

// Router selects among the configured ledger endpoints.
type Router struct {
	mu             sync.RWMutex
	providers      []provider.RPCProvider
	providerHealth map[string]*providerMetrics
	lastUsedIndex  int
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		providerHealth: make(map[string]*providerMetrics),
	}
}

// AddProvider registers a provider.
func (r *Router) AddProvider(p provider.RPCProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	r.providerHealth[p.GetName()] = &providerMetrics{
		lastSuccessAt: time.Now(),
	}
}

// Providers returns usable providers in rotation order, starting with the next one in
// round-robin sequence. Providers that are blocked or have an open circuit go last.
func (r *Router) Providers() ([]provider.RPCProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	start := r.lastUsedIndex % len(r.providers)
	r.lastUsedIndex = (start + 1) % len(r.providers)

	ordered := make([]provider.RPCProvider, 0, len(r.providers))
	var fallback []provider.RPCProvider
	for i := range r.providers {
		p := r.providers[(start+i)%len(r.providers)]
		if r.usableLocked(p) {
			ordered = append(ordered, p)
		} else {
			fallback = append(fallback, p)
		}
	}
	return append(ordered, fallback...), nil
}

func (r *Router) usableLocked(p provider.RPCProvider) bool {
	if !p.IsAvailable() {
		return false
	}
	m, ok := r.providerHealth[p.GetName()]
	if !ok || !m.circuitOpen {
		return true
	}
	// Half-open after cooldown.
	return time.Since(m.lastFailureAt) > circuitCooldown
}

// AllProviders returns every registered provider.
func (r *Router) AllProviders() []provider.RPCProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]provider.RPCProvider, len(r.providers))
	copy(result, r.providers)
	return result
}

// RecordSuccess records a successful call.
func (r *Router) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	m.successCount++
	m.totalLatency += latency
	m.lastSuccessAt = time.Now()
	m.consecutiveFails = 0
	m.circuitOpen = false
}

// RecordFailure records a failed call.
func (r *Router) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	m.failureCount++
	m.lastFailureAt = time.Now()
	m.consecutiveFails++

	if m.consecutiveFails >= circuitThreshold {
		m.circuitOpen = true
	}
}

// CircuitOpen reports whether a provider's circuit is open.
func (r *Router) CircuitOpen(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.providerHealth[providerName]
	return ok && m.circuitOpen
}
