package authz

import (
	"context"
	"log/slog"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

// RoleReader is the ledger call behind a role lookup.
type RoleReader interface {
	HasRole(ctx context.Context, capability domain.Capability, account string, block uint64) (bool, error)
}

// RoleCache holds facts read at a given block for a bounded time.
type RoleCache interface {
	Get(ctx context.Context, address string, capability domain.Capability, block uint64) (granted, found bool, err error)
	Set(ctx context.Context, fact domain.RoleFact) error
}

// LedgerRoles reads capabilities from the role registry, through an optional cache.
type LedgerRoles struct {
	reader RoleReader
	cache  RoleCache
	log    *slog.Logger
}

// NewLedgerRoles creates a ledger-backed role source. cache may be nil.
func NewLedgerRoles(reader RoleReader, cache RoleCache) *LedgerRoles {
	return &LedgerRoles{
		reader: reader,
		cache:  cache,
		log:    slog.Default().With("component", "authz"),
	}
}

// HasCapability implements RoleSource.
func (l *LedgerRoles) HasCapability(ctx context.Context, address string, capability domain.Capability, block uint64) (bool, error) {
	if l.cache != nil {
		granted, found, err := l.cache.Get(ctx, address, capability, block)
		if err != nil {
			l.log.Warn("Role cache read failed", "error", err)
		} else if found {
			recordLookup("cache")
			return granted, nil
		}
	}

	granted, err := l.reader.HasRole(ctx, capability, address, block)
	if err != nil {
		return false, err
	}
	recordLookup("ledger")

	if l.cache != nil {
		fact := domain.RoleFact{Address: address, Capability: capability, AsOfBlock: block, Granted: granted}
		if err := l.cache.Set(ctx, fact); err != nil {
			l.log.Warn("Role cache write failed", "error", err)
		}
	}
	return granted, nil
}
