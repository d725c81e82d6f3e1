package authz

import (
	"context"
	"sync"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

type grantKey struct {
	address    string
	capability domain.Capability
}

// span is a half-open block interval [from, until); until == 0 means open-ended.
type span struct {
	from, until uint64
}

func (s span) contains(block uint64) bool {
	return block >= s.from && (s.until == 0 || block < s.until)
}

type ownership struct {
	owner string
	from  uint64
}

// StaticTable is a deterministic in-memory role registry and owner history.
type StaticTable struct {
	mu     sync.RWMutex
	grants map[grantKey][]span
	owners map[string][]ownership
}

// NewStaticTable returns an empty table.
func NewStaticTable() *StaticTable {
	return &StaticTable{
		grants: make(map[grantKey][]span),
		owners: make(map[string][]ownership),
	}
}

// Grant gives address capability from block onwards.
func (t *StaticTable) Grant(address string, capability domain.Capability, from uint64) *StaticTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := grantKey{normalizeAddress(address), capability}
	t.grants[k] = append(t.grants[k], span{from: from})
	return t
}

// Revoke ends every open grant of capability to address at block.
func (t *StaticTable) Revoke(address string, capability domain.Capability, at uint64) *StaticTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := grantKey{normalizeAddress(address), capability}
	for i, s := range t.grants[k] {
		if s.until == 0 && s.from <= at {
			t.grants[k][i].until = at
		}
	}
	return t
}

// SetOwner records that boatID belongs to owner from block onwards.
func (t *StaticTable) SetOwner(boatID, owner string, from uint64) *StaticTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owners[boatID] = append(t.owners[boatID], ownership{owner: normalizeAddress(owner), from: from})
	return t
}

// HasCapability implements RoleSource.
func (t *StaticTable) HasCapability(_ context.Context, address string, capability domain.Capability, block uint64) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	recordLookup("static")
	for _, s := range t.grants[grantKey{normalizeAddress(address), capability}] {
		if s.contains(block) {
			return true, nil
		}
	}
	return false, nil
}

// OwnerOf implements OwnerSource.
func (t *StaticTable) OwnerOf(_ context.Context, boatID string, block uint64) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var owner string
	var best uint64
	for _, o := range t.owners[boatID] {
		if o.from <= block && (owner == "" || o.from >= best) {
			owner, best = o.owner, o.from
		}
	}
	return owner, nil
}
