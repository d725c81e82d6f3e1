package validation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/boatwatch/internal/core/authz"
	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/infra/storage"
	"github.com/vietddude/boatwatch/internal/infra/storage/memory"
)

const (
	professional = "0x1000000000000000000000000000000000000001"
	insurer      = "0x2000000000000000000000000000000000000002"
	stranger     = "0x3000000000000000000000000000000000000003"
)

type fixedHeight uint64

func (h fixedHeight) BlockHeight(context.Context) (uint64, error) { return uint64(h), nil }

type fixture struct {
	store   *memory.MemoryStorage
	records *memory.RecordRepo
	table   *authz.StaticTable
	machine *Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	table := authz.NewStaticTable().
		Grant(professional, domain.CapabilityCertifiedProfessional, 0).
		Grant(insurer, domain.CapabilityInsurer, 0)
	records := memory.NewRecordRepo(store)
	return &fixture{
		store:   store,
		records: records,
		table:   table,
		machine: NewMachine(records, authz.NewGate(table, table), fixedHeight(500)),
	}
}

func (f *fixture) seedEvent(t *testing.T, kind domain.EventKind, status domain.Status) string {
	t.Helper()
	id := domain.EventID("0xtx-"+string(kind)+string(status), 0)
	batch := &storage.Batch{Events: []*domain.BoatEvent{{
		ID:          id,
		BoatID:      "1",
		Kind:        kind,
		Author:      professional,
		TxHash:      "0xtx",
		BlockNumber: 100,
		Status:      status,
	}}}
	if err := memory.NewCursorRepo(f.store).Apply(context.Background(), batch); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func TestCanTransition(t *testing.T) {
	all := []domain.Status{domain.StatusPending, domain.StatusValidated, domain.StatusRejected, domain.StatusSuspicious}
	legal := map[[2]domain.Status]bool{
		{domain.StatusPending, domain.StatusValidated}:    true,
		{domain.StatusPending, domain.StatusRejected}:     true,
		{domain.StatusPending, domain.StatusSuspicious}:   true,
		{domain.StatusSuspicious, domain.StatusValidated}: true,
		{domain.StatusSuspicious, domain.StatusRejected}:  true,
		{domain.StatusSuspicious, domain.StatusPending}:   true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != legal[[2]domain.Status{from, to}] {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, !got, got)
			}
		}
	}
	if !IsTerminal(domain.StatusValidated) || !IsTerminal(domain.StatusRejected) {
		t.Error("validated and rejected must be terminal")
	}
	if IsTerminal(domain.StatusSuspicious) {
		t.Error("suspicious must not be terminal")
	}
}

func TestSubmit_Validates(t *testing.T) {
	f := newFixture(t)
	id := f.seedEvent(t, domain.EventKindRepair, domain.StatusPending)

	out, err := f.machine.Submit(context.Background(), Request{RecordID: id, Actor: professional, Status: domain.StatusValidated})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.NoOp {
		t.Error("expected a write")
	}
	if out.Record.Status != domain.StatusValidated || out.Record.ValidatedBy != professional || out.Record.ValidatedAt == nil {
		t.Errorf("unexpected record: %+v", out.Record)
	}

	stored, _ := f.records.GetEvent(context.Background(), id)
	if stored.Status != domain.StatusValidated || stored.ValidatedBy != professional {
		t.Errorf("store not updated: %+v", stored)
	}
}

func TestSubmit_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.seedEvent(t, domain.EventKindIncident, domain.StatusPending)
	validated := f.seedEvent(t, domain.EventKindRepair, domain.StatusValidated)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown record", Request{RecordID: "missing", Actor: insurer, Status: domain.StatusValidated}, domain.ErrNotFound},
		{"wrong role", Request{RecordID: pending, Actor: professional, Status: domain.StatusValidated}, domain.ErrUnauthorized},
		{"no role", Request{RecordID: pending, Actor: stranger, Status: domain.StatusRejected}, domain.ErrUnauthorized},
		{"no actor", Request{RecordID: pending, Status: domain.StatusRejected}, domain.ErrUnauthorized},
		{"bad status", Request{RecordID: pending, Actor: insurer, Status: "approved"}, domain.ErrInvalidTransition},
		{"terminal to suspicious", Request{RecordID: validated, Actor: professional, Status: domain.StatusSuspicious}, domain.ErrInvalidTransition},
		{"terminal to rejected", Request{RecordID: validated, Actor: professional, Status: domain.StatusRejected}, domain.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.machine.Submit(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	stored, _ := f.records.GetEvent(ctx, pending)
	if stored.Status != domain.StatusPending || stored.ValidatedBy != "" {
		t.Errorf("failed requests must leave the record unchanged: %+v", stored)
	}
}

func TestSubmit_RoleRevokedBeforeCurrentHeight(t *testing.T) {
	f := newFixture(t)
	id := f.seedEvent(t, domain.EventKindIncident, domain.StatusPending)
	f.table.Revoke(insurer, domain.CapabilityInsurer, 400)

	_, err := f.machine.Submit(context.Background(), Request{RecordID: id, Actor: insurer, Status: domain.StatusValidated})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized at current height, got %v", err)
	}
}

func TestSubmit_SuspiciousCanReturnToPending(t *testing.T) {
	f := newFixture(t)
	id := f.seedEvent(t, domain.EventKindRepair, domain.StatusSuspicious)

	out, err := f.machine.Submit(context.Background(), Request{RecordID: id, Actor: professional, Status: domain.StatusPending})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Record.Status != domain.StatusPending || out.Record.ValidatedBy != professional {
		t.Errorf("reviewer must be recorded: %+v", out.Record)
	}
}

func TestSubmit_NoOpKeepsValidatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedEvent(t, domain.EventKindRepair, domain.StatusPending)

	first, err := f.machine.Submit(ctx, Request{RecordID: id, Actor: professional, Status: domain.StatusValidated})
	if err != nil {
		t.Fatal(err)
	}
	f.machine.now = func() time.Time { return time.Now().Add(time.Hour) }

	second, err := f.machine.Submit(ctx, Request{RecordID: id, Actor: professional, Status: domain.StatusValidated})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.NoOp {
		t.Error("expected no-op")
	}
	if !second.Record.ValidatedAt.Equal(*first.Record.ValidatedAt) {
		t.Errorf("validatedAt changed: %v -> %v", first.Record.ValidatedAt, second.Record.ValidatedAt)
	}
}

// Two concurrent requests for the same decision: one writes, the other is a no-op
// that sees the winner's validatedAt.
func TestSubmit_ConcurrentSameDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedEvent(t, domain.EventKindRepair, domain.StatusPending)

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]*Outcome, n)
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			outcomes[i], errs[i] = f.machine.Submit(ctx, Request{RecordID: id, Actor: professional, Status: domain.StatusValidated})
		}(i)
	}
	close(start)
	wg.Wait()

	writes := 0
	var winnerAt *time.Time
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if !outcomes[i].NoOp {
			writes++
			winnerAt = outcomes[i].Record.ValidatedAt
		}
	}
	if writes != 1 {
		t.Fatalf("expected exactly one write, got %d", writes)
	}

	stored, _ := f.records.GetEvent(ctx, id)
	if !stored.ValidatedAt.Equal(*winnerAt) {
		t.Errorf("stored validatedAt %v differs from winner %v", stored.ValidatedAt, winnerAt)
	}
	for i := 0; i < n; i++ {
		if outcomes[i].NoOp && !outcomes[i].Record.ValidatedAt.Equal(*winnerAt) {
			t.Errorf("no-op %d reported validatedAt %v", i, outcomes[i].Record.ValidatedAt)
		}
	}
}

// Conflicting decisions race: one wins, the loser is re-evaluated against the
// terminal state and rejected as an invalid transition.
func TestSubmit_ConcurrentConflictingDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedEvent(t, domain.EventKindRepair, domain.StatusPending)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, s := range []domain.Status{domain.StatusValidated, domain.StatusRejected} {
		wg.Add(1)
		go func(s domain.Status) {
			defer wg.Done()
			_, err := f.machine.Submit(ctx, Request{RecordID: id, Actor: professional, Status: s})
			results <- err
		}(s)
	}
	wg.Wait()
	close(results)

	var ok, invalid int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInvalidTransition):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || invalid != 1 {
		t.Errorf("expected one winner and one invalid transition, got %d/%d", ok, invalid)
	}

	stored, _ := f.records.GetEvent(ctx, id)
	if stored.ValidatedBy == "" || stored.ValidatedAt == nil {
		t.Errorf("terminal record without audit fields: %+v", stored)
	}
}

// casLoser loses the first compare-and-set to simulate a concurrent writer.
type casLoser struct {
	Store
	lost bool
	move func()
}

func (c *casLoser) CompareAndSetStatus(ctx context.Context, id string, expected domain.Status, next domain.Validation) (bool, error) {
	if !c.lost {
		c.lost = true
		c.move()
		return false, nil
	}
	return c.Store.CompareAndSetStatus(ctx, id, expected, next)
}

func TestSubmit_RetriesAfterLostCAS(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedEvent(t, domain.EventKindRepair, domain.StatusPending)

	store := &casLoser{Store: f.records, move: func() {
		at := time.Now()
		_, _ = f.records.CompareAndSetStatus(ctx, id, domain.StatusPending,
			domain.Validation{Status: domain.StatusSuspicious, ValidatedBy: professional, ValidatedAt: &at})
	}}
	m := NewMachine(store, authz.NewGate(f.table, f.table), fixedHeight(500))

	out, err := m.Submit(ctx, Request{RecordID: id, Actor: professional, Status: domain.StatusValidated})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.NoOp || out.Record.Status != domain.StatusValidated {
		t.Errorf("expected suspicious -> validated on retry, got %+v", out)
	}
}
