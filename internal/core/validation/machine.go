// Package validation applies reviewer decisions to indexed records. Each decision is
// authorized against the role registry at the current ledger height and written with a
// single compare-and-set on the record's status.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/indexing/metrics"
)

// maxAttempts bounds how often a lost compare-and-set is re-evaluated.
const maxAttempts = 3

// Store is the record access the machine needs.
type Store interface {
	GetRecord(ctx context.Context, id string) (*domain.Record, error)
	CompareAndSetStatus(ctx context.Context, id string, expected domain.Status, next domain.Validation) (bool, error)
}

// Authorizer decides whether actor may change rec at block.
type Authorizer interface {
	AuthorizeValidator(ctx context.Context, actor string, rec *domain.Record, block uint64) (bool, error)
}

// HeightSource returns the current ledger height.
type HeightSource interface {
	BlockHeight(ctx context.Context) (uint64, error)
}

// Request is a reviewer decision on one record.
type Request struct {
	RecordID string
	Actor    string
	Status   domain.Status
}

// Outcome is the result of a successful Submit. NoOp is set when the record was already
// in the requested status and nothing was written.
type Outcome struct {
	Record *domain.Record
	NoOp   bool
}

// Machine is the validation state machine.
type Machine struct {
	store  Store
	authz  Authorizer
	height HeightSource
	now    func() time.Time
	log    *slog.Logger
}

// NewMachine creates a state machine.
func NewMachine(store Store, authz Authorizer, height HeightSource) *Machine {
	return &Machine{
		store:  store,
		authz:  authz,
		height: height,
		now:    func() time.Time { return time.Now().UTC() },
		log:    slog.Default().With("component", "validation"),
	}
}

// Submit applies req. Errors are domain.ErrNotFound, domain.ErrInvalidTransition,
// domain.ErrUnauthorized, domain.ErrConflict, or a wrapped ledger/storage failure.
func (m *Machine) Submit(ctx context.Context, req Request) (*Outcome, error) {
	out, err := m.submit(ctx, req)
	metrics.Validations.WithLabelValues(resultLabel(out, err)).Inc()
	return out, err
}

func (m *Machine) submit(ctx context.Context, req Request) (*Outcome, error) {
	if req.Actor == "" {
		return nil, fmt.Errorf("%w: missing actor", domain.ErrUnauthorized)
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, req.Status)
	}

	rec, err := m.store.GetRecord(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if rec.Status != req.Status && !CanTransition(rec.Status, req.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, rec.Status, req.Status)
	}

	height, err := m.height.BlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger height: %w", err)
	}
	ok, err := m.authz.AuthorizeValidator(ctx, req.Actor, rec, height)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s %s", domain.ErrUnauthorized, req.Actor, rec.Type, rec.Category)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if rec.Status == req.Status {
			return &Outcome{Record: rec, NoOp: true}, nil
		}
		if !CanTransition(rec.Status, req.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, rec.Status, req.Status)
		}

		at := m.now()
		next := domain.Validation{Status: req.Status, ValidatedBy: req.Actor, ValidatedAt: &at}
		won, err := m.store.CompareAndSetStatus(ctx, rec.ID, rec.Status, next)
		if err != nil {
			return nil, err
		}
		if won {
			m.log.Info("Record status changed",
				"record", rec.ID,
				"type", rec.Type,
				"from", rec.Status,
				"to", req.Status,
				"actor", req.Actor,
				"height", height,
			)
			rec.Status, rec.ValidatedBy, rec.ValidatedAt = next.Status, next.ValidatedBy, next.ValidatedAt
			return &Outcome{Record: rec}, nil
		}

		// Another reviewer moved the record; decide again against its new state.
		if rec, err = m.store.GetRecord(ctx, req.RecordID); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: record %s kept changing", domain.ErrConflict, req.RecordID)
}

func resultLabel(out *Outcome, err error) string {
	switch {
	case err == nil && out.NoOp:
		return "noop"
	case err == nil:
		return "applied"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	}
	return "error"
}
