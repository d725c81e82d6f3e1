// Package authz answers role questions against the on-chain registry at a fixed block
// height, and holds the tables mapping record categories to the capabilities they need.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/indexing/metrics"
)

// RoleSource reports whether address held capability at block.
type RoleSource interface {
	HasCapability(ctx context.Context, address string, capability domain.Capability, block uint64) (bool, error)
}

// OwnerSource reports the owner of a boat at block, or "" if it did not exist.
type OwnerSource interface {
	OwnerOf(ctx context.Context, boatID string, block uint64) (string, error)
}

// Gate is the single entry point for authorization decisions.
type Gate struct {
	roles  RoleSource
	owners OwnerSource
	log    *slog.Logger
}

// NewGate creates a gate over the given sources.
func NewGate(roles RoleSource, owners OwnerSource) *Gate {
	return &Gate{
		roles:  roles,
		owners: owners,
		log:    slog.Default().With("component", "authz"),
	}
}

// HasCapability reports whether address held capability at block.
func (g *Gate) HasCapability(ctx context.Context, address string, capability domain.Capability, block uint64) (bool, error) {
	ok, err := g.roles.HasCapability(ctx, normalizeAddress(address), capability, block)
	if err != nil {
		return false, fmt.Errorf("role lookup %s for %s at %d: %w", capability, address, block, err)
	}
	return ok, nil
}

// HasAny reports whether address held at least one of capabilities at block.
func (g *Gate) HasAny(ctx context.Context, address string, capabilities []domain.Capability, block uint64) (bool, error) {
	for _, c := range capabilities {
		ok, err := g.HasCapability(ctx, address, c, block)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// IsOwner reports whether address owned boatID at block.
func (g *Gate) IsOwner(ctx context.Context, address, boatID string, block uint64) (bool, error) {
	if g.owners == nil {
		return false, fmt.Errorf("no owner source configured")
	}
	owner, err := g.owners.OwnerOf(ctx, boatID, block)
	if err != nil {
		return false, fmt.Errorf("owner lookup for boat %s at %d: %w", boatID, block, err)
	}
	return owner != "" && normalizeAddress(owner) == normalizeAddress(address), nil
}

// AuthorizeAuthor checks an event author against the requirement of its kind. A sale
// must come from the owner as of the block before the sale.
func (g *Gate) AuthorizeAuthor(ctx context.Context, e *domain.BoatEvent) (bool, error) {
	req, ok := AuthorRequirement(e.Kind)
	if !ok {
		return false, nil
	}
	if req.Owner {
		block := e.BlockNumber
		if block > 0 {
			block--
		}
		return g.IsOwner(ctx, e.Author, e.BoatID, block)
	}
	return g.HasAny(ctx, e.Author, req.Capabilities, e.BlockNumber)
}

// AuthorizeIssuer checks a certificate issuer against the requirement of its type.
func (g *Gate) AuthorizeIssuer(ctx context.Context, c *domain.BoatCertificate) (bool, error) {
	caps, ok := IssuerRequirement(c.CertificateType)
	if !ok {
		return false, nil
	}
	return g.HasAny(ctx, c.Issuer, caps, c.BlockNumber)
}

// AuthorizeValidator checks whether actor may change the status of rec at block.
func (g *Gate) AuthorizeValidator(ctx context.Context, actor string, rec *domain.Record, block uint64) (bool, error) {
	caps := ValidatorCapabilities(rec)
	if len(caps) == 0 {
		return false, nil
	}
	ok, err := g.HasAny(ctx, actor, caps, block)
	if err != nil {
		return false, err
	}
	if !ok {
		g.log.Info("Validator lacks capability",
			"actor", actor,
			"record", rec.ID,
			"category", rec.Category,
			"block", block,
		)
	}
	return ok, nil
}

func normalizeAddress(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}

func recordLookup(source string) {
	metrics.RoleLookups.WithLabelValues(source).Inc()
}
