package domain

// Capability is a role recorded in the on-chain role registry.
type Capability string

const (
	CapabilityMinter                Capability = "minter"
	CapabilityCertifiedProfessional Capability = "certified_professional"
	CapabilityInsurer               Capability = "insurer"
	CapabilityAdmin                 Capability = "admin"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{
	CapabilityMinter,
	CapabilityCertifiedProfessional,
	CapabilityInsurer,
	CapabilityAdmin,
}

// RoleFact is a read-through snapshot of the role registry at a block height.
type RoleFact struct {
	Address    string
	Capability Capability
	AsOfBlock  uint64
	Granted    bool
}
