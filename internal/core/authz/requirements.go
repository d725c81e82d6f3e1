package authz

import "github.com/vietddude/boatwatch/internal/core/domain"

// Requirement is what an event author must hold at the event's block.
type Requirement struct {
	Owner        bool
	Capabilities []domain.Capability
}

var authorRequirements = map[domain.EventKind]Requirement{
	domain.EventKindSale:       {Owner: true},
	domain.EventKindRepair:     {Capabilities: []domain.Capability{domain.CapabilityCertifiedProfessional}},
	domain.EventKindIncident:   {Capabilities: []domain.Capability{domain.CapabilityInsurer}},
	domain.EventKindInspection: {Capabilities: []domain.Capability{domain.CapabilityCertifiedProfessional}},
}

var issuerRequirements = map[domain.CertificateType][]domain.Capability{
	domain.CertificateSafety:     {domain.CapabilityCertifiedProfessional},
	domain.CertificateInsurance:  {domain.CapabilityInsurer},
	domain.CertificateTechnical:  {domain.CapabilityCertifiedProfessional},
	domain.CertificateInspection: {domain.CapabilityCertifiedProfessional},
}

var eventValidators = map[domain.EventKind][]domain.Capability{
	domain.EventKindSale:       {domain.CapabilityAdmin, domain.CapabilityMinter},
	domain.EventKindRepair:     {domain.CapabilityCertifiedProfessional, domain.CapabilityAdmin},
	domain.EventKindIncident:   {domain.CapabilityInsurer, domain.CapabilityAdmin},
	domain.EventKindInspection: {domain.CapabilityCertifiedProfessional, domain.CapabilityAdmin},
}

var certificateValidators = map[domain.CertificateType][]domain.Capability{
	domain.CertificateSafety:     {domain.CapabilityCertifiedProfessional, domain.CapabilityAdmin},
	domain.CertificateInsurance:  {domain.CapabilityInsurer, domain.CapabilityAdmin},
	domain.CertificateTechnical:  {domain.CapabilityCertifiedProfessional, domain.CapabilityAdmin},
	domain.CertificateInspection: {domain.CapabilityCertifiedProfessional, domain.CapabilityAdmin},
}

// AuthorRequirement returns what the author of an event of kind must hold.
func AuthorRequirement(kind domain.EventKind) (Requirement, bool) {
	r, ok := authorRequirements[kind]
	return r, ok
}

// IssuerRequirement returns the capabilities a certificate issuer must hold.
func IssuerRequirement(t domain.CertificateType) ([]domain.Capability, bool) {
	c, ok := issuerRequirements[t]
	return c, ok
}

// ValidatorCapabilities returns the capabilities allowed to change the status of rec.
// Records of unknown category can only be reviewed by an admin.
func ValidatorCapabilities(rec *domain.Record) []domain.Capability {
	var caps []domain.Capability
	switch rec.Type {
	case domain.RecordTypeEvent:
		caps = eventValidators[domain.EventKind(rec.Category)]
	case domain.RecordTypeCertificate:
		caps = certificateValidators[domain.CertificateType(rec.Category)]
	default:
		return nil
	}
	if caps == nil {
		return []domain.Capability{domain.CapabilityAdmin}
	}
	return caps
}
