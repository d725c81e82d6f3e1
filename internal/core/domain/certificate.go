package domain

import (
	"fmt"
	"time"
)

// CertificateType is the category of a third-party certificate.
type CertificateType string

const (
	CertificateSafety     CertificateType = "safety"
	CertificateInsurance  CertificateType = "insurance"
	CertificateTechnical  CertificateType = "technical"
	CertificateInspection CertificateType = "inspection"
	CertificateUnknown    CertificateType = "unknown"
)

// CertificateTypes lists the known types in on-chain enum order.
var CertificateTypes = []CertificateType{
	CertificateSafety,
	CertificateInsurance,
	CertificateTechnical,
	CertificateInspection,
}

// CertificateTypeFromCode maps the contract's uint8 enum to a CertificateType.
func CertificateTypeFromCode(code uint64) (CertificateType, error) {
	if code >= uint64(len(CertificateTypes)) {
		return CertificateUnknown, fmt.Errorf("certificate type %d out of range", code)
	}
	return CertificateTypes[code], nil
}

// BoatCertificate is an ingested certificate attestation.
// Identity key is (Issuer, BoatID, TxHash).
type BoatCertificate struct {
	ID              string
	BoatID          string
	Issuer          string
	IssuedDate      time.Time
	Title           string
	CertificateType CertificateType
	ExpiresDate     *time.Time
	Description     string
	ContentHash     string
	TxHash          string
	LogIndex        uint64
	BlockNumber     uint64
	Status          Status
	ValidatedBy     string
	ValidatedAt     *time.Time
	Anomalies       []string
	RawPayload      []byte
}

// Record returns the category view used by the validation machine.
func (c *BoatCertificate) Record() *Record {
	return &Record{
		ID:          c.ID,
		Type:        RecordTypeCertificate,
		BoatID:      c.BoatID,
		Category:    string(c.CertificateType),
		BlockNumber: c.BlockNumber,
		Status:      c.Status,
		ValidatedBy: c.ValidatedBy,
		ValidatedAt: c.ValidatedAt,
	}
}
