package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RecordType distinguishes the two record tables.
type RecordType string

const (
	RecordTypeEvent       RecordType = "event"
	RecordTypeCertificate RecordType = "certificate"
)

// Record is the type-erased view of an event or certificate, carrying only what
// authorization and state transitions need.
type Record struct {
	ID          string
	Type        RecordType
	BoatID      string
	Category    string
	BlockNumber uint64
	Status      Status
	ValidatedBy string
	ValidatedAt *time.Time
}

// Namespaces for deterministic record ids. Re-deriving the same log always yields
// the same id.
var (
	eventNamespace       = uuid.MustParse("6f1c3a52-5d0e-4b8e-9a57-0b2f2c1e8a11")
	certificateNamespace = uuid.MustParse("0d9e4a77-31b6-4f0b-8f3c-7c4d5e6a9b22")
)

// EventID derives the record id of an event from its identity key.
func EventID(txHash string, logIndex uint64) string {
	return uuid.NewSHA1(eventNamespace, []byte(txHash+":"+strconv.FormatUint(logIndex, 10))).String()
}

// CertificateID derives the record id of a certificate from its identity key.
func CertificateID(issuer, boatID, txHash string) string {
	return uuid.NewSHA1(certificateNamespace, []byte(issuer+":"+boatID+":"+txHash)).String()
}
