package domain

import "time"

// Status is the trust state of an ingested record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidated  Status = "validated"
	StatusRejected   Status = "rejected"
	StatusSuspicious Status = "suspicious"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusRejected, StatusSuspicious:
		return true
	}
	return false
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.Valid()
}

// Validation is the audit triple written by a validator action.
type Validation struct {
	Status      Status
	ValidatedBy string
	ValidatedAt *time.Time
}
