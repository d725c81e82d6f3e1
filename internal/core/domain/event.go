package domain

import (
	"fmt"
	"time"
)

// EventKind is the lifecycle category of a boat event.
type EventKind string

const (
	EventKindSale       EventKind = "sale"
	EventKindRepair     EventKind = "repair"
	EventKindIncident   EventKind = "incident"
	EventKindInspection EventKind = "inspection"
	EventKindUnknown    EventKind = "unknown"
)

// EventKinds lists the known kinds in on-chain enum order.
var EventKinds = []EventKind{EventKindSale, EventKindRepair, EventKindIncident, EventKindInspection}

// EventKindFromCode maps the contract's uint8 enum to an EventKind.
func EventKindFromCode(code uint64) (EventKind, error) {
	if code >= uint64(len(EventKinds)) {
		return EventKindUnknown, fmt.Errorf("event kind %d out of range", code)
	}
	return EventKinds[code], nil
}

// BoatEvent is an ingested lifecycle event.
// Identity key is (TxHash, LogIndex).
type BoatEvent struct {
	ID          string
	BoatID      string
	Kind        EventKind
	Timestamp   time.Time
	Author      string
	ContentHash string
	TxHash      string
	LogIndex    uint64
	BlockNumber uint64
	Status      Status
	ValidatedBy string
	ValidatedAt *time.Time
	Anomalies   []string
	RawPayload  []byte
}

// Record returns the category view used by the validation machine.
func (e *BoatEvent) Record() *Record {
	return &Record{
		ID:          e.ID,
		Type:        RecordTypeEvent,
		BoatID:      e.BoatID,
		Category:    string(e.Kind),
		BlockNumber: e.BlockNumber,
		Status:      e.Status,
		ValidatedBy: e.ValidatedBy,
		ValidatedAt: e.ValidatedAt,
	}
}
