package domain

import "fmt"

// AnomalyReason names why an ingested record was flagged suspicious.
type AnomalyReason string

const (
	AnomalyUnknownBoat        AnomalyReason = "unknown boat"
	AnomalyUnknownKind        AnomalyReason = "unknown kind"
	AnomalyUnknownCertType    AnomalyReason = "unknown certificate type"
	AnomalyMalformedContent   AnomalyReason = "malformed content hash"
	AnomalyUnauthorizedAuthor AnomalyReason = "author lacks required role"
	AnomalyUndecodable        AnomalyReason = "undecodable log"
	AnomalyRemovedLog         AnomalyReason = "log removed by reorg"
	AnomalyInvalidExpiry      AnomalyReason = "expiry before issue date"
	AnomalyInvalidText        AnomalyReason = "unstorable text"
)

// Anomaly is a single finding attached to an ingested record.
type Anomaly struct {
	Reason AnomalyReason
	Detail string
}

func (a Anomaly) String() string {
	if a.Detail == "" {
		return string(a.Reason)
	}
	return fmt.Sprintf("%s: %s", a.Reason, a.Detail)
}

// AnomalyStrings flattens anomalies for storage.
func AnomalyStrings(anomalies []Anomaly) []string {
	if len(anomalies) == 0 {
		return nil
	}
	out := make([]string, len(anomalies))
	for i, a := range anomalies {
		out[i] = a.String()
	}
	return out
}
