package httptransport

import (
	"time"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

// EventResponse is the JSON view of a boat event.
type EventResponse struct {
	ID          string     `json:"id"`
	BoatID      string     `json:"boat_id"`
	Kind        string     `json:"kind"`
	Timestamp   time.Time  `json:"timestamp"`
	Author      string     `json:"author"`
	ContentHash string     `json:"content_hash"`
	TxHash      string     `json:"tx_hash"`
	LogIndex    uint64     `json:"log_index"`
	BlockNumber uint64     `json:"block_number"`
	Status      string     `json:"status"`
	ValidatedBy string     `json:"validated_by,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	Anomalies   []string   `json:"anomalies"`
}

// CertificateResponse is the JSON view of a boat certificate.
type CertificateResponse struct {
	ID              string     `json:"id"`
	BoatID          string     `json:"boat_id"`
	Issuer          string     `json:"issuer"`
	IssuedDate      time.Time  `json:"issued_date"`
	ExpiresDate     *time.Time `json:"expires_date,omitempty"`
	Title           string     `json:"title"`
	CertificateType string     `json:"certificate_type"`
	Description     string     `json:"description,omitempty"`
	ContentHash     string     `json:"content_hash"`
	TxHash          string     `json:"tx_hash"`
	LogIndex        uint64     `json:"log_index"`
	BlockNumber     uint64     `json:"block_number"`
	Status          string     `json:"status"`
	ValidatedBy     string     `json:"validated_by,omitempty"`
	ValidatedAt     *time.Time `json:"validated_at,omitempty"`
	Anomalies       []string   `json:"anomalies"`
}

// ReviewQueueResponse lists records awaiting a reviewer.
type ReviewQueueResponse struct {
	Events       []EventResponse       `json:"events"`
	Certificates []CertificateResponse `json:"certificates"`
}

// ValidationRequest is the body of POST /v1/records/{id}/validation.
type ValidationRequest struct {
	Actor  string `json:"actor"`
	Status string `json:"status"`
}

// ValidationResponse reports the record state after a decision.
type ValidationResponse struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	ValidatedBy string     `json:"validated_by,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	NoOp        bool       `json:"no_op"`
}

func toEventResponse(e *domain.BoatEvent) EventResponse {
	return EventResponse{
		ID:          e.ID,
		BoatID:      e.BoatID,
		Kind:        string(e.Kind),
		Timestamp:   e.Timestamp,
		Author:      e.Author,
		ContentHash: e.ContentHash,
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
		BlockNumber: e.BlockNumber,
		Status:      string(e.Status),
		ValidatedBy: e.ValidatedBy,
		ValidatedAt: e.ValidatedAt,
		Anomalies:   nonNil(e.Anomalies),
	}
}

func toCertificateResponse(c *domain.BoatCertificate) CertificateResponse {
	return CertificateResponse{
		ID:              c.ID,
		BoatID:          c.BoatID,
		Issuer:          c.Issuer,
		IssuedDate:      c.IssuedDate,
		ExpiresDate:     c.ExpiresDate,
		Title:           c.Title,
		CertificateType: string(c.CertificateType),
		Description:     c.Description,
		ContentHash:     c.ContentHash,
		TxHash:          c.TxHash,
		LogIndex:        c.LogIndex,
		BlockNumber:     c.BlockNumber,
		Status:          string(c.Status),
		ValidatedBy:     c.ValidatedBy,
		ValidatedAt:     c.ValidatedAt,
		Anomalies:       nonNil(c.Anomalies),
	}
}

func toEventResponses(events []*domain.BoatEvent) []EventResponse {
	out := make([]EventResponse, len(events))
	for i, e := range events {
		out[i] = toEventResponse(e)
	}
	return out
}

func toCertificateResponses(certs []*domain.BoatCertificate) []CertificateResponse {
	out := make([]CertificateResponse, len(certs))
	for i, c := range certs {
		out[i] = toCertificateResponse(c)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
