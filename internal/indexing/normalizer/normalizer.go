// Package normalizer turns raw ledger logs into typed boat records. Every relevant log
// becomes a row: logs that fail a structural or semantic check are kept with status
// suspicious and the reasons attached.
package normalizer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/indexing/metrics"
	"github.com/vietddude/boatwatch/internal/infra/ledger"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// Authorizer checks authors and issuers against the role registry at the log's block.
type Authorizer interface {
	AuthorizeAuthor(ctx context.Context, e *domain.BoatEvent) (bool, error)
	AuthorizeIssuer(ctx context.Context, c *domain.BoatCertificate) (bool, error)
}

// Normalizer converts logs into a storage batch.
type Normalizer struct {
	boats storage.BoatRepository
	authz Authorizer
	log   *slog.Logger
}

// New creates a normalizer.
func New(boats storage.BoatRepository, authz Authorizer) *Normalizer {
	return &Normalizer{
		boats: boats,
		authz: authz,
		log:   slog.Default().With("component", "normalizer"),
	}
}

// NormalizeRange converts the logs of one block range. Logs are processed in
// (block, logIndex) order so a mint is visible to later logs of the same range.
// Errors are transient lookup failures; the caller retries the whole range.
func (n *Normalizer) NormalizeRange(ctx context.Context, logs []*ledger.LogJSONRPC) (*storage.Batch, error) {
	sorted := make([]*ledger.LogJSONRPC, len(logs))
	copy(sorted, logs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].BlockNumber != sorted[j].BlockNumber {
			return sorted[i].BlockNumber < sorted[j].BlockNumber
		}
		return sorted[i].LogIndex < sorted[j].LogIndex
	})

	s := n.NewSession()
	for _, l := range sorted {
		if err := s.Add(ctx, l); err != nil {
			return nil, err
		}
	}
	return s.Batch(), nil
}

// Session accumulates the records of one range.
type Session struct {
	n     *Normalizer
	mints map[string]uint64
	// minters holds the first owner of boats minted in this range.
	minters map[string]string
	batch   *storage.Batch
}

// NewSession starts an empty range.
func (n *Normalizer) NewSession() *Session {
	return &Session{
		n:       n,
		mints:   make(map[string]uint64),
		minters: make(map[string]string),
		batch:   &storage.Batch{},
	}
}

// Batch returns the records collected so far.
func (s *Session) Batch() *storage.Batch {
	return s.batch
}

// Add normalizes one log into the session.
func (s *Session) Add(ctx context.Context, l *ledger.LogJSONRPC) error {
	if len(l.Topics) == 0 {
		s.n.log.Warn("Skipping log without topics", "tx", l.TransactionHash.String(), "block", l.BlockNumber.Uint64())
		metrics.Anomalies.WithLabelValues("no topics").Inc()
		return nil
	}

	switch {
	case bytes.Equal(l.Topics[0], ledger.TransferTopic):
		s.addTransfer(ctx, l)
		return nil
	case bytes.Equal(l.Topics[0], ledger.BoatEventRecordedTopic):
		e, err := s.event(ctx, l)
		if err != nil {
			return err
		}
		s.batch.Events = append(s.batch.Events, e)
		metrics.RecordsIngested.WithLabelValues(string(domain.RecordTypeEvent), string(e.Status)).Inc()
		return nil
	case bytes.Equal(l.Topics[0], ledger.CertificateIssuedTopic):
		c, err := s.certificate(ctx, l)
		if err != nil {
			return err
		}
		s.batch.Certificates = append(s.batch.Certificates, c)
		metrics.RecordsIngested.WithLabelValues(string(domain.RecordTypeCertificate), string(c.Status)).Inc()
		return nil
	}

	s.n.log.Warn("Skipping log with unknown topic",
		"tx", l.TransactionHash.String(),
		"block", l.BlockNumber.Uint64(),
		"topic", l.Topics[0].String(),
	)
	metrics.Anomalies.WithLabelValues("unknown topic").Inc()
	return nil
}

func (s *Session) addTransfer(ctx context.Context, l *ledger.LogJSONRPC) {
	var t transferData
	if err := decodeLog(ctx, ledger.TransferEvent, l, &t); err != nil {
		s.n.log.Error("Undecodable transfer log",
			"tx", l.TransactionHash.String(),
			"block", l.BlockNumber.Uint64(),
			"logIndex", l.LogIndex.Uint64(),
			"raw", string(rawPayload(l)),
			"error", err,
		)
		metrics.Anomalies.WithLabelValues("undecodable transfer").Inc()
		return
	}
	if l.Removed {
		s.n.log.Warn("Skipping removed transfer log", "tx", l.TransactionHash.String(), "block", l.BlockNumber.Uint64())
		metrics.Anomalies.WithLabelValues(string(domain.AnomalyRemovedLog)).Inc()
		return
	}

	block := l.BlockNumber.Uint64()
	tx := l.TransactionHash.String()
	from, to := strings.ToLower(t.From), strings.ToLower(t.To)

	if from == ledger.ZeroAddress {
		if _, seen := s.mints[t.TokenID]; !seen {
			s.mints[t.TokenID] = block
			s.minters[t.TokenID] = to
			s.batch.Mints = append(s.batch.Mints, &domain.Boat{
				BoatID:       t.TokenID,
				MintedBlock:  block,
				MintedTx:     tx,
				Owner:        to,
				UpdatedBlock: block,
			})
		}
	}
	s.batch.Transfers = append(s.batch.Transfers, &domain.OwnershipChange{
		BoatID:      t.TokenID,
		From:        from,
		To:          to,
		TxHash:      tx,
		LogIndex:    l.LogIndex.Uint64(),
		BlockNumber: block,
	})
}

// anomalies collects the reasons a record is suspicious.
type anomalies []domain.Anomaly

func (a *anomalies) add(reason domain.AnomalyReason, detail string, args ...any) {
	*a = append(*a, domain.Anomaly{Reason: reason, Detail: fmt.Sprintf(detail, args...)})
}

func (a anomalies) status() domain.Status {
	if len(a) > 0 {
		return domain.StatusSuspicious
	}
	return domain.StatusPending
}

func (s *Session) event(ctx context.Context, l *ledger.LogJSONRPC) (*domain.BoatEvent, error) {
	block := l.BlockNumber.Uint64()
	tx := l.TransactionHash.String()
	e := &domain.BoatEvent{
		ID:          domain.EventID(tx, l.LogIndex.Uint64()),
		TxHash:      tx,
		LogIndex:    l.LogIndex.Uint64(),
		BlockNumber: block,
		RawPayload:  rawPayload(l),
	}
	var found anomalies
	if l.Removed {
		found.add(domain.AnomalyRemovedLog, "")
	}

	var d eventData
	if err := decodeLog(ctx, ledger.BoatEventRecorded, l, &d); err != nil {
		e.BoatID = topicUint(l, 1)
		e.Author = topicAddress(l, 2)
		e.Kind = domain.EventKindUnknown
		found.add(domain.AnomalyUndecodable, "%v", err)
		s.finishEvent(e, found)
		return e, nil
	}

	e.BoatID = d.BoatID
	e.Author = strings.ToLower(d.Author)
	e.ContentHash = d.ContentHash
	cleanFields(&found, map[string]*string{"author": &e.Author, "contentHash": &e.ContentHash})
	if ts, err := parseUint(d.Timestamp); err != nil {
		found.add(domain.AnomalyUndecodable, "timestamp %q", d.Timestamp)
	} else if at, ok := unixTime(ts); ok {
		e.Timestamp = at
	} else {
		found.add(domain.AnomalyUndecodable, "timestamp %d out of range", ts)
	}

	kind, err := domain.EventKindFromCode(enumCode(d.Kind))
	e.Kind = kind
	if err != nil {
		found.add(domain.AnomalyUnknownKind, "%v", err)
	}

	if !ValidContentHash(e.ContentHash) {
		found.add(domain.AnomalyMalformedContent, "%q", e.ContentHash)
	}

	known, err := s.mintedAt(ctx, e.BoatID, block)
	if err != nil {
		return nil, err
	}
	if !known {
		found.add(domain.AnomalyUnknownBoat, "boat %s not minted at block %d", e.BoatID, block)
	}

	if kind != domain.EventKindUnknown && (known || kind != domain.EventKindSale) {
		ok, err := s.authorizeAuthor(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("authorize author of %s:%d: %w", tx, e.LogIndex, err)
		}
		if !ok {
			found.add(domain.AnomalyUnauthorizedAuthor, "%s for %s at block %d", e.Author, kind, block)
		}
	}

	s.finishEvent(e, found)
	return e, nil
}

func (s *Session) finishEvent(e *domain.BoatEvent, found anomalies) {
	e.Status = found.status()
	e.Anomalies = domain.AnomalyStrings(found)
	if len(found) > 0 {
		s.n.report(string(domain.RecordTypeEvent), e.TxHash, e.BlockNumber, e.LogIndex, found, e.RawPayload)
	}
}

func (s *Session) certificate(ctx context.Context, l *ledger.LogJSONRPC) (*domain.BoatCertificate, error) {
	block := l.BlockNumber.Uint64()
	tx := l.TransactionHash.String()
	c := &domain.BoatCertificate{
		TxHash:      tx,
		LogIndex:    l.LogIndex.Uint64(),
		BlockNumber: block,
		RawPayload:  rawPayload(l),
	}
	var found anomalies
	if l.Removed {
		found.add(domain.AnomalyRemovedLog, "")
	}

	var d certificateData
	if err := decodeLog(ctx, ledger.CertificateIssued, l, &d); err != nil {
		c.BoatID = topicUint(l, 1)
		c.Issuer = topicAddress(l, 2)
		c.CertificateType = domain.CertificateUnknown
		c.ID = domain.CertificateID(c.Issuer, c.BoatID, tx)
		found.add(domain.AnomalyUndecodable, "%v", err)
		s.finishCertificate(c, found)
		return c, nil
	}

	c.BoatID = d.BoatID
	c.Issuer = strings.ToLower(d.Issuer)
	c.Title = d.Title
	c.Description = d.Description
	c.ContentHash = d.ContentHash
	cleanFields(&found, map[string]*string{
		"issuer":      &c.Issuer,
		"title":       &c.Title,
		"description": &c.Description,
		"contentHash": &c.ContentHash,
	})
	c.ID = domain.CertificateID(c.Issuer, c.BoatID, tx)

	issued, err := parseUint(d.IssuedDate)
	if err != nil {
		found.add(domain.AnomalyUndecodable, "issuedDate %q", d.IssuedDate)
	}
	if at, ok := unixTime(issued); ok {
		c.IssuedDate = at
	} else {
		found.add(domain.AnomalyUndecodable, "issuedDate %d out of range", issued)
	}
	if expires, err := parseUint(d.ExpiresDate); err == nil && expires > 0 {
		if at, ok := unixTime(expires); ok {
			c.ExpiresDate = &at
		} else {
			found.add(domain.AnomalyUndecodable, "expiresDate %d out of range", expires)
		}
		if expires < issued {
			found.add(domain.AnomalyInvalidExpiry, "expires %d before issued %d", expires, issued)
		}
	}

	certType, err := domain.CertificateTypeFromCode(enumCode(d.CertificateType))
	c.CertificateType = certType
	if err != nil {
		found.add(domain.AnomalyUnknownCertType, "%v", err)
	}

	if !ValidContentHash(c.ContentHash) {
		found.add(domain.AnomalyMalformedContent, "%q", c.ContentHash)
	}

	known, err := s.mintedAt(ctx, c.BoatID, block)
	if err != nil {
		return nil, err
	}
	if !known {
		found.add(domain.AnomalyUnknownBoat, "boat %s not minted at block %d", c.BoatID, block)
	}

	if certType != domain.CertificateUnknown {
		ok, err := s.n.authz.AuthorizeIssuer(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("authorize issuer of %s:%d: %w", tx, c.LogIndex, err)
		}
		if !ok {
			found.add(domain.AnomalyUnauthorizedAuthor, "%s for %s certificate at block %d", c.Issuer, certType, block)
		}
	}

	s.finishCertificate(c, found)
	return c, nil
}

func (s *Session) finishCertificate(c *domain.BoatCertificate, found anomalies) {
	c.Status = found.status()
	c.Anomalies = domain.AnomalyStrings(found)
	if len(found) > 0 {
		s.n.report(string(domain.RecordTypeCertificate), c.TxHash, c.BlockNumber, c.LogIndex, found, c.RawPayload)
	}
}

// authorizeAuthor defers to the gate, except for a sale of a boat minted earlier in
// the same block: the chain has no owner for it at block-1, so the seller must be the
// mint recipient.
func (s *Session) authorizeAuthor(ctx context.Context, e *domain.BoatEvent) (bool, error) {
	if e.Kind == domain.EventKindSale && s.mints[e.BoatID] == e.BlockNumber {
		if minter, ok := s.minters[e.BoatID]; ok {
			return minter == e.Author, nil
		}
	}
	return s.n.authz.AuthorizeAuthor(ctx, e)
}

// mintedAt reports whether boatID was minted at or before block, looking at the
// current range first.
func (s *Session) mintedAt(ctx context.Context, boatID string, block uint64) (bool, error) {
	if boatID == "" {
		return false, nil
	}
	if minted, ok := s.mints[boatID]; ok && minted <= block {
		return true, nil
	}
	boat, err := s.n.boats.MintedAt(ctx, boatID, block)
	if err != nil {
		return false, fmt.Errorf("look up boat %s: %w", boatID, err)
	}
	return boat != nil, nil
}

func (n *Normalizer) report(recordType, tx string, block, logIndex uint64, found anomalies, raw []byte) {
	reasons := make([]string, len(found))
	for i, a := range found {
		reasons[i] = a.String()
		metrics.Anomalies.WithLabelValues(string(a.Reason)).Inc()
	}
	n.log.Warn("Anomalous log ingested as suspicious",
		"type", recordType,
		"tx", tx,
		"block", block,
		"logIndex", logIndex,
		"reasons", reasons,
		"raw", string(raw),
	)
}
