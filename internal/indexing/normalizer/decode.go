package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/infra/ledger"
)

type transferData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"tokenId"`
}

type eventData struct {
	BoatID      string `json:"boatId"`
	Kind        string `json:"kind"`
	Timestamp   string `json:"timestamp"`
	Author      string `json:"author"`
	ContentHash string `json:"contentHash"`
}

type certificateData struct {
	BoatID          string `json:"boatId"`
	Issuer          string `json:"issuer"`
	CertificateType string `json:"certificateType"`
	IssuedDate      string `json:"issuedDate"`
	ExpiresDate     string `json:"expiresDate"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	ContentHash     string `json:"contentHash"`
}

// decodeLog decodes the log against event and unmarshals the named values into out.
func decodeLog(ctx context.Context, event *abi.Entry, l *ledger.LogJSONRPC, out any) error {
	cv, err := event.DecodeEventDataCtx(ctx, l.Topics, l.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedLog, err)
	}
	b, err := ledger.Serializer.SerializeJSONCtx(ctx, cv)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedLog, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedLog, err)
	}
	return nil
}

// topicUint returns indexed topic i as a base-10 integer, or "" if absent.
func topicUint(l *ledger.LogJSONRPC, i int) string {
	if i >= len(l.Topics) || len(l.Topics[i]) != 32 {
		return ""
	}
	return new(big.Int).SetBytes(l.Topics[i]).String()
}

// topicAddress returns indexed topic i as a lower-case address, or "" if absent.
func topicAddress(l *ledger.LogJSONRPC, i int) string {
	if i >= len(l.Topics) || len(l.Topics[i]) != 32 {
		return ""
	}
	return ethtypes.HexBytes0xPrefix(l.Topics[i][12:]).String()
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// enumCode parses a decoded uint8; unparsable values map out of every enum's range.
func enumCode(s string) uint64 {
	n, err := parseUint(s)
	if err != nil {
		return math.MaxUint64
	}
	return n
}

// rawPayload is the log as received, stored for triage.
func rawPayload(l *ledger.LogJSONRPC) []byte {
	b, err := json.Marshal(l)
	if err != nil {
		return nil
	}
	return b
}
