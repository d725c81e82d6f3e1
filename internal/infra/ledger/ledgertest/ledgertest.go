// Package ledgertest builds ABI-encoded boat logs and serves them from an in-memory chain.
package ledgertest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"

	"github.com/vietddude/boatwatch/internal/infra/ledger"
)

// Contract is the address logs are emitted from.
const Contract = "0x1111111111111111111111111111111111111111"

// Hash returns a deterministic 32-byte hash for n.
func Hash(n uint64) string {
	return Word(new(big.Int).SetUint64(n)).String()
}

// Word left-pads v to 32 bytes.
func Word(v *big.Int) ethtypes.HexBytes0xPrefix {
	b := make([]byte, 32)
	v.FillBytes(b)
	return b
}

// AddressTopic left-pads an address to a 32-byte topic.
func AddressTopic(addr string) ethtypes.HexBytes0xPrefix {
	a := ethtypes.MustNewAddress(addr)
	b := make([]byte, 32)
	copy(b[12:], (*a)[:])
	return b
}

func encodeData(e *abi.Entry, values map[string]any) ethtypes.HexBytes0xPrefix {
	var params abi.ParameterArray
	for _, p := range e.Inputs {
		if !p.Indexed {
			params = append(params, p)
		}
	}
	b, err := json.Marshal(values)
	if err != nil {
		panic(err)
	}
	data, err := params.EncodeABIDataJSON(b)
	if err != nil {
		panic(fmt.Sprintf("encode %s data: %v", e.Name, err))
	}
	return data
}

func newLog(block, index uint64, tx string, topics []ethtypes.HexBytes0xPrefix, data ethtypes.HexBytes0xPrefix) *ledger.LogJSONRPC {
	return &ledger.LogJSONRPC{
		BlockNumber:     ethtypes.HexUint64(block),
		LogIndex:        ethtypes.HexUint64(index),
		TransactionHash: ethtypes.MustNewHexBytes0xPrefix(tx),
		Address:         ethtypes.MustNewAddress(Contract),
		Topics:          topics,
		Data:            data,
	}
}

// Transfer builds an ERC-721 Transfer log. from == ledger.ZeroAddress is a mint.
func Transfer(block, index uint64, tx, from, to string, tokenID uint64) *ledger.LogJSONRPC {
	return newLog(block, index, tx, []ethtypes.HexBytes0xPrefix{
		ledger.TransferTopic,
		AddressTopic(from),
		AddressTopic(to),
		Word(new(big.Int).SetUint64(tokenID)),
	}, ethtypes.HexBytes0xPrefix{})
}

// Event builds a BoatEventRecorded log.
func Event(block, index uint64, tx string, boatID uint64, kind uint8, timestamp uint64, author, contentHash string) *ledger.LogJSONRPC {
	return newLog(block, index, tx, []ethtypes.HexBytes0xPrefix{
		ledger.BoatEventRecordedTopic,
		Word(new(big.Int).SetUint64(boatID)),
		AddressTopic(author),
	}, encodeData(ledger.BoatEventRecorded, map[string]any{
		"kind":        kind,
		"timestamp":   timestamp,
		"contentHash": contentHash,
	}))
}

// CertificateArgs are the fields of a CertificateIssued log.
type CertificateArgs struct {
	BoatID          uint64
	Issuer          string
	CertificateType uint8
	IssuedDate      uint64
	ExpiresDate     uint64
	Title           string
	Description     string
	ContentHash     string
}

// Certificate builds a CertificateIssued log.
func Certificate(block, index uint64, tx string, c CertificateArgs) *ledger.LogJSONRPC {
	return newLog(block, index, tx, []ethtypes.HexBytes0xPrefix{
		ledger.CertificateIssuedTopic,
		Word(new(big.Int).SetUint64(c.BoatID)),
		AddressTopic(c.Issuer),
	}, encodeData(ledger.CertificateIssued, map[string]any{
		"certificateType": c.CertificateType,
		"issuedDate":      c.IssuedDate,
		"expiresDate":     c.ExpiresDate,
		"title":           c.Title,
		"description":     c.Description,
		"contentHash":     c.ContentHash,
	}))
}

// Chain is an in-memory ledger.
type Chain struct {
	mu        sync.Mutex
	height    uint64
	logs      []*ledger.LogJSONRPC
	failures  []error
	getLogs   [][2]uint64
	heightErr error
}

// NewChain returns a chain at height.
func NewChain(height uint64) *Chain {
	return &Chain{height: height}
}

// SetHeight moves the chain head.
func (c *Chain) SetHeight(h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = h
}

// AddLogs appends logs to the chain.
func (c *Chain) AddLogs(logs ...*ledger.LogJSONRPC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, logs...)
}

// FailGetLogs makes the next len(errs) GetLogs calls return errs in order.
func (c *Chain) FailGetLogs(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, errs...)
}

// FailHeight makes BlockHeight return err until cleared with nil.
func (c *Chain) FailHeight(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heightErr = err
}

// GetLogsCalls returns the ranges requested so far.
func (c *Chain) GetLogsCalls() [][2]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][2]uint64, len(c.getLogs))
	copy(out, c.getLogs)
	return out
}

// BlockHeight implements the scanner's ledger contract.
func (c *Chain) BlockHeight(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heightErr != nil {
		return 0, c.heightErr
	}
	return c.height, nil
}

// GetLogs returns the logs in [from, to].
func (c *Chain) GetLogs(ctx context.Context, from, to uint64) ([]*ledger.LogJSONRPC, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getLogs = append(c.getLogs, [2]uint64{from, to})
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return nil, err
	}
	var out []*ledger.LogJSONRPC
	for _, l := range c.logs {
		if b := l.BlockNumber.Uint64(); b >= from && b <= to {
			out = append(out, l)
		}
	}
	return out, nil
}
