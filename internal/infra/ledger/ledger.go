// Package ledger is the read-only gateway to the EVM ledger: block height, contract
// logs and the view calls the role gate needs.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/infra/rpc/provider"
	"github.com/vietddude/boatwatch/internal/infra/rpc/routing"
)

// Config holds the contracts and call limits of the ledger client.
type Config struct {
	// BoatToken emits Transfer and answers ownerOf.
	BoatToken string
	// Records emits BoatEventRecorded and CertificateIssued. Defaults to BoatToken.
	Records string
	// RoleRegistry answers hasRole. Defaults to BoatToken.
	RoleRegistry string
	// CallTimeout bounds each request including retries.
	CallTimeout time.Duration
	Retry       routing.RetryConfig
}

// Client reads ledger state through the provider router.
type Client struct {
	router   *routing.Router
	cfg      Config
	token    *ethtypes.Address0xHex
	records  *ethtypes.Address0xHex
	registry *ethtypes.Address0xHex
	log      *slog.Logger
}

// NewClient validates the configured addresses and returns a client.
func NewClient(router *routing.Router, cfg Config) (*Client, error) {
	token, err := ethtypes.NewAddress(cfg.BoatToken)
	if err != nil {
		return nil, fmt.Errorf("invalid boat token address %q: %w", cfg.BoatToken, err)
	}
	records, registry := token, token
	if cfg.Records != "" {
		if records, err = ethtypes.NewAddress(cfg.Records); err != nil {
			return nil, fmt.Errorf("invalid records address %q: %w", cfg.Records, err)
		}
	}
	if cfg.RoleRegistry != "" {
		if registry, err = ethtypes.NewAddress(cfg.RoleRegistry); err != nil {
			return nil, fmt.Errorf("invalid role registry address %q: %w", cfg.RoleRegistry, err)
		}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = routing.DefaultRetryConfig
	}
	return &Client{
		router:   router,
		cfg:      cfg,
		token:    token,
		records:  records,
		registry: registry,
		log:      slog.Default().With("component", "ledger"),
	}, nil
}

// BlockHeight returns the current head block number.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	var height ethtypes.HexUint64
	if err := c.call(ctx, &height, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return height.Uint64(), nil
}

// GetLogs returns every boat-related log in [from, to], ordered as the node returns them.
func (c *Client) GetLogs(ctx context.Context, from, to uint64) ([]*LogJSONRPC, error) {
	if from > to {
		return nil, fmt.Errorf("%w: from %d > to %d", domain.ErrInvalidRange, from, to)
	}

	addresses := []*ethtypes.Address0xHex{c.token}
	if !strings.EqualFold(c.records.String(), c.token.String()) {
		addresses = append(addresses, c.records)
	}
	filter := logFilter{
		FromBlock: ethtypes.HexUint64(from),
		ToBlock:   ethtypes.HexUint64(to),
		Address:   addresses,
		Topics: [][]ethtypes.HexBytes0xPrefix{{
			TransferTopic, BoatEventRecordedTopic, CertificateIssuedTopic,
		}},
	}

	var logs []*LogJSONRPC
	if err := c.call(ctx, &logs, "eth_getLogs", &filter); err != nil {
		return nil, err
	}
	c.log.Debug("Fetched logs", "from", from, "to", to, "count", len(logs))
	return logs, nil
}

// HasRole calls hasRole(role, account) on the role registry at block.
func (c *Client) HasRole(ctx context.Context, capability domain.Capability, account string, block uint64) (bool, error) {
	role, err := RoleID(capability)
	if err != nil {
		return false, err
	}
	data, err := HasRoleFunction.EncodeCallDataValuesCtx(ctx, []any{role.String(), account})
	if err != nil {
		return false, fmt.Errorf("encode hasRole: %w", err)
	}

	out, err := c.viewCall(ctx, c.registry, data, block)
	if err != nil {
		return false, err
	}
	var res struct {
		Granted json.RawMessage `json:"granted"`
	}
	if err := c.decodeOutputs(ctx, HasRoleFunction.Outputs, out, &res); err != nil {
		return false, err
	}
	v := strings.Trim(string(res.Granted), `"`)
	return v == "true", nil
}

// OwnerOf returns the owner of tokenID at block, or "" when the token does not exist.
func (c *Client) OwnerOf(ctx context.Context, tokenID string, block uint64) (string, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", fmt.Errorf("invalid token id %q", tokenID)
	}
	data, err := OwnerOfFunction.EncodeCallDataValuesCtx(ctx, []any{id})
	if err != nil {
		return "", fmt.Errorf("encode ownerOf: %w", err)
	}

	out, err := c.viewCall(ctx, c.token, data, block)
	if errors.Is(err, errReverted) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var res struct {
		Owner string `json:"owner"`
	}
	if err := c.decodeOutputs(ctx, OwnerOfFunction.Outputs, out, &res); err != nil {
		return "", err
	}
	return strings.ToLower(res.Owner), nil
}

var errReverted = errors.New("execution reverted")

func (c *Client) viewCall(ctx context.Context, to *ethtypes.Address0xHex, data []byte, block uint64) (ethtypes.HexBytes0xPrefix, error) {
	var out ethtypes.HexBytes0xPrefix
	at := ethtypes.HexUint64(block)
	err := c.call(ctx, &out, "eth_call", callRequest{To: to, Data: data}, at.String())
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) decodeOutputs(ctx context.Context, outputs abi.ParameterArray, data []byte, target any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty call result", domain.ErrUnavailable)
	}
	cv, err := outputs.DecodeABIDataCtx(ctx, data, 0)
	if err != nil {
		return fmt.Errorf("%w: decode call result: %v", domain.ErrUnavailable, err)
	}
	b, err := Serializer.SerializeJSONCtx(ctx, cv)
	if err != nil {
		return fmt.Errorf("serialize call result: %w", err)
	}
	return json.Unmarshal(b, target)
}

// call runs method through the router with a bounded timeout and maps failures onto
// domain.ErrUnavailable and domain.ErrInvalidRange.
func (c *Client) call(ctx context.Context, result any, method string, params ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	raw, err := routing.CallWithRetryAndFailover(ctx, c.router, method, params, c.cfg.Retry)
	if err != nil {
		return mapError(method, err)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", domain.ErrUnavailable, method, err)
	}
	return nil
}

func mapError(method string, err error) error {
	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		switch {
		case rpcErr.Code == 3 || strings.Contains(msg, "execution reverted"):
			return fmt.Errorf("%s: %w", method, errReverted)
		case method == "eth_getLogs" && (rpcErr.Code == -32602 || strings.Contains(msg, "invalid block range")):
			return fmt.Errorf("%w: %s: %s", domain.ErrInvalidRange, method, rpcErr.Message)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, method, err)
}
