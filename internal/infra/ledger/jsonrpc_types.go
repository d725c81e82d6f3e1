package ledger

import (
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
)

// LogJSONRPC is a log entry as returned by eth_getLogs.
type LogJSONRPC struct {
	Removed          bool                        `json:"removed"`
	LogIndex         ethtypes.HexUint64          `json:"logIndex"`
	TransactionIndex ethtypes.HexUint64          `json:"transactionIndex"`
	BlockNumber      ethtypes.HexUint64          `json:"blockNumber"`
	TransactionHash  ethtypes.HexBytes0xPrefix   `json:"transactionHash"`
	BlockHash        ethtypes.HexBytes0xPrefix   `json:"blockHash"`
	Address          *ethtypes.Address0xHex      `json:"address"`
	Data             ethtypes.HexBytes0xPrefix   `json:"data"`
	Topics           []ethtypes.HexBytes0xPrefix `json:"topics"`
}

// logFilter is the eth_getLogs request object. Topics[0] is OR-matched.
type logFilter struct {
	FromBlock ethtypes.HexUint64            `json:"fromBlock"`
	ToBlock   ethtypes.HexUint64            `json:"toBlock"`
	Address   []*ethtypes.Address0xHex      `json:"address,omitempty"`
	Topics    [][]ethtypes.HexBytes0xPrefix `json:"topics,omitempty"`
}

// callRequest is the transaction object of eth_call.
type callRequest struct {
	To   *ethtypes.Address0xHex    `json:"to"`
	Data ethtypes.HexBytes0xPrefix `json:"data"`
}
