package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"golang.org/x/crypto/sha3"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

const boatABIJSON = `[
  {
    "type": "event",
    "name": "Transfer",
    "inputs": [
      {"name": "from", "type": "address", "indexed": true},
      {"name": "to", "type": "address", "indexed": true},
      {"name": "tokenId", "type": "uint256", "indexed": true}
    ]
  },
  {
    "type": "event",
    "name": "BoatEventRecorded",
    "inputs": [
      {"name": "boatId", "type": "uint256", "indexed": true},
      {"name": "kind", "type": "uint8", "indexed": false},
      {"name": "timestamp", "type": "uint64", "indexed": false},
      {"name": "author", "type": "address", "indexed": true},
      {"name": "contentHash", "type": "string", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "CertificateIssued",
    "inputs": [
      {"name": "boatId", "type": "uint256", "indexed": true},
      {"name": "issuer", "type": "address", "indexed": true},
      {"name": "certificateType", "type": "uint8", "indexed": false},
      {"name": "issuedDate", "type": "uint64", "indexed": false},
      {"name": "expiresDate", "type": "uint64", "indexed": false},
      {"name": "title", "type": "string", "indexed": false},
      {"name": "description", "type": "string", "indexed": false},
      {"name": "contentHash", "type": "string", "indexed": false}
    ]
  },
  {
    "type": "function",
    "name": "ownerOf",
    "stateMutability": "view",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": [{"name": "owner", "type": "address"}]
  },
  {
    "type": "function",
    "name": "hasRole",
    "stateMutability": "view",
    "inputs": [
      {"name": "role", "type": "bytes32"},
      {"name": "account", "type": "address"}
    ],
    "outputs": [{"name": "granted", "type": "bool"}]
  }
]`

// Contract entries used for log decoding and view calls.
var (
	BoatABI           = mustParseABI(boatABIJSON)
	TransferEvent     = BoatABI.Events()["Transfer"]
	BoatEventRecorded = BoatABI.Events()["BoatEventRecorded"]
	CertificateIssued = BoatABI.Events()["CertificateIssued"]
	OwnerOfFunction   = BoatABI.Functions()["ownerOf"]
	HasRoleFunction   = BoatABI.Functions()["hasRole"]
)

// Topic0 values of the logs the scanner subscribes to.
var (
	TransferTopic          = TransferEvent.SignatureHashBytes()
	BoatEventRecordedTopic = BoatEventRecorded.SignatureHashBytes()
	CertificateIssuedTopic = CertificateIssued.SignatureHashBytes()
)

// Serializer renders decoded values as JSON objects with decimal integers and 0x hex bytes.
var Serializer = abi.NewSerializer().
	SetFormattingMode(abi.FormatAsObjects).
	SetIntSerializer(abi.Base10StringIntSerializer).
	SetByteSerializer(abi.HexByteSerializer0xPrefix)

// ZeroAddress is the ERC-721 mint/burn counterparty.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

func mustParseABI(s string) abi.ABI {
	var a abi.ABI
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return a
}

// roleNames are the AccessControl role identifiers hashed into bytes32 role ids.
var roleNames = map[domain.Capability]string{
	domain.CapabilityMinter:                "MINTER_ROLE",
	domain.CapabilityCertifiedProfessional: "CERTIFIED_PROFESSIONAL_ROLE",
	domain.CapabilityInsurer:               "INSURER_ROLE",
}

// RoleID returns the bytes32 role id of a capability. Admin is DEFAULT_ADMIN_ROLE (zero).
func RoleID(c domain.Capability) (ethtypes.HexBytes0xPrefix, error) {
	if c == domain.CapabilityAdmin {
		return make(ethtypes.HexBytes0xPrefix, 32), nil
	}
	name, ok := roleNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown capability %q", c)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	return ethtypes.HexBytes0xPrefix(h.Sum(nil)), nil
}
