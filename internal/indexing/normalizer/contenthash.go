package normalizer

import (
	"strings"

	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/ipfs/go-cid"
)

// ValidContentHash reports whether s references off-ledger content: a 0x-prefixed
// 32-byte digest or a decodable CID (v0 or v1, any multibase).
func ValidContentHash(s string) bool {
	if strings.HasPrefix(s, "0x") {
		digest, err := ethtypes.NewHexBytes0xPrefix(s)
		return err == nil && len(digest) == 32
	}
	_, err := cid.Decode(s)
	return err == nil
}
