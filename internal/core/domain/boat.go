package domain

// Boat is an ERC-721 asset known to the indexer. A boat exists from MintedBlock on.
type Boat struct {
	BoatID       string
	MintedBlock  uint64
	MintedTx     string
	Owner        string
	UpdatedBlock uint64
}

// OwnershipChange is a Transfer between two non-zero addresses.
type OwnershipChange struct {
	BoatID      string
	From        string
	To          string
	TxHash      string
	LogIndex    uint64
	BlockNumber uint64
}
