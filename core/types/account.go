package types

import "math/big"

// Account is the balance-bearing record for a 20-byte address. The fungible
// balance funds offer payments; single-unit asset holdings live in dedicated
// asset accounts keyed by 32-byte references.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// AssetAccount holds at most one unit of a single asset mint on behalf of its
// owner. Holding accounts under custody record the custody authority as the
// owner so only the derived signer can move the unit onward.
type AssetAccount struct {
	ID    [32]byte `json:"id"`
	Mint  [32]byte `json:"mint"`
	Owner [20]byte `json:"owner"`
	Units uint8    `json:"units"`
}
