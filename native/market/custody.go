package market

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	custodyAuthoritySeed = "market/custody-authority"
	listingIDSeed        = "market/listing"
	settlementIDSeed     = "market/settlement"
)

// CustodyAddress derives the deterministic custody authority for a
// collection. The address is a pure function of the domain-separation seed
// and the collection identifier; no secret material is stored anywhere.
func CustodyAddress(collectionID uint32) [20]byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], collectionID)
	hash := ethcrypto.Keccak256([]byte(custodyAuthoritySeed), buf[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// CustodySigner is the capability authorising transfers out of custody-held
// accounts. It is derivable from public context alone and only used for the
// final release leg.
type CustodySigner struct {
	collection uint32
}

// SignAsCustody returns the custody signing capability for a collection.
func SignAsCustody(collectionID uint32) CustodySigner {
	return CustodySigner{collection: collectionID}
}

// Address returns the authority address the capability signs for.
func (s CustodySigner) Address() [20]byte {
	return CustodyAddress(s.collection)
}

// ListingID derives the deterministic listing identifier for an asset mint.
func ListingID(assetMint [32]byte) [32]byte {
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256([]byte(listingIDSeed), assetMint[:]))
	return id
}

// SettlementID derives the settlement record identifier owned by the
// (listing, accepted offer) pair.
func SettlementID(listingID [32]byte) [32]byte {
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256([]byte(settlementIDSeed), listingID[:]))
	return id
}
