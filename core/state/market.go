package state

import (
	"fmt"
	"math/big"

	"nmchain/native/market"
)

var (
	offerLedgerPrefix = []byte("market/ledger:")
	listingPrefix     = []byte("market/listing:")
	settlementPrefix  = []byte("market/settlement:")
	catalogPrefix     = []byte("market/catalog:")
)

func offerLedgerKey(listingID [32]byte) []byte {
	return prefixedKey(offerLedgerPrefix, listingID[:])
}

func listingKey(id [32]byte) []byte {
	return prefixedKey(listingPrefix, id[:])
}

func settlementKey(id [32]byte) []byte {
	return prefixedKey(settlementPrefix, id[:])
}

func catalogKey(assetMint [32]byte) []byte {
	return prefixedKey(catalogPrefix, assetMint[:])
}

// storedListing mirrors market.Listing with an RLP-encodable timestamp.
type storedListing struct {
	ID               [32]byte
	Owner            [20]byte
	CustodyAuthority [20]byte
	CollectionID     uint32
	CatalogItemID    uint32
	Price            *big.Int
	AssetMint        [32]byte
	HoldingAccount   [32]byte
	CreatedAt        uint64
}

func newStoredListing(l *market.Listing) *storedListing {
	price := l.Price
	if price == nil {
		price = big.NewInt(0)
	}
	createdAt := uint64(0)
	if l.CreatedAt > 0 {
		createdAt = uint64(l.CreatedAt)
	}
	return &storedListing{
		ID:               l.ID,
		Owner:            l.Owner,
		CustodyAuthority: l.CustodyAuthority,
		CollectionID:     l.CollectionID,
		CatalogItemID:    l.CatalogItemID,
		Price:            new(big.Int).Set(price),
		AssetMint:        l.AssetMint,
		HoldingAccount:   l.HoldingAccount,
		CreatedAt:        createdAt,
	}
}

func (s *storedListing) listing() *market.Listing {
	price := s.Price
	if price == nil {
		price = big.NewInt(0)
	}
	return &market.Listing{
		ID:               s.ID,
		Owner:            s.Owner,
		CustodyAuthority: s.CustodyAuthority,
		CollectionID:     s.CollectionID,
		CatalogItemID:    s.CatalogItemID,
		Price:            new(big.Int).Set(price),
		AssetMint:        s.AssetMint,
		HoldingAccount:   s.HoldingAccount,
		CreatedAt:        int64(s.CreatedAt),
	}
}

// OfferLedgerPut persists the sanitized ledger under its listing identifier.
func (m *Manager) OfferLedgerPut(ledger *market.OfferLedger) error {
	sanitized, err := market.SanitizeOfferLedger(ledger)
	if err != nil {
		return err
	}
	return m.writeRecord(offerLedgerKey(sanitized.ListingID), sanitized)
}

// OfferLedgerGet returns the ledger stored for the listing identifier.
func (m *Manager) OfferLedgerGet(listingID [32]byte) (*market.OfferLedger, bool) {
	ledger := new(market.OfferLedger)
	ok, err := m.readRecord(offerLedgerKey(listingID), ledger)
	if err != nil || !ok {
		return nil, false
	}
	sanitized, err := market.SanitizeOfferLedger(ledger)
	if err != nil {
		return nil, false
	}
	return sanitized, true
}

// ListingPut persists the listing record.
func (m *Manager) ListingPut(listing *market.Listing) error {
	if listing == nil {
		return fmt.Errorf("state: nil listing")
	}
	return m.writeRecord(listingKey(listing.ID), newStoredListing(listing))
}

// ListingGet returns the listing stored for the identifier.
func (m *Manager) ListingGet(id [32]byte) (*market.Listing, bool) {
	stored := new(storedListing)
	ok, err := m.readRecord(listingKey(id), stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.listing(), true
}

// ListingRemove deletes the listing record. Removing a missing listing is a
// no-op.
func (m *Manager) ListingRemove(id [32]byte) error {
	return m.db.Delete(listingKey(id))
}

// SettlementPut persists the settlement progress record.
func (m *Manager) SettlementPut(st *market.SettlementState) error {
	if st == nil {
		return fmt.Errorf("state: nil settlement state")
	}
	stored := st.Clone()
	return m.writeRecord(settlementKey(stored.ID), stored)
}

// SettlementGet returns the settlement record stored for the identifier.
func (m *Manager) SettlementGet(id [32]byte) (*market.SettlementState, bool) {
	st := new(market.SettlementState)
	ok, err := m.readRecord(settlementKey(id), st)
	if err != nil || !ok {
		return nil, false
	}
	return st, true
}

// CatalogPut persists the asset registry record under its mint.
func (m *Manager) CatalogPut(entry *market.CatalogEntry) error {
	if entry == nil {
		return fmt.Errorf("state: nil catalog entry")
	}
	stored := *entry
	return m.writeRecord(catalogKey(stored.AssetMint), &stored)
}

// CatalogGet returns the registry record stored for the mint.
func (m *Manager) CatalogGet(assetMint [32]byte) (*market.CatalogEntry, bool) {
	entry := new(market.CatalogEntry)
	ok, err := m.readRecord(catalogKey(assetMint), entry)
	if err != nil || !ok {
		return nil, false
	}
	return entry, true
}

// CatalogRemove deletes the registry record for the mint.
func (m *Manager) CatalogRemove(assetMint [32]byte) error {
	return m.db.Delete(catalogKey(assetMint))
}
