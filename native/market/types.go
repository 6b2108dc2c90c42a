package market

import (
	"fmt"
	"math/big"
)

const (
	// MaxOfferCount bounds the number of concurrent offers a listing's
	// ledger can hold. Adding to a full ledger is a silent no-op.
	MaxOfferCount = 3

	// MaxBundleAssets bounds the number of asset legs a single bundled
	// offer may carry. Record layout depends on this constant; changing it
	// invalidates stored ledgers.
	MaxBundleAssets = 5
)

// OfferItem is one buyer's bundled proposal against a listing: a fungible
// payment plus up to MaxBundleAssets single-unit assets. The mint and source
// arrays are parallel; slots at index >= AssetCount are zero-valued and must
// never be treated as valid legs.
type OfferItem struct {
	PaymentAmount *big.Int
	UnitPriceHint *big.Int
	AssetMints    [MaxBundleAssets][32]byte
	AssetSources  [MaxBundleAssets][32]byte
	AssetCount    uint8
}

// Clone returns a deep copy of the offer item so callers can mutate the copy
// without affecting the stored instance.
func (i OfferItem) Clone() OfferItem {
	clone := i
	if i.PaymentAmount != nil {
		clone.PaymentAmount = new(big.Int).Set(i.PaymentAmount)
	} else {
		clone.PaymentAmount = big.NewInt(0)
	}
	if i.UnitPriceHint != nil {
		clone.UnitPriceHint = new(big.Int).Set(i.UnitPriceHint)
	} else {
		clone.UnitPriceHint = big.NewInt(0)
	}
	return clone
}

// sourceDeclared reports whether the given source reference is one of the
// populated asset legs of the offer.
func (i OfferItem) sourceDeclared(source [32]byte) bool {
	for idx := uint8(0); idx < i.AssetCount && idx < MaxBundleAssets; idx++ {
		if i.AssetSources[idx] == source {
			return true
		}
	}
	return false
}

// SanitizeOfferItem validates and normalises the supplied offer item,
// returning a cloned instance with non-nil amounts and zeroed stale slots.
func SanitizeOfferItem(i OfferItem) (OfferItem, error) {
	clone := i.Clone()
	if clone.AssetCount > MaxBundleAssets {
		return OfferItem{}, fmt.Errorf("market: asset count %d exceeds bundle limit", clone.AssetCount)
	}
	if clone.PaymentAmount.Sign() < 0 {
		return OfferItem{}, fmt.Errorf("market: payment amount must be non-negative")
	}
	for idx := clone.AssetCount; idx < MaxBundleAssets; idx++ {
		clone.AssetMints[idx] = [32]byte{}
		clone.AssetSources[idx] = [32]byte{}
	}
	return clone, nil
}

// OfferLedger is the bounded collection of pending offers attached to one
// listing. A single offeror context is shared across the ledger: every
// accepted add re-stamps the listing fields and the offeror with the caller's
// context, matching the historical record layout.
type OfferLedger struct {
	ListingID        [32]byte
	CollectionID     uint32
	CatalogItemID    uint32
	Offeror          [20]byte
	Items            [MaxOfferCount]OfferItem
	ItemCount        uint8
	ListingAuthority [20]byte
	ListedPrice      *big.Int
	FloorPrice       *big.Int
}

// Clone returns a deep copy of the ledger.
func (l *OfferLedger) Clone() *OfferLedger {
	if l == nil {
		return nil
	}
	clone := *l
	for idx := range l.Items {
		clone.Items[idx] = l.Items[idx].Clone()
	}
	if l.ListedPrice != nil {
		clone.ListedPrice = new(big.Int).Set(l.ListedPrice)
	} else {
		clone.ListedPrice = big.NewInt(0)
	}
	if l.FloorPrice != nil {
		clone.FloorPrice = new(big.Int).Set(l.FloorPrice)
	} else {
		clone.FloorPrice = big.NewInt(0)
	}
	return &clone
}

// addItem appends the offer at the occupancy cursor. Callers must check
// capacity first.
func (l *OfferLedger) addItem(item OfferItem) {
	l.Items[l.ItemCount] = item
	l.ItemCount++
}

// removeItem compacts by copying the last populated slot over the removed
// index. Order among remaining items is not preserved.
func (l *OfferLedger) removeItem(index uint8) {
	l.Items[index] = l.Items[l.ItemCount-1]
	l.Items[l.ItemCount-1] = OfferItem{}
	l.ItemCount--
}

// acceptItem collapses the ledger to the single surviving offer, discarding
// all other pending items.
func (l *OfferLedger) acceptItem(index uint8) {
	l.Items[0] = l.Items[index]
	for idx := 1; idx < MaxOfferCount; idx++ {
		l.Items[idx] = OfferItem{}
	}
	l.ItemCount = 1
}

// SanitizeOfferLedger validates and normalises the supplied ledger, returning
// a cloned instance with non-nil prices and sanitized items.
func SanitizeOfferLedger(l *OfferLedger) (*OfferLedger, error) {
	if l == nil {
		return nil, fmt.Errorf("market: nil offer ledger")
	}
	clone := l.Clone()
	if clone.ItemCount > MaxOfferCount {
		return nil, fmt.Errorf("market: item count %d exceeds ledger capacity", clone.ItemCount)
	}
	for idx := uint8(0); idx < clone.ItemCount; idx++ {
		item, err := SanitizeOfferItem(clone.Items[idx])
		if err != nil {
			return nil, err
		}
		clone.Items[idx] = item
	}
	for idx := clone.ItemCount; idx < MaxOfferCount; idx++ {
		clone.Items[idx] = OfferItem{}.Clone()
	}
	return clone, nil
}

// Listing records which catalog entry is for sale, its price and the custody
// authority controlling the escrowed asset.
type Listing struct {
	ID               [32]byte
	Owner            [20]byte
	CustodyAuthority [20]byte
	CollectionID     uint32
	CatalogItemID    uint32
	Price            *big.Int
	AssetMint        [32]byte
	HoldingAccount   [32]byte
	CreatedAt        int64
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// CatalogEntry is the per-asset registry record consulted by settlement
// access control.
type CatalogEntry struct {
	AssetMint     [32]byte
	Owner         [20]byte
	CollectionID  uint32
	CatalogItemID uint32
}

// SettlementState is the per-purchase progress record. Counts only increase;
// the record is terminal once the payment is settled and every declared asset
// leg has been delivered.
type SettlementState struct {
	ID               [32]byte
	PaymentSettled   bool
	DeliveredCount   uint8
	DeliveredSources [MaxBundleAssets][32]byte
}

// Clone returns a copy of the settlement state.
func (s *SettlementState) Clone() *SettlementState {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Delivered reports whether the source reference was already moved by a prior
// leg, which makes replaying it a no-op.
func (s *SettlementState) Delivered(source [32]byte) bool {
	if s == nil {
		return false
	}
	for idx := uint8(0); idx < s.DeliveredCount && idx < MaxBundleAssets; idx++ {
		if s.DeliveredSources[idx] == source {
			return true
		}
	}
	return false
}

// recordDelivery appends the source to the delivered set. Callers must check
// Delivered first; the delivered set never holds duplicates.
func (s *SettlementState) recordDelivery(source [32]byte) {
	s.DeliveredSources[s.DeliveredCount] = source
	s.DeliveredCount++
}

// Terminal reports whether every leg of a settlement against an offer with
// the given asset count has completed.
func (s *SettlementState) Terminal(assetCount uint8) bool {
	if s == nil {
		return false
	}
	return s.PaymentSettled && s.DeliveredCount >= assetCount
}
