package market

import (
	"encoding/hex"
	"strconv"

	"nmchain/core/types"
)

const (
	EventTypeOfferAdded          = "market.offer.added"
	EventTypeOfferAccepted       = "market.offer.accepted"
	EventTypeOfferRejected       = "market.offer.rejected"
	EventTypeOfferCancelled      = "market.offer.cancelled"
	EventTypeListed              = "market.listed"
	EventTypeUnlisted            = "market.unlisted"
	EventTypePaymentSettled      = "market.settlement.paid"
	EventTypeLegDelivered        = "market.settlement.leg"
	EventTypeSettlementCompleted = "market.settlement.completed"
	EventTypeCatalogEntryAdded   = "market.catalog.added"
	EventTypeCatalogEntryRemoved = "market.catalog.removed"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// NewOfferAddedEvent returns the canonical payload emitted when an offer is
// appended to a listing's ledger.
func NewOfferAddedEvent(l *OfferLedger, item OfferItem) *types.Event {
	attrs := ledgerAttributes(l)
	attrs["paymentAmount"] = item.Clone().PaymentAmount.String()
	attrs["assetCount"] = strconv.FormatUint(uint64(item.AssetCount), 10)
	return &types.Event{Type: EventTypeOfferAdded, Attributes: attrs}
}

// NewOfferAcceptedEvent returns the payload emitted when the listing owner
// accepts an offer, discarding the rest of the ledger.
func NewOfferAcceptedEvent(l *OfferLedger, index uint8) *types.Event {
	attrs := ledgerAttributes(l)
	attrs["index"] = strconv.FormatUint(uint64(index), 10)
	return &types.Event{Type: EventTypeOfferAccepted, Attributes: attrs}
}

// NewOfferRejectedEvent returns the payload emitted when an offer is removed
// by the listing side.
func NewOfferRejectedEvent(l *OfferLedger, index uint8) *types.Event {
	attrs := ledgerAttributes(l)
	attrs["index"] = strconv.FormatUint(uint64(index), 10)
	return &types.Event{Type: EventTypeOfferRejected, Attributes: attrs}
}

// NewOfferCancelledEvent returns the payload emitted when the offeror cancels
// their own offer.
func NewOfferCancelledEvent(l *OfferLedger, index uint8) *types.Event {
	attrs := ledgerAttributes(l)
	attrs["index"] = strconv.FormatUint(uint64(index), 10)
	return &types.Event{Type: EventTypeOfferCancelled, Attributes: attrs}
}

// NewListedEvent returns the payload emitted when an asset is moved into
// custody and listed for sale.
func NewListedEvent(l *Listing) *types.Event {
	return &types.Event{Type: EventTypeListed, Attributes: listingAttributes(l)}
}

// NewUnlistedEvent returns the payload emitted when a listing is cancelled
// and the asset returned to its owner.
func NewUnlistedEvent(l *Listing) *types.Event {
	return &types.Event{Type: EventTypeUnlisted, Attributes: listingAttributes(l)}
}

// NewPaymentSettledEvent returns the payload emitted when the one-time
// payment leg of a settlement executes.
func NewPaymentSettledEvent(s *SettlementState, amount string) *types.Event {
	attrs := settlementAttributes(s)
	attrs["amount"] = amount
	return &types.Event{Type: EventTypePaymentSettled, Attributes: attrs}
}

// NewLegDeliveredEvent returns the payload emitted when an asset leg is moved
// into escrow for the first time.
func NewLegDeliveredEvent(s *SettlementState, source [32]byte) *types.Event {
	attrs := settlementAttributes(s)
	attrs["source"] = hex.EncodeToString(source[:])
	return &types.Event{Type: EventTypeLegDelivered, Attributes: attrs}
}

// NewSettlementCompletedEvent returns the payload emitted exactly once when
// custody releases the purchased asset to the buyer.
func NewSettlementCompletedEvent(s *SettlementState) *types.Event {
	return &types.Event{Type: EventTypeSettlementCompleted, Attributes: settlementAttributes(s)}
}

// NewCatalogEntryAddedEvent returns the payload emitted when an asset record
// is registered in the catalog.
func NewCatalogEntryAddedEvent(entry *CatalogEntry) *types.Event {
	attrs := make(map[string]string)
	if entry != nil {
		attrs["assetMint"] = hex.EncodeToString(entry.AssetMint[:])
		attrs["owner"] = hex.EncodeToString(entry.Owner[:])
		attrs["collectionId"] = strconv.FormatUint(uint64(entry.CollectionID), 10)
		attrs["catalogItemId"] = strconv.FormatUint(uint64(entry.CatalogItemID), 10)
	}
	return &types.Event{Type: EventTypeCatalogEntryAdded, Attributes: attrs}
}

// NewCatalogEntryRemovedEvent returns the payload emitted when an asset
// record leaves the catalog.
func NewCatalogEntryRemovedEvent(assetMint [32]byte) *types.Event {
	return &types.Event{
		Type:       EventTypeCatalogEntryRemoved,
		Attributes: map[string]string{"assetMint": hex.EncodeToString(assetMint[:])},
	}
}

func ledgerAttributes(l *OfferLedger) map[string]string {
	attrs := make(map[string]string)
	if l == nil {
		return attrs
	}
	sanitized, err := SanitizeOfferLedger(l)
	if err != nil {
		return attrs
	}
	attrs["listingId"] = hex.EncodeToString(sanitized.ListingID[:])
	attrs["collectionId"] = strconv.FormatUint(uint64(sanitized.CollectionID), 10)
	attrs["catalogItemId"] = strconv.FormatUint(uint64(sanitized.CatalogItemID), 10)
	attrs["offeror"] = hex.EncodeToString(sanitized.Offeror[:])
	attrs["itemCount"] = strconv.FormatUint(uint64(sanitized.ItemCount), 10)
	attrs["listedPrice"] = sanitized.ListedPrice.String()
	attrs["floorPrice"] = sanitized.FloorPrice.String()
	return attrs
}

func listingAttributes(l *Listing) map[string]string {
	attrs := make(map[string]string)
	if l == nil {
		return attrs
	}
	clone := l.Clone()
	attrs["listingId"] = hex.EncodeToString(clone.ID[:])
	attrs["owner"] = hex.EncodeToString(clone.Owner[:])
	attrs["custodyAuthority"] = hex.EncodeToString(clone.CustodyAuthority[:])
	attrs["collectionId"] = strconv.FormatUint(uint64(clone.CollectionID), 10)
	attrs["catalogItemId"] = strconv.FormatUint(uint64(clone.CatalogItemID), 10)
	attrs["price"] = clone.Price.String()
	attrs["assetMint"] = hex.EncodeToString(clone.AssetMint[:])
	return attrs
}

func settlementAttributes(s *SettlementState) map[string]string {
	attrs := make(map[string]string)
	if s == nil {
		return attrs
	}
	attrs["settlementId"] = hex.EncodeToString(s.ID[:])
	attrs["paymentSettled"] = strconv.FormatBool(s.PaymentSettled)
	attrs["deliveredCount"] = strconv.FormatUint(uint64(s.DeliveredCount), 10)
	return attrs
}
