package market

import (
	"errors"
	"fmt"
	"math/big"

	nativecommon "nmchain/native/common"
	"nmchain/observability/metrics"
)

var (
	// ErrListingNotFound is returned when no listing exists for the
	// identifier.
	ErrListingNotFound = errors.New("market: listing not found")
	// ErrAlreadyListed is returned when the asset is already under
	// custody.
	ErrAlreadyListed = errors.New("market: asset already listed")
)

// PutOnSale records the listing metadata and moves the asset from the
// owner's account into the custody holding account with a single unit
// transfer. After this call the derived custody authority is the only entity
// that can authorise moving the asset onward. The zero-valued offer ledger
// for the listing is created in the same step.
func (e *Engine) PutOnSale(owner [20]byte, collectionID, catalogItemID uint32, price *big.Int, assetMint, source, holding [32]byte) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, err
	}
	amount := cloneBigInt(price)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("market: listing price must be positive")
	}
	id := ListingID(assetMint)
	if _, ok := e.state.ListingGet(id); ok {
		return nil, ErrAlreadyListed
	}
	if err := e.state.TransferUnit(source, holding, owner); err != nil {
		return nil, err
	}
	listing := &Listing{
		ID:               id,
		Owner:            owner,
		CustodyAuthority: CustodyAddress(collectionID),
		CollectionID:     collectionID,
		CatalogItemID:    catalogItemID,
		Price:            amount,
		AssetMint:        assetMint,
		HoldingAccount:   holding,
		CreatedAt:        e.now(),
	}
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	if _, err := e.CreateOfferLedger(id); err != nil {
		return nil, err
	}
	e.emit(NewListedEvent(listing))
	metrics.Market().ObserveListed()
	return listing.Clone(), nil
}

// CancelFromSale reverses custody: the deterministic custody capability
// authorises the transfer of the asset back out of the holding account and
// the listing record is released. After this call no settlement may
// reference the listing.
func (e *Engine) CancelFromSale(listingID [32]byte, caller [20]byte, dest [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	listing, ok := e.state.ListingGet(listingID)
	if !ok {
		return ErrListingNotFound
	}
	if caller != listing.Owner {
		return fmt.Errorf("market: unauthorized unlisting caller")
	}
	signer := SignAsCustody(listing.CollectionID)
	if err := e.state.TransferUnit(listing.HoldingAccount, dest, signer.Address()); err != nil {
		return err
	}
	if err := e.state.ListingRemove(listingID); err != nil {
		return err
	}
	e.emit(NewUnlistedEvent(listing))
	metrics.Market().ObserveUnlisted()
	return nil
}
