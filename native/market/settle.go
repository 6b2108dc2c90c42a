package market

import (
	"errors"

	nativecommon "nmchain/native/common"
	"nmchain/observability/metrics"
)

var (
	// ErrNotListedForSale is returned when the listing is missing or its
	// custody authority does not match the derived authority for the
	// collection.
	ErrNotListedForSale = errors.New("market: asset not listed for sale")
	// ErrOverflowOfferCount is returned when the target offer index is not
	// below the ledger occupancy.
	ErrOverflowOfferCount = errors.New("market: offer index exceeds ledger count")
	// ErrOverflowTokenAccountCount is returned when the supplied asset
	// accounts do not pair up with the accepted offer's declared legs.
	ErrOverflowTokenAccountCount = errors.New("market: leg account count mismatch")
	// ErrInvalidSourceAccount is returned when the call tries to move an
	// asset that is not part of the accepted offer.
	ErrInvalidSourceAccount = errors.New("market: source account not part of accepted offer")
)

// LegAccounts carries the accounts for one Advance invocation. Pairs lists a
// source and destination for every declared asset leg of the accepted offer;
// Source/Dest name the single leg this call moves (zero-valued Source means
// the call carries only the payment). Payout is the buyer's final account
// receiving the purchased asset on release.
type LegAccounts struct {
	Source [32]byte
	Dest   [32]byte
	Pairs  [][32]byte
	Payout [32]byte
}

// Advance drives the multi-leg settlement of the accepted offer one step
// forward. The operation is idempotent and safe to invoke repeatedly until
// the settlement is terminal: the payment executes at most once, each asset
// leg moves at most once, replaying a delivered leg is a no-op, and the final
// custody release fires exactly once. Each invocation re-checks the listing
// and ledger preconditions before touching any record.
func (e *Engine) Advance(listingID [32]byte, offerIndex uint8, buyer [20]byte, legs LegAccounts) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	listing, ok := e.state.ListingGet(listingID)
	if !ok {
		return ErrNotListedForSale
	}
	if listing.CustodyAuthority != CustodyAddress(listing.CollectionID) {
		return ErrNotListedForSale
	}
	entry, ok := e.state.CatalogGet(listing.AssetMint)
	if !ok || entry.CollectionID != listing.CollectionID || entry.CatalogItemID != listing.CatalogItemID {
		return ErrNotListedForSale
	}
	ledger, err := e.loadLedger(listingID)
	if err != nil {
		return err
	}
	if offerIndex >= ledger.ItemCount {
		return ErrOverflowOfferCount
	}
	item := ledger.Items[offerIndex].Clone()
	if len(legs.Pairs) != int(item.AssetCount)*2 {
		return ErrOverflowTokenAccountCount
	}

	st, ok := e.state.SettlementGet(SettlementID(listingID))
	if !ok {
		st = &SettlementState{ID: SettlementID(listingID)}
	}
	if st.Terminal(item.AssetCount) {
		// Replays after the terminal transition only retry an
		// interrupted release; a completed settlement is a no-op.
		return e.finalRelease(listing, st, legs.Payout)
	}

	// Validate the supplied leg before any transfer so a failed call
	// leaves every record untouched.
	deliver := false
	if legs.Source != ([32]byte{}) {
		if !item.sourceDeclared(legs.Source) {
			return ErrInvalidSourceAccount
		}
		deliver = !st.Delivered(legs.Source)
	}

	if !st.PaymentSettled {
		if err := e.state.TransferPayment(buyer, listing.CustodyAuthority, item.PaymentAmount); err != nil {
			return err
		}
		st.PaymentSettled = true
		if err := e.state.SettlementPut(st); err != nil {
			return err
		}
		e.emit(NewPaymentSettledEvent(st, item.PaymentAmount.String()))
	}

	if deliver {
		if err := e.state.TransferUnit(legs.Source, legs.Dest, buyer); err != nil {
			return err
		}
		st.recordDelivery(legs.Source)
		if err := e.state.SettlementPut(st); err != nil {
			return err
		}
		e.emit(NewLegDeliveredEvent(st, legs.Source))
		metrics.Market().ObserveSettlementLeg()
	}

	if st.Terminal(item.AssetCount) {
		return e.finalRelease(listing, st, legs.Payout)
	}
	return nil
}

// finalRelease moves the purchased asset out of the custody holding account
// into the buyer's payout account under the deterministic custody signer. The
// unit can only leave custody once, so a replay after a completed release is
// a no-op.
func (e *Engine) finalRelease(listing *Listing, st *SettlementState, payout [32]byte) error {
	holding, ok := e.state.AssetAccountGet(listing.HoldingAccount)
	if !ok {
		return ErrNotListedForSale
	}
	if holding.Units == 0 {
		return nil
	}
	signer := SignAsCustody(listing.CollectionID)
	if err := e.state.TransferUnit(listing.HoldingAccount, payout, signer.Address()); err != nil {
		return err
	}
	e.emit(NewSettlementCompletedEvent(st))
	metrics.Market().ObserveSettlementCompleted()
	return nil
}
