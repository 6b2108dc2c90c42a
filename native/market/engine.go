package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"nmchain/core/events"
	"nmchain/core/types"
	nativecommon "nmchain/native/common"
	"nmchain/observability/metrics"
)

var (
	errNilState = errors.New("market engine: state not configured")

	// ErrLedgerNotFound is returned when no offer ledger exists for the
	// listing.
	ErrLedgerNotFound = errors.New("market: offer ledger not found")
	// ErrInvalidIndex is returned by accept/reject/cancel with an index at
	// or beyond the ledger occupancy.
	ErrInvalidIndex = errors.New("market: offer index out of range")
	// ErrInvalidOwner is returned when a cancellation caller does not match
	// the ledger's recorded offeror.
	ErrInvalidOwner = errors.New("market: caller is not the recorded offeror")
)

const marketModuleName = "market"

type engineState interface {
	OfferLedgerPut(*OfferLedger) error
	OfferLedgerGet([32]byte) (*OfferLedger, bool)
	ListingPut(*Listing) error
	ListingGet([32]byte) (*Listing, bool)
	ListingRemove([32]byte) error
	SettlementPut(*SettlementState) error
	SettlementGet([32]byte) (*SettlementState, bool)
	CatalogPut(*CatalogEntry) error
	CatalogGet([32]byte) (*CatalogEntry, bool)
	CatalogRemove([32]byte) error
	AssetAccountGet([32]byte) (*types.AssetAccount, bool)
	TransferUnit(from, to [32]byte, authority [20]byte) error
	TransferPayment(from, to [20]byte, amount *big.Int) error
}

// Engine wires the offer ledger and settlement business logic with external
// state and event emitters. Unit and payment transfers reach the custodial
// transfer service through the state interface; the engine never touches
// balances directly.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine creates a market engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the module pause view consulted by every mutating
// operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadLedger(listingID [32]byte) (*OfferLedger, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ledger, ok := e.state.OfferLedgerGet(listingID)
	if !ok {
		return nil, ErrLedgerNotFound
	}
	return ledger, nil
}

func (e *Engine) storeLedger(ledger *OfferLedger) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.OfferLedgerPut(ledger)
}

// ListingContext carries the listing fields an offer submission re-stamps
// onto the shared ledger header.
type ListingContext struct {
	CollectionID     uint32
	CatalogItemID    uint32
	ListingAuthority [20]byte
	ListedPrice      *big.Int
	FloorPrice       *big.Int
}

// CreateOfferLedger initialises the zero-valued ledger attached to a
// listing. Re-creating an existing ledger returns the stored instance
// unchanged.
func (e *Engine) CreateOfferLedger(listingID [32]byte) (*OfferLedger, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, err
	}
	if existing, ok := e.state.OfferLedgerGet(listingID); ok {
		return existing, nil
	}
	ledger := &OfferLedger{ListingID: listingID}
	if err := e.storeLedger(ledger); err != nil {
		return nil, err
	}
	return ledger.Clone(), nil
}

// AddOffer appends a bundled offer to the listing's ledger. The call follows
// try-add semantics: a full ledger, or a payment-only offer below the floor
// price, is silently ignored and reported through the boolean result rather
// than an error. An accepted add re-stamps the shared listing context and the
// recorded offeror with the caller's values.
func (e *Engine) AddOffer(listingID [32]byte, offeror [20]byte, item OfferItem, ctx ListingContext) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return false, err
	}
	sanitized, err := SanitizeOfferItem(item)
	if err != nil {
		return false, err
	}
	ledger, err := e.loadLedger(listingID)
	if err != nil {
		return false, err
	}
	if ledger.ItemCount >= MaxOfferCount {
		return false, nil
	}
	floor := cloneBigInt(ctx.FloorPrice)
	if sanitized.AssetCount == 0 && sanitized.PaymentAmount.Cmp(floor) < 0 {
		return false, nil
	}
	ledger.CollectionID = ctx.CollectionID
	ledger.CatalogItemID = ctx.CatalogItemID
	ledger.Offeror = offeror
	ledger.ListingAuthority = ctx.ListingAuthority
	ledger.ListedPrice = cloneBigInt(ctx.ListedPrice)
	ledger.FloorPrice = floor
	ledger.addItem(sanitized)
	if err := e.storeLedger(ledger); err != nil {
		return false, err
	}
	e.emit(NewOfferAddedEvent(ledger, sanitized))
	metrics.Market().ObserveOfferAdded()
	return true, nil
}

// AcceptOffer collapses the ledger to the single offer at the given index,
// discarding all other pending offers unconditionally. This is the hand-off
// into settlement.
func (e *Engine) AcceptOffer(listingID [32]byte, index uint8) error {
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	ledger, err := e.loadLedger(listingID)
	if err != nil {
		return err
	}
	if index >= ledger.ItemCount {
		return ErrInvalidIndex
	}
	ledger.acceptItem(index)
	if err := e.storeLedger(ledger); err != nil {
		return err
	}
	e.emit(NewOfferAcceptedEvent(ledger, index))
	metrics.Market().ObserveOfferResolved("accepted")
	return nil
}

// RejectOffer removes the offer at the given index using swap-with-last
// compaction. Order among remaining offers is not preserved.
func (e *Engine) RejectOffer(listingID [32]byte, index uint8) error {
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	ledger, err := e.loadLedger(listingID)
	if err != nil {
		return err
	}
	if index >= ledger.ItemCount {
		return ErrInvalidIndex
	}
	ledger.removeItem(index)
	if err := e.storeLedger(ledger); err != nil {
		return err
	}
	e.emit(NewOfferRejectedEvent(ledger, index))
	metrics.Market().ObserveOfferResolved("rejected")
	return nil
}

// CancelOffer removes the offer at the given index on behalf of the offeror.
// The ledger records a single offeror context, so cancellation authorisation
// compares against that shared field.
func (e *Engine) CancelOffer(listingID [32]byte, caller [20]byte, index uint8) error {
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	ledger, err := e.loadLedger(listingID)
	if err != nil {
		return err
	}
	if ledger.Offeror != caller {
		return ErrInvalidOwner
	}
	if index >= ledger.ItemCount {
		return ErrInvalidIndex
	}
	ledger.removeItem(index)
	if err := e.storeLedger(ledger); err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(ledger, index))
	metrics.Market().ObserveOfferResolved("cancelled")
	return nil
}

// CatalogAdd registers an asset record consulted by settlement access
// control.
func (e *Engine) CatalogAdd(entry *CatalogEntry) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("market: nil catalog entry")
	}
	stored := *entry
	if err := e.state.CatalogPut(&stored); err != nil {
		return err
	}
	e.emit(NewCatalogEntryAddedEvent(&stored))
	return nil
}

// CatalogRemove deletes an asset record from the catalog.
func (e *Engine) CatalogRemove(assetMint [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	if err := e.state.CatalogRemove(assetMint); err != nil {
		return err
	}
	e.emit(NewCatalogEntryRemovedEvent(assetMint))
	return nil
}
