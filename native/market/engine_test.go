package market

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"nmchain/core/events"
	"nmchain/core/types"
	nativecommon "nmchain/native/common"
)

type mockState struct {
	ledgers     map[[32]byte]*OfferLedger
	listings    map[[32]byte]*Listing
	settlements map[[32]byte]*SettlementState
	catalog     map[[32]byte]*CatalogEntry
	assets      map[[32]byte]*types.AssetAccount
	balances    map[[20]byte]*big.Int

	unitTransfers    int
	paymentTransfers int
}

func newMockState() *mockState {
	return &mockState{
		ledgers:     make(map[[32]byte]*OfferLedger),
		listings:    make(map[[32]byte]*Listing),
		settlements: make(map[[32]byte]*SettlementState),
		catalog:     make(map[[32]byte]*CatalogEntry),
		assets:      make(map[[32]byte]*types.AssetAccount),
		balances:    make(map[[20]byte]*big.Int),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestRef(fill byte) [32]byte {
	var ref [32]byte
	copy(ref[:], bytes.Repeat([]byte{fill}, 32))
	return ref
}

func (m *mockState) OfferLedgerPut(l *OfferLedger) error {
	sanitized, err := SanitizeOfferLedger(l)
	if err != nil {
		return err
	}
	m.ledgers[sanitized.ListingID] = sanitized
	return nil
}

func (m *mockState) OfferLedgerGet(id [32]byte) (*OfferLedger, bool) {
	l, ok := m.ledgers[id]
	if !ok {
		return nil, false
	}
	return l.Clone(), true
}

func (m *mockState) ListingPut(l *Listing) error {
	if l == nil {
		return fmt.Errorf("nil listing")
	}
	m.listings[l.ID] = l.Clone()
	return nil
}

func (m *mockState) ListingGet(id [32]byte) (*Listing, bool) {
	l, ok := m.listings[id]
	if !ok {
		return nil, false
	}
	return l.Clone(), true
}

func (m *mockState) ListingRemove(id [32]byte) error {
	delete(m.listings, id)
	return nil
}

func (m *mockState) SettlementPut(st *SettlementState) error {
	if st == nil {
		return fmt.Errorf("nil settlement")
	}
	m.settlements[st.ID] = st.Clone()
	return nil
}

func (m *mockState) SettlementGet(id [32]byte) (*SettlementState, bool) {
	st, ok := m.settlements[id]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

func (m *mockState) CatalogPut(entry *CatalogEntry) error {
	if entry == nil {
		return fmt.Errorf("nil catalog entry")
	}
	stored := *entry
	m.catalog[stored.AssetMint] = &stored
	return nil
}

func (m *mockState) CatalogGet(mint [32]byte) (*CatalogEntry, bool) {
	entry, ok := m.catalog[mint]
	if !ok {
		return nil, false
	}
	clone := *entry
	return &clone, true
}

func (m *mockState) CatalogRemove(mint [32]byte) error {
	delete(m.catalog, mint)
	return nil
}

func (m *mockState) AssetAccountGet(id [32]byte) (*types.AssetAccount, bool) {
	account, ok := m.assets[id]
	if !ok {
		return nil, false
	}
	clone := *account
	return &clone, true
}

func (m *mockState) putAsset(id, mint [32]byte, owner [20]byte, units uint8) {
	m.assets[id] = &types.AssetAccount{ID: id, Mint: mint, Owner: owner, Units: units}
}

func (m *mockState) TransferUnit(from, to [32]byte, authority [20]byte) error {
	source, ok := m.assets[from]
	if !ok {
		return fmt.Errorf("unknown source %x", from[:4])
	}
	dest, ok := m.assets[to]
	if !ok {
		return fmt.Errorf("unknown destination %x", to[:4])
	}
	if source.Owner != authority {
		return fmt.Errorf("authority mismatch")
	}
	if source.Units == 0 {
		return fmt.Errorf("no unit in source")
	}
	if dest.Units != 0 {
		return fmt.Errorf("destination occupied")
	}
	dest.Mint = source.Mint
	source.Units = 0
	dest.Units = 1
	m.unitTransfers++
	return nil
}

func (m *mockState) TransferPayment(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bad amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, ok := m.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	m.balances[from] = new(big.Int).Sub(balance, amount)
	if _, ok := m.balances[to]; !ok {
		m.balances[to] = big.NewInt(0)
	}
	m.balances[to] = new(big.Int).Add(m.balances[to], amount)
	m.paymentTransfers++
	return nil
}

type capturingEmitter struct {
	events []*types.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	payloader, ok := evt.(events.Payloader)
	if !ok {
		return
	}
	c.events = append(c.events, payloader.Event())
}

func (c *capturingEmitter) typed(eventType string) []*types.Event {
	var out []*types.Event
	for _, evt := range c.events {
		if evt != nil && evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type pausedModules map[string]bool

func (p pausedModules) IsPaused(module string) bool { return p[module] }

func newTestEngine(t *testing.T) (*Engine, *mockState, *capturingEmitter) {
	t.Helper()
	state := newMockState()
	emitter := &capturingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine, state, emitter
}

func paymentOffer(amount int64) OfferItem {
	return OfferItem{PaymentAmount: big.NewInt(amount)}
}

func bundledOffer(amount int64, legs ...byte) OfferItem {
	item := OfferItem{PaymentAmount: big.NewInt(amount)}
	for idx, fill := range legs {
		item.AssetMints[idx] = newTestRef(fill)
		item.AssetSources[idx] = newTestRef(fill + 0x40)
	}
	item.AssetCount = uint8(len(legs))
	return item
}

func testListingContext() ListingContext {
	return ListingContext{
		CollectionID:     7,
		CatalogItemID:    11,
		ListingAuthority: newTestAddress(0xA1),
		ListedPrice:      big.NewInt(100),
		FloorPrice:       big.NewInt(10),
	}
}

func TestCreateOfferLedgerIdempotent(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	listingID := newTestRef(0x01)

	if _, err := engine.CreateOfferLedger(listingID); err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	offeror := newTestAddress(0x02)
	if _, err := engine.AddOffer(listingID, offeror, paymentOffer(50), testListingContext()); err != nil {
		t.Fatalf("add offer: %v", err)
	}

	if _, err := engine.CreateOfferLedger(listingID); err != nil {
		t.Fatalf("re-create ledger: %v", err)
	}
	ledger := state.ledgers[listingID]
	if ledger.ItemCount != 1 {
		t.Fatalf("re-creation must not reset the ledger, count = %d", ledger.ItemCount)
	}
}

func TestAddOfferFillsToCapacityThenIgnores(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	listingID := newTestRef(0x01)
	offeror := newTestAddress(0x02)
	if _, err := engine.CreateOfferLedger(listingID); err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	for i := 0; i < MaxOfferCount; i++ {
		added, err := engine.AddOffer(listingID, offeror, paymentOffer(int64(50+i)), testListingContext())
		if err != nil {
			t.Fatalf("add offer %d: %v", i, err)
		}
		if !added {
			t.Fatalf("offer %d should be accepted", i)
		}
	}

	added, err := engine.AddOffer(listingID, offeror, paymentOffer(999), testListingContext())
	if err != nil {
		t.Fatalf("add beyond capacity: %v", err)
	}
	if added {
		t.Fatal("add beyond capacity must be a silent no-op")
	}
	if got := state.ledgers[listingID].ItemCount; got != MaxOfferCount {
		t.Fatalf("item count = %d, want %d", got, MaxOfferCount)
	}
	if got := len(emitter.typed(EventTypeOfferAdded)); got != MaxOfferCount {
		t.Fatalf("added events = %d, want %d", got, MaxOfferCount)
	}
}

func TestAddOfferFloorPriceRules(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	listingID := newTestRef(0x01)
	offeror := newTestAddress(0x02)
	if _, err := engine.CreateOfferLedger(listingID); err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	// Payment-only below the floor is silently ignored.
	added, err := engine.AddOffer(listingID, offeror, paymentOffer(9), testListingContext())
	if err != nil {
		t.Fatalf("add below floor: %v", err)
	}
	if added {
		t.Fatal("payment-only offer below the floor must be ignored")
	}
	if got := state.ledgers[listingID].ItemCount; got != 0 {
		t.Fatalf("item count = %d, want 0", got)
	}

	// Any bundled offer bypasses the floor, even with a zero payment.
	added, err = engine.AddOffer(listingID, offeror, bundledOffer(0, 0x10, 0x11, 0x12), testListingContext())
	if err != nil {
		t.Fatalf("add bundled: %v", err)
	}
	if !added {
		t.Fatal("bundled offer must bypass the floor price")
	}
}

func TestAddOfferRestampsSharedContext(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	listingID := newTestRef(0x01)
	if _, err := engine.CreateOfferLedger(listingID); err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	first := newTestAddress(0x02)
	if _, err := engine.AddOffer(listingID, first, paymentOffer(50), testListingContext()); err != nil {
		t.Fatalf("first add: %v", err)
	}

	second := newTestAddress(0x03)
	ctx := testListingContext()
	ctx.FloorPrice = big.NewInt(20)
	if _, err := engine.AddOffer(listingID, second, paymentOffer(60), ctx); err != nil {
		t.Fatalf("second add: %v", err)
	}

	ledger := state.ledgers[listingID]
	if ledger.Offeror != second {
		t.Fatal("a later add must re-stamp the shared offeror")
	}
	if ledger.FloorPrice.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("floor price = %s, want 20", ledger.FloorPrice)
	}
	// The first offeror can no longer cancel their own offer.
	if err := engine.CancelOffer(listingID, first, 0); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("cancel by stale offeror: %v, want ErrInvalidOwner", err)
	}
}

func TestAcceptOfferCollapsesLedger(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	listingID := newTestRef(0x01)
	offeror := newTestAddress(0x02)
	if _, err := engine.CreateOfferLedger(listingID); err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	for i := int64(0); i < MaxOfferCount; i++ {
		if _, err := engine.AddOffer(listingID, offeror, paymentOffer(50+i), testListingContext()); err != nil {
			t.Fatalf("add offer: %v", err)
		}
	}

	if err := engine.AcceptOffer(listingID, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	ledger := state.ledgers[listingID]
	if ledger.ItemCount != 1 {
		t.Fatalf("item count = %d, want 1", ledger.ItemCount)
	}
	if ledger.Items[0].PaymentAmount.Cmp(big.NewInt(51)) != 0 {
		t.Fatalf("surviving offer payment = %s, want 51", ledger.Items[0].PaymentAmount)
	}
	for idx := 1; idx < MaxOfferCount; idx++ {
		if ledger.Items[idx].PaymentAmount.Sign() != 0 {
			t.Fatalf("slot %d should be zeroed after accept", idx)
		}
	}
	if got := len(emitter.typed(EventTypeOfferAccepted)); got != 1 {
		t.Fatalf("accepted events = %d, want 1", got)
	}
}

func TestAcceptOfferRejectsBadIndex(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	listingID := newTestRef(0x01)
	if _, err := engine.CreateOfferLedger(listingID); err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	if _, err := engine.AddOffer(listingID, newTestAddress(0x02), paymentOffer(50), testListingContext()); err != nil {
		t.Fatalf("add offer: %v", err)
	}
	if err := engine.AcceptOffer(listingID, 1); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("accept at occupancy: %v, want ErrInvalidIndex", err)
	}
}

func TestRejectOfferSwapsWithLast(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	listingID := newTestRef(0x01)
	offeror := newTestAddress(0x02)
	if _, err := engine.CreateOfferLedger(listingID); err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	for i := int64(0); i < 3; i++ {
		if _, err := engine.AddOffer(listingID, offeror, paymentOffer(50+i), testListingContext()); err != nil {
			t.Fatalf("add offer: %v", err)
		}
	}

	if err := engine.RejectOffer(listingID, 0); err != nil {
		t.Fatalf("reject: %v", err)
	}
	ledger := state.ledgers[listingID]
	if ledger.ItemCount != 2 {
		t.Fatalf("item count = %d, want 2", ledger.ItemCount)
	}
	if ledger.Items[0].PaymentAmount.Cmp(big.NewInt(52)) != 0 {
		t.Fatalf("slot 0 payment = %s, want the last offer's 52", ledger.Items[0].PaymentAmount)
	}
	if ledger.Items[2].PaymentAmount.Sign() != 0 {
		t.Fatal("vacated slot must be zeroed")
	}
}

func TestCancelOfferChecksOwnerBeforeIndex(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	listingID := newTestRef(0x01)
	offeror := newTestAddress(0x02)
	if _, err := engine.CreateOfferLedger(listingID); err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	if _, err := engine.AddOffer(listingID, offeror, paymentOffer(50), testListingContext()); err != nil {
		t.Fatalf("add offer: %v", err)
	}

	// Caller mismatch wins even when the index is also out of range.
	if err := engine.CancelOffer(listingID, newTestAddress(0x03), 5); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("cancel by stranger: %v, want ErrInvalidOwner", err)
	}
	if err := engine.CancelOffer(listingID, offeror, 5); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("cancel bad index: %v, want ErrInvalidIndex", err)
	}
	if err := engine.CancelOffer(listingID, offeror, 0); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := state.ledgers[listingID].ItemCount; got != 0 {
		t.Fatalf("item count = %d, want 0", got)
	}
}

func TestOperationsRequireLedger(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	missing := newTestRef(0x0F)

	if _, err := engine.AddOffer(missing, newTestAddress(0x02), paymentOffer(50), testListingContext()); !errors.Is(err, ErrLedgerNotFound) {
		t.Fatalf("add: %v, want ErrLedgerNotFound", err)
	}
	if err := engine.AcceptOffer(missing, 0); !errors.Is(err, ErrLedgerNotFound) {
		t.Fatalf("accept: %v, want ErrLedgerNotFound", err)
	}
	if err := engine.RejectOffer(missing, 0); !errors.Is(err, ErrLedgerNotFound) {
		t.Fatalf("reject: %v, want ErrLedgerNotFound", err)
	}
	if err := engine.CancelOffer(missing, newTestAddress(0x02), 0); !errors.Is(err, ErrLedgerNotFound) {
		t.Fatalf("cancel: %v, want ErrLedgerNotFound", err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.SetPauses(pausedModules{"market": true})
	listingID := newTestRef(0x01)

	if _, err := engine.CreateOfferLedger(listingID); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("create: %v, want ErrModulePaused", err)
	}
	if _, err := engine.AddOffer(listingID, newTestAddress(0x02), paymentOffer(50), testListingContext()); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("add: %v, want ErrModulePaused", err)
	}
	if err := engine.Advance(listingID, 0, newTestAddress(0x02), LegAccounts{}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("advance: %v, want ErrModulePaused", err)
	}
}

func TestCatalogAddRemove(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	mint := newTestRef(0x20)
	entry := &CatalogEntry{AssetMint: mint, Owner: newTestAddress(0x02), CollectionID: 7, CatalogItemID: 11}

	if err := engine.CatalogAdd(entry); err != nil {
		t.Fatalf("catalog add: %v", err)
	}
	if _, ok := state.catalog[mint]; !ok {
		t.Fatal("entry not stored")
	}
	if err := engine.CatalogRemove(mint); err != nil {
		t.Fatalf("catalog remove: %v", err)
	}
	if _, ok := state.catalog[mint]; ok {
		t.Fatal("entry not removed")
	}
	if got := len(emitter.typed(EventTypeCatalogEntryAdded)); got != 1 {
		t.Fatalf("added events = %d, want 1", got)
	}
	if got := len(emitter.typed(EventTypeCatalogEntryRemoved)); got != 1 {
		t.Fatalf("removed events = %d, want 1", got)
	}
}
