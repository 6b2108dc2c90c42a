package state

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"nmchain/core/types"
	"nmchain/native/market"
	"nmchain/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func testRef(fill byte) [32]byte {
	var ref [32]byte
	copy(ref[:], bytes.Repeat([]byte{fill}, 32))
	return ref
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x01)

	account, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if account.Balance.Sign() != 0 {
		t.Fatal("missing account must read as zero-valued")
	}

	account.Nonce = 3
	account.Balance = big.NewInt(250)
	if err := m.PutAccount(addr, account); err != nil {
		t.Fatalf("put account: %v", err)
	}
	loaded, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if loaded.Nonce != 3 || loaded.Balance.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("loaded account = %+v", loaded)
	}
}

func TestOfferLedgerRoundTrip(t *testing.T) {
	m := newTestManager(t)
	listingID := testRef(0x01)

	ledger := &market.OfferLedger{
		ListingID:        listingID,
		CollectionID:     7,
		CatalogItemID:    11,
		Offeror:          testAddr(0x02),
		ItemCount:        1,
		ListingAuthority: testAddr(0x03),
		ListedPrice:      big.NewInt(100),
		FloorPrice:       big.NewInt(10),
	}
	ledger.Items[0] = market.OfferItem{
		PaymentAmount: big.NewInt(55),
		UnitPriceHint: big.NewInt(5),
		AssetCount:    2,
	}
	ledger.Items[0].AssetMints[0] = testRef(0x10)
	ledger.Items[0].AssetSources[0] = testRef(0x11)
	ledger.Items[0].AssetMints[1] = testRef(0x12)
	ledger.Items[0].AssetSources[1] = testRef(0x13)

	if err := m.OfferLedgerPut(ledger); err != nil {
		t.Fatalf("put ledger: %v", err)
	}
	loaded, ok := m.OfferLedgerGet(listingID)
	if !ok {
		t.Fatal("ledger not found after put")
	}
	if loaded.ItemCount != 1 || loaded.Offeror != ledger.Offeror {
		t.Fatalf("loaded ledger = %+v", loaded)
	}
	if loaded.Items[0].PaymentAmount.Cmp(big.NewInt(55)) != 0 {
		t.Fatalf("payment = %s, want 55", loaded.Items[0].PaymentAmount)
	}
	if loaded.Items[0].AssetSources[1] != testRef(0x13) {
		t.Fatal("asset legs lost in round trip")
	}
	if loaded.FloorPrice.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("floor = %s, want 10", loaded.FloorPrice)
	}

	if _, ok := m.OfferLedgerGet(testRef(0x7F)); ok {
		t.Fatal("unknown listing must miss")
	}
}

func TestListingRoundTripAndRemove(t *testing.T) {
	m := newTestManager(t)
	listing := &market.Listing{
		ID:               testRef(0x01),
		Owner:            testAddr(0x02),
		CustodyAuthority: market.CustodyAddress(7),
		CollectionID:     7,
		CatalogItemID:    11,
		Price:            big.NewInt(100),
		AssetMint:        testRef(0x20),
		HoldingAccount:   testRef(0x22),
		CreatedAt:        1_700_000_000,
	}

	if err := m.ListingPut(listing); err != nil {
		t.Fatalf("put listing: %v", err)
	}
	loaded, ok := m.ListingGet(listing.ID)
	if !ok {
		t.Fatal("listing not found after put")
	}
	if loaded.CreatedAt != listing.CreatedAt || loaded.Price.Cmp(listing.Price) != 0 {
		t.Fatalf("loaded listing = %+v", loaded)
	}
	if loaded.CustodyAuthority != market.CustodyAddress(7) {
		t.Fatal("custody authority lost in round trip")
	}

	if err := m.ListingRemove(listing.ID); err != nil {
		t.Fatalf("remove listing: %v", err)
	}
	if _, ok := m.ListingGet(listing.ID); ok {
		t.Fatal("listing must miss after removal")
	}
}

func TestSettlementRoundTrip(t *testing.T) {
	m := newTestManager(t)
	st := &market.SettlementState{
		ID:             testRef(0x01),
		PaymentSettled: true,
		DeliveredCount: 2,
	}
	st.DeliveredSources[0] = testRef(0x10)
	st.DeliveredSources[1] = testRef(0x11)

	if err := m.SettlementPut(st); err != nil {
		t.Fatalf("put settlement: %v", err)
	}
	loaded, ok := m.SettlementGet(st.ID)
	if !ok {
		t.Fatal("settlement not found after put")
	}
	if !loaded.PaymentSettled || loaded.DeliveredCount != 2 {
		t.Fatalf("loaded settlement = %+v", loaded)
	}
	if !loaded.Delivered(testRef(0x10)) || loaded.Delivered(testRef(0x12)) {
		t.Fatal("delivered set lost in round trip")
	}
}

func TestCatalogRoundTripAndRemove(t *testing.T) {
	m := newTestManager(t)
	entry := &market.CatalogEntry{
		AssetMint:     testRef(0x20),
		Owner:         testAddr(0x02),
		CollectionID:  7,
		CatalogItemID: 11,
	}

	if err := m.CatalogPut(entry); err != nil {
		t.Fatalf("put entry: %v", err)
	}
	loaded, ok := m.CatalogGet(entry.AssetMint)
	if !ok {
		t.Fatal("entry not found after put")
	}
	if *loaded != *entry {
		t.Fatalf("loaded entry = %+v", loaded)
	}
	if err := m.CatalogRemove(entry.AssetMint); err != nil {
		t.Fatalf("remove entry: %v", err)
	}
	if _, ok := m.CatalogGet(entry.AssetMint); ok {
		t.Fatal("entry must miss after removal")
	}
}

func TestTransferUnitSemantics(t *testing.T) {
	m := newTestManager(t)
	owner := testAddr(0x02)
	stranger := testAddr(0x03)
	mint := testRef(0x20)
	from := testRef(0x21)
	to := testRef(0x22)

	if err := m.TransferUnit(from, to, owner); !errors.Is(err, ErrUnknownAssetAccount) {
		t.Fatalf("transfer without accounts: %v, want ErrUnknownAssetAccount", err)
	}

	if err := m.AssetAccountPut(&types.AssetAccount{ID: from, Mint: mint, Owner: owner, Units: 1}); err != nil {
		t.Fatalf("put source: %v", err)
	}
	if err := m.AssetAccountPut(&types.AssetAccount{ID: to, Owner: stranger}); err != nil {
		t.Fatalf("put destination: %v", err)
	}

	if err := m.TransferUnit(from, to, stranger); !errors.Is(err, ErrUnauthorizedTransfer) {
		t.Fatalf("unauthorized transfer: %v, want ErrUnauthorizedTransfer", err)
	}
	if err := m.TransferUnit(from, to, owner); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	source, _ := m.AssetAccountGet(from)
	dest, _ := m.AssetAccountGet(to)
	if source.Units != 0 || dest.Units != 1 {
		t.Fatal("unit must move exactly once")
	}
	if dest.Mint != mint {
		t.Fatal("destination must bind to the source mint")
	}

	if err := m.TransferUnit(from, to, owner); !errors.Is(err, ErrUnitUnavailable) {
		t.Fatalf("drained source: %v, want ErrUnitUnavailable", err)
	}

	if err := m.AssetAccountPut(&types.AssetAccount{ID: from, Mint: mint, Owner: owner, Units: 1}); err != nil {
		t.Fatalf("refill source: %v", err)
	}
	if err := m.TransferUnit(from, to, owner); !errors.Is(err, ErrDestOccupied) {
		t.Fatalf("occupied destination: %v, want ErrDestOccupied", err)
	}

	other := testRef(0x23)
	if err := m.AssetAccountPut(&types.AssetAccount{ID: other, Mint: testRef(0x2F), Owner: stranger}); err != nil {
		t.Fatalf("put mismatched destination: %v", err)
	}
	if err := m.TransferUnit(from, other, owner); !errors.Is(err, ErrMintMismatch) {
		t.Fatalf("mint mismatch: %v, want ErrMintMismatch", err)
	}
}

func TestTransferPaymentSemantics(t *testing.T) {
	m := newTestManager(t)
	payer := testAddr(0x02)
	payee := testAddr(0x03)

	if err := m.TransferPayment(payer, payee, big.NewInt(10)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("unfunded payment: %v, want ErrInsufficientBalance", err)
	}

	if err := m.PutAccount(payer, &types.Account{Balance: big.NewInt(100)}); err != nil {
		t.Fatalf("fund payer: %v", err)
	}
	if err := m.TransferPayment(payer, payee, big.NewInt(40)); err != nil {
		t.Fatalf("payment: %v", err)
	}

	payerAcc, _ := m.GetAccount(payer)
	payeeAcc, _ := m.GetAccount(payee)
	if payerAcc.Balance.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("payer balance = %s, want 60", payerAcc.Balance)
	}
	if payeeAcc.Balance.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("payee balance = %s, want 40", payeeAcc.Balance)
	}

	// A zero amount is a no-op, not an error.
	if err := m.TransferPayment(payer, payee, big.NewInt(0)); err != nil {
		t.Fatalf("zero payment: %v", err)
	}
	if err := m.TransferPayment(payer, payee, big.NewInt(61)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraft: %v, want ErrInsufficientBalance", err)
	}
}
