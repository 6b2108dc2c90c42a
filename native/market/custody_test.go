package market

import "testing"

func TestCustodyAddressDeterministic(t *testing.T) {
	if CustodyAddress(7) != CustodyAddress(7) {
		t.Fatal("custody address must be a pure function of the collection")
	}
	if CustodyAddress(7) == CustodyAddress(8) {
		t.Fatal("distinct collections must derive distinct authorities")
	}
	if CustodyAddress(7) == ([20]byte{}) {
		t.Fatal("custody address must not be zero")
	}
}

func TestCustodySignerMatchesDerivedAddress(t *testing.T) {
	signer := SignAsCustody(7)
	if signer.Address() != CustodyAddress(7) {
		t.Fatal("signer must act for the derived authority")
	}
}

func TestIdentifierDerivations(t *testing.T) {
	mint := newTestRef(0x20)
	other := newTestRef(0x21)

	if ListingID(mint) != ListingID(mint) {
		t.Fatal("listing id must be deterministic")
	}
	if ListingID(mint) == ListingID(other) {
		t.Fatal("distinct mints must derive distinct listing ids")
	}
	listingID := ListingID(mint)
	if SettlementID(listingID) == listingID {
		t.Fatal("settlement id must be domain separated from the listing id")
	}
	if SettlementID(listingID) != SettlementID(listingID) {
		t.Fatal("settlement id must be deterministic")
	}
}
