package modules

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"nmchain/core/events"
	nmstate "nmchain/core/state"
	"nmchain/crypto"
	"nmchain/native/market"
)

// MarketModule exposes read helpers for listings, offer ledgers, settlement
// progress and event history.
type MarketModule struct {
	state  *nmstate.Manager
	events *events.Buffer
}

// NewMarketModule constructs a market RPC helper module.
func NewMarketModule(state *nmstate.Manager, buffer *events.Buffer) *MarketModule {
	return &MarketModule{state: state, events: buffer}
}

type getByIDParams struct {
	ID string `json:"id"`
}

type getByMintParams struct {
	AssetMint string `json:"assetMint"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

// OfferItemResult represents one bundled offer returned over RPC.
type OfferItemResult struct {
	PaymentAmount string   `json:"paymentAmount"`
	UnitPriceHint string   `json:"unitPriceHint"`
	AssetMints    []string `json:"assetMints"`
	AssetSources  []string `json:"assetSources"`
	AssetCount    uint8    `json:"assetCount"`
}

// OfferLedgerResult represents a listing's pending offers returned over RPC.
type OfferLedgerResult struct {
	ListingID        string            `json:"listingId"`
	CollectionID     uint32            `json:"collectionId"`
	CatalogItemID    uint32            `json:"catalogItemId"`
	Offeror          string            `json:"offeror"`
	Items            []OfferItemResult `json:"items"`
	ItemCount        uint8             `json:"itemCount"`
	ListingAuthority string            `json:"listingAuthority"`
	ListedPrice      string            `json:"listedPrice"`
	FloorPrice       string            `json:"floorPrice"`
}

// ListingResult represents a custody listing returned over RPC.
type ListingResult struct {
	ID               string `json:"id"`
	Owner            string `json:"owner"`
	CustodyAuthority string `json:"custodyAuthority"`
	CollectionID     uint32 `json:"collectionId"`
	CatalogItemID    uint32 `json:"catalogItemId"`
	Price            string `json:"price"`
	AssetMint        string `json:"assetMint"`
	HoldingAccount   string `json:"holdingAccount"`
	CreatedAt        int64  `json:"createdAt"`
}

// SettlementResult represents settlement progress returned over RPC.
type SettlementResult struct {
	ID               string   `json:"id"`
	PaymentSettled   bool     `json:"paymentSettled"`
	DeliveredCount   uint8    `json:"deliveredCount"`
	DeliveredSources []string `json:"deliveredSources"`
}

// EventResult is one buffered event payload returned over RPC.
type EventResult struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// GetLedger fetches the offer ledger attached to a listing identifier.
func (m *MarketModule) GetLedger(raw json.RawMessage) (*OfferLedgerResult, *ModuleError) {
	if m == nil || m.state == nil {
		return nil, errModuleOffline
	}
	var params getByIDParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	id, modErr := parseID32(params.ID)
	if modErr != nil {
		return nil, modErr
	}
	ledger, ok := m.state.OfferLedgerGet(id)
	if !ok {
		return nil, &ModuleError{HTTPStatus: http.StatusNotFound, Code: codeInvalidParams, Message: "offer ledger not found"}
	}
	result := formatLedgerResult(ledger)
	return &result, nil
}

// GetListing fetches the custody listing derived from an asset mint.
func (m *MarketModule) GetListing(raw json.RawMessage) (*ListingResult, *ModuleError) {
	if m == nil || m.state == nil {
		return nil, errModuleOffline
	}
	var params getByMintParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	mint, modErr := parseID32(params.AssetMint)
	if modErr != nil {
		return nil, modErr
	}
	listing, ok := m.state.ListingGet(market.ListingID(mint))
	if !ok {
		return nil, &ModuleError{HTTPStatus: http.StatusNotFound, Code: codeInvalidParams, Message: "listing not found"}
	}
	result := formatListingResult(listing)
	return &result, nil
}

// GetSettlement fetches the settlement progress record for a listing
// identifier.
func (m *MarketModule) GetSettlement(raw json.RawMessage) (*SettlementResult, *ModuleError) {
	if m == nil || m.state == nil {
		return nil, errModuleOffline
	}
	var params getByIDParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	listingID, modErr := parseID32(params.ID)
	if modErr != nil {
		return nil, modErr
	}
	st, ok := m.state.SettlementGet(market.SettlementID(listingID))
	if !ok {
		return nil, &ModuleError{HTTPStatus: http.StatusNotFound, Code: codeInvalidParams, Message: "settlement not found"}
	}
	result := formatSettlementResult(st)
	return &result, nil
}

// ListEvents returns recent market events emitted by the node. The optional
// prefix parameter can narrow results to a namespace such as
// "market.settlement.".
func (m *MarketModule) ListEvents(raw json.RawMessage) ([]EventResult, *ModuleError) {
	if m == nil || m.events == nil {
		return nil, errModuleOffline
	}
	var params listEventsParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
		}
	}
	prefix := "market."
	if trimmed := strings.TrimSpace(params.Prefix); trimmed != "" {
		prefix = trimmed
	}
	limit := 100
	if params.Limit != nil {
		if *params.Limit <= 0 {
			return nil, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "limit must be positive"}
		}
		limit = *params.Limit
	}
	buffered := m.events.Events()
	results := make([]EventResult, 0, limit)
	for idx := len(buffered) - 1; idx >= 0 && len(results) < limit; idx-- {
		evt := buffered[idx]
		if !strings.HasPrefix(evt.Type, prefix) {
			continue
		}
		attrs := make(map[string]string, len(evt.Attributes))
		for k, v := range evt.Attributes {
			attrs[k] = v
		}
		results = append(results, EventResult{Type: evt.Type, Attributes: attrs})
	}
	return results, nil
}

func parseID32(value string) ([32]byte, *ModuleError) {
	var id [32]byte
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if trimmed == "" {
		return id, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "id is required"}
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(id) {
		return id, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "id must be 32 hex-encoded bytes"}
	}
	copy(id[:], decoded)
	return id, nil
}

func formatLedgerResult(l *market.OfferLedger) OfferLedgerResult {
	items := make([]OfferItemResult, 0, l.ItemCount)
	for idx := uint8(0); idx < l.ItemCount; idx++ {
		item := l.Items[idx].Clone()
		mints := make([]string, 0, item.AssetCount)
		sources := make([]string, 0, item.AssetCount)
		for leg := uint8(0); leg < item.AssetCount; leg++ {
			mints = append(mints, hex.EncodeToString(item.AssetMints[leg][:]))
			sources = append(sources, hex.EncodeToString(item.AssetSources[leg][:]))
		}
		items = append(items, OfferItemResult{
			PaymentAmount: item.PaymentAmount.String(),
			UnitPriceHint: item.UnitPriceHint.String(),
			AssetMints:    mints,
			AssetSources:  sources,
			AssetCount:    item.AssetCount,
		})
	}
	return OfferLedgerResult{
		ListingID:        hex.EncodeToString(l.ListingID[:]),
		CollectionID:     l.CollectionID,
		CatalogItemID:    l.CatalogItemID,
		Offeror:          formatAddress(l.Offeror),
		Items:            items,
		ItemCount:        l.ItemCount,
		ListingAuthority: formatAddress(l.ListingAuthority),
		ListedPrice:      l.ListedPrice.String(),
		FloorPrice:       l.FloorPrice.String(),
	}
}

func formatListingResult(l *market.Listing) ListingResult {
	clone := l.Clone()
	return ListingResult{
		ID:               hex.EncodeToString(clone.ID[:]),
		Owner:            formatAddress(clone.Owner),
		CustodyAuthority: formatAddress(clone.CustodyAuthority),
		CollectionID:     clone.CollectionID,
		CatalogItemID:    clone.CatalogItemID,
		Price:            clone.Price.String(),
		AssetMint:        hex.EncodeToString(clone.AssetMint[:]),
		HoldingAccount:   hex.EncodeToString(clone.HoldingAccount[:]),
		CreatedAt:        clone.CreatedAt,
	}
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.NMPrefix, append([]byte(nil), addr[:]...)).String()
}

func formatSettlementResult(s *market.SettlementState) SettlementResult {
	delivered := make([]string, 0, s.DeliveredCount)
	for idx := uint8(0); idx < s.DeliveredCount && idx < market.MaxBundleAssets; idx++ {
		delivered = append(delivered, hex.EncodeToString(s.DeliveredSources[idx][:]))
	}
	return SettlementResult{
		ID:               hex.EncodeToString(s.ID[:]),
		PaymentSettled:   s.PaymentSettled,
		DeliveredCount:   s.DeliveredCount,
		DeliveredSources: delivered,
	}
}
