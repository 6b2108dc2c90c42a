package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"nmchain/crypto"
	nativecommon "nmchain/native/common"
	"nmchain/native/market"
	"nmchain/rpc/modules"
)

type putOnSaleParams struct {
	Owner          string `json:"owner"`
	CollectionID   uint32 `json:"collectionId"`
	CatalogItemID  uint32 `json:"catalogItemId"`
	Price          string `json:"price"`
	AssetMint      string `json:"assetMint"`
	SourceAccount  string `json:"sourceAccount"`
	HoldingAccount string `json:"holdingAccount"`
}

type cancelListingParams struct {
	ListingID   string `json:"listingId"`
	Caller      string `json:"caller"`
	DestAccount string `json:"destAccount"`
}

type offerLegParams struct {
	AssetMint     string `json:"assetMint"`
	SourceAccount string `json:"sourceAccount"`
}

type addOfferParams struct {
	ListingID        string           `json:"listingId"`
	Offeror          string           `json:"offeror"`
	PaymentAmount    string           `json:"paymentAmount"`
	UnitPriceHint    string           `json:"unitPriceHint,omitempty"`
	Legs             []offerLegParams `json:"legs,omitempty"`
	CollectionID     uint32           `json:"collectionId"`
	CatalogItemID    uint32           `json:"catalogItemId"`
	ListingAuthority string           `json:"listingAuthority"`
	ListedPrice      string           `json:"listedPrice"`
	FloorPrice       string           `json:"floorPrice"`
}

type resolveOfferParams struct {
	ListingID string `json:"listingId"`
	Index     uint8  `json:"index"`
	Caller    string `json:"caller,omitempty"`
}

type advanceParams struct {
	ListingID     string   `json:"listingId"`
	OfferIndex    uint8    `json:"offerIndex"`
	Buyer         string   `json:"buyer"`
	SourceAccount string   `json:"sourceAccount,omitempty"`
	DestAccount   string   `json:"destAccount,omitempty"`
	Pairs         []string `json:"pairs"`
	PayoutAccount string   `json:"payoutAccount"`
}

type catalogAddParams struct {
	AssetMint     string `json:"assetMint"`
	Owner         string `json:"owner"`
	CollectionID  uint32 `json:"collectionId"`
	CatalogItemID uint32 `json:"catalogItemId"`
}

type catalogRemoveParams struct {
	AssetMint string `json:"assetMint"`
}

type addOfferResult struct {
	Added bool `json:"added"`
}

type ackResult struct {
	OK bool `json:"ok"`
}

func (s *Server) handlePutOnSale(raw json.RawMessage) (interface{}, *modules.ModuleError) {
	if s == nil || s.engine == nil {
		return nil, engineOffline()
	}
	var params putOnSaleParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, badParams("invalid parameter object", err.Error())
	}
	owner, err := parseAddr(params.Owner)
	if err != nil {
		return nil, badParams("owner: "+err.Error(), "")
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		return nil, badParams("price: "+err.Error(), "")
	}
	mint, err := parseRef(params.AssetMint)
	if err != nil {
		return nil, badParams("assetMint: "+err.Error(), "")
	}
	source, err := parseRef(params.SourceAccount)
	if err != nil {
		return nil, badParams("sourceAccount: "+err.Error(), "")
	}
	holding, err := parseRef(params.HoldingAccount)
	if err != nil {
		return nil, badParams("holdingAccount: "+err.Error(), "")
	}
	listing, engineErr := s.engine.PutOnSale(owner, params.CollectionID, params.CatalogItemID, price, mint, source, holding)
	if engineErr != nil {
		return nil, mapEngineError(engineErr)
	}
	return map[string]string{"listingId": hex.EncodeToString(listing.ID[:])}, nil
}

func (s *Server) handleCancelListing(raw json.RawMessage) (interface{}, *modules.ModuleError) {
	if s == nil || s.engine == nil {
		return nil, engineOffline()
	}
	var params cancelListingParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, badParams("invalid parameter object", err.Error())
	}
	listingID, err := parseRef(params.ListingID)
	if err != nil {
		return nil, badParams("listingId: "+err.Error(), "")
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return nil, badParams("caller: "+err.Error(), "")
	}
	dest, err := parseRef(params.DestAccount)
	if err != nil {
		return nil, badParams("destAccount: "+err.Error(), "")
	}
	if engineErr := s.engine.CancelFromSale(listingID, caller, dest); engineErr != nil {
		return nil, mapEngineError(engineErr)
	}
	return ackResult{OK: true}, nil
}

func (s *Server) handleAddOffer(raw json.RawMessage) (interface{}, *modules.ModuleError) {
	if s == nil || s.engine == nil {
		return nil, engineOffline()
	}
	var params addOfferParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, badParams("invalid parameter object", err.Error())
	}
	listingID, err := parseRef(params.ListingID)
	if err != nil {
		return nil, badParams("listingId: "+err.Error(), "")
	}
	offeror, err := parseAddr(params.Offeror)
	if err != nil {
		return nil, badParams("offeror: "+err.Error(), "")
	}
	if len(params.Legs) > market.MaxBundleAssets {
		return nil, badParams("legs: at most 5 asset legs per offer", "")
	}
	item := market.OfferItem{AssetCount: uint8(len(params.Legs))}
	if item.PaymentAmount, err = parseAmount(params.PaymentAmount); err != nil {
		return nil, badParams("paymentAmount: "+err.Error(), "")
	}
	if strings.TrimSpace(params.UnitPriceHint) != "" {
		if item.UnitPriceHint, err = parseAmount(params.UnitPriceHint); err != nil {
			return nil, badParams("unitPriceHint: "+err.Error(), "")
		}
	}
	for idx, leg := range params.Legs {
		if item.AssetMints[idx], err = parseRef(leg.AssetMint); err != nil {
			return nil, badParams("legs: "+err.Error(), "")
		}
		if item.AssetSources[idx], err = parseRef(leg.SourceAccount); err != nil {
			return nil, badParams("legs: "+err.Error(), "")
		}
	}
	ctx := market.ListingContext{
		CollectionID:  params.CollectionID,
		CatalogItemID: params.CatalogItemID,
	}
	if ctx.ListingAuthority, err = parseAddr(params.ListingAuthority); err != nil {
		return nil, badParams("listingAuthority: "+err.Error(), "")
	}
	if ctx.ListedPrice, err = parseAmount(params.ListedPrice); err != nil {
		return nil, badParams("listedPrice: "+err.Error(), "")
	}
	if ctx.FloorPrice, err = parseAmount(params.FloorPrice); err != nil {
		return nil, badParams("floorPrice: "+err.Error(), "")
	}
	added, engineErr := s.engine.AddOffer(listingID, offeror, item, ctx)
	if engineErr != nil {
		return nil, mapEngineError(engineErr)
	}
	return addOfferResult{Added: added}, nil
}

func (s *Server) handleAcceptOffer(raw json.RawMessage) (interface{}, *modules.ModuleError) {
	return s.resolveOffer(raw, func(listingID [32]byte, params resolveOfferParams) error {
		return s.engine.AcceptOffer(listingID, params.Index)
	})
}

func (s *Server) handleRejectOffer(raw json.RawMessage) (interface{}, *modules.ModuleError) {
	return s.resolveOffer(raw, func(listingID [32]byte, params resolveOfferParams) error {
		return s.engine.RejectOffer(listingID, params.Index)
	})
}

func (s *Server) handleCancelOffer(raw json.RawMessage) (interface{}, *modules.ModuleError) {
	return s.resolveOffer(raw, func(listingID [32]byte, params resolveOfferParams) error {
		caller, err := parseAddr(params.Caller)
		if err != nil {
			return err
		}
		return s.engine.CancelOffer(listingID, caller, params.Index)
	})
}

func (s *Server) resolveOffer(raw json.RawMessage, apply func([32]byte, resolveOfferParams) error) (interface{}, *modules.ModuleError) {
	if s == nil || s.engine == nil {
		return nil, engineOffline()
	}
	var params resolveOfferParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, badParams("invalid parameter object", err.Error())
	}
	listingID, err := parseRef(params.ListingID)
	if err != nil {
		return nil, badParams("listingId: "+err.Error(), "")
	}
	if err := apply(listingID, params); err != nil {
		return nil, mapEngineError(err)
	}
	return ackResult{OK: true}, nil
}

func (s *Server) handleAdvance(raw json.RawMessage) (interface{}, *modules.ModuleError) {
	if s == nil || s.engine == nil {
		return nil, engineOffline()
	}
	var params advanceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, badParams("invalid parameter object", err.Error())
	}
	listingID, err := parseRef(params.ListingID)
	if err != nil {
		return nil, badParams("listingId: "+err.Error(), "")
	}
	buyer, err := parseAddr(params.Buyer)
	if err != nil {
		return nil, badParams("buyer: "+err.Error(), "")
	}
	legs := market.LegAccounts{}
	if strings.TrimSpace(params.SourceAccount) != "" {
		if legs.Source, err = parseRef(params.SourceAccount); err != nil {
			return nil, badParams("sourceAccount: "+err.Error(), "")
		}
		if legs.Dest, err = parseRef(params.DestAccount); err != nil {
			return nil, badParams("destAccount: "+err.Error(), "")
		}
	}
	for _, pair := range params.Pairs {
		ref, refErr := parseRef(pair)
		if refErr != nil {
			return nil, badParams("pairs: "+refErr.Error(), "")
		}
		legs.Pairs = append(legs.Pairs, ref)
	}
	if legs.Payout, err = parseRef(params.PayoutAccount); err != nil {
		return nil, badParams("payoutAccount: "+err.Error(), "")
	}
	if engineErr := s.engine.Advance(listingID, params.OfferIndex, buyer, legs); engineErr != nil {
		return nil, mapEngineError(engineErr)
	}
	return ackResult{OK: true}, nil
}

func (s *Server) handleCatalogAdd(raw json.RawMessage) (interface{}, *modules.ModuleError) {
	if s == nil || s.engine == nil {
		return nil, engineOffline()
	}
	var params catalogAddParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, badParams("invalid parameter object", err.Error())
	}
	entry := &market.CatalogEntry{CollectionID: params.CollectionID, CatalogItemID: params.CatalogItemID}
	var err error
	if entry.AssetMint, err = parseRef(params.AssetMint); err != nil {
		return nil, badParams("assetMint: "+err.Error(), "")
	}
	if entry.Owner, err = parseAddr(params.Owner); err != nil {
		return nil, badParams("owner: "+err.Error(), "")
	}
	if engineErr := s.engine.CatalogAdd(entry); engineErr != nil {
		return nil, mapEngineError(engineErr)
	}
	return ackResult{OK: true}, nil
}

func (s *Server) handleCatalogRemove(raw json.RawMessage) (interface{}, *modules.ModuleError) {
	if s == nil || s.engine == nil {
		return nil, engineOffline()
	}
	var params catalogRemoveParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, badParams("invalid parameter object", err.Error())
	}
	mint, err := parseRef(params.AssetMint)
	if err != nil {
		return nil, badParams("assetMint: "+err.Error(), "")
	}
	if engineErr := s.engine.CatalogRemove(mint); engineErr != nil {
		return nil, mapEngineError(engineErr)
	}
	return ackResult{OK: true}, nil
}

// parseAddr accepts either a bech32-rendered address or 20 hex-encoded bytes.
func parseAddr(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return addr, errors.New("address is required")
	}
	if strings.HasPrefix(trimmed, string(crypto.NMPrefix)+"1") {
		decoded, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return addr, err
		}
		copy(addr[:], decoded.Bytes())
		return addr, nil
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
	if err != nil || len(decoded) != len(addr) {
		return addr, errors.New("address must be 20 hex-encoded bytes")
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseRef(value string) ([32]byte, error) {
	var ref [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return ref, errors.New("reference is required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(ref) {
		return ref, errors.New("reference must be 32 hex-encoded bytes")
	}
	copy(ref[:], decoded)
	return ref, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, errors.New("amount is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errors.New("amount must be a non-negative decimal string")
	}
	return amount, nil
}

func badParams(message, data string) *modules.ModuleError {
	return &modules.ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message, Data: data}
}

func engineOffline() *modules.ModuleError {
	return &modules.ModuleError{HTTPStatus: http.StatusServiceUnavailable, Code: codeServerError, Message: "engine offline"}
}

func mapEngineError(err error) *modules.ModuleError {
	status := http.StatusBadRequest
	code := codeInvalidParams
	switch {
	case errors.Is(err, market.ErrLedgerNotFound),
		errors.Is(err, market.ErrListingNotFound),
		errors.Is(err, market.ErrNotListedForSale):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrInvalidOwner):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrAlreadyListed):
		status = http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
		code = codeServerError
	case errors.Is(err, market.ErrInvalidIndex),
		errors.Is(err, market.ErrOverflowOfferCount),
		errors.Is(err, market.ErrOverflowTokenAccountCount),
		errors.Is(err, market.ErrInvalidSourceAccount):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
		code = codeServerError
	}
	return &modules.ModuleError{HTTPStatus: status, Code: code, Message: err.Error()}
}
