package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"nmchain/core/events"
	nmstate "nmchain/core/state"
	"nmchain/native/market"
	"nmchain/rpc/modules"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Server exposes the node's market operations and read surfaces over
// JSON-RPC.
type Server struct {
	engine *market.Engine
	market *modules.MarketModule
	http   *http.Server
}

// NewServer constructs an RPC server driving the given engine and serving
// reads from the state manager and event buffer.
func NewServer(engine *market.Engine, state *nmstate.Manager, buffer *events.Buffer) *Server {
	return &Server{engine: engine, market: modules.NewMarketModule(state, buffer)}
}

// Start begins serving on addr and blocks until the listener fails or the
// server is stopped.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", "")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", err.Error())
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC request", err.Error())
		return
	}

	params := json.RawMessage(nil)
	if len(req.Params) > 0 {
		params = req.Params[0]
	}

	var (
		result interface{}
		modErr *modules.ModuleError
	)
	switch req.Method {
	case "market_getLedger":
		result, modErr = s.market.GetLedger(params)
	case "market_getListing":
		result, modErr = s.market.GetListing(params)
	case "market_getSettlement":
		result, modErr = s.market.GetSettlement(params)
	case "market_listEvents":
		result, modErr = s.market.ListEvents(params)
	case "market_putOnSale":
		result, modErr = s.handlePutOnSale(params)
	case "market_cancelListing":
		result, modErr = s.handleCancelListing(params)
	case "market_addOffer":
		result, modErr = s.handleAddOffer(params)
	case "market_acceptOffer":
		result, modErr = s.handleAcceptOffer(params)
	case "market_rejectOffer":
		result, modErr = s.handleRejectOffer(params)
	case "market_cancelOffer":
		result, modErr = s.handleCancelOffer(params)
	case "market_advance":
		result, modErr = s.handleAdvance(params)
	case "market_catalogAdd":
		result, modErr = s.handleCatalogAdd(params)
	case "market_catalogRemove":
		result, modErr = s.handleCatalogRemove(params)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if modErr != nil {
		writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message, data string) {
	w.Header().Set("Content-Type", "application/json")
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: data},
	})
}
