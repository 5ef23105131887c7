package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/time/rate"

	"stablecore/crypto"
	"stablecore/native/oracle"
	"stablecore/native/stability"
	"stablecore/native/token"
	"stablecore/native/vault"
	"stablecore/observability"
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
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Server exposes the engine surface over JSON-RPC. Mutating handlers take the
// engine mutex for their full duration, which realises the single-logical-lock
// serialisation the engine requires.
type Server struct {
	engine *vault.Engine
	pool   *stability.Pool
	tokens *token.Ledger
	feed   *oracle.ManualFeed

	mu        sync.Mutex
	authToken string

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	ratePers  rate.Limit
	burst     int
}

// NewServer wires the RPC server to the engines. The auth token is read from
// STABLECORE_RPC_TOKEN; when set, mutating methods require it as a bearer
// token.
func NewServer(engine *vault.Engine, pool *stability.Pool, tokens *token.Ledger, feed *oracle.ManualFeed, perMinute float64, burst int) *Server {
	if perMinute <= 0 {
		perMinute = 600
	}
	if burst <= 0 {
		burst = 20
	}
	return &Server{
		engine:    engine,
		pool:      pool,
		tokens:    tokens,
		feed:      feed,
		authToken: strings.TrimSpace(os.Getenv("STABLECORE_RPC_TOKEN")),
		limiters:  make(map[string]*rate.Limiter),
		ratePers:  rate.Limit(perMinute / 60),
		burst:     burst,
	}
}

// Start blocks serving JSON-RPC on addr.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allow(r *http.Request) bool {
	id := clientID(r)
	s.limiterMu.Lock()
	limiter, ok := s.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(s.ratePers, s.burst)
		s.limiters[id] = limiter
	}
	s.limiterMu.Unlock()
	return limiter.Allow()
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(header[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

type handlerFunc func(req *RPCRequest) (interface{}, *RPCError)

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	if !s.allow(r) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON", err.Error())
		return
	}

	handler, mutating := s.route(req.Method)
	if handler == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
		observability.RPCMetrics().Observe(req.Method, http.StatusNotFound, time.Since(start))
		return
	}
	if mutating && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", nil)
		observability.RPCMetrics().Observe(req.Method, http.StatusUnauthorized, time.Since(start))
		return
	}

	// One logical lock serialises every engine interaction, queries included:
	// the engines share mutable in-memory structures with the mutators.
	s.mu.Lock()
	result, rpcErr := handler(&req)
	s.mu.Unlock()

	status := http.StatusOK
	if rpcErr != nil {
		status = http.StatusBadRequest
		if rpcErr.Code == codeServerError {
			status = http.StatusInternalServerError
		}
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	} else {
		writeResult(w, req.ID, result)
	}
	observability.RPCMetrics().Observe(req.Method, status, time.Since(start))
}

func (s *Server) route(method string) (handlerFunc, bool) {
	switch method {
	case "vault_create":
		return s.handleVaultCreate, true
	case "vault_adjust":
		return s.handleVaultAdjust, true
	case "vault_adjustMCR":
		return s.handleVaultAdjustMCR, true
	case "vault_close":
		return s.handleVaultClose, true
	case "vault_transfer":
		return s.handleVaultTransfer, true
	case "vault_liquidate":
		return s.handleVaultLiquidate, true
	case "vault_redeem":
		return s.handleVaultRedeem, true
	case "vault_updateInterest":
		return s.handleVaultUpdateInterest, true
	case "vault_mintInterest":
		return s.handleVaultMintInterest, true
	case "vault_get":
		return s.handleVaultGet, false
	case "vault_list":
		return s.handleVaultList, false
	case "vault_global":
		return s.handleVaultGlobal, false
	case "vault_params":
		return s.handleVaultParams, false
	case "stability_deposit":
		return s.handleStabilityDeposit, true
	case "stability_withdraw":
		return s.handleStabilityWithdraw, true
	case "stability_depositor":
		return s.handleStabilityDepositor, false
	case "token_balance":
		return s.handleTokenBalance, false
	case "oracle_setPrice":
		return s.handleOracleSetPrice, true
	default:
		return nil, false
	}
}

// --- shared parameter helpers ---

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single parameter object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameters", Data: err.Error()}
	}
	return nil
}

func parseAddress(field, value string) (crypto.Address, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: field + " required"}
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: "invalid " + field, Data: err.Error()}
	}
	return addr, nil
}

func parseOptionalAddress(field, value string) (crypto.Address, *RPCError) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, nil
	}
	return parseAddress(field, value)
}

// parseAmount decodes a decimal amount, enforcing the u256 range the engine
// state assumes.
func parseAmount(field, value string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid " + field, Data: err.Error()}
	}
	return parsed.ToBig(), nil
}

func engineError(err error) *RPCError {
	if err == nil {
		return nil
	}
	if errors.Is(err, vault.ErrNotAuthorized) || errors.Is(err, stability.ErrNotAuthorized) {
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	}
	return &RPCError{Code: codeServerError, Message: err.Error()}
}
