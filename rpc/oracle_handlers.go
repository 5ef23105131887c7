package rpc

import (
	"time"

	"stablecore/observability"
)

type oraclePriceParams struct {
	Asset string `json:"asset"`
	// Price in 1e18-scaled debt-token units, decimal string.
	Price string `json:"price"`
	// Timestamp optionally backdates the quote; zero means now.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// handleOracleSetPrice feeds the manual override oracle. It is a mutating,
// token-gated method: operators use it for incident response and local
// networks use it as their only price source.
func (s *Server) handleOracleSetPrice(req *RPCRequest) (interface{}, *RPCError) {
	var params oraclePriceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if s.feed == nil {
		return nil, &RPCError{Code: codeServerError, Message: "manual feed not configured"}
	}
	price, rpcErr := parseAmount("price", params.Price)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if price.Sign() <= 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "price must be positive"}
	}

	start := time.Now()
	if params.Timestamp > 0 {
		s.feed.SetAt(params.Asset, price, time.Unix(params.Timestamp, 0))
	} else {
		s.feed.Set(params.Asset, price)
	}
	observability.EngineMetrics().ObserveOperation("oracle_setPrice", nil, time.Since(start))
	return okResult, nil
}
