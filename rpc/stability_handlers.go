package rpc

import (
	"math/big"
	"time"

	"stablecore/observability"
)

type stabilityMutateParams struct {
	From   string   `json:"from"`
	Amount string   `json:"amount"`
	Assets []string `json:"assets"`
}

type stabilityQueryParams struct {
	Address string   `json:"address"`
	Assets  []string `json:"assets,omitempty"`
}

type depositorResult struct {
	Address           string              `json:"address"`
	CompoundedDeposit *big.Int            `json:"compoundedDeposit"`
	PendingGains      map[string]*big.Int `json:"pendingGains,omitempty"`
	TotalPoolDeposits *big.Int            `json:"totalPoolDeposits"`
}

func (s *Server) handleStabilityDeposit(req *RPCRequest) (interface{}, *RPCError) {
	var params stabilityMutateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	err := s.pool.Deposit(from, amount, params.Assets)
	observability.EngineMetrics().ObserveOperation("stability_deposit", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleStabilityWithdraw(req *RPCRequest) (interface{}, *RPCError) {
	var params stabilityMutateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	err := s.pool.Withdraw(from, amount, params.Assets)
	observability.EngineMetrics().ObserveOperation("stability_withdraw", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleStabilityDepositor(req *RPCRequest) (interface{}, *RPCError) {
	var params stabilityQueryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	compoundedValue, err := s.pool.CompoundedDeposit(addr)
	if err != nil {
		return nil, engineError(err)
	}
	total, err := s.pool.TotalDeposits()
	if err != nil {
		return nil, engineError(err)
	}
	gains := make(map[string]*big.Int, len(params.Assets))
	for _, asset := range params.Assets {
		gain, err := s.pool.PendingGain(addr, asset)
		if err != nil {
			return nil, engineError(err)
		}
		gains[asset] = gain
	}
	return depositorResult{
		Address:           addr.String(),
		CompoundedDeposit: compoundedValue,
		PendingGains:      gains,
		TotalPoolDeposits: total,
	}, nil
}

type tokenBalanceParams struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type tokenBalanceResult struct {
	Token   string   `json:"token"`
	Address string   `json:"address"`
	Balance *big.Int `json:"balance"`
}

func (s *Server) handleTokenBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenBalanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.tokens.BalanceOf(params.Token, addr)
	if err != nil {
		return nil, engineError(err)
	}
	return tokenBalanceResult{Token: params.Token, Address: addr.String(), Balance: balance}, nil
}
