package rpc

import (
	"math/big"
	"time"

	"stablecore/native/vault"
	"stablecore/observability"
)

type vaultCreateParams struct {
	From       string `json:"from"`
	Asset      string `json:"asset"`
	Collateral string `json:"collateral"`
	Debt       string `json:"debt"`
	MCR        string `json:"mcr"`
	PrevHint   string `json:"prevHint,omitempty"`
	NextHint   string `json:"nextHint,omitempty"`
}

type vaultAdjustParams struct {
	From               string `json:"from"`
	Asset              string `json:"asset"`
	AddCollateral      string `json:"addCollateral,omitempty"`
	WithdrawCollateral string `json:"withdrawCollateral,omitempty"`
	AddDebt            string `json:"addDebt,omitempty"`
	RepayDebt          string `json:"repayDebt,omitempty"`
	PrevHint           string `json:"prevHint,omitempty"`
	NextHint           string `json:"nextHint,omitempty"`
}

type vaultMCRParams struct {
	From     string `json:"from"`
	Asset    string `json:"asset"`
	MCR      string `json:"mcr"`
	PrevHint string `json:"prevHint,omitempty"`
	NextHint string `json:"nextHint,omitempty"`
}

type vaultCloseParams struct {
	From  string `json:"from"`
	Asset string `json:"asset"`
}

type vaultTransferParams struct {
	From      string `json:"from"`
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	PrevHint  string `json:"prevHint,omitempty"`
	NextHint  string `json:"nextHint,omitempty"`
}

type vaultLiquidateParams struct {
	From     string `json:"from"`
	Asset    string `json:"asset"`
	Owner    string `json:"owner"`
	PrevHint string `json:"prevHint,omitempty"`
	NextHint string `json:"nextHint,omitempty"`
}

type vaultRedeemParams struct {
	From     string `json:"from"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
	PrevHint string `json:"prevHint,omitempty"`
	NextHint string `json:"nextHint,omitempty"`
}

type vaultInterestParams struct {
	Asset string `json:"asset"`
	Owner string `json:"owner"`
}

type vaultQueryParams struct {
	Asset string `json:"asset"`
	Owner string `json:"owner,omitempty"`
}

type vaultResult struct {
	Asset      string   `json:"asset"`
	Owner      string   `json:"owner"`
	Collateral *big.Int `json:"collateral"`
	Debt       *big.Int `json:"debt"`
	MCR        *big.Int `json:"mcr"`
	LastUpdate uint64   `json:"lastUpdate"`
}

type redeemResult struct {
	DebtRedeemed       *big.Int `json:"debtRedeemed"`
	CollateralRedeemed *big.Int `json:"collateralRedeemed"`
}

type txResult struct {
	Status string `json:"status"`
}

var okResult = txResult{Status: "ok"}

func (s *Server) handleVaultCreate(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultCreateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	collateral, rpcErr := parseAmount("collateral", params.Collateral)
	if rpcErr != nil {
		return nil, rpcErr
	}
	debt, rpcErr := parseAmount("debt", params.Debt)
	if rpcErr != nil {
		return nil, rpcErr
	}
	mcr, rpcErr := parseAmount("mcr", params.MCR)
	if rpcErr != nil {
		return nil, rpcErr
	}
	prev, rpcErr := parseOptionalAddress("prevHint", params.PrevHint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	next, rpcErr := parseOptionalAddress("nextHint", params.NextHint)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	err := s.engine.CreateVault(from, params.Asset, collateral, debt, mcr, prev, next)
	observability.EngineMetrics().ObserveOperation("vault_create", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleVaultAdjust(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultAdjustParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addColl, rpcErr := parseAmount("addCollateral", params.AddCollateral)
	if rpcErr != nil {
		return nil, rpcErr
	}
	withdrawColl, rpcErr := parseAmount("withdrawCollateral", params.WithdrawCollateral)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addDebt, rpcErr := parseAmount("addDebt", params.AddDebt)
	if rpcErr != nil {
		return nil, rpcErr
	}
	repayDebt, rpcErr := parseAmount("repayDebt", params.RepayDebt)
	if rpcErr != nil {
		return nil, rpcErr
	}
	prev, rpcErr := parseOptionalAddress("prevHint", params.PrevHint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	next, rpcErr := parseOptionalAddress("nextHint", params.NextHint)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	err := s.engine.AdjustVault(from, params.Asset, addColl, withdrawColl, addDebt, repayDebt, prev, next)
	observability.EngineMetrics().ObserveOperation("vault_adjust", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleVaultAdjustMCR(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultMCRParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	mcr, rpcErr := parseAmount("mcr", params.MCR)
	if rpcErr != nil {
		return nil, rpcErr
	}
	prev, rpcErr := parseOptionalAddress("prevHint", params.PrevHint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	next, rpcErr := parseOptionalAddress("nextHint", params.NextHint)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	err := s.engine.AdjustVaultMCR(from, params.Asset, mcr, prev, next)
	observability.EngineMetrics().ObserveOperation("vault_adjustMCR", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleVaultClose(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultCloseParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	err := s.engine.CloseVault(from, params.Asset)
	observability.EngineMetrics().ObserveOperation("vault_close", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleVaultTransfer(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultTransferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	recipient, rpcErr := parseAddress("recipient", params.Recipient)
	if rpcErr != nil {
		return nil, rpcErr
	}
	prev, rpcErr := parseOptionalAddress("prevHint", params.PrevHint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	next, rpcErr := parseOptionalAddress("nextHint", params.NextHint)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	err := s.engine.TransferVaultOwnership(from, params.Asset, recipient, prev, next)
	observability.EngineMetrics().ObserveOperation("vault_transfer", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleVaultLiquidate(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultLiquidateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	prev, rpcErr := parseOptionalAddress("prevHint", params.PrevHint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	next, rpcErr := parseOptionalAddress("nextHint", params.NextHint)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	err := s.engine.LiquidateVault(from, params.Asset, owner, prev, next)
	observability.EngineMetrics().ObserveOperation("vault_liquidate", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleVaultRedeem(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultRedeemParams
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
	prev, rpcErr := parseOptionalAddress("prevHint", params.PrevHint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	next, rpcErr := parseOptionalAddress("nextHint", params.NextHint)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	debtRedeemed, collRedeemed, err := s.engine.RedeemVault(from, params.Asset, amount, prev, next)
	observability.EngineMetrics().ObserveOperation("vault_redeem", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	observability.EngineMetrics().ObserveRedemption()
	return redeemResult{DebtRedeemed: debtRedeemed, CollateralRedeemed: collRedeemed}, nil
}

func (s *Server) handleVaultUpdateInterest(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultInterestParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}

	start := time.Now()
	err := s.engine.UpdateVaultInterest(params.Asset, owner)
	observability.EngineMetrics().ObserveOperation("vault_updateInterest", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleVaultMintInterest(req *RPCRequest) (interface{}, *RPCError) {
	start := time.Now()
	err := s.engine.MintVaultsInterest()
	observability.EngineMetrics().ObserveOperation("vault_mintInterest", err, time.Since(start))
	if err != nil {
		return nil, engineError(err)
	}
	return okResult, nil
}

func (s *Server) handleVaultGet(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultQueryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	v, err := s.engine.Store().Vault(params.Asset, owner)
	if err != nil {
		return nil, engineError(err)
	}
	if !v.Active() {
		return nil, engineError(vault.ErrVaultNotFound)
	}
	return vaultResult{
		Asset:      params.Asset,
		Owner:      owner.String(),
		Collateral: v.Collateral,
		Debt:       v.Debt,
		MCR:        v.MCR,
		LastUpdate: v.LastUpdate,
	}, nil
}

func (s *Server) handleVaultList(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultQueryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owners := s.engine.Index().Owners(params.Asset)
	encoded := make([]string, 0, len(owners))
	for _, owner := range owners {
		encoded = append(encoded, owner.String())
	}
	return map[string]interface{}{"asset": params.Asset, "owners": encoded}, nil
}

func (s *Server) handleVaultGlobal(req *RPCRequest) (interface{}, *RPCError) {
	g, err := s.engine.Store().Global()
	if err != nil {
		return nil, engineError(err)
	}
	return g, nil
}

func (s *Server) handleVaultParams(req *RPCRequest) (interface{}, *RPCError) {
	var params vaultQueryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	p, err := s.engine.Store().Params(params.Asset)
	if err != nil {
		return nil, engineError(err)
	}
	return p, nil
}
