package vault

import (
	"math/big"

	"stablecore/crypto"
)

var (
	// minAllowedRange pins the lowest configurable MCR bound at 100% on the
	// x100 CR scale.
	minAllowedRange = mustBigInt("100000000000000000000")
	// maxFeeCeiling caps per-annum rates at 100%.
	maxFeeCeiling = mustBigInt("1000000000000000000")
	// maxLiquidationPenalty is the 30% hard cap.
	maxLiquidationPenalty = mustBigInt("300000000000000000")
	// maxRedemptionFee is the 10% hard cap.
	maxRedemptionFee = mustBigInt("100000000000000000")
)

func (e *Engine) requireOwner(caller crypto.Address) error {
	if e == nil {
		return ErrNilState
	}
	if e.owner.IsZero() || !caller.Equal(e.owner) {
		return ErrNotAuthorized
	}
	return nil
}

// Initialize is the one-shot activation step. It requires the collaborators
// and the debt-token symbol to be wired and flips the initialised flag; a
// second call fails. Every other operation refuses to run before it.
func (e *Engine) Initialize(caller crypto.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	if e.stableSymbol == "" {
		return ErrInvalidParameter
	}
	g, err := e.store.Global()
	if err != nil {
		return err
	}
	if g.Initialized {
		return ErrInvalidParameter
	}
	g.Initialized = true
	return e.store.SetGlobal(g)
}

// AddCollateral registers a new collateral asset. The asset starts inactive
// until parameters are configured and SetIsActive enables it. Its slot in the
// valid-collateral list is permanent.
func (e *Engine) AddCollateral(caller crypto.Address, asset string, decimals uint8) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	g, err := e.requireInitialized()
	if err != nil {
		return err
	}
	for _, existing := range g.ValidCollateral {
		if existing == asset {
			return ErrInvalidParameter
		}
	}
	params := &CollateralParams{
		Active:   false,
		Decimals: decimals,
		Index:    uint32(len(g.ValidCollateral)),
	}
	params.ensureDefaults()
	if err := e.store.SetParams(asset, params); err != nil {
		return err
	}
	g.ValidCollateral = append(g.ValidCollateral, asset)
	return e.store.SetGlobal(g)
}

// SetCollateralParameters configures the full risk-parameter set in one call.
func (e *Engine) SetCollateralParameters(caller crypto.Address, asset string, minRange, maxRange, mcrFactor, baseFee, maxFee, minNetDebt, mintCap, liqPenalty *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if _, err := e.requireInitialized(); err != nil {
		return err
	}
	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	minRange = nonNil(minRange)
	maxRange = nonNil(maxRange)
	baseFee = nonNil(baseFee)
	maxFee = nonNil(maxFee)
	liqPenalty = nonNil(liqPenalty)
	if minRange.Cmp(minAllowedRange) < 0 || maxRange.Cmp(minRange) < 0 {
		return ErrInvalidParameter
	}
	if baseFee.Cmp(maxFee) >= 0 || maxFee.Cmp(maxFeeCeiling) > 0 {
		return ErrInvalidParameter
	}
	if liqPenalty.Cmp(maxLiquidationPenalty) > 0 {
		return ErrInvalidParameter
	}
	if nonNil(minNetDebt).Sign() <= 0 || nonNil(mintCap).Sign() <= 0 {
		return ErrInvalidParameter
	}
	p.MinRange = new(big.Int).Set(minRange)
	p.MaxRange = new(big.Int).Set(maxRange)
	p.MCRFactor = new(big.Int).Set(nonNil(mcrFactor))
	p.BaseFee = new(big.Int).Set(baseFee)
	p.MaxFee = new(big.Int).Set(maxFee)
	p.MinNetDebt = new(big.Int).Set(minNetDebt)
	p.MintCap = new(big.Int).Set(mintCap)
	p.LiquidationPenalty = new(big.Int).Set(liqPenalty)
	return e.store.SetParams(asset, p)
}

// SetMinRange tightens or relaxes the lower MCR bound, never below 100%.
func (e *Engine) SetMinRange(caller crypto.Address, asset string, minRange *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	minRange = nonNil(minRange)
	if minRange.Cmp(minAllowedRange) < 0 || minRange.Cmp(p.MaxRange) > 0 {
		return ErrInvalidParameter
	}
	p.MinRange = new(big.Int).Set(minRange)
	return e.store.SetParams(asset, p)
}

// SetMaxFee adjusts the steep end of the fee curve, capped at 100% per annum.
func (e *Engine) SetMaxFee(caller crypto.Address, asset string, maxFee *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	maxFee = nonNil(maxFee)
	if maxFee.Cmp(maxFeeCeiling) > 0 || maxFee.Cmp(p.BaseFee) <= 0 {
		return ErrInvalidParameter
	}
	p.MaxFee = new(big.Int).Set(maxFee)
	return e.store.SetParams(asset, p)
}

// SetLiquidationPenalty adjusts the seizure bonus, hard-capped at 30%.
func (e *Engine) SetLiquidationPenalty(caller crypto.Address, asset string, penalty *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	penalty = nonNil(penalty)
	if penalty.Cmp(maxLiquidationPenalty) > 0 {
		return ErrInvalidParameter
	}
	p.LiquidationPenalty = new(big.Int).Set(penalty)
	return e.store.SetParams(asset, p)
}

// SetIsActive opens or closes the asset for new exposure.
func (e *Engine) SetIsActive(caller crypto.Address, asset string, active bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	p.Active = active
	return e.store.SetParams(asset, p)
}

// SetRedemptionFee adjusts the global redemption fee, hard-capped at 10%.
func (e *Engine) SetRedemptionFee(caller crypto.Address, fee *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	g, err := e.requireInitialized()
	if err != nil {
		return err
	}
	fee = nonNil(fee)
	if fee.Cmp(maxRedemptionFee) > 0 {
		return ErrInvalidParameter
	}
	g.RedemptionFee = new(big.Int).Set(fee)
	return e.store.SetGlobal(g)
}

// SetMintRecipients replaces the interest distribution table. The basis
// points may sum to less than 10000; the shortfall routes to the default
// recipient.
func (e *Engine) SetMintRecipients(caller crypto.Address, recipients []MintRecipient) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	g, err := e.requireInitialized()
	if err != nil {
		return err
	}
	var total uint64
	for _, recipient := range recipients {
		if recipient.Recipient.IsZero() {
			return ErrInvalidParameter
		}
		total += recipient.Bps
		if total > 10_000 {
			return ErrInvalidParameter
		}
	}
	cloned := make([]MintRecipient, 0, len(recipients))
	for _, recipient := range recipients {
		cloned = append(cloned, MintRecipient{Recipient: recipient.Recipient.Clone(), Bps: recipient.Bps})
	}
	g.MintRecipients = cloned
	return e.store.SetGlobal(g)
}

// SetDefaultInterestRecipient designates the shortfall sink; the zero address
// clears it.
func (e *Engine) SetDefaultInterestRecipient(caller crypto.Address, recipient crypto.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	g, err := e.requireInitialized()
	if err != nil {
		return err
	}
	g.DefaultInterestRecipient = recipient.Clone()
	return e.store.SetGlobal(g)
}
