package vault

import (
	"math/big"

	"stablecore/crypto"
)

// Vault is one collateralised debt position, keyed by (owner, collateral
// symbol). Debt carries accrued interest as of LastUpdate; LastUpdate == 0
// marks the slot as empty.
type Vault struct {
	// Collateral is the amount of the collateral token locked in the vault.
	Collateral *big.Int `json:"collateral"`
	// Debt is the debt-token principal including interest accrued up to
	// LastUpdate.
	Debt *big.Int `json:"debt"`
	// MCR is the owner-chosen minimum collateral ratio, scaled 1e18 with the
	// x100 convention (110% == 110e18).
	MCR *big.Int `json:"mcr"`
	// LastUpdate is the unix timestamp interest was last applied at.
	LastUpdate uint64 `json:"lastUpdate"`
}

// Active reports whether the record describes a live vault.
func (v *Vault) Active() bool {
	return v != nil && v.LastUpdate != 0
}

// Clone returns a deep copy so callers can mutate freely before persisting.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := &Vault{LastUpdate: v.LastUpdate}
	if v.Collateral != nil {
		clone.Collateral = new(big.Int).Set(v.Collateral)
	}
	if v.Debt != nil {
		clone.Debt = new(big.Int).Set(v.Debt)
	}
	if v.MCR != nil {
		clone.MCR = new(big.Int).Set(v.MCR)
	}
	return clone
}

func (v *Vault) ensureDefaults() {
	if v.Collateral == nil {
		v.Collateral = big.NewInt(0)
	}
	if v.Debt == nil {
		v.Debt = big.NewInt(0)
	}
	if v.MCR == nil {
		v.MCR = big.NewInt(0)
	}
}

// CollateralParams groups the per-asset risk limits controlled by the engine
// owner.
type CollateralParams struct {
	// Active gates the asset: while it is off, CreateVault, AdjustVault and
	// AdjustVaultMCR fail; closing, transfer, liquidation and redemption
	// still run.
	Active bool `json:"active"`
	// Decimals records the upstream token precision; the engine does not
	// rescale amounts by it.
	Decimals uint8 `json:"decimals"`
	// Index is the asset's stable position in the valid-collateral list, used
	// by the stability pool error buckets.
	Index uint32 `json:"index"`
	// MinRange and MaxRange bound the owner-chosen MCR, scaled 1e18 (x100).
	MinRange *big.Int `json:"minRange"`
	MaxRange *big.Int `json:"maxRange"`
	// MCRFactor is the MCR contribution to the adjusted risk score.
	MCRFactor *big.Int `json:"mcrFactor"`
	// BaseFee and MaxFee are the endpoints of the linear per-annum interest
	// curve, scaled 1e18.
	BaseFee *big.Int `json:"baseFee"`
	MaxFee  *big.Int `json:"maxFee"`
	// MinNetDebt is the smallest debt a vault may carry.
	MinNetDebt *big.Int `json:"minNetDebt"`
	// MintCap bounds the total debt minted against this collateral.
	MintCap *big.Int `json:"mintCap"`
	// LiquidationPenalty is the extra collateral fraction seized on
	// liquidation, scaled 1e18 and hard-capped at 30%.
	LiquidationPenalty *big.Int `json:"liquidationPenalty"`
}

// Clone returns a deep copy of the parameter set.
func (p *CollateralParams) Clone() *CollateralParams {
	if p == nil {
		return nil
	}
	clone := &CollateralParams{Active: p.Active, Decimals: p.Decimals, Index: p.Index}
	clone.MinRange = cloneInt(p.MinRange)
	clone.MaxRange = cloneInt(p.MaxRange)
	clone.MCRFactor = cloneInt(p.MCRFactor)
	clone.BaseFee = cloneInt(p.BaseFee)
	clone.MaxFee = cloneInt(p.MaxFee)
	clone.MinNetDebt = cloneInt(p.MinNetDebt)
	clone.MintCap = cloneInt(p.MintCap)
	clone.LiquidationPenalty = cloneInt(p.LiquidationPenalty)
	return clone
}

func (p *CollateralParams) ensureDefaults() {
	if p.MinRange == nil {
		p.MinRange = big.NewInt(0)
	}
	if p.MaxRange == nil {
		p.MaxRange = big.NewInt(0)
	}
	if p.MCRFactor == nil {
		p.MCRFactor = big.NewInt(0)
	}
	if p.BaseFee == nil {
		p.BaseFee = big.NewInt(0)
	}
	if p.MaxFee == nil {
		p.MaxFee = big.NewInt(0)
	}
	if p.MinNetDebt == nil {
		p.MinNetDebt = big.NewInt(0)
	}
	if p.MintCap == nil {
		p.MintCap = big.NewInt(0)
	}
	if p.LiquidationPenalty == nil {
		p.LiquidationPenalty = big.NewInt(0)
	}
}

// MintRecipient receives a basis-point share of minted interest.
type MintRecipient struct {
	Recipient crypto.Address `json:"recipient"`
	Bps       uint64         `json:"bps"`
}

// GlobalState aggregates protocol-wide accounting across all collaterals.
type GlobalState struct {
	Initialized             bool     `json:"initialized"`
	ActiveVaults            uint64   `json:"activeVaults"`
	TotalProtocolDebt       *big.Int `json:"totalProtocolDebt"`
	TotalAccruedDebt        *big.Int `json:"totalAccruedDebt"`
	LastRecordedAccruedDebt *big.Int `json:"lastRecordedAccruedDebt"`
	// RedemptionFee is the flat fee applied to redeemed debt, scaled 1e18 and
	// hard-capped at 10%.
	RedemptionFee *big.Int `json:"redemptionFee"`
	// ValidCollateral lists collateral symbols in registration order; an
	// asset's slot here is its CollateralParams.Index for life.
	ValidCollateral []string            `json:"validCollateral"`
	TotalDebt       map[string]*big.Int `json:"totalDebt"`
	TotalCollateral map[string]*big.Int `json:"totalCollateral"`
	MintRecipients  []MintRecipient     `json:"mintRecipients,omitempty"`
	// DefaultInterestRecipient absorbs the bps shortfall from MintRecipients;
	// zero address means the shortfall stays unminted.
	DefaultInterestRecipient crypto.Address `json:"defaultInterestRecipient"`
}

func (g *GlobalState) ensureDefaults() {
	if g.TotalProtocolDebt == nil {
		g.TotalProtocolDebt = big.NewInt(0)
	}
	if g.TotalAccruedDebt == nil {
		g.TotalAccruedDebt = big.NewInt(0)
	}
	if g.LastRecordedAccruedDebt == nil {
		g.LastRecordedAccruedDebt = big.NewInt(0)
	}
	if g.RedemptionFee == nil {
		g.RedemptionFee = big.NewInt(0)
	}
	if g.TotalDebt == nil {
		g.TotalDebt = make(map[string]*big.Int)
	}
	if g.TotalCollateral == nil {
		g.TotalCollateral = make(map[string]*big.Int)
	}
}

func (g *GlobalState) totalDebtFor(asset string) *big.Int {
	if amount, ok := g.TotalDebt[asset]; ok && amount != nil {
		return amount
	}
	return big.NewInt(0)
}

func (g *GlobalState) totalCollateralFor(asset string) *big.Int {
	if amount, ok := g.TotalCollateral[asset]; ok && amount != nil {
		return amount
	}
	return big.NewInt(0)
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
