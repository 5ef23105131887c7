package vault

import (
	"math/big"

	"stablecore/crypto"
)

// EngineState is the persistence boundary for vault records, collateral
// parameters and the global aggregates. GetVault returns (nil, nil) for an
// empty slot.
type EngineState interface {
	GetVault(asset string, owner crypto.Address) (*Vault, error)
	PutVault(asset string, owner crypto.Address, v *Vault) error
	DeleteVault(asset string, owner crypto.Address) error
	GetCollateralParams(asset string) (*CollateralParams, error)
	PutCollateralParams(asset string, p *CollateralParams) error
	GetGlobal() (*GlobalState, error)
	PutGlobal(g *GlobalState) error
}

// Store wraps EngineState with the derived-quantity calculations the engine
// and the sorted index share: CR, NCR, ARS and the MCR-driven interest rate.
type Store struct {
	state EngineState
}

// NewStore binds a store to its persistence layer.
func NewStore(state EngineState) *Store {
	return &Store{state: state}
}

// Vault loads the record for (asset, owner); nil when the slot is empty.
func (s *Store) Vault(asset string, owner crypto.Address) (*Vault, error) {
	if s == nil || s.state == nil {
		return nil, ErrNilState
	}
	v, err := s.state.GetVault(asset, owner)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	v.ensureDefaults()
	return v, nil
}

// SetVault persists the record.
func (s *Store) SetVault(asset string, owner crypto.Address, v *Vault) error {
	if s == nil || s.state == nil {
		return ErrNilState
	}
	v.ensureDefaults()
	return s.state.PutVault(asset, owner, v)
}

// RemoveVault clears the slot entirely.
func (s *Store) RemoveVault(asset string, owner crypto.Address) error {
	if s == nil || s.state == nil {
		return ErrNilState
	}
	return s.state.DeleteVault(asset, owner)
}

// Params loads the collateral parameter set, failing for unknown assets.
func (s *Store) Params(asset string) (*CollateralParams, error) {
	if s == nil || s.state == nil {
		return nil, ErrNilState
	}
	p, err := s.state.GetCollateralParams(asset)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrInvalidCollateral
	}
	p.ensureDefaults()
	return p, nil
}

// SetParams persists the collateral parameter set.
func (s *Store) SetParams(asset string, p *CollateralParams) error {
	if s == nil || s.state == nil {
		return ErrNilState
	}
	p.ensureDefaults()
	return s.state.PutCollateralParams(asset, p)
}

// Global loads the aggregate record, materialising defaults on first use.
func (s *Store) Global() (*GlobalState, error) {
	if s == nil || s.state == nil {
		return nil, ErrNilState
	}
	g, err := s.state.GetGlobal()
	if err != nil {
		return nil, err
	}
	if g == nil {
		g = &GlobalState{}
	}
	g.ensureDefaults()
	return g, nil
}

// SetGlobal persists the aggregate record.
func (s *Store) SetGlobal(g *GlobalState) error {
	if s == nil || s.state == nil {
		return ErrNilState
	}
	g.ensureDefaults()
	return s.state.PutGlobal(g)
}

// CollateralIndex returns the asset's stable position in the
// valid-collateral list. It satisfies the stability pool's indexer
// dependency.
func (s *Store) CollateralIndex(asset string) (uint32, error) {
	p, err := s.Params(asset)
	if err != nil {
		return 0, err
	}
	return p.Index, nil
}

// CurrentCR computes collateral*price*100/debt on the 1e18 scale, so 150%
// comes back as 150e18. A nil result means infinite (zero debt).
func CurrentCR(collateral, debt, price *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return nil
	}
	if collateral == nil || price == nil {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(collateral, price)
	num.Mul(num, hundred)
	return num.Quo(num, debt)
}

// NominalCR computes the price-independent collateral*1e20/debt. A nil result
// means infinite (zero debt).
func NominalCR(collateral, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return nil
	}
	if collateral == nil {
		return big.NewInt(0)
	}
	return mulDiv(collateral, ncrUnit, debt)
}

// RiskScore computes the adjusted risk score NCR + mcrFactor*mcr/1e18 used to
// order vaults for redemption. Nil means infinite.
func RiskScore(collateral, debt, mcr, mcrFactor *big.Int) *big.Int {
	ncr := NominalCR(collateral, debt)
	if ncr == nil {
		return nil
	}
	if mcrFactor == nil || mcrFactor.Sign() == 0 || mcr == nil {
		return ncr
	}
	bonus := mulDiv(mcrFactor, mcr, wad)
	return ncr.Add(ncr, bonus)
}

// CalculateARS loads the live vault and parameter state and returns the
// current risk score. The sorted index uses this as its score oracle, so
// hints computed against stale state are naturally invalidated.
func (s *Store) CalculateARS(asset string, owner crypto.Address) (*big.Int, error) {
	v, err := s.Vault(asset, owner)
	if err != nil {
		return nil, err
	}
	if !v.Active() {
		return nil, ErrVaultNotFound
	}
	p, err := s.Params(asset)
	if err != nil {
		return nil, err
	}
	score := RiskScore(v.Collateral, v.Debt, v.MCR, p.MCRFactor)
	if score == nil {
		// Active vaults always carry debt, but guard the zero-debt window
		// during multi-step operations.
		return new(big.Int).Set(maxScore), nil
	}
	return score, nil
}

// maxScore stands in for an infinite risk score inside the ordered index.
var maxScore = new(big.Int).Lsh(big.NewInt(1), 255)

// InterestRate derives the per-annum rate for a vault MCR from the collateral
// fee curve: MaxRange maps to BaseFee, MinRange to MaxFee, linear in between.
func InterestRate(p *CollateralParams, mcr *big.Int) *big.Int {
	if p == nil || mcr == nil || mcr.Sign() == 0 {
		return big.NewInt(0)
	}
	if mcr.Cmp(p.MaxRange) >= 0 {
		return new(big.Int).Set(p.BaseFee)
	}
	if mcr.Cmp(p.MinRange) <= 0 {
		return new(big.Int).Set(p.MaxFee)
	}
	span := new(big.Int).Sub(p.MaxRange, p.MinRange)
	spread := new(big.Int).Sub(p.MaxFee, p.BaseFee)
	slope := mulDiv(spread, wad, span)
	headroom := new(big.Int).Sub(p.MaxRange, mcr)
	rate := mulDiv(slope, headroom, wad)
	return rate.Add(rate, p.BaseFee)
}

// checkVaultState enforces the post-mutation invariants: active collateral,
// MCR inside the configured range, debt at least the minimum, CR above the
// vault's own MCR.
func (s *Store) checkVaultState(asset string, v *Vault, price *big.Int) error {
	p, err := s.Params(asset)
	if err != nil {
		return err
	}
	if !p.Active {
		return ErrInactiveCollateral
	}
	if v.MCR.Cmp(p.MinRange) < 0 || v.MCR.Cmp(p.MaxRange) > 0 {
		return ErrInvalidMCR
	}
	if v.Debt.Cmp(p.MinNetDebt) < 0 {
		return ErrBelowMinDebt
	}
	cr := CurrentCR(v.Collateral, v.Debt, price)
	if cr == nil {
		return nil
	}
	if cr.Cmp(v.MCR) <= 0 {
		return ErrBelowMCR
	}
	return nil
}
