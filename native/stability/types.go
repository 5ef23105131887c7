package stability

import (
	"math/big"

	"stablecore/crypto"
)

// PoolState is the pool-wide product/sum accounting record. P starts at 1e18
// and shrinks with every offset; CurrentEpoch advances when the pool is fully
// emptied and CurrentScale when P loses nine digits of precision.
type PoolState struct {
	P                 *big.Int            `json:"p"`
	CurrentScale      uint64              `json:"currentScale"`
	CurrentEpoch      uint64              `json:"currentEpoch"`
	TotalDeposits     *big.Int            `json:"totalDeposits"`
	LastDebtLossError *big.Int            `json:"lastDebtLossError"`
	LastAssetError    map[uint32]*big.Int `json:"lastAssetError"`
}

func (p *PoolState) ensureDefaults() {
	if p.P == nil || p.P.Sign() == 0 {
		p.P = new(big.Int).Set(wad)
	}
	if p.TotalDeposits == nil {
		p.TotalDeposits = big.NewInt(0)
	}
	if p.LastDebtLossError == nil {
		p.LastDebtLossError = big.NewInt(0)
	}
	if p.LastAssetError == nil {
		p.LastAssetError = make(map[uint32]*big.Int)
	}
}

func (p *PoolState) assetError(index uint32) *big.Int {
	if v, ok := p.LastAssetError[index]; ok && v != nil {
		return v
	}
	return big.NewInt(0)
}

// Snapshot pins the accounting variables at the moment of the last deposit
// mutation; compounded values and gains are derived lazily against it.
type Snapshot struct {
	P     *big.Int            `json:"p"`
	Scale uint64              `json:"scale"`
	Epoch uint64              `json:"epoch"`
	S     map[string]*big.Int `json:"s"`
}

func (s Snapshot) sumFor(asset string) *big.Int {
	if v, ok := s.S[asset]; ok && v != nil {
		return v
	}
	return big.NewInt(0)
}

// Deposit is one depositor's ledger entry.
type Deposit struct {
	Amount   *big.Int `json:"amount"`
	Snapshot Snapshot `json:"snapshot"`
}

func (d *Deposit) ensureDefaults() {
	if d.Amount == nil {
		d.Amount = big.NewInt(0)
	}
	if d.Snapshot.P == nil || d.Snapshot.P.Sign() == 0 {
		d.Snapshot.P = new(big.Int).Set(wad)
	}
	if d.Snapshot.S == nil {
		d.Snapshot.S = make(map[string]*big.Int)
	}
}

// PoolStore is the persistence boundary for the pool record, depositor
// entries and the epoch/scale sum table. GetDeposit returns (nil, nil) for an
// unknown depositor; GetScaleSum returns zero for untouched cells.
type PoolStore interface {
	GetPool() (*PoolState, error)
	PutPool(p *PoolState) error
	GetDeposit(addr crypto.Address) (*Deposit, error)
	PutDeposit(addr crypto.Address, d *Deposit) error
	DeleteDeposit(addr crypto.Address) error
	GetScaleSum(asset string, epoch, scale uint64) (*big.Int, error)
	PutScaleSum(asset string, epoch, scale uint64, sum *big.Int) error
}

// TokenBank is the slice of the token ledger the pool drives. The pool module
// account is whitelisted as a debt-token burn authority.
type TokenBank interface {
	Transfer(token string, from, to crypto.Address, amount *big.Int) error
	Burn(token string, authority, from crypto.Address, amount *big.Int) error
	BalanceOf(token string, addr crypto.Address) (*big.Int, error)
}

// AssetIndexer resolves a collateral symbol to its stable index, used to key
// the per-asset rounding-error buckets.
type AssetIndexer interface {
	CollateralIndex(asset string) (uint32, error)
}
