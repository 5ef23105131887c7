package stability

import (
	"errors"
	"fmt"
	"math/big"

	"stablecore/core/types"
	"stablecore/crypto"
	nativecommon "stablecore/native/common"
)

var (
	ErrNilState            = errors.New("stability pool: state not configured")
	ErrNotAuthorized       = errors.New("stability pool: caller is not authorised")
	ErrZeroAmount          = errors.New("stability pool: amount must be positive")
	ErrInsufficientDeposit = errors.New("stability pool: no deposit for withdrawer")
	ErrArrayNotAscending   = errors.New("stability pool: asset list must be strictly ascending")
	ErrOffsetTooLarge      = errors.New("stability pool: offset exceeds total deposits")
	ErrProductDepleted     = errors.New("stability pool: running product must stay positive")
	ErrTokenTransfer       = errors.New("stability pool: token transfer failed")
)

var (
	wad         = mustBigInt("1000000000000000000") // 1e18
	scaleFactor = mustBigInt("1000000000")          // 1e9
)

const moduleName = "stability"

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Pool aggregates debt-token deposits that absorb liquidated debt. Offsets
// are O(1) in state writes per collateral; depositor bookkeeping accrues
// lazily through product/sum snapshots.
type Pool struct {
	state         PoolStore
	tokens        TokenBank
	indexer       AssetIndexer
	stableSymbol  string
	moduleAddress crypto.Address
	vaultOps      crypto.Address
	pauses        nativecommon.PauseView
	latch         nativecommon.Latch
	events        []*types.Event
}

// NewPool constructs a stability pool. moduleAddr holds the pooled funds;
// vaultOps is the only account allowed to drive OffsetDebt and the source the
// liquidated collateral is pulled from.
func NewPool(moduleAddr, vaultOps crypto.Address, stableSymbol string) *Pool {
	return &Pool{
		moduleAddress: moduleAddr.Clone(),
		vaultOps:      vaultOps.Clone(),
		stableSymbol:  stableSymbol,
	}
}

// SetState wires the pool to the external persistence layer.
func (p *Pool) SetState(state PoolStore) {
	if p == nil {
		return
	}
	p.state = state
}

// SetTokenBank wires the token ledger.
func (p *Pool) SetTokenBank(tokens TokenBank) {
	if p == nil {
		return
	}
	p.tokens = tokens
}

// SetAssetIndexer wires the collateral index lookup for error buckets.
func (p *Pool) SetAssetIndexer(indexer AssetIndexer) {
	if p == nil {
		return
	}
	p.indexer = indexer
}

// SetPauses wires the module pause view.
func (p *Pool) SetPauses(view nativecommon.PauseView) {
	if p == nil {
		return
	}
	p.pauses = view
}

// ModuleAddress returns the account holding pooled funds.
func (p *Pool) ModuleAddress() crypto.Address { return p.moduleAddress }

// Events drains the buffered events emitted since the last call.
func (p *Pool) Events() []*types.Event {
	if p == nil {
		return nil
	}
	drained := p.events
	p.events = nil
	return drained
}

func (p *Pool) emit(ev *types.Event) {
	if ev != nil {
		p.events = append(p.events, ev)
	}
}

func (p *Pool) pool() (*PoolState, error) {
	if p == nil || p.state == nil {
		return nil, ErrNilState
	}
	ps, err := p.state.GetPool()
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = &PoolState{}
	}
	ps.ensureDefaults()
	return ps, nil
}

// TotalDeposits reports the pool's current debt-token holdings.
func (p *Pool) TotalDeposits() (*big.Int, error) {
	ps, err := p.pool()
	if err != nil {
		return nil, err
	}
	return ps.TotalDeposits, nil
}

func requireAscending(assets []string) error {
	for i := 1; i < len(assets); i++ {
		if assets[i-1] >= assets[i] {
			return ErrArrayNotAscending
		}
	}
	return nil
}

// compounded applies the product shrinkage since the deposit's snapshot. A
// deposit from a previous epoch is fully consumed; two scale shifts or a
// shrinkage below 1e-9 of the original round to zero.
func compounded(d *Deposit, ps *PoolState) *big.Int {
	if d == nil || d.Amount == nil || d.Amount.Sign() == 0 {
		return big.NewInt(0)
	}
	if d.Snapshot.Epoch < ps.CurrentEpoch {
		return big.NewInt(0)
	}
	scaleDiff := ps.CurrentScale - d.Snapshot.Scale
	if scaleDiff >= 2 {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(d.Amount, ps.P)
	value.Quo(value, d.Snapshot.P)
	if scaleDiff == 1 {
		value.Quo(value, scaleFactor)
	}
	floor := new(big.Int).Quo(d.Amount, scaleFactor)
	if value.Cmp(floor) < 0 {
		return big.NewInt(0)
	}
	return value
}

// pendingGain computes the depositor's unclaimed collateral for one asset.
func (p *Pool) pendingGain(d *Deposit, asset string) (*big.Int, error) {
	if d == nil || d.Amount == nil || d.Amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	epoch := d.Snapshot.Epoch
	scale := d.Snapshot.Scale
	current, err := p.state.GetScaleSum(asset, epoch, scale)
	if err != nil {
		return nil, err
	}
	next, err := p.state.GetScaleSum(asset, epoch, scale+1)
	if err != nil {
		return nil, err
	}
	first := new(big.Int).Sub(nonNil(current), d.Snapshot.sumFor(asset))
	second := new(big.Int).Quo(nonNil(next), scaleFactor)
	portion := first.Add(first, second)
	gain := new(big.Int).Mul(d.Amount, portion)
	gain.Quo(gain, d.Snapshot.P)
	gain.Quo(gain, wad)
	return gain, nil
}

func nonNil(amount *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return amount
}

// payGains transfers the pending gains for the listed assets and returns the
// amounts paid, keyed by asset.
func (p *Pool) payGains(caller crypto.Address, d *Deposit, assets []string) (map[string]*big.Int, error) {
	paid := make(map[string]*big.Int, len(assets))
	for _, asset := range assets {
		gain, err := p.pendingGain(d, asset)
		if err != nil {
			return nil, err
		}
		if gain.Sign() > 0 {
			if err := p.tokens.Transfer(asset, p.moduleAddress, caller, gain); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTokenTransfer, err)
			}
		}
		paid[asset] = gain
	}
	return paid, nil
}

func (p *Pool) snapshot(ps *PoolState, assets []string) (Snapshot, error) {
	snap := Snapshot{
		P:     new(big.Int).Set(ps.P),
		Scale: ps.CurrentScale,
		Epoch: ps.CurrentEpoch,
		S:     make(map[string]*big.Int, len(assets)),
	}
	for _, asset := range assets {
		sum, err := p.state.GetScaleSum(asset, ps.CurrentEpoch, ps.CurrentScale)
		if err != nil {
			return Snapshot{}, err
		}
		snap.S[asset] = nonNil(sum)
	}
	return snap, nil
}

// Deposit adds debt tokens to the pool, first settling the caller's pending
// gains and compounding their previous deposit. The asset list names every
// collateral the caller wants settled and must be strictly ascending.
func (p *Pool) Deposit(caller crypto.Address, amount *big.Int, assets []string) error {
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return err
	}
	if err := p.latch.Enter(); err != nil {
		return err
	}
	defer p.latch.Exit()
	if p.tokens == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := requireAscending(assets); err != nil {
		return err
	}

	ps, err := p.pool()
	if err != nil {
		return err
	}
	d, err := p.state.GetDeposit(caller)
	if err != nil {
		return err
	}
	if d != nil {
		d.ensureDefaults()
	}

	balance, err := p.tokens.BalanceOf(p.stableSymbol, caller)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrTokenTransfer
	}

	if _, err := p.payGains(caller, d, assets); err != nil {
		return err
	}

	comp := compounded(d, ps)
	newAmount := new(big.Int).Add(comp, amount)
	snap, err := p.snapshot(ps, assets)
	if err != nil {
		return err
	}
	if err := p.state.PutDeposit(caller, &Deposit{Amount: newAmount, Snapshot: snap}); err != nil {
		return err
	}

	ps.TotalDeposits = new(big.Int).Add(ps.TotalDeposits, amount)
	if err := p.state.PutPool(ps); err != nil {
		return err
	}

	if err := p.tokens.Transfer(p.stableSymbol, caller, p.moduleAddress, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
	}

	p.emit(newDepositEvent(caller, amount, newAmount))
	return nil
}

// Withdraw removes up to the compounded deposit and settles pending gains. A
// zero amount is the claim-rewards-only form.
func (p *Pool) Withdraw(caller crypto.Address, amount *big.Int, assets []string) error {
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return err
	}
	if err := p.latch.Enter(); err != nil {
		return err
	}
	defer p.latch.Exit()
	if p.tokens == nil {
		return ErrNilState
	}
	if err := requireAscending(assets); err != nil {
		return err
	}

	ps, err := p.pool()
	if err != nil {
		return err
	}
	d, err := p.state.GetDeposit(caller)
	if err != nil {
		return err
	}
	if d == nil {
		return ErrInsufficientDeposit
	}
	d.ensureDefaults()

	if _, err := p.payGains(caller, d, assets); err != nil {
		return err
	}

	comp := compounded(d, ps)
	toWithdraw := new(big.Int).Set(nonNil(amount))
	if toWithdraw.Cmp(comp) > 0 {
		toWithdraw.Set(comp)
	}
	remaining := new(big.Int).Sub(comp, toWithdraw)

	if remaining.Sign() == 0 {
		if err := p.state.DeleteDeposit(caller); err != nil {
			return err
		}
	} else {
		snap, err := p.snapshot(ps, assets)
		if err != nil {
			return err
		}
		if err := p.state.PutDeposit(caller, &Deposit{Amount: remaining, Snapshot: snap}); err != nil {
			return err
		}
	}

	if toWithdraw.Sign() > 0 {
		ps.TotalDeposits = new(big.Int).Sub(ps.TotalDeposits, toWithdraw)
		if err := p.state.PutPool(ps); err != nil {
			return err
		}
		if err := p.tokens.Transfer(p.stableSymbol, p.moduleAddress, caller, toWithdraw); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}

	p.emit(newWithdrawEvent(caller, toWithdraw, remaining))
	return nil
}

// OffsetDebt cancels liquidated debt against the pool: deposits shrink
// through P, the collateral claim grows through S, and the burned debt tokens
// leave the pool balance. Only the vault engine may call it; rounding errors
// are carried in per-asset and per-debt buckets so they never compound.
func (p *Pool) OffsetDebt(caller crypto.Address, debtToOffset *big.Int, asset string, collAdded *big.Int) error {
	if p == nil || p.state == nil {
		return ErrNilState
	}
	if !caller.Equal(p.vaultOps) {
		return ErrNotAuthorized
	}
	if p.tokens == nil || p.indexer == nil {
		return ErrNilState
	}

	ps, err := p.pool()
	if err != nil {
		return err
	}
	debtToOffset = nonNil(debtToOffset)
	collAdded = nonNil(collAdded)
	if ps.TotalDeposits.Sign() == 0 || debtToOffset.Sign() == 0 {
		return nil
	}
	if debtToOffset.Cmp(ps.TotalDeposits) > 0 {
		return ErrOffsetTooLarge
	}

	index, err := p.indexer.CollateralIndex(asset)
	if err != nil {
		return err
	}

	collNumerator := new(big.Int).Mul(collAdded, wad)
	collNumerator.Add(collNumerator, ps.assetError(index))

	debtLossPerUnit := new(big.Int)
	emptying := debtToOffset.Cmp(ps.TotalDeposits) == 0
	if emptying {
		debtLossPerUnit.Set(wad)
		ps.LastDebtLossError = big.NewInt(0)
	} else {
		lossNum := new(big.Int).Mul(debtToOffset, wad)
		lossNum.Sub(lossNum, ps.LastDebtLossError)
		// Round the per-unit loss up so the rounding favours the pool.
		debtLossPerUnit.Quo(lossNum, ps.TotalDeposits)
		debtLossPerUnit.Add(debtLossPerUnit, big.NewInt(1))
		carried := new(big.Int).Mul(debtLossPerUnit, ps.TotalDeposits)
		ps.LastDebtLossError = carried.Sub(carried, lossNum)
	}

	collGainPerUnit := new(big.Int).Quo(collNumerator, ps.TotalDeposits)
	assetError := new(big.Int).Mul(collGainPerUnit, ps.TotalDeposits)
	ps.LastAssetError[index] = new(big.Int).Sub(collNumerator, assetError)

	marginalGain := new(big.Int).Mul(collGainPerUnit, ps.P)
	sum, err := p.state.GetScaleSum(asset, ps.CurrentEpoch, ps.CurrentScale)
	if err != nil {
		return err
	}
	sum = new(big.Int).Add(nonNil(sum), marginalGain)
	if err := p.state.PutScaleSum(asset, ps.CurrentEpoch, ps.CurrentScale, sum); err != nil {
		return err
	}

	productFactor := new(big.Int).Sub(wad, debtLossPerUnit)
	if productFactor.Sign() == 0 {
		ps.CurrentEpoch++
		ps.CurrentScale = 0
		ps.P = new(big.Int).Set(wad)
	} else {
		scaled := new(big.Int).Mul(ps.P, productFactor)
		shrunk := new(big.Int).Quo(scaled, wad)
		if shrunk.Cmp(scaleFactor) < 0 {
			ps.P = new(big.Int).Quo(scaled.Mul(scaled, scaleFactor), wad)
			ps.CurrentScale++
		} else {
			ps.P = shrunk
		}
		if ps.P.Sign() == 0 {
			return ErrProductDepleted
		}
	}

	ps.TotalDeposits = new(big.Int).Sub(ps.TotalDeposits, debtToOffset)
	if err := p.state.PutPool(ps); err != nil {
		return err
	}

	if err := p.tokens.Burn(p.stableSymbol, p.moduleAddress, p.moduleAddress, debtToOffset); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
	}
	if collAdded.Sign() > 0 {
		if err := p.tokens.Transfer(asset, p.vaultOps, p.moduleAddress, collAdded); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}

	p.emit(newOffsetEvent(asset, debtToOffset, collAdded, ps))
	return nil
}

// CompoundedDeposit reports the depositor's current compounded value.
func (p *Pool) CompoundedDeposit(addr crypto.Address) (*big.Int, error) {
	ps, err := p.pool()
	if err != nil {
		return nil, err
	}
	d, err := p.state.GetDeposit(addr)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return big.NewInt(0), nil
	}
	d.ensureDefaults()
	return compounded(d, ps), nil
}

// PendingGain reports the depositor's unclaimed collateral for one asset.
func (p *Pool) PendingGain(addr crypto.Address, asset string) (*big.Int, error) {
	if p == nil || p.state == nil {
		return nil, ErrNilState
	}
	d, err := p.state.GetDeposit(addr)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return big.NewInt(0), nil
	}
	d.ensureDefaults()
	return p.pendingGain(d, asset)
}
