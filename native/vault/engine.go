package vault

import (
	"fmt"
	"math/big"

	"stablecore/core/types"
	"stablecore/crypto"
	nativecommon "stablecore/native/common"
)

const moduleName = "vault"

// PriceSource resolves the collateral price in debt-token units, scaled 1e18.
type PriceSource interface {
	FetchPrice(asset string) (*big.Int, error)
}

// TokenBank is the slice of the token ledger the engine drives. The engine's
// module account is whitelisted as the debt token's mint/burn authority.
type TokenBank interface {
	Transfer(token string, from, to crypto.Address, amount *big.Int) error
	Mint(token string, authority, to crypto.Address, amount *big.Int) error
	Burn(token string, authority, from crypto.Address, amount *big.Int) error
	BalanceOf(token string, addr crypto.Address) (*big.Int, error)
}

// DebtAbsorber is the stability pool as seen from the liquidation pipeline.
type DebtAbsorber interface {
	TotalDeposits() (*big.Int, error)
	OffsetDebt(caller crypto.Address, debtToOffset *big.Int, asset string, collAdded *big.Int) error
}

// Engine orchestrates every vault state transition: creation, adjustment,
// interest accrual, liquidation and redemption. All mutators run behind the
// caller's single logical lock; the latch additionally rejects re-entrant
// calls from token or oracle collaborators.
type Engine struct {
	store         *Store
	index         *SortedIndex
	tokens        TokenBank
	oracle        PriceSource
	pool          DebtAbsorber
	stableSymbol  string
	owner         crypto.Address
	moduleAddress crypto.Address
	treasury      crypto.Address
	pauses        nativecommon.PauseView
	latch         nativecommon.Latch
	nowFn         func() uint64
	events        []*types.Event
}

// NewEngine constructs a vault engine bound to its owner and module account.
// Collaborators are wired through the Set* methods before Initialize.
func NewEngine(owner, moduleAddr crypto.Address) *Engine {
	return &Engine{
		owner:         owner.Clone(),
		moduleAddress: moduleAddr.Clone(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state EngineState) {
	if e == nil {
		return
	}
	e.store = NewStore(state)
	e.index = NewSortedIndex(e.store.CalculateARS)
}

// SetTokenBank wires the token ledger.
func (e *Engine) SetTokenBank(tokens TokenBank) {
	if e == nil {
		return
	}
	e.tokens = tokens
}

// SetOracle wires the price source.
func (e *Engine) SetOracle(oracle PriceSource) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetStabilityPool wires the debt absorber used by liquidations.
func (e *Engine) SetStabilityPool(pool DebtAbsorber) {
	if e == nil {
		return
	}
	e.pool = pool
}

// SetStableToken fixes the debt-token symbol the engine mints and burns.
func (e *Engine) SetStableToken(symbol string) {
	if e == nil {
		return
	}
	e.stableSymbol = symbol
}

// SetTreasury records the protocol treasury account.
func (e *Engine) SetTreasury(treasury crypto.Address) {
	if e == nil {
		return
	}
	e.treasury = treasury.Clone()
}

// SetPauses wires the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the timestamp source; tests drive accrual through it.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

// Store exposes the vault store for queries and for wiring the stability
// pool's collateral indexer.
func (e *Engine) Store() *Store { return e.store }

// Index exposes the sorted index for read-only neighbourhood queries.
func (e *Engine) Index() *SortedIndex { return e.index }

// ModuleAddress returns the account holding engine-owned collateral.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// StableSymbol returns the configured debt-token symbol.
func (e *Engine) StableSymbol() string { return e.stableSymbol }

// Events drains the buffered events emitted since the last call.
func (e *Engine) Events() []*types.Event {
	if e == nil {
		return nil
	}
	drained := e.events
	e.events = nil
	return drained
}

func (e *Engine) emit(ev *types.Event) {
	if ev != nil {
		e.events = append(e.events, ev)
	}
}

func (e *Engine) now() uint64 {
	if e.nowFn != nil {
		return e.nowFn()
	}
	return 0
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return ErrNilState
	}
	if e.tokens == nil || e.oracle == nil {
		return ErrNotInitialized
	}
	return nil
}

func (e *Engine) requireInitialized() (*GlobalState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	g, err := e.store.Global()
	if err != nil {
		return nil, err
	}
	if !g.Initialized {
		return nil, ErrNotInitialized
	}
	return g, nil
}

func (e *Engine) enter() error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.latch.Enter()
}

func (e *Engine) price(asset string) (*big.Int, error) {
	p, err := e.oracle.FetchPrice(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleFailure, err)
	}
	if p == nil || p.Sign() <= 0 {
		return nil, ErrOracleFailure
	}
	return p, nil
}

func nonNil(amount *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return amount
}

// manageDebtInterest applies compound interest to the vault since its last
// update and stamps the new anchor. It returns the refreshed record, or nil
// when the slot is empty. Two calls at the same timestamp compose to a no-op
// after the first.
func (e *Engine) manageDebtInterest(asset string, owner crypto.Address) (*Vault, error) {
	v, err := e.store.Vault(asset, owner)
	if err != nil {
		return nil, err
	}
	if !v.Active() {
		return nil, nil
	}
	now := e.now()
	if now <= v.LastUpdate {
		return v, nil
	}
	elapsed := now - v.LastUpdate
	if v.Debt.Sign() > 0 {
		p, err := e.store.Params(asset)
		if err != nil {
			return nil, err
		}
		rate := InterestRate(p, v.MCR)
		factor := compoundFactor(rate, elapsed)
		newDebt := mulDiv(v.Debt, factor, wad)
		accrued := new(big.Int).Sub(newDebt, v.Debt)
		if accrued.Sign() > 0 {
			g, err := e.store.Global()
			if err != nil {
				return nil, err
			}
			g.TotalAccruedDebt = new(big.Int).Add(g.TotalAccruedDebt, accrued)
			g.TotalDebt[asset] = new(big.Int).Add(g.totalDebtFor(asset), accrued)
			g.TotalProtocolDebt = new(big.Int).Add(g.TotalProtocolDebt, accrued)
			if err := e.store.SetGlobal(g); err != nil {
				return nil, err
			}
			v.Debt = newDebt
			e.emit(NewInterestAccruedEvent(asset, owner, accrued))
		}
	}
	v.LastUpdate = now
	if err := e.store.SetVault(asset, owner, v); err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateVaultInterest accrues interest on an existing vault without touching
// anything else.
func (e *Engine) UpdateVaultInterest(asset string, owner crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.latch.Exit()
	if _, err := e.requireInitialized(); err != nil {
		return err
	}
	v, err := e.manageDebtInterest(asset, owner)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrVaultNotFound
	}
	return nil
}

// CreateVault opens a new position: collateral is pulled from the caller and
// the requested debt is minted to them.
func (e *Engine) CreateVault(caller crypto.Address, asset string, collAmt, debtAmt, mcr *big.Int, prevHint, nextHint crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.latch.Exit()
	g, err := e.requireInitialized()
	if err != nil {
		return err
	}
	if nonNil(collAmt).Sign() <= 0 || nonNil(debtAmt).Sign() <= 0 {
		return ErrZeroAmount
	}
	if nonNil(mcr).Sign() <= 0 {
		return ErrInvalidMCR
	}

	existing, err := e.manageDebtInterest(asset, caller)
	if err != nil {
		return err
	}
	if existing.Active() {
		return ErrVaultExists
	}

	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	price, err := e.price(asset)
	if err != nil {
		return err
	}
	balance, err := e.tokens.BalanceOf(asset, caller)
	if err != nil {
		return err
	}
	if balance.Cmp(collAmt) < 0 {
		return ErrTokenTransfer
	}

	v := &Vault{
		Collateral: new(big.Int).Set(collAmt),
		Debt:       new(big.Int).Set(debtAmt),
		MCR:        new(big.Int).Set(mcr),
		LastUpdate: e.now(),
	}
	if err := e.store.checkVaultState(asset, v, price); err != nil {
		return err
	}

	g.ActiveVaults++
	g.TotalDebt[asset] = new(big.Int).Add(g.totalDebtFor(asset), debtAmt)
	g.TotalCollateral[asset] = new(big.Int).Add(g.totalCollateralFor(asset), collAmt)
	g.TotalProtocolDebt = new(big.Int).Add(g.TotalProtocolDebt, debtAmt)
	if g.totalDebtFor(asset).Cmp(p.MintCap) > 0 {
		return ErrMintCapExceeded
	}

	if err := e.store.SetVault(asset, caller, v); err != nil {
		return err
	}
	if err := e.store.SetGlobal(g); err != nil {
		return err
	}

	score := RiskScore(v.Collateral, v.Debt, v.MCR, p.MCRFactor)
	if err := e.index.Insert(asset, caller, score, prevHint, nextHint); err != nil {
		return err
	}

	if err := e.tokens.Transfer(asset, caller, e.moduleAddress, collAmt); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
	}
	if err := e.tokens.Mint(e.stableSymbol, e.moduleAddress, caller, debtAmt); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
	}

	e.emit(newVaultEvent(EventTypeVaultCreated, asset, caller, v))
	return nil
}

// AdjustVault applies collateral and debt deltas to an existing position. At
// most one direction per pair may be non-zero, and at least one delta must be
// supplied.
func (e *Engine) AdjustVault(caller crypto.Address, asset string, addColl, withdrawColl, addDebt, repayDebt *big.Int, prevHint, nextHint crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.latch.Exit()
	if _, err := e.requireInitialized(); err != nil {
		return err
	}

	addColl = nonNil(addColl)
	withdrawColl = nonNil(withdrawColl)
	addDebt = nonNil(addDebt)
	repayDebt = nonNil(repayDebt)
	if addColl.Sign() > 0 && withdrawColl.Sign() > 0 {
		return ErrInvalidParameter
	}
	if addDebt.Sign() > 0 && repayDebt.Sign() > 0 {
		return ErrInvalidParameter
	}
	if addColl.Sign() == 0 && withdrawColl.Sign() == 0 && addDebt.Sign() == 0 && repayDebt.Sign() == 0 {
		return ErrZeroAmount
	}
	if addColl.Sign() < 0 || withdrawColl.Sign() < 0 || addDebt.Sign() < 0 || repayDebt.Sign() < 0 {
		return ErrInvalidAmount
	}

	v, err := e.manageDebtInterest(asset, caller)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrVaultNotFound
	}
	if v.Collateral.Cmp(withdrawColl) < 0 || v.Debt.Cmp(repayDebt) < 0 {
		return ErrInvalidAmount
	}

	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	price, err := e.price(asset)
	if err != nil {
		return err
	}

	if addColl.Sign() > 0 {
		balance, err := e.tokens.BalanceOf(asset, caller)
		if err != nil {
			return err
		}
		if balance.Cmp(addColl) < 0 {
			return ErrTokenTransfer
		}
	}
	if repayDebt.Sign() > 0 {
		balance, err := e.tokens.BalanceOf(e.stableSymbol, caller)
		if err != nil {
			return err
		}
		if balance.Cmp(repayDebt) < 0 {
			return ErrTokenTransfer
		}
	}

	v.Collateral = new(big.Int).Add(v.Collateral, addColl)
	v.Collateral.Sub(v.Collateral, withdrawColl)
	v.Debt = new(big.Int).Add(v.Debt, addDebt)
	v.Debt.Sub(v.Debt, repayDebt)

	// Reload the aggregates only after the interest pass above has committed
	// its own updates to them.
	g, err := e.store.Global()
	if err != nil {
		return err
	}
	collDelta := new(big.Int).Sub(addColl, withdrawColl)
	debtDelta := new(big.Int).Sub(addDebt, repayDebt)
	g.TotalCollateral[asset] = new(big.Int).Add(g.totalCollateralFor(asset), collDelta)
	g.TotalDebt[asset] = new(big.Int).Add(g.totalDebtFor(asset), debtDelta)
	g.TotalProtocolDebt = new(big.Int).Add(g.TotalProtocolDebt, debtDelta)
	if addDebt.Sign() > 0 && g.totalDebtFor(asset).Cmp(p.MintCap) > 0 {
		return ErrMintCapExceeded
	}

	if err := e.store.checkVaultState(asset, v, price); err != nil {
		return err
	}
	if err := e.store.SetVault(asset, caller, v); err != nil {
		return err
	}
	if err := e.store.SetGlobal(g); err != nil {
		return err
	}

	if addColl.Sign() > 0 {
		if err := e.tokens.Transfer(asset, caller, e.moduleAddress, addColl); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}
	if withdrawColl.Sign() > 0 {
		if err := e.tokens.Transfer(asset, e.moduleAddress, caller, withdrawColl); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}
	if addDebt.Sign() > 0 {
		if err := e.tokens.Mint(e.stableSymbol, e.moduleAddress, caller, addDebt); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}
	if repayDebt.Sign() > 0 {
		if err := e.tokens.Burn(e.stableSymbol, e.moduleAddress, caller, repayDebt); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}

	score := RiskScore(v.Collateral, v.Debt, v.MCR, p.MCRFactor)
	if err := e.index.ReInsert(asset, caller, score, prevHint, nextHint); err != nil {
		return err
	}

	e.emit(newVaultEvent(EventTypeVaultAdjusted, asset, caller, v))
	return nil
}

// AdjustVaultMCR changes the vault's chosen MCR; the interest rate follows
// immediately through the fee curve.
func (e *Engine) AdjustVaultMCR(caller crypto.Address, asset string, newMCR *big.Int, prevHint, nextHint crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.latch.Exit()
	if _, err := e.requireInitialized(); err != nil {
		return err
	}
	if nonNil(newMCR).Sign() <= 0 {
		return ErrInvalidMCR
	}

	v, err := e.manageDebtInterest(asset, caller)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrVaultNotFound
	}
	if v.MCR.Cmp(newMCR) == 0 {
		return ErrInvalidParameter
	}

	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	price, err := e.price(asset)
	if err != nil {
		return err
	}

	v.MCR = new(big.Int).Set(newMCR)
	if err := e.store.checkVaultState(asset, v, price); err != nil {
		return err
	}
	if err := e.store.SetVault(asset, caller, v); err != nil {
		return err
	}

	score := RiskScore(v.Collateral, v.Debt, v.MCR, p.MCRFactor)
	if err := e.index.ReInsert(asset, caller, score, prevHint, nextHint); err != nil {
		return err
	}

	e.emit(newVaultEvent(EventTypeVaultMCRAdjusted, asset, caller, v))
	return nil
}

// CloseVault repays the full debt from the caller's balance and returns the
// locked collateral.
func (e *Engine) CloseVault(caller crypto.Address, asset string) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.latch.Exit()
	if _, err := e.requireInitialized(); err != nil {
		return err
	}

	v, err := e.manageDebtInterest(asset, caller)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrVaultNotFound
	}

	balance, err := e.tokens.BalanceOf(e.stableSymbol, caller)
	if err != nil {
		return err
	}
	if balance.Cmp(v.Debt) < 0 {
		return ErrTokenTransfer
	}

	g, err := e.store.Global()
	if err != nil {
		return err
	}
	g.ActiveVaults--
	g.TotalDebt[asset] = new(big.Int).Sub(g.totalDebtFor(asset), v.Debt)
	g.TotalCollateral[asset] = new(big.Int).Sub(g.totalCollateralFor(asset), v.Collateral)
	g.TotalProtocolDebt = new(big.Int).Sub(g.TotalProtocolDebt, v.Debt)

	if err := e.index.Remove(asset, caller); err != nil {
		return err
	}
	if err := e.store.RemoveVault(asset, caller); err != nil {
		return err
	}
	if err := e.store.SetGlobal(g); err != nil {
		return err
	}

	if v.Debt.Sign() > 0 {
		if err := e.tokens.Burn(e.stableSymbol, e.moduleAddress, caller, v.Debt); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}
	if v.Collateral.Sign() > 0 {
		if err := e.tokens.Transfer(asset, e.moduleAddress, caller, v.Collateral); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}

	e.emit(newVaultEvent(EventTypeVaultClosed, asset, caller, v))
	return nil
}

// TransferVaultOwnership moves the full record to the recipient. The interest
// anchor travels verbatim, so accrual continues from the original timestamp.
func (e *Engine) TransferVaultOwnership(caller crypto.Address, asset string, recipient crypto.Address, prevHint, nextHint crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.latch.Exit()
	if _, err := e.requireInitialized(); err != nil {
		return err
	}
	if recipient.IsZero() {
		return ErrInvalidParameter
	}
	if recipient.Equal(caller) {
		return ErrSelfTransfer
	}

	target, err := e.store.Vault(asset, recipient)
	if err != nil {
		return err
	}
	if target.Active() {
		return ErrVaultExists
	}

	v, err := e.store.Vault(asset, caller)
	if err != nil {
		return err
	}
	if !v.Active() {
		return ErrVaultNotFound
	}

	price, err := e.price(asset)
	if err != nil {
		return err
	}
	cr := CurrentCR(v.Collateral, v.Debt, price)
	if cr != nil && cr.Cmp(v.MCR) <= 0 {
		return ErrBelowMCR
	}

	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	score := RiskScore(v.Collateral, v.Debt, v.MCR, p.MCRFactor)

	if err := e.index.Remove(asset, caller); err != nil {
		return err
	}
	if err := e.store.RemoveVault(asset, caller); err != nil {
		return err
	}
	if err := e.store.SetVault(asset, recipient, v); err != nil {
		return err
	}
	if err := e.index.Insert(asset, recipient, score, prevHint, nextHint); err != nil {
		return err
	}

	ev := newVaultEvent(EventTypeVaultTransferred, asset, caller, v)
	ev.Attributes["recipient"] = recipient.String()
	e.emit(ev)
	return nil
}

// MintVaultsInterest distributes the interest accrued since the previous
// round to the configured recipients by basis points; any shortfall goes to
// the default recipient when one is set, otherwise it stays unminted.
func (e *Engine) MintVaultsInterest() error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.latch.Exit()
	g, err := e.requireInitialized()
	if err != nil {
		return err
	}

	delta := new(big.Int).Sub(g.TotalAccruedDebt, g.LastRecordedAccruedDebt)
	if delta.Sign() <= 0 {
		return ErrNothingToMint
	}
	g.LastRecordedAccruedDebt = new(big.Int).Set(g.TotalAccruedDebt)
	if err := e.store.SetGlobal(g); err != nil {
		return err
	}

	remaining := new(big.Int).Set(delta)
	bpsDen := big.NewInt(10_000)
	for _, recipient := range g.MintRecipients {
		if recipient.Bps == 0 || recipient.Recipient.IsZero() {
			continue
		}
		share := new(big.Int).Mul(delta, new(big.Int).SetUint64(recipient.Bps))
		share.Quo(share, bpsDen)
		if share.Sign() == 0 {
			continue
		}
		if err := e.tokens.Mint(e.stableSymbol, e.moduleAddress, recipient.Recipient, share); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
		remaining.Sub(remaining, share)
	}
	if remaining.Sign() > 0 && !g.DefaultInterestRecipient.IsZero() {
		if err := e.tokens.Mint(e.stableSymbol, e.moduleAddress, g.DefaultInterestRecipient, remaining); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
		remaining.SetInt64(0)
	}

	e.emit(NewInterestMintedEvent(delta, new(big.Int).Sub(delta, remaining)))
	return nil
}
