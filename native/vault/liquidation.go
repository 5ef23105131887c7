package vault

import (
	"fmt"
	"math/big"

	"stablecore/crypto"
)

// liquidationDistribution splits the vault's collateral between the stability
// pool and the owner. The pool receives the debt-equivalent collateral plus
// the penalty at the oracle price; when that exceeds the vault's holdings the
// pool takes everything and the penalty truncates.
func liquidationDistribution(collateral, debtToOffset, penalty, price *big.Int) (poolShare, surplus *big.Int) {
	payable := mulDiv(debtToOffset, penalty, wad)
	payable.Add(payable, debtToOffset)
	collateralValue := mulDiv(collateral, price, wad)
	if payable.Cmp(collateralValue) >= 0 {
		return new(big.Int).Set(collateral), big.NewInt(0)
	}
	poolShare = mulDiv(payable, wad, price)
	surplus = new(big.Int).Sub(collateral, poolShare)
	return poolShare, surplus
}

// LiquidateVault seizes an undercollateralised vault against the stability
// pool. When the pool cannot absorb the full debt the vault is partially
// liquidated and re-ranked; otherwise the record is cleared and any surplus
// collateral is returned to the owner.
func (e *Engine) LiquidateVault(caller crypto.Address, asset string, owner crypto.Address, prevHint, nextHint crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.latch.Exit()
	if _, err := e.requireInitialized(); err != nil {
		return err
	}
	if e.pool == nil {
		return ErrNotInitialized
	}

	v, err := e.manageDebtInterest(asset, owner)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrVaultNotFound
	}

	price, err := e.price(asset)
	if err != nil {
		return err
	}
	cr := CurrentCR(v.Collateral, v.Debt, price)
	if cr == nil || cr.Cmp(v.MCR) >= 0 {
		return ErrNotLiquidatable
	}

	deposits, err := e.pool.TotalDeposits()
	if err != nil {
		return err
	}
	if deposits == nil || deposits.Sign() == 0 {
		return ErrStabilityPoolEmpty
	}

	debtToOffset := new(big.Int).Set(v.Debt)
	if debtToOffset.Cmp(deposits) > 0 {
		debtToOffset.Set(deposits)
	}

	p, err := e.store.Params(asset)
	if err != nil {
		return err
	}
	poolShare, surplus := liquidationDistribution(v.Collateral, debtToOffset, p.LiquidationPenalty, price)

	// Aggregates are loaded after the interest pass so its committed updates
	// are not overwritten.
	g, err := e.store.Global()
	if err != nil {
		return err
	}
	full := debtToOffset.Cmp(v.Debt) == 0
	if full {
		g.ActiveVaults--
		g.TotalDebt[asset] = new(big.Int).Sub(g.totalDebtFor(asset), v.Debt)
		g.TotalCollateral[asset] = new(big.Int).Sub(g.totalCollateralFor(asset), v.Collateral)
		if err := e.index.Remove(asset, owner); err != nil {
			return err
		}
		if err := e.store.RemoveVault(asset, owner); err != nil {
			return err
		}
	} else {
		v.Collateral = new(big.Int).Sub(v.Collateral, poolShare)
		v.Debt = new(big.Int).Sub(v.Debt, debtToOffset)
		g.TotalDebt[asset] = new(big.Int).Sub(g.totalDebtFor(asset), debtToOffset)
		g.TotalCollateral[asset] = new(big.Int).Sub(g.totalCollateralFor(asset), poolShare)
		if err := e.store.SetVault(asset, owner, v); err != nil {
			return err
		}
		score := RiskScore(v.Collateral, v.Debt, v.MCR, p.MCRFactor)
		if err := e.index.ReInsert(asset, owner, score, prevHint, nextHint); err != nil {
			return err
		}
	}
	g.TotalProtocolDebt = new(big.Int).Sub(g.TotalProtocolDebt, debtToOffset)
	if err := e.store.SetGlobal(g); err != nil {
		return err
	}

	if err := e.pool.OffsetDebt(e.moduleAddress, debtToOffset, asset, poolShare); err != nil {
		return err
	}
	if full && surplus.Sign() > 0 {
		if err := e.tokens.Transfer(asset, e.moduleAddress, owner, surplus); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}

	e.emit(NewLiquidatedEvent(asset, owner, debtToOffset, poolShare, surplus, full))
	return nil
}
