package vault

import (
	"fmt"
	"math/big"

	"stablecore/crypto"
)

// RedeemVault exchanges the caller's debt tokens for collateral at the oracle
// price, sweeping vaults from the lowest risk score upwards. Fully drained
// vaults are closed and their leftover collateral goes straight to their
// owners; the final partially touched vault is re-ranked using the caller's
// hints. The redeemed debt is burned from the caller.
func (e *Engine) RedeemVault(caller crypto.Address, asset string, amountRequested *big.Int, prevHint, nextHint crypto.Address) (*big.Int, *big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	defer e.latch.Exit()
	g, err := e.requireInitialized()
	if err != nil {
		return nil, nil, err
	}
	feeRate := new(big.Int).Set(g.RedemptionFee)
	if nonNil(amountRequested).Sign() <= 0 {
		return nil, nil, ErrZeroAmount
	}

	if _, ok := e.index.Tail(asset); !ok {
		return nil, nil, ErrNoVaultsToRedeem
	}
	price, err := e.price(asset)
	if err != nil {
		return nil, nil, err
	}
	balance, err := e.tokens.BalanceOf(e.stableSymbol, caller)
	if err != nil {
		return nil, nil, err
	}
	if balance.Cmp(amountRequested) < 0 {
		return nil, nil, ErrTokenTransfer
	}

	p, err := e.store.Params(asset)
	if err != nil {
		return nil, nil, err
	}

	remaining := new(big.Int).Set(amountRequested)
	totalDebtRedeemed := big.NewInt(0)
	totalCollRedeemed := big.NewInt(0)
	var drained uint64
	type surplusReturn struct {
		owner  crypto.Address
		amount *big.Int
	}
	var surpluses []surplusReturn

	for remaining.Sign() > 0 {
		owner, ok := e.index.Tail(asset)
		if !ok {
			break
		}
		v, err := e.manageDebtInterest(asset, owner)
		if err != nil {
			return nil, nil, err
		}
		if v == nil {
			return nil, nil, ErrVaultNotFound
		}

		toRedeem := new(big.Int).Set(v.Debt)
		if toRedeem.Cmp(remaining) > 0 {
			toRedeem.Set(remaining)
		}
		fee := mulDiv(toRedeem, feeRate, wad)
		netRedeem := new(big.Int).Sub(toRedeem, fee)
		collOut := mulDiv(netRedeem, wad, price)
		if collOut.Cmp(v.Collateral) > 0 {
			return nil, nil, ErrCollateralDrained
		}

		totalCollRedeemed.Add(totalCollRedeemed, collOut)
		totalDebtRedeemed.Add(totalDebtRedeemed, toRedeem)
		remaining.Sub(remaining, toRedeem)

		// The interest pass persists its own aggregate updates, so the
		// record is reloaded fresh for every vault touched.
		g, err := e.store.Global()
		if err != nil {
			return nil, nil, err
		}
		g.TotalProtocolDebt = new(big.Int).Sub(g.TotalProtocolDebt, toRedeem)

		if remaining.Sign() > 0 {
			// Fully drained: close the vault and queue the leftover
			// collateral for its owner.
			surplus := new(big.Int).Sub(v.Collateral, collOut)
			if surplus.Sign() > 0 {
				surpluses = append(surpluses, surplusReturn{owner: owner.Clone(), amount: surplus})
			}
			g.ActiveVaults--
			g.TotalDebt[asset] = new(big.Int).Sub(g.totalDebtFor(asset), v.Debt)
			g.TotalCollateral[asset] = new(big.Int).Sub(g.totalCollateralFor(asset), v.Collateral)
			if err := e.store.SetGlobal(g); err != nil {
				return nil, nil, err
			}
			if err := e.index.Remove(asset, owner); err != nil {
				return nil, nil, err
			}
			if err := e.store.RemoveVault(asset, owner); err != nil {
				return nil, nil, err
			}
			drained++
			continue
		}

		// Final partial touch: leave the remainder in place at its new rank.
		v.Collateral = new(big.Int).Sub(v.Collateral, collOut)
		v.Debt = new(big.Int).Sub(v.Debt, toRedeem)
		g.TotalDebt[asset] = new(big.Int).Sub(g.totalDebtFor(asset), toRedeem)
		g.TotalCollateral[asset] = new(big.Int).Sub(g.totalCollateralFor(asset), collOut)
		if err := e.store.SetGlobal(g); err != nil {
			return nil, nil, err
		}
		if err := e.store.SetVault(asset, owner, v); err != nil {
			return nil, nil, err
		}
		score := RiskScore(v.Collateral, v.Debt, v.MCR, p.MCRFactor)
		if score == nil {
			score = new(big.Int).Set(maxScore)
		}
		if err := e.index.ReInsert(asset, owner, score, prevHint, nextHint); err != nil {
			return nil, nil, err
		}
	}

	if totalDebtRedeemed.Sign() == 0 {
		return nil, nil, ErrNoVaultsToRedeem
	}

	if err := e.tokens.Burn(e.stableSymbol, e.moduleAddress, caller, totalDebtRedeemed); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTokenTransfer, err)
	}
	if totalCollRedeemed.Sign() > 0 {
		if err := e.tokens.Transfer(asset, e.moduleAddress, caller, totalCollRedeemed); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}
	for _, ret := range surpluses {
		if err := e.tokens.Transfer(asset, e.moduleAddress, ret.owner, ret.amount); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	}

	e.emit(NewRedeemedEvent(asset, caller, totalDebtRedeemed, totalCollRedeemed, drained))
	return totalDebtRedeemed, totalCollRedeemed, nil
}
