package stability

import (
	"math/big"

	"stablecore/core/types"
	"stablecore/crypto"
)

const (
	EventTypeDeposit  = "stability.deposit"
	EventTypeWithdraw = "stability.withdraw"
	EventTypeOffset   = "stability.offset"
)

func eventAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func newDepositEvent(depositor crypto.Address, amount, newTotal *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDeposit,
		Attributes: map[string]string{
			"depositor": depositor.String(),
			"amount":    eventAmount(amount),
			"deposit":   eventAmount(newTotal),
		},
	}
}

func newWithdrawEvent(depositor crypto.Address, amount, remaining *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeWithdraw,
		Attributes: map[string]string{
			"depositor": depositor.String(),
			"amount":    eventAmount(amount),
			"deposit":   eventAmount(remaining),
		},
	}
}

func newOffsetEvent(asset string, debt, collateral *big.Int, ps *PoolState) *types.Event {
	attrs := map[string]string{
		"asset":      asset,
		"debt":       eventAmount(debt),
		"collateral": eventAmount(collateral),
	}
	if ps != nil {
		attrs["epoch"] = new(big.Int).SetUint64(ps.CurrentEpoch).String()
		attrs["scale"] = new(big.Int).SetUint64(ps.CurrentScale).String()
	}
	return &types.Event{Type: EventTypeOffset, Attributes: attrs}
}
