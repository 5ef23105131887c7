package vault

import (
	"math/big"

	"stablecore/core/types"
	"stablecore/crypto"
)

const (
	EventTypeVaultCreated     = "vault.created"
	EventTypeVaultAdjusted    = "vault.adjusted"
	EventTypeVaultMCRAdjusted = "vault.mcr_adjusted"
	EventTypeVaultClosed      = "vault.closed"
	EventTypeVaultTransferred = "vault.transferred"
	EventTypeVaultLiquidated  = "vault.liquidated"
	EventTypeVaultRedeemed    = "vault.redeemed"
	EventTypeInterestAccrued  = "vault.interest_accrued"
	EventTypeInterestMinted   = "vault.interest_minted"
)

func eventAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func newVaultEvent(eventType, asset string, owner crypto.Address, v *Vault) *types.Event {
	attrs := map[string]string{
		"asset": asset,
		"owner": owner.String(),
	}
	if v != nil {
		attrs["collateral"] = eventAmount(v.Collateral)
		attrs["debt"] = eventAmount(v.Debt)
		attrs["mcr"] = eventAmount(v.MCR)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewLiquidatedEvent captures the debt offset against the pool and the
// collateral it received.
func NewLiquidatedEvent(asset string, owner crypto.Address, debtOffset, collToPool, surplus *big.Int, full bool) *types.Event {
	fullStr := "false"
	if full {
		fullStr = "true"
	}
	return &types.Event{
		Type: EventTypeVaultLiquidated,
		Attributes: map[string]string{
			"asset":      asset,
			"owner":      owner.String(),
			"debtOffset": eventAmount(debtOffset),
			"collToPool": eventAmount(collToPool),
			"surplus":    eventAmount(surplus),
			"full":       fullStr,
		},
	}
}

// NewRedeemedEvent captures one redemption sweep.
func NewRedeemedEvent(asset string, redeemer crypto.Address, debtRedeemed, collRedeemed *big.Int, vaultsDrained uint64) *types.Event {
	return &types.Event{
		Type: EventTypeVaultRedeemed,
		Attributes: map[string]string{
			"asset":         asset,
			"redeemer":      redeemer.String(),
			"debtRedeemed":  eventAmount(debtRedeemed),
			"collRedeemed":  eventAmount(collRedeemed),
			"vaultsDrained": new(big.Int).SetUint64(vaultsDrained).String(),
		},
	}
}

// NewInterestAccruedEvent captures one accrual application.
func NewInterestAccruedEvent(asset string, owner crypto.Address, accrued *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeInterestAccrued,
		Attributes: map[string]string{
			"asset":   asset,
			"owner":   owner.String(),
			"accrued": eventAmount(accrued),
		},
	}
}

// NewInterestMintedEvent captures an interest-mint distribution round.
func NewInterestMintedEvent(total, distributed *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeInterestMinted,
		Attributes: map[string]string{
			"total":       eventAmount(total),
			"distributed": eventAmount(distributed),
		},
	}
}
