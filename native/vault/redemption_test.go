package vault

import (
	"errors"
	"math/big"
	"testing"
)

func TestRedeemSingleVault(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.engine.SetRedemptionFee(f.owner, bigFromString(t, "25000000000000000")); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	f.create(t, f.bob, "800000000000000000000", "1000000000000000000000", "110000000000000000000")

	amount := bigFromString(t, "1000000000000000000000")
	f.fund(stableSym, f.carol, amount)
	carolStableBefore := f.bank.balance(stableSym, f.carol)

	debtRedeemed, collRedeemed, err := f.engine.RedeemVault(f.carol, testAsset, amount, f.none, f.none)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if debtRedeemed.Cmp(amount) != 0 {
		t.Fatalf("debt redeemed = %s, want %s", debtRedeemed, amount)
	}
	// net = 1000 * (1 - 0.025) = 975; collateral = 975/6 = 162.5.
	wantColl := bigFromString(t, "162500000000000000000")
	if collRedeemed.Cmp(wantColl) != 0 {
		t.Fatalf("collateral redeemed = %s, want %s", collRedeemed, wantColl)
	}

	v := f.vault(t, f.bob)
	if v.Debt.Sign() != 0 {
		t.Fatalf("bob debt = %s, want 0", v.Debt)
	}
	wantRemaining := bigFromString(t, "637500000000000000000")
	if v.Collateral.Cmp(wantRemaining) != 0 {
		t.Fatalf("bob collateral = %s, want %s", v.Collateral, wantRemaining)
	}

	// The caller's debt tokens shrink by exactly the redeemed amount and the
	// collateral arrives in full.
	carolStableAfter := f.bank.balance(stableSym, f.carol)
	burned := new(big.Int).Sub(carolStableBefore, carolStableAfter)
	if burned.Cmp(debtRedeemed) != 0 {
		t.Fatalf("stable burned = %s, want %s", burned, debtRedeemed)
	}
	if got := f.bank.balance(testAsset, f.carol); got.Cmp(wantColl) != 0 {
		t.Fatalf("carol collateral = %s, want %s", got, wantColl)
	}
}

func TestRedeemAcrossVaults(t *testing.T) {
	f := newEngineFixture(t)
	f.create(t, f.alice, "1000000000000000000000", "3000000000000000000000", "120000000000000000000")
	f.create(t, f.bob, "800000000000000000000", "2400000000000000000000", "110000000000000000000")

	// Equal NCR, so the MCR term decides the order: bob (110%) sits at the
	// tail and is drained first.
	tail, ok := f.engine.Index().Tail(testAsset)
	if !ok || !tail.Equal(f.bob) {
		t.Fatalf("tail = %v, want bob", tail)
	}

	amount := bigFromString(t, "4000000000000000000000")
	f.fund(stableSym, f.carol, amount)

	debtRedeemed, collRedeemed, err := f.engine.RedeemVault(f.carol, testAsset, amount, f.none, f.none)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if debtRedeemed.Cmp(amount) != 0 {
		t.Fatalf("debt redeemed = %s, want %s", debtRedeemed, amount)
	}

	// Bob fully drained: 2400/6 = 400 collateral out, 400 surplus returned.
	if f.vault(t, f.bob) != nil {
		t.Fatalf("bob's vault survived a full drain")
	}
	if f.engine.Index().Contains(testAsset, f.bob) {
		t.Fatalf("drained vault still listed")
	}
	if got := f.bank.balance(testAsset, f.bob); got.Cmp(bigFromString(t, "400000000000000000000")) != 0 {
		t.Fatalf("bob surplus = %s, want 400e18", got)
	}

	// Alice partially redeemed: 1600 debt, 1600/6 collateral.
	alice := f.vault(t, f.alice)
	if alice.Debt.Cmp(bigFromString(t, "1400000000000000000000")) != 0 {
		t.Fatalf("alice debt = %s, want 1400e18", alice.Debt)
	}
	aliceCollOut := bigFromString(t, "266666666666666666666")
	wantAliceColl := new(big.Int).Sub(bigFromString(t, "1000000000000000000000"), aliceCollOut)
	if alice.Collateral.Cmp(wantAliceColl) != 0 {
		t.Fatalf("alice collateral = %s, want %s", alice.Collateral, wantAliceColl)
	}
	if !f.engine.Index().Contains(testAsset, f.alice) {
		t.Fatalf("partially redeemed vault dropped from index")
	}

	wantTotal := new(big.Int).Add(bigFromString(t, "400000000000000000000"), aliceCollOut)
	if collRedeemed.Cmp(wantTotal) != 0 {
		t.Fatalf("total collateral = %s, want %s", collRedeemed, wantTotal)
	}
	if got := f.bank.balance(testAsset, f.carol); got.Cmp(wantTotal) != 0 {
		t.Fatalf("carol collateral = %s, want %s", got, wantTotal)
	}

	g, _ := f.engine.Store().Global()
	if g.ActiveVaults != 1 {
		t.Fatalf("active vaults = %d, want 1", g.ActiveVaults)
	}
	if g.TotalProtocolDebt.Cmp(alice.Debt) != 0 {
		t.Fatalf("protocol debt = %s, want %s", g.TotalProtocolDebt, alice.Debt)
	}
}

func TestRedeemValidation(t *testing.T) {
	f := newEngineFixture(t)

	_, _, err := f.engine.RedeemVault(f.carol, testAsset, bigFromString(t, "1000000000000000000"), f.none, f.none)
	if !errors.Is(err, ErrNoVaultsToRedeem) {
		t.Fatalf("empty index error = %v", err)
	}

	f.create(t, f.bob, "800000000000000000000", "1000000000000000000000", "110000000000000000000")

	_, _, err = f.engine.RedeemVault(f.carol, testAsset, big.NewInt(0), f.none, f.none)
	if !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero amount error = %v", err)
	}

	// Caller without the debt-token balance cannot redeem.
	_, _, err = f.engine.RedeemVault(f.carol, testAsset, bigFromString(t, "1000000000000000000"), f.none, f.none)
	if !errors.Is(err, ErrTokenTransfer) {
		t.Fatalf("unfunded redeem error = %v", err)
	}
}
