package vault

import (
	"math/big"
	"testing"
)

func bigFromString(t *testing.T, value string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		t.Fatalf("invalid big integer %q", value)
	}
	return v
}

func TestDecPowIdentity(t *testing.T) {
	base := bigFromString(t, "1000000012345678901")
	if got := decPow(base, 0); got.Cmp(wad) != 0 {
		t.Fatalf("decPow(x, 0) = %s, want 1e18", got)
	}
	if got := decPow(wad, 1_000_000); got.Cmp(wad) != 0 {
		t.Fatalf("decPow(1e18, n) = %s, want 1e18", got)
	}
	if got := decPow(base, 1); got.Cmp(base) != 0 {
		t.Fatalf("decPow(x, 1) = %s, want %s", got, base)
	}
}

func TestDecPowSquare(t *testing.T) {
	// 1.1^2 == 1.21 exactly at wad precision.
	base := bigFromString(t, "1100000000000000000")
	want := bigFromString(t, "1210000000000000000")
	if got := decPow(base, 2); got.Cmp(want) != 0 {
		t.Fatalf("decPow(1.1, 2) = %s, want %s", got, want)
	}
	// 2^10 == 1024.
	two := new(big.Int).Mul(wad, big.NewInt(2))
	want = new(big.Int).Mul(wad, big.NewInt(1024))
	if got := decPow(two, 10); got.Cmp(want) != 0 {
		t.Fatalf("decPow(2, 10) = %s, want %s", got, want)
	}
}

func TestDecPowMonotonic(t *testing.T) {
	base := bigFromString(t, "1000000000634195839") // ~2% APR per second
	prev := decPow(base, 1)
	for _, exp := range []uint64{2, 10, 100, 10_000, 1_000_000} {
		next := decPow(base, exp)
		if next.Cmp(prev) <= 0 {
			t.Fatalf("decPow not monotonic at exp %d: %s <= %s", exp, next, prev)
		}
		prev = next
	}
}

func TestDecPowMultiplicativity(t *testing.T) {
	base := bigFromString(t, "1000000000634195839")
	combined := decPow(base, 1000)
	split := wadMul(decPow(base, 400), decPow(base, 600))
	diff := new(big.Int).Sub(combined, split)
	diff.Abs(diff)
	// Rounding drift stays within a few units at wad precision.
	if diff.Cmp(big.NewInt(100)) > 0 {
		t.Fatalf("decPow multiplicativity drift too large: %s", diff)
	}
}

func TestCompoundFactorOneYearAtTwoPercent(t *testing.T) {
	rate := bigFromString(t, "20000000000000000") // 2% per annum
	factor := compoundFactor(rate, SecondsInYear)
	// Continuous-ish compounding lands between 1.02 (simple) and e^0.02.
	low := bigFromString(t, "1020000000000000000")
	high := bigFromString(t, "1020202000000000000")
	if factor.Cmp(low) < 0 || factor.Cmp(high) > 0 {
		t.Fatalf("compound factor out of range: %s", factor)
	}
}

func TestCompoundFactorZeroInputs(t *testing.T) {
	if got := compoundFactor(nil, 100); got.Cmp(wad) != 0 {
		t.Fatalf("nil rate factor = %s, want 1e18", got)
	}
	if got := compoundFactor(big.NewInt(0), 100); got.Cmp(wad) != 0 {
		t.Fatalf("zero rate factor = %s, want 1e18", got)
	}
	rate := bigFromString(t, "20000000000000000")
	if got := compoundFactor(rate, 0); got.Cmp(wad) != 0 {
		t.Fatalf("zero elapsed factor = %s, want 1e18", got)
	}
}

func TestMulDiv(t *testing.T) {
	a := bigFromString(t, "975000000000000000000")
	price := bigFromString(t, "6000000000000000000")
	want := bigFromString(t, "162500000000000000000")
	if got := mulDiv(a, wad, price); got.Cmp(want) != 0 {
		t.Fatalf("mulDiv = %s, want %s", got, want)
	}
	if got := mulDiv(a, wad, big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("mulDiv by zero = %s, want 0", got)
	}
}

func TestInterestRateCurve(t *testing.T) {
	p := &CollateralParams{
		MinRange: bigFromString(t, "110000000000000000000"), // 110%
		MaxRange: bigFromString(t, "200000000000000000000"), // 200%
		BaseFee:  bigFromString(t, "10000000000000000"),     // 1%
		MaxFee:   bigFromString(t, "100000000000000000"),    // 10%
	}
	if got := InterestRate(p, big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("zero MCR rate = %s, want 0", got)
	}
	if got := InterestRate(p, p.MaxRange); got.Cmp(p.BaseFee) != 0 {
		t.Fatalf("rate at max range = %s, want base fee", got)
	}
	if got := InterestRate(p, p.MinRange); got.Cmp(p.MaxFee) != 0 {
		t.Fatalf("rate at min range = %s, want max fee", got)
	}
	// Midpoint of the range carries the midpoint rate.
	mid := bigFromString(t, "155000000000000000000")
	want := bigFromString(t, "55000000000000000")
	if got := InterestRate(p, mid); got.Cmp(want) != 0 {
		t.Fatalf("midpoint rate = %s, want %s", got, want)
	}
	// Steeper the closer the MCR sits to the floor.
	lower := InterestRate(p, bigFromString(t, "120000000000000000000"))
	higher := InterestRate(p, bigFromString(t, "180000000000000000000"))
	if lower.Cmp(higher) <= 0 {
		t.Fatalf("rate curve not decreasing in MCR: %s <= %s", lower, higher)
	}
}

func TestRiskScore(t *testing.T) {
	coll := bigFromString(t, "1000000000000000000000")
	debt := bigFromString(t, "3000000000000000000000")
	mcr := bigFromString(t, "120000000000000000000")
	factor := wad

	ncr := NominalCR(coll, debt)
	want := bigFromString(t, "33333333333333333333") // 1000e18*1e20/3000e18
	if ncr.Cmp(want) != 0 {
		t.Fatalf("NCR = %s, want %s", ncr, want)
	}
	score := RiskScore(coll, debt, mcr, factor)
	wantScore := new(big.Int).Add(want, mcr)
	if score.Cmp(wantScore) != 0 {
		t.Fatalf("ARS = %s, want %s", score, wantScore)
	}
	if RiskScore(coll, big.NewInt(0), mcr, factor) != nil {
		t.Fatalf("zero-debt ARS should be infinite")
	}
	if got := RiskScore(coll, debt, mcr, big.NewInt(0)); got.Cmp(ncr) != 0 {
		t.Fatalf("zero-factor ARS = %s, want NCR %s", got, ncr)
	}
}

func TestCurrentCR(t *testing.T) {
	coll := bigFromString(t, "1000000000000000000000")
	debt := bigFromString(t, "2800000000000000000000")
	price := bigFromString(t, "3000000000000000000")
	// 1000 * 3 * 100 / 2800 = 107.14...%
	got := CurrentCR(coll, debt, price)
	want := bigFromString(t, "107142857142857142857")
	if got.Cmp(want) != 0 {
		t.Fatalf("CR = %s, want %s", got, want)
	}
	if CurrentCR(coll, big.NewInt(0), price) != nil {
		t.Fatalf("zero-debt CR should be infinite")
	}
}
