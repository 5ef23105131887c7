package vault

import "math/big"

var (
	wad     = mustBigInt("1000000000000000000")  // 1e18
	halfWad = mustBigInt("500000000000000000")   // 5e17, for half-up rounding
	ncrUnit = mustBigInt("100000000000000000000") // 1e20, nominal CR scale
	hundred = big.NewInt(100)
)

// SecondsInYear is the annualisation constant for per-second interest.
const SecondsInYear = 31_536_000

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv computes a*b/c with a full-width intermediate. Division truncates;
// c must be non-zero.
func mulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, c)
}

// wadMul multiplies two 1e18-scaled values, rounding half up. The half-up
// rounding keeps decPow stable under repeated squaring.
func wadMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfWad)
	return product.Quo(product, wad)
}

// wadDiv divides two 1e18-scaled values, truncating.
func wadDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(a, wad)
	return scaled.Quo(scaled, b)
}

// decPow raises a 1e18-scaled base to an integer exponent by repeated
// squaring. decPow(x, 0) == 1e18 for any x; the exponent is the elapsed
// seconds when used for compound interest.
func decPow(base *big.Int, exp uint64) *big.Int {
	if exp == 0 {
		return new(big.Int).Set(wad)
	}
	x := new(big.Int)
	if base != nil {
		x.Set(base)
	}
	y := new(big.Int).Set(wad)
	n := exp
	for n > 1 {
		if n%2 == 0 {
			x = wadMul(x, x)
			n /= 2
		} else {
			y = wadMul(x, y)
			x = wadMul(x, x)
			n = (n - 1) / 2
		}
	}
	return wadMul(x, y)
}

// compoundFactor returns the growth factor for a per-annum rate applied over
// elapsed seconds: (1e18 + rate/SecondsInYear)^elapsed.
func compoundFactor(annualRate *big.Int, elapsed uint64) *big.Int {
	if annualRate == nil || annualRate.Sign() == 0 || elapsed == 0 {
		return new(big.Int).Set(wad)
	}
	perSecond := new(big.Int).Quo(annualRate, big.NewInt(SecondsInYear))
	perSecond.Add(perSecond, wad)
	return decPow(perSecond, elapsed)
}
