package math

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Bps is the denominator used for basis-point fractions.
const Bps = 10_000

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ToBig converts a uint256 to a fresh *big.Int. A nil input yields zero.
func ToBig(x *uint256.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x.ToBig()
}

// FromBig converts a non-negative *big.Int that fits in 256 bits.
func FromBig(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return uint256.NewInt(0), nil
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", x)
	}
	if x.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("value %s overflows uint256", x)
	}
	z, _ := uint256.FromBig(x)
	return z, nil
}

// MustFromDecimal parses a base-10 string and panics on failure. Intended for
// constants and fixtures.
func MustFromDecimal(s string) *uint256.Int {
	z, err := uint256.FromDecimal(s)
	if err != nil {
		panic(fmt.Sprintf("invalid uint256 %q: %v", s, err))
	}
	return z
}

// Ether returns n * 1e18.
func Ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

// ISqrt returns floor(sqrt(x)) for x >= 0.
func ISqrt(x *big.Int) *big.Int {
	if x.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sqrt(x)
}

// CeilDiv returns ceil(a / b) for a >= 0, b > 0.
func CeilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// ApplyBps returns amount * (Bps - bps) / Bps, rounded down. It is used to derive
// minimum-output bounds from an expected amount.
func ApplyBps(amount *uint256.Int, bps uint32) *uint256.Int {
	if bps >= Bps {
		return uint256.NewInt(0)
	}
	z, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(uint64(Bps-bps)), uint256.NewInt(Bps))
	return z
}

// SignedDiff returns a - b as a signed big integer.
func SignedDiff(a, b *uint256.Int) *big.Int {
	return new(big.Int).Sub(ToBig(a), ToBig(b))
}

// Min returns the smaller of two values.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}
