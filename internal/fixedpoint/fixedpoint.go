// Package fixedpoint provides the integer arithmetic used by every money path.
// Checked operations return typed arithmetic errors; saturating operations
// clamp at the uint64 bounds and are reserved for display values.
package fixedpoint

import (
	"math"
	"math/bits"

	"github.com/holiman/uint256"

	"prediction-market-amm/internal/domain"
)

// BasisPoints is the fixed-point scale: 10000 bp = 100%.
const BasisPoints uint64 = 10000

// Add returns a+b or ErrArithmeticOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrArithmeticOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrArithmeticUnderflow.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, domain.ErrArithmeticUnderflow
	}
	return diff, nil
}

// Mul returns a*b or ErrArithmeticOverflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, domain.ErrArithmeticOverflow
	}
	return lo, nil
}

// Div returns floor(a/b) or ErrDivisionByZero.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, domain.ErrDivisionByZero
	}
	return a / b, nil
}

// MulDiv returns floor(a*b/d) computed with a wide intermediate, so only a
// quotient that does not fit uint64 overflows.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, domain.ErrDivisionByZero
	}
	z := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	z.Div(z, uint256.NewInt(d))
	if !z.IsUint64() {
		return 0, domain.ErrArithmeticOverflow
	}
	return z.Uint64(), nil
}

// BpsOf returns floor(amount*bps/10000).
func BpsOf(amount, bps uint64) (uint64, error) {
	return MulDiv(amount, bps, BasisPoints)
}

// SaturatingAdd returns a+b clamped to MaxUint64.
func SaturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// SaturatingSub returns a-b clamped to zero.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// SaturatingMul returns a*b clamped to MaxUint64.
func SaturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// SaturatingDiv returns floor(a/b), or zero when b is zero.
func SaturatingDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// SaturatingMulDiv returns floor(a*b/d) with a wide intermediate, clamping the
// quotient to MaxUint64. A zero divisor yields zero.
func SaturatingMulDiv(a, b, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	z := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	z.Div(z, uint256.NewInt(d))
	if !z.IsUint64() {
		return math.MaxUint64
	}
	return z.Uint64()
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi uint64) uint64 {
	return Max(lo, Min(hi, v))
}
