package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
)

// ErrArithmetic is returned when a checked operation would overflow, underflow
// or divide by zero.
var ErrArithmetic = errors.New("arithmetic error")

// Bits is the width every intermediate value must fit in.
const Bits = 128

var one = uint256.NewInt(1)

func fits(x *uint256.Int) bool {
	return x.BitLen() <= Bits
}

// MulDiv computes floor(a*b/denom). The product must fit in 128 bits.
func MulDiv(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmetic)
	}
	if !fits(a) || !fits(b) {
		return nil, fmt.Errorf("%w: operand exceeds %d bits", ErrArithmetic, Bits)
	}
	prod, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow || !fits(prod) {
		return nil, fmt.Errorf("%w: %v * %v overflows %d bits", ErrArithmetic, a.ToBig(), b.ToBig(), Bits)
	}
	return prod.Div(prod, denom), nil
}

// MulDiv64 is MulDiv over uint64 operands whose quotient must fit in uint64.
func MulDiv64(a, b, denom uint64) (uint64, error) {
	q, err := MulDiv(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(denom))
	if err != nil {
		return 0, err
	}
	if !q.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d / %d overflows 64 bits", ErrArithmetic, a, b, denom)
	}
	return q.Uint64(), nil
}

// Sqrt returns the largest r such that r*r <= x.
func Sqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

// SqrtProduct64 returns floor(sqrt(a*b)). The product of two uint64 values
// always fits in 128 bits, so the result always fits in uint64.
func SqrtProduct64(a, b uint64) uint64 {
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return Sqrt(prod).Uint64()
}

// Pow computes base^exp, failing when any intermediate exceeds 128 bits.
func Pow(base *uint256.Int, exp uint32) (*uint256.Int, error) {
	if !fits(base) {
		return nil, fmt.Errorf("%w: base exceeds %d bits", ErrArithmetic, Bits)
	}
	result := new(uint256.Int).Set(one)
	b := new(uint256.Int).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			if err := mulInPlace(result, b); err != nil {
				return nil, err
			}
		}
		exp >>= 1
		if exp > 0 {
			if err := mulInPlace(b, b); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// PowScaled raises a fixed-point value to exp. base and the result are
// expressed in units of scale, so PowScaled(1.05*scale, 2, scale) returns
// 1.1025*scale. Each multiplication rounds down.
func PowScaled(base *uint256.Int, exp uint32, scale *uint256.Int) (*uint256.Int, error) {
	if scale.IsZero() {
		return nil, fmt.Errorf("%w: zero scale", ErrArithmetic)
	}
	result := new(uint256.Int).Set(scale)
	b := new(uint256.Int).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			next, err := MulDiv(result, b, scale)
			if err != nil {
				return nil, err
			}
			result = next
		}
		exp >>= 1
		if exp > 0 {
			next, err := MulDiv(b, b, scale)
			if err != nil {
				return nil, err
			}
			b = next
		}
	}
	return result, nil
}

func mulInPlace(z, x *uint256.Int) error {
	prod, overflow := new(uint256.Int).MulOverflow(z, x)
	if overflow || !fits(prod) {
		return fmt.Errorf("%w: power overflows %d bits", ErrArithmetic, Bits)
	}
	z.Set(prod)
	return nil
}

// Add64 returns a+b or ErrArithmetic on overflow.
func Add64(a, b uint64) (uint64, error) {
	sum, overflow := math.SafeAdd(a, b)
	if overflow {
		return 0, fmt.Errorf("%w: %d + %d overflows", ErrArithmetic, a, b)
	}
	return sum, nil
}

// Sub64 returns a-b or ErrArithmetic on underflow.
func Sub64(a, b uint64) (uint64, error) {
	diff, underflow := math.SafeSub(a, b)
	if underflow {
		return 0, fmt.Errorf("%w: %d - %d underflows", ErrArithmetic, a, b)
	}
	return diff, nil
}

// Mul64 returns a*b or ErrArithmetic on overflow.
func Mul64(a, b uint64) (uint64, error) {
	prod, overflow := math.SafeMul(a, b)
	if overflow {
		return 0, fmt.Errorf("%w: %d * %d overflows", ErrArithmetic, a, b)
	}
	return prod, nil
}
