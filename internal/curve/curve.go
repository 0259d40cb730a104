// Package curve implements the constant-product invariant x*y=k with a fee
// taken from the input side. All functions are pure and round down, so a
// computed output never pays a user more than the reserves allow.
package curve

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"cpamm/internal/fixedpoint"
)

const (
	// FeeDenominator is the unit of fee_bips.
	FeeDenominator = 10_000

	// MinLockedLiquidity is minted to an unreachable holder on the first
	// deposit of every pool.
	MinLockedLiquidity = 1_000
)

// ErrInvalidAmount reports an amount that is zero or resolves to zero.
var ErrInvalidAmount = errors.New("invalid amount")

// SwapResult is what a trader pays in and receives out. Fee is the part of
// Deposit that did not count toward the invariant and stays in the pool.
type SwapResult struct {
	Deposit  uint64
	Withdraw uint64
	Fee      uint64
}

// Amounts is a pair of reserve amounts.
type Amounts struct {
	X uint64
	Y uint64
}

// Swap quotes a trade of amountIn against (reserveIn, reserveOut).
//
// The output is floor(reserveOut*effective/(reserveIn+effective)), which is
// reserveOut minus the rounded-up post-trade reserve, so k never shrinks.
func Swap(reserveIn, reserveOut uint64, feeBips uint16, amountIn uint64) (SwapResult, error) {
	if amountIn == 0 {
		return SwapResult{}, fmt.Errorf("%w: zero input", ErrInvalidAmount)
	}
	if reserveIn == 0 || reserveOut == 0 {
		return SwapResult{}, fmt.Errorf("%w: empty reserves", ErrInvalidAmount)
	}

	feeFactor, err := fixedpoint.Sub64(FeeDenominator, uint64(feeBips))
	if err != nil {
		return SwapResult{}, err
	}
	effective, err := fixedpoint.MulDiv64(amountIn, feeFactor, FeeDenominator)
	if err != nil {
		return SwapResult{}, err
	}
	if effective == 0 {
		return SwapResult{}, fmt.Errorf("%w: input %d is consumed by fees", ErrInvalidAmount, amountIn)
	}

	denom, err := fixedpoint.Add64(reserveIn, effective)
	if err != nil {
		return SwapResult{}, err
	}
	out, err := fixedpoint.MulDiv64(reserveOut, effective, denom)
	if err != nil {
		return SwapResult{}, err
	}
	if out == 0 {
		return SwapResult{}, fmt.Errorf("%w: output rounds to zero", ErrInvalidAmount)
	}

	fee, err := fixedpoint.Sub64(amountIn, effective)
	if err != nil {
		return SwapResult{}, err
	}

	return SwapResult{Deposit: amountIn, Withdraw: out, Fee: fee}, nil
}

// DepositAmountsFromLP returns the reserve amounts backing lpAmount new shares.
func DepositAmountsFromLP(reserveX, reserveY, lpSupply, lpAmount uint64) (Amounts, error) {
	return proportional(reserveX, reserveY, lpSupply, lpAmount)
}

// WithdrawAmountsFromLP returns the reserve amounts released by burning lpAmount.
func WithdrawAmountsFromLP(reserveX, reserveY, lpSupply, lpAmount uint64) (Amounts, error) {
	return proportional(reserveX, reserveY, lpSupply, lpAmount)
}

func proportional(reserveX, reserveY, lpSupply, lpAmount uint64) (Amounts, error) {
	if lpSupply == 0 {
		return Amounts{}, fmt.Errorf("%w: lp supply is zero", fixedpoint.ErrArithmetic)
	}
	x, err := fixedpoint.MulDiv64(reserveX, lpAmount, lpSupply)
	if err != nil {
		return Amounts{}, fmt.Errorf("x amount: %w", err)
	}
	y, err := fixedpoint.MulDiv64(reserveY, lpAmount, lpSupply)
	if err != nil {
		return Amounts{}, fmt.Errorf("y amount: %w", err)
	}
	return Amounts{X: x, Y: y}, nil
}

// BootstrapLP sizes the first deposit: the geometric mean of both amounts
// less MinLockedLiquidity.
func BootstrapLP(maxX, maxY uint64) (uint64, error) {
	mean := fixedpoint.SqrtProduct64(maxX, maxY)
	lp, err := fixedpoint.Sub64(mean, MinLockedLiquidity)
	if err != nil {
		return 0, fmt.Errorf("bootstrap liquidity below locked minimum: %w", err)
	}
	return lp, nil
}

// ConstantProduct is a snapshot of a pool used for quoting.
type ConstantProduct struct {
	ReserveX  uint64
	ReserveY  uint64
	LPSupply  uint64
	FeeBips   uint16
	Precision uint64
}

// K returns reserveX*reserveY.
func (c ConstantProduct) K() *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(c.ReserveX), uint256.NewInt(c.ReserveY))
}

// SpotPrice returns the price of one X in Y, scaled by Precision.
func (c ConstantProduct) SpotPrice() (uint64, error) {
	if c.ReserveX == 0 {
		return 0, fmt.Errorf("%w: empty x reserve", ErrInvalidAmount)
	}
	return fixedpoint.MulDiv64(c.ReserveY, c.Precision, c.ReserveX)
}

// Swap quotes a trade in the given direction.
func (c ConstantProduct) Swap(isXToY bool, amountIn uint64) (SwapResult, error) {
	if isXToY {
		return Swap(c.ReserveX, c.ReserveY, c.FeeBips, amountIn)
	}
	return Swap(c.ReserveY, c.ReserveX, c.FeeBips, amountIn)
}

// DepositAmounts quotes the reserves needed to mint lpAmount shares.
func (c ConstantProduct) DepositAmounts(lpAmount uint64) (Amounts, error) {
	return DepositAmountsFromLP(c.ReserveX, c.ReserveY, c.LPSupply, lpAmount)
}

// WithdrawAmounts quotes the reserves released by burning lpAmount shares.
func (c ConstantProduct) WithdrawAmounts(lpAmount uint64) (Amounts, error) {
	return WithdrawAmountsFromLP(c.ReserveX, c.ReserveY, c.LPSupply, lpAmount)
}
