package aggregate

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"cpamm/internal/fixedpoint"
)

const (
	ratioScale = 18

	// apyScale keeps compounding inside 128-bit products for yields up to
	// roughly 10^7 times the principal.
	apyScale = 12
)

var yearSeconds = uint64(365 * 24 * time.Hour / time.Second)

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

func computeFeeRates(feeX, feeY *big.Int, reserves Reserves) (*big.Rat, *big.Rat) {
	if !reserves.Set {
		return nil, nil
	}
	return rate(feeX, reserves.X), rate(feeY, reserves.Y)
}

func rate(fee *big.Int, reserve uint64) *big.Rat {
	if fee == nil || reserve == 0 {
		return nil
	}
	return new(big.Rat).SetFrac(fee, new(big.Int).SetUint64(reserve))
}

// windowYield is the fee yield of the whole pool over one window. At the
// spot price both sides hold equal value, so it is the mean of the two
// per-side rates.
func windowYield(rateX, rateY *big.Rat) *big.Rat {
	if rateX == nil && rateY == nil {
		return nil
	}
	sum := new(big.Rat)
	if rateX != nil {
		sum.Add(sum, rateX)
	}
	if rateY != nil {
		sum.Add(sum, rateY)
	}
	return sum.Quo(sum, big.NewRat(2, 1))
}

func computeAPR(yield *big.Rat, windowSeconds uint64) *string {
	if yield == nil || windowSeconds == 0 {
		return nil
	}
	apr := new(big.Rat).Mul(yield, new(big.Rat).SetUint64(yearSeconds))
	apr.Quo(apr, new(big.Rat).SetUint64(windowSeconds))
	return formatRat(apr)
}

// computeAPY compounds the window yield once per window for a year. It
// returns nil when the result does not fit the fixed-point range.
func computeAPY(yield *big.Rat, windowSeconds uint64) *string {
	if yield == nil || windowSeconds == 0 || windowSeconds > yearSeconds {
		return nil
	}
	periods := yearSeconds / windowSeconds

	scaleInt := new(big.Int).Exp(big.NewInt(10), big.NewInt(apyScale), nil)
	scaled := new(big.Int).Mul(yield.Num(), scaleInt)
	scaled.Quo(scaled, yield.Denom())
	scaled.Add(scaled, scaleInt)

	base, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil
	}
	scale, _ := uint256.FromBig(scaleInt)
	grown, err := fixedpoint.PowScaled(base, uint32(periods), scale)
	if err != nil {
		return nil
	}
	gain := new(uint256.Int).Sub(grown, scale)
	return formatRat(new(big.Rat).SetFrac(gain.ToBig(), scaleInt))
}

func formatRat(r *big.Rat) *string {
	if r == nil {
		return nil
	}
	val := r.FloatString(ratioScale)
	return &val
}
