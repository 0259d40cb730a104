package amm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cpamm/internal/curve"
	"cpamm/internal/fixedpoint"
)

// SwapRequest sells AmountIn of X for Y when IsXToY, Y for X otherwise.
type SwapRequest struct {
	Trader       common.Address
	IsXToY       bool
	AmountIn     uint64
	MinAmountOut uint64
	Deadline     int64
}

// SwapResult reports a completed trade. Fee stays in the pool reserves.
type SwapResult struct {
	MintIn    common.Address
	MintOut   common.Address
	AmountIn  uint64
	AmountOut uint64
	Fee       uint64
	Reserves  curve.Amounts
}

// Swap trades against pool.
func (e *Engine) Swap(ctx context.Context, pool *Pool, req SwapRequest) (SwapResult, error) {
	if err := e.precheck(pool, req.AmountIn, req.Deadline); err != nil {
		return SwapResult{}, err
	}

	mintIn, mintOut := pool.Mints(req.IsXToY)
	var res SwapResult
	err := e.atomic(ctx, func(ledger Ledger) error {
		snap, err := snapshot(ctx, ledger, pool)
		if err != nil {
			return err
		}

		quote, err := snap.Swap(req.IsXToY, req.AmountIn)
		if err != nil {
			return err
		}
		if quote.Deposit == 0 || quote.Withdraw == 0 {
			return fmt.Errorf("%w: swap resolves to (%d, %d)", ErrInvalidAmount, quote.Deposit, quote.Withdraw)
		}
		if quote.Withdraw < req.MinAmountOut {
			return fmt.Errorf("%w: out %d < min %d", ErrBrokenSlippage, quote.Withdraw, req.MinAmountOut)
		}

		reserves, err := reservesAfterSwap(snap, req.IsXToY, quote)
		if err != nil {
			return err
		}

		decIn, err := ledger.Decimals(ctx, mintIn)
		if err != nil {
			return fmt.Errorf("input mint decimals: %w", err)
		}
		decOut, err := ledger.Decimals(ctx, mintOut)
		if err != nil {
			return fmt.Errorf("output mint decimals: %w", err)
		}

		vault := pool.Vault()
		if err := ledger.Transfer(ctx, mintIn, req.Trader, vault, quote.Deposit, decIn, req.Trader); err != nil {
			return fmt.Errorf("settle input: %w", err)
		}
		if err := ledger.Transfer(ctx, mintOut, vault, req.Trader, quote.Withdraw, decOut, pool.Signer.Authority()); err != nil {
			return fmt.Errorf("take output: %w", err)
		}

		res = SwapResult{
			MintIn:    mintIn,
			MintOut:   mintOut,
			AmountIn:  quote.Deposit,
			AmountOut: quote.Withdraw,
			Fee:       quote.Fee,
			Reserves:  reserves,
		}
		return nil
	})
	if err != nil {
		return SwapResult{}, err
	}

	e.logger.Debug("swap",
		zap.Uint16("pool_id", pool.PoolID),
		zap.String("trader", req.Trader.Hex()),
		zap.Bool("x_to_y", req.IsXToY),
		zap.Uint64("amount_in", res.AmountIn),
		zap.Uint64("amount_out", res.AmountOut),
		zap.Uint64("fee", res.Fee),
	)
	return res, nil
}

func reservesAfterSwap(snap curve.ConstantProduct, isXToY bool, quote curve.SwapResult) (curve.Amounts, error) {
	in, out := snap.ReserveX, snap.ReserveY
	if !isXToY {
		in, out = out, in
	}
	newIn, err := fixedpoint.Add64(in, quote.Deposit)
	if err != nil {
		return curve.Amounts{}, err
	}
	newOut, err := fixedpoint.Sub64(out, quote.Withdraw)
	if err != nil {
		return curve.Amounts{}, err
	}
	if isXToY {
		return curve.Amounts{X: newIn, Y: newOut}, nil
	}
	return curve.Amounts{X: newOut, Y: newIn}, nil
}
