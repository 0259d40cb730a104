package amm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cpamm/internal/curve"
	"cpamm/internal/fixedpoint"
)

// DepositRequest asks for LPAmount new shares, paying at most MaxX and MaxY.
// On the first deposit MaxX and MaxY are paid in full and LPAmount only has
// to be non-zero. LockedHolder receives MinLockedLiquidity on the first
// deposit and is ignored afterwards.
type DepositRequest struct {
	Depositor    common.Address
	LPAmount     uint64
	MaxX         uint64
	MaxY         uint64
	Deadline     int64
	LockedHolder *common.Address
}

// DepositResult reports what a deposit moved and the pool state after it.
type DepositResult struct {
	X         uint64
	Y         uint64
	LPMinted  uint64
	LockedLP  uint64
	Bootstrap bool
	Reserves  curve.Amounts
	LPSupply  uint64
}

// WithdrawRequest burns LPAmount shares, receiving at least MinX and MinY.
type WithdrawRequest struct {
	Withdrawer common.Address
	LPAmount   uint64
	MinX       uint64
	MinY       uint64
	Deadline   int64
}

// WithdrawResult reports what a withdrawal moved and the pool state after it.
type WithdrawResult struct {
	X        uint64
	Y        uint64
	LPBurned uint64
	Reserves curve.Amounts
	LPSupply uint64
}

// Deposit adds liquidity to pool.
func (e *Engine) Deposit(ctx context.Context, pool *Pool, req DepositRequest) (DepositResult, error) {
	if err := e.precheck(pool, req.LPAmount, req.Deadline); err != nil {
		return DepositResult{}, err
	}

	var res DepositResult
	err := e.atomic(ctx, func(ledger Ledger) error {
		snap, err := snapshot(ctx, ledger, pool)
		if err != nil {
			return err
		}

		plan, err := planDeposit(snap, req)
		if err != nil {
			return err
		}
		if plan.Bootstrap && req.LockedHolder == nil {
			return ErrMissingLockedHolder
		}

		decX, decY, err := mintDecimals(ctx, ledger, pool)
		if err != nil {
			return err
		}

		vault := pool.Vault()
		signer := pool.Signer.Authority()
		if err := ledger.Transfer(ctx, pool.MintX, req.Depositor, vault, plan.X, decX, req.Depositor); err != nil {
			return fmt.Errorf("pull x: %w", err)
		}
		if err := ledger.Transfer(ctx, pool.MintY, req.Depositor, vault, plan.Y, decY, req.Depositor); err != nil {
			return fmt.Errorf("pull y: %w", err)
		}
		if plan.Bootstrap {
			if err := ledger.MintTo(ctx, pool.MintLP, *req.LockedHolder, plan.LockedLP, signer); err != nil {
				return fmt.Errorf("mint locked liquidity: %w", err)
			}
		}
		if err := ledger.MintTo(ctx, pool.MintLP, req.Depositor, plan.LPMinted, signer); err != nil {
			return fmt.Errorf("mint lp: %w", err)
		}

		res = plan
		return nil
	})
	if err != nil {
		return DepositResult{}, err
	}

	e.logger.Debug("deposit",
		zap.Uint16("pool_id", pool.PoolID),
		zap.String("depositor", req.Depositor.Hex()),
		zap.Uint64("x", res.X),
		zap.Uint64("y", res.Y),
		zap.Uint64("lp_minted", res.LPMinted),
		zap.Bool("bootstrap", res.Bootstrap),
	)
	return res, nil
}

// planDeposit computes a deposit and the resulting pool state without
// touching the ledger.
func planDeposit(snap curve.ConstantProduct, req DepositRequest) (DepositResult, error) {
	var res DepositResult
	if snap.LPSupply == 0 {
		lp, err := curve.BootstrapLP(req.MaxX, req.MaxY)
		if err != nil {
			return DepositResult{}, err
		}
		if lp == 0 {
			return DepositResult{}, fmt.Errorf("%w: bootstrap mints no shares", ErrInvalidAmount)
		}
		res = DepositResult{
			X:         req.MaxX,
			Y:         req.MaxY,
			LPMinted:  lp,
			LockedLP:  MinLockedLiquidity,
			Bootstrap: true,
		}
	} else {
		amounts, err := snap.DepositAmounts(req.LPAmount)
		if err != nil {
			return DepositResult{}, err
		}
		if amounts.X > req.MaxX || amounts.Y > req.MaxY {
			return DepositResult{}, fmt.Errorf("%w: need (%d, %d), max (%d, %d)",
				ErrBrokenSlippage, amounts.X, amounts.Y, req.MaxX, req.MaxY)
		}
		if amounts.X == 0 || amounts.Y == 0 {
			return DepositResult{}, fmt.Errorf("%w: deposit resolves to (%d, %d)", ErrInvalidAmount, amounts.X, amounts.Y)
		}
		res = DepositResult{X: amounts.X, Y: amounts.Y, LPMinted: req.LPAmount}
	}

	var err error
	if res.Reserves.X, err = fixedpoint.Add64(snap.ReserveX, res.X); err != nil {
		return DepositResult{}, err
	}
	if res.Reserves.Y, err = fixedpoint.Add64(snap.ReserveY, res.Y); err != nil {
		return DepositResult{}, err
	}
	minted, err := fixedpoint.Add64(res.LPMinted, res.LockedLP)
	if err != nil {
		return DepositResult{}, err
	}
	if res.LPSupply, err = fixedpoint.Add64(snap.LPSupply, minted); err != nil {
		return DepositResult{}, err
	}
	return res, nil
}

// Withdraw removes liquidity from pool.
func (e *Engine) Withdraw(ctx context.Context, pool *Pool, req WithdrawRequest) (WithdrawResult, error) {
	if err := e.precheck(pool, req.LPAmount, req.Deadline); err != nil {
		return WithdrawResult{}, err
	}

	var res WithdrawResult
	err := e.atomic(ctx, func(ledger Ledger) error {
		snap, err := snapshot(ctx, ledger, pool)
		if err != nil {
			return err
		}

		plan, err := planWithdraw(snap, req)
		if err != nil {
			return err
		}

		decX, decY, err := mintDecimals(ctx, ledger, pool)
		if err != nil {
			return err
		}

		vault := pool.Vault()
		signer := pool.Signer.Authority()
		if err := ledger.Transfer(ctx, pool.MintX, vault, req.Withdrawer, plan.X, decX, signer); err != nil {
			return fmt.Errorf("push x: %w", err)
		}
		if err := ledger.Transfer(ctx, pool.MintY, vault, req.Withdrawer, plan.Y, decY, signer); err != nil {
			return fmt.Errorf("push y: %w", err)
		}
		if err := ledger.Burn(ctx, pool.MintLP, req.Withdrawer, plan.LPBurned, req.Withdrawer); err != nil {
			return fmt.Errorf("burn lp: %w", err)
		}

		res = plan
		return nil
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	e.logger.Debug("withdraw",
		zap.Uint16("pool_id", pool.PoolID),
		zap.String("withdrawer", req.Withdrawer.Hex()),
		zap.Uint64("x", res.X),
		zap.Uint64("y", res.Y),
		zap.Uint64("lp_burned", res.LPBurned),
	)
	return res, nil
}

func planWithdraw(snap curve.ConstantProduct, req WithdrawRequest) (WithdrawResult, error) {
	if req.LPAmount > snap.LPSupply {
		return WithdrawResult{}, fmt.Errorf("%w: burn %d exceeds supply %d", ErrInvalidAmount, req.LPAmount, snap.LPSupply)
	}
	amounts, err := snap.WithdrawAmounts(req.LPAmount)
	if err != nil {
		return WithdrawResult{}, err
	}
	if amounts.X == 0 && amounts.Y == 0 {
		return WithdrawResult{}, fmt.Errorf("%w: withdrawal resolves to zero", ErrInvalidAmount)
	}
	if amounts.X < req.MinX || amounts.Y < req.MinY {
		return WithdrawResult{}, fmt.Errorf("%w: got (%d, %d), min (%d, %d)",
			ErrBrokenSlippage, amounts.X, amounts.Y, req.MinX, req.MinY)
	}

	res := WithdrawResult{X: amounts.X, Y: amounts.Y, LPBurned: req.LPAmount}
	if res.Reserves.X, err = fixedpoint.Sub64(snap.ReserveX, amounts.X); err != nil {
		return WithdrawResult{}, err
	}
	if res.Reserves.Y, err = fixedpoint.Sub64(snap.ReserveY, amounts.Y); err != nil {
		return WithdrawResult{}, err
	}
	if res.LPSupply, err = fixedpoint.Sub64(snap.LPSupply, req.LPAmount); err != nil {
		return WithdrawResult{}, err
	}
	return res, nil
}

func mintDecimals(ctx context.Context, ledger Ledger, pool *Pool) (uint8, uint8, error) {
	decX, err := ledger.Decimals(ctx, pool.MintX)
	if err != nil {
		return 0, 0, fmt.Errorf("mint x decimals: %w", err)
	}
	decY, err := ledger.Decimals(ctx, pool.MintY)
	if err != nil {
		return 0, 0, fmt.Errorf("mint y decimals: %w", err)
	}
	return decX, decY, nil
}
