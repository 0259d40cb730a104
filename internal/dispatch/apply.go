package dispatch

import (
	"context"
	"fmt"

	"cpamm/internal/amm"
	"cpamm/internal/model"
)

// Apply executes one instruction and returns the events it produced. A
// failed instruction leaves the ledger and registry unchanged.
func (d *Dispatcher) Apply(ctx context.Context, in model.Instruction) ([]model.Event, error) {
	signer, err := ParseAddress("signer", in.Signer)
	if err != nil {
		return nil, err
	}
	if err := d.CheckSigner(signer, in.PoolID); err != nil {
		return nil, err
	}

	switch in.Op {
	case model.OpInitAuthority:
		lockAuthority, err := ParseOptionalAddress("lock_authority", in.LockAuthority)
		if err != nil {
			return nil, err
		}
		_, err = d.InitAuthority(signer, lockAuthority)
		return nil, err

	case model.OpCreateMint:
		mint, err := ParseAddress("mint", in.Mint)
		if err != nil {
			return nil, err
		}
		return nil, d.ledger.CreateMint(ctx, mint, in.Decimals, signer)

	case model.OpMintTo:
		mint, err := ParseAddress("mint", in.Mint)
		if err != nil {
			return nil, err
		}
		to, err := ParseAddress("to", in.To)
		if err != nil {
			return nil, err
		}
		return nil, d.ledger.MintTo(ctx, mint, to, in.Amount, signer)

	case model.OpCreatePool:
		mintX, err := ParseAddress("mint_x", in.MintX)
		if err != nil {
			return nil, err
		}
		mintY, err := ParseAddress("mint_y", in.MintY)
		if err != nil {
			return nil, err
		}
		pool, err := d.CreatePool(ctx, in.PoolID, mintX, mintY, in.FeeBips)
		if err != nil {
			return nil, err
		}
		return d.event(ctx, in, &pool, model.EventPoolCreated, model.PoolCreatedEventData{
			Creator: signer.Hex(),
			Locked:  pool.Locked,
		})

	case model.OpSetLock:
		if in.Lock == nil {
			return nil, fmt.Errorf("lock is required")
		}
		if err := d.SetLock(in.PoolID, signer, *in.Lock); err != nil {
			return nil, err
		}
		return d.event(ctx, in, nil, model.EventLockSet, model.LockSetEventData{
			Authority: signer.Hex(),
			Locked:    *in.Lock,
		})

	case model.OpDeposit:
		res, err := d.Deposit(ctx, in.PoolID, amm.DepositRequest{
			Depositor: signer,
			LPAmount:  in.Amount,
			MaxX:      in.MaxX,
			MaxY:      in.MaxY,
			Deadline:  in.Deadline,
		})
		if err != nil {
			return nil, err
		}
		return d.event(ctx, in, nil, model.EventDeposit, model.DepositEventData{
			Depositor: signer.Hex(),
			AmountX:   res.X,
			AmountY:   res.Y,
			LPMinted:  res.LPMinted,
			LockedLP:  res.LockedLP,
			Bootstrap: res.Bootstrap,
			ReserveX:  res.Reserves.X,
			ReserveY:  res.Reserves.Y,
			LPSupply:  res.LPSupply,
		})

	case model.OpWithdraw:
		res, err := d.Withdraw(ctx, in.PoolID, amm.WithdrawRequest{
			Withdrawer: signer,
			LPAmount:   in.Amount,
			MinX:       in.MinX,
			MinY:       in.MinY,
			Deadline:   in.Deadline,
		})
		if err != nil {
			return nil, err
		}
		return d.event(ctx, in, nil, model.EventWithdraw, model.WithdrawEventData{
			Withdrawer: signer.Hex(),
			AmountX:    res.X,
			AmountY:    res.Y,
			LPBurned:   res.LPBurned,
			ReserveX:   res.Reserves.X,
			ReserveY:   res.Reserves.Y,
			LPSupply:   res.LPSupply,
		})

	case model.OpSwap:
		res, err := d.Swap(ctx, in.PoolID, amm.SwapRequest{
			Trader:       signer,
			IsXToY:       in.IsXToY,
			AmountIn:     in.Amount,
			MinAmountOut: in.MinAmountOut,
			Deadline:     in.Deadline,
		})
		if err != nil {
			return nil, err
		}
		return d.event(ctx, in, nil, model.EventSwap, model.SwapEventData{
			Trader:    signer.Hex(),
			IsXToY:    in.IsXToY,
			AmountIn:  res.AmountIn,
			AmountOut: res.AmountOut,
			Fee:       res.Fee,
			ReserveX:  res.Reserves.X,
			ReserveY:  res.Reserves.Y,
		})
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownOp, in.Op)
}

func (d *Dispatcher) event(ctx context.Context, in model.Instruction, pool *amm.Pool, name string, payload interface{}) ([]model.Event, error) {
	if pool == nil {
		p, ok := d.Pool(in.PoolID)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, in.PoolID)
		}
		pool = &p
	}
	meta, err := d.poolMeta(ctx, pool)
	if err != nil {
		return nil, err
	}
	return []model.Event{{
		Seq:       in.Seq,
		Timestamp: in.Timestamp,
		PoolID:    pool.PoolID,
		EventName: name,
		Decoded:   payload,
		PoolMeta:  meta,
	}}, nil
}

func (d *Dispatcher) poolMeta(ctx context.Context, pool *amm.Pool) (model.PoolMeta, error) {
	decX, err := d.ledger.Decimals(ctx, pool.MintX)
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("mint x decimals: %w", err)
	}
	decY, err := d.ledger.Decimals(ctx, pool.MintY)
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("mint y decimals: %w", err)
	}
	return model.PoolMeta{
		MintX:     pool.MintX.Hex(),
		MintY:     pool.MintY.Hex(),
		MintLP:    pool.MintLP.Hex(),
		Vault:     pool.Vault().Hex(),
		FeeBips:   pool.FeeBips,
		DecimalsX: decX,
		DecimalsY: decY,
	}, nil
}

// instructionError records a rejected instruction.
func instructionError(in model.Instruction, err error) model.InstructionError {
	return model.InstructionError{
		Seq:    in.Seq,
		Op:     in.Op,
		PoolID: in.PoolID,
		Signer: in.Signer,
		Code:   Code(err),
		Error:  err.Error(),
	}
}

