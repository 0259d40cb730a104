package amm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cpamm/internal/curve"
)

// lpPrecision is 10^LPDecimals.
const lpPrecision = 1_000_000

// Engine runs deposits, withdrawals and swaps against a ledger. It keeps no
// state of its own; callers serialise operations on the same pool.
type Engine struct {
	ledger Ledger
	clock  Clock
	logger *zap.Logger
}

// NewEngine builds an Engine with its dependencies.
func NewEngine(ledger Ledger, clock Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		ledger: ledger,
		clock:  clock,
		logger: logger,
	}
}

// InitPool registers the pool's LP mint with the ledger, owned by the pool signer.
func (e *Engine) InitPool(ctx context.Context, pool *Pool) error {
	if err := e.ledger.CreateMint(ctx, pool.MintLP, LPDecimals, pool.Signer.Authority()); err != nil {
		return fmt.Errorf("create lp mint: %w", err)
	}
	e.logger.Debug("pool initialized",
		zap.Uint16("pool_id", pool.PoolID),
		zap.String("mint_lp", pool.MintLP.Hex()),
		zap.String("vault", pool.Vault().Hex()),
	)
	return nil
}

// Snapshot reads the pool's reserves and LP supply.
func (e *Engine) Snapshot(ctx context.Context, pool *Pool) (curve.ConstantProduct, error) {
	return snapshot(ctx, e.ledger, pool)
}

func snapshot(ctx context.Context, ledger Ledger, pool *Pool) (curve.ConstantProduct, error) {
	vault := pool.Vault()
	reserveX, err := ledger.BalanceOf(ctx, pool.MintX, vault)
	if err != nil {
		return curve.ConstantProduct{}, fmt.Errorf("read reserve x: %w", err)
	}
	reserveY, err := ledger.BalanceOf(ctx, pool.MintY, vault)
	if err != nil {
		return curve.ConstantProduct{}, fmt.Errorf("read reserve y: %w", err)
	}
	supply, err := ledger.Supply(ctx, pool.MintLP)
	if err != nil {
		return curve.ConstantProduct{}, fmt.Errorf("read lp supply: %w", err)
	}
	return curve.ConstantProduct{
		ReserveX:  reserveX,
		ReserveY:  reserveY,
		LPSupply:  supply,
		FeeBips:   pool.FeeBips,
		Precision: lpPrecision,
	}, nil
}

// precheck runs the checks every liquidity and swap call starts with, in order.
func (e *Engine) precheck(pool *Pool, amount uint64, deadline int64) error {
	if now := e.clock.Now(); now > deadline {
		return fmt.Errorf("%w: now %d > deadline %d", ErrExpiredTx, now, deadline)
	}
	if pool.Locked {
		return fmt.Errorf("%w: pool %d", ErrLockedPool, pool.PoolID)
	}
	if amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrInvalidAmount)
	}
	return nil
}

func (e *Engine) atomic(ctx context.Context, fn func(Ledger) error) error {
	if tx, ok := e.ledger.(Transactor); ok {
		return tx.Atomic(ctx, fn)
	}
	return fn(e.ledger)
}
