// Package dispatch maps instructions onto pools. It owns the pool registry
// and serialises operations per pool while letting pools run in parallel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cpamm/internal/amm"
	"cpamm/internal/curve"
	"cpamm/internal/ledger"
)

var (
	ErrPoolExists       = errors.New("pool already exists")
	ErrPoolNotFound     = errors.New("pool not found")
	ErrAuthorityExists  = errors.New("authority already initialized")
	ErrAuthorityMissing = errors.New("authority not initialized")
	ErrUnknownOp        = errors.New("unknown instruction")
	ErrReservedSigner   = errors.New("signer is a pool-derived identity")
)

type poolEntry struct {
	mu   sync.Mutex
	pool *amm.Pool
}

// Dispatcher routes pool operations to the engine.
type Dispatcher struct {
	ledger amm.Ledger
	engine *amm.Engine
	logger *zap.Logger

	mu       sync.RWMutex
	global   *amm.GlobalAuthority
	pools    map[uint16]*poolEntry
	reserved map[common.Address]uint16
}

// NewDispatcher builds a Dispatcher over ledger.
func NewDispatcher(l amm.Ledger, clock amm.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		ledger: l,
		engine: amm.NewEngine(l, clock, logger.Named("engine")),
		logger: logger,
		pools:    make(map[uint16]*poolEntry),
		reserved: make(map[common.Address]uint16),
	}
}

// InitAuthority sets the global lock authority once.
func (d *Dispatcher) InitAuthority(admin common.Address, lockAuthority *common.Address) (amm.GlobalAuthority, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.global != nil {
		return amm.GlobalAuthority{}, ErrAuthorityExists
	}
	global := amm.NewGlobalAuthority(admin, lockAuthority)
	d.global = &global
	d.logger.Info("authority initialized", zap.String("lock_authority", global.LockAuthority.Hex()))
	return global, nil
}

// Authority returns the global authority, if initialized.
func (d *Dispatcher) Authority() (amm.GlobalAuthority, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.global == nil {
		return amm.GlobalAuthority{}, false
	}
	return *d.global, true
}

// CreatePool registers a new pool and its LP mint. Both token mints must
// already exist on the ledger.
func (d *Dispatcher) CreatePool(ctx context.Context, poolID uint16, mintX, mintY common.Address, feeBips uint16) (amm.Pool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pools[poolID]; ok {
		return amm.Pool{}, fmt.Errorf("%w: %d", ErrPoolExists, poolID)
	}
	pool, err := amm.CreatePool(poolID, mintX, mintY, feeBips)
	if err != nil {
		return amm.Pool{}, err
	}
	if _, err := d.ledger.Decimals(ctx, mintX); err != nil {
		return amm.Pool{}, fmt.Errorf("mint x: %w", err)
	}
	if _, err := d.ledger.Decimals(ctx, mintY); err != nil {
		return amm.Pool{}, fmt.Errorf("mint y: %w", err)
	}
	if err := d.engine.InitPool(ctx, pool); err != nil {
		return amm.Pool{}, err
	}

	d.pools[poolID] = &poolEntry{pool: pool}
	d.reserve(pool)
	d.logger.Info("pool created",
		zap.Uint16("pool_id", poolID),
		zap.String("mint_x", mintX.Hex()),
		zap.String("mint_y", mintY.Hex()),
		zap.Uint16("fee_bips", feeBips),
	)
	return *pool, nil
}

// SetLock locks or unlocks a pool on behalf of caller.
func (d *Dispatcher) SetLock(poolID uint16, caller common.Address, lock bool) error {
	global, ok := d.Authority()
	if !ok {
		return ErrAuthorityMissing
	}
	return d.withPool(poolID, func(pool *amm.Pool) error {
		if err := pool.SetLock(global, caller, lock); err != nil {
			return err
		}
		d.logger.Info("pool lock changed", zap.Uint16("pool_id", poolID), zap.Bool("locked", lock))
		return nil
	})
}

// Deposit adds liquidity. A missing locked holder defaults to the pool's
// derived holder.
func (d *Dispatcher) Deposit(ctx context.Context, poolID uint16, req amm.DepositRequest) (amm.DepositResult, error) {
	if req.LockedHolder == nil {
		holder := amm.LockedLiquidityHolder(poolID)
		req.LockedHolder = &holder
	}
	var res amm.DepositResult
	err := d.withPool(poolID, func(pool *amm.Pool) error {
		var err error
		res, err = d.engine.Deposit(ctx, pool, req)
		return err
	})
	return res, err
}

// Withdraw removes liquidity.
func (d *Dispatcher) Withdraw(ctx context.Context, poolID uint16, req amm.WithdrawRequest) (amm.WithdrawResult, error) {
	var res amm.WithdrawResult
	err := d.withPool(poolID, func(pool *amm.Pool) error {
		var err error
		res, err = d.engine.Withdraw(ctx, pool, req)
		return err
	})
	return res, err
}

// Swap trades against a pool.
func (d *Dispatcher) Swap(ctx context.Context, poolID uint16, req amm.SwapRequest) (amm.SwapResult, error) {
	var res amm.SwapResult
	err := d.withPool(poolID, func(pool *amm.Pool) error {
		var err error
		res, err = d.engine.Swap(ctx, pool, req)
		return err
	})
	return res, err
}

// Quote previews a swap without touching the ledger. The lock flag and
// deadlines are not checked.
func (d *Dispatcher) Quote(ctx context.Context, poolID uint16, isXToY bool, amountIn uint64) (curve.SwapResult, curve.ConstantProduct, error) {
	var (
		quote curve.SwapResult
		snap  curve.ConstantProduct
	)
	err := d.withPool(poolID, func(pool *amm.Pool) error {
		var err error
		snap, err = d.engine.Snapshot(ctx, pool)
		if err != nil {
			return err
		}
		if amountIn == 0 {
			return nil
		}
		quote, err = snap.Swap(isXToY, amountIn)
		return err
	})
	return quote, snap, err
}

// Pool returns a copy of a registered pool.
func (d *Dispatcher) Pool(poolID uint16) (amm.Pool, bool) {
	var out amm.Pool
	err := d.withPool(poolID, func(pool *amm.Pool) error {
		out = *pool
		return nil
	})
	return out, err == nil
}

// Pools returns copies of every pool ordered by id.
func (d *Dispatcher) Pools() []amm.Pool {
	d.mu.RLock()
	entries := make([]*poolEntry, 0, len(d.pools))
	for _, entry := range d.pools {
		entries = append(entries, entry)
	}
	d.mu.RUnlock()

	out := make([]amm.Pool, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		out = append(out, *entry.pool)
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolID < out[j].PoolID })
	return out
}

// reserve records the identities only pool logic may act as. Callers hold d.mu.
func (d *Dispatcher) reserve(pool *amm.Pool) {
	d.reserved[pool.Signer.Authority()] = pool.PoolID
	d.reserved[amm.LockedLiquidityHolder(pool.PoolID)] = pool.PoolID
}

// CheckSigner rejects external signers that are a pool's vault authority or
// its locked liquidity holder. The identities of poolID are refused even
// before that pool is created.
func (d *Dispatcher) CheckSigner(signer common.Address, poolID uint16) error {
	signerCtx := amm.SigningContext{PoolID: poolID, Nonce: amm.DefaultSignerNonce}
	if signer == signerCtx.Authority() || signer == amm.LockedLiquidityHolder(poolID) {
		return fmt.Errorf("%w: %s belongs to pool %d", ErrReservedSigner, signer.Hex(), poolID)
	}

	d.mu.RLock()
	owner, ok := d.reserved[signer]
	d.mu.RUnlock()
	if ok {
		return fmt.Errorf("%w: %s belongs to pool %d", ErrReservedSigner, signer.Hex(), owner)
	}
	return nil
}

func (d *Dispatcher) withPool(poolID uint16, fn func(*amm.Pool) error) error {
	d.mu.RLock()
	entry, ok := d.pools[poolID]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrPoolNotFound, poolID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.pool)
}

// Code extends amm.Code with dispatcher and ledger failures.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPoolExists):
		return "PoolExists"
	case errors.Is(err, ErrPoolNotFound):
		return "PoolNotFound"
	case errors.Is(err, ErrAuthorityExists):
		return "AuthorityExists"
	case errors.Is(err, ErrAuthorityMissing):
		return "AuthorityMissing"
	case errors.Is(err, ErrUnknownOp):
		return "UnknownInstruction"
	case errors.Is(err, ErrReservedSigner):
		return "ReservedSigner"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ledger.ErrUnknownMint):
		return "UnknownMint"
	case errors.Is(err, ledger.ErrMintExists):
		return "MintExists"
	case errors.Is(err, ledger.ErrDecimalsMismatch):
		return "DecimalsMismatch"
	}
	return amm.Code(err)
}
