package amm_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cpamm/internal/amm"
	"cpamm/internal/curve"
	"cpamm/internal/ledger"
)

const now = int64(1_700_000_000)

var (
	mintX  = common.HexToAddress("0x000000000000000000000000000000000000a001")
	mintY  = common.HexToAddress("0x000000000000000000000000000000000000a002")
	issuer = common.HexToAddress("0x000000000000000000000000000000000000f001")
	alice  = common.HexToAddress("0x000000000000000000000000000000000000b001")
	bob    = common.HexToAddress("0x000000000000000000000000000000000000b002")
)

type fixture struct {
	ctx    context.Context
	ledger *ledger.Memory
	engine *amm.Engine
	pool   *amm.Pool
	holder common.Address
}

func newFixture(t *testing.T, fee uint16) *fixture {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewMemory()
	l.SetNow(now)

	require.NoError(t, l.CreateMint(ctx, mintX, 6, issuer))
	require.NoError(t, l.CreateMint(ctx, mintY, 9, issuer))
	for _, who := range []common.Address{alice, bob} {
		require.NoError(t, l.MintTo(ctx, mintX, who, 100_000_000, issuer))
		require.NoError(t, l.MintTo(ctx, mintY, who, 100_000_000, issuer))
	}

	pool, err := amm.CreatePool(1, mintX, mintY, fee)
	require.NoError(t, err)

	engine := amm.NewEngine(l, l, nil)
	require.NoError(t, engine.InitPool(ctx, pool))

	return &fixture{
		ctx:    ctx,
		ledger: l,
		engine: engine,
		pool:   pool,
		holder: amm.LockedLiquidityHolder(pool.PoolID),
	}
}

func (f *fixture) balance(t *testing.T, mint, owner common.Address) uint64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(f.ctx, mint, owner)
	require.NoError(t, err)
	return bal
}

func (f *fixture) bootstrap(t *testing.T, x, y uint64) amm.DepositResult {
	t.Helper()
	res, err := f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{
		Depositor:    alice,
		LPAmount:     1,
		MaxX:         x,
		MaxY:         y,
		Deadline:     now,
		LockedHolder: &f.holder,
	})
	require.NoError(t, err)
	return res
}

func TestBootstrapDeposit(t *testing.T) {
	f := newFixture(t, 30)
	res := f.bootstrap(t, 1_000_000, 1_000_000)

	require.True(t, res.Bootstrap)
	require.Equal(t, uint64(999_000), res.LPMinted)
	require.Equal(t, uint64(1_000), res.LockedLP)
	require.Equal(t, uint64(1_000_000), res.LPSupply)

	require.Equal(t, uint64(999_000), f.balance(t, f.pool.MintLP, alice))
	require.Equal(t, uint64(1_000), f.balance(t, f.pool.MintLP, f.holder))
	require.Equal(t, uint64(1_000_000), f.balance(t, mintX, f.pool.Vault()))
	require.Equal(t, uint64(1_000_000), f.balance(t, mintY, f.pool.Vault()))
	require.Equal(t, uint64(99_000_000), f.balance(t, mintX, alice))

	snap, err := f.engine.Snapshot(f.ctx, f.pool)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), snap.LPSupply)
}

func TestBootstrapRequiresHolderAndMinimum(t *testing.T) {
	f := newFixture(t, 30)
	before := f.ledger.Export()

	_, err := f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{
		Depositor: alice, LPAmount: 1, MaxX: 1_000_000, MaxY: 1_000_000, Deadline: now,
	})
	require.ErrorIs(t, err, amm.ErrMissingLockedHolder)

	_, err = f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{
		Depositor: alice, LPAmount: 1, MaxX: 999, MaxY: 999, Deadline: now, LockedHolder: &f.holder,
	})
	require.ErrorIs(t, err, amm.ErrArithmetic)

	_, err = f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{
		Depositor: alice, LPAmount: 1, MaxX: 1_000, MaxY: 1_000, Deadline: now, LockedHolder: &f.holder,
	})
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	require.Equal(t, before, f.ledger.Export())
}

func TestSubsequentDeposit(t *testing.T) {
	f := newFixture(t, 30)
	f.bootstrap(t, 2_000_000, 500_000)
	supply := uint64(1_000_000) // sqrt(1e12)

	res, err := f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{
		Depositor: bob, LPAmount: 100_000, MaxX: 200_000, MaxY: 50_000, Deadline: now,
	})
	require.NoError(t, err)
	require.False(t, res.Bootstrap)
	require.Equal(t, uint64(200_000), res.X)
	require.Equal(t, uint64(50_000), res.Y)
	require.Equal(t, supply+100_000, res.LPSupply)
	require.Equal(t, uint64(100_000), f.balance(t, f.pool.MintLP, bob))
	require.Equal(t, uint64(2_200_000), f.balance(t, mintX, f.pool.Vault()))

	before := f.ledger.Export()
	_, err = f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{
		Depositor: bob, LPAmount: 100_000, MaxX: 199_999, MaxY: 50_000, Deadline: now,
	})
	require.ErrorIs(t, err, amm.ErrBrokenSlippage)
	require.Equal(t, before, f.ledger.Export())

	// one share is worth less than one unit of y
	_, err = f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{
		Depositor: bob, LPAmount: 1, MaxX: 10, MaxY: 10, Deadline: now,
	})
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
	require.Equal(t, before, f.ledger.Export())
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, 30)
	f.bootstrap(t, 1_000_000, 4_000_000)
	// supply 2_000_000, alice holds 1_999_000

	res, err := f.engine.Withdraw(f.ctx, f.pool, amm.WithdrawRequest{
		Withdrawer: alice, LPAmount: 500_000, MinX: 250_000, MinY: 1_000_000, Deadline: now,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(250_000), res.X)
	require.Equal(t, uint64(1_000_000), res.Y)
	require.Equal(t, uint64(1_500_000), res.LPSupply)
	require.Equal(t, uint64(1_499_000), f.balance(t, f.pool.MintLP, alice))
	require.Equal(t, uint64(750_000), f.balance(t, mintX, f.pool.Vault()))
	require.Equal(t, uint64(99_250_000), f.balance(t, mintX, alice))

	before := f.ledger.Export()
	_, err = f.engine.Withdraw(f.ctx, f.pool, amm.WithdrawRequest{
		Withdrawer: alice, LPAmount: 500_000, MinX: 250_001, Deadline: now,
	})
	require.ErrorIs(t, err, amm.ErrBrokenSlippage)

	_, err = f.engine.Withdraw(f.ctx, f.pool, amm.WithdrawRequest{
		Withdrawer: alice, LPAmount: 1_500_001, Deadline: now,
	})
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	// bob holds no shares: the burn fails after the transfers and everything reverts
	_, err = f.engine.Withdraw(f.ctx, f.pool, amm.WithdrawRequest{
		Withdrawer: bob, LPAmount: 1_000, Deadline: now,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	require.Equal(t, "Internal", amm.Code(err))
	require.Equal(t, before, f.ledger.Export())
}

func TestLockedLiquidityCannotBeWithdrawn(t *testing.T) {
	f := newFixture(t, 30)
	f.bootstrap(t, 1_000_000, 1_000_000)

	_, err := f.engine.Withdraw(f.ctx, f.pool, amm.WithdrawRequest{
		Withdrawer: alice, LPAmount: 999_000, Deadline: now,
	})
	require.NoError(t, err)

	require.Equal(t, uint64(1_000), f.balance(t, mintX, f.pool.Vault()))
	require.Equal(t, uint64(1_000), f.balance(t, f.pool.MintLP, f.holder))
	snap, err := f.engine.Snapshot(f.ctx, f.pool)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), snap.LPSupply)
}

func TestSwapReferenceScenario(t *testing.T) {
	f := newFixture(t, 30)
	f.bootstrap(t, 1_000_000, 1_000_000)

	res, err := f.engine.Swap(f.ctx, f.pool, amm.SwapRequest{
		Trader: bob, IsXToY: true, AmountIn: 1_000, MinAmountOut: 996, Deadline: now,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(996), res.AmountOut)
	require.Equal(t, uint64(3), res.Fee)
	require.Equal(t, mintX, res.MintIn)
	require.Equal(t, mintY, res.MintOut)
	require.Equal(t, uint64(1_001_000), res.Reserves.X)
	require.Equal(t, uint64(999_004), res.Reserves.Y)

	require.Equal(t, uint64(1_001_000), f.balance(t, mintX, f.pool.Vault()))
	require.Equal(t, uint64(999_004), f.balance(t, mintY, f.pool.Vault()))
	require.Equal(t, uint64(100_000_996), f.balance(t, mintY, bob))
	require.Equal(t, uint64(99_999_000), f.balance(t, mintX, bob))
}

func TestSwapYToXAndSlippage(t *testing.T) {
	f := newFixture(t, 0)
	f.bootstrap(t, 1_000_000, 4_000_000)

	before := f.ledger.Export()
	_, err := f.engine.Swap(f.ctx, f.pool, amm.SwapRequest{
		Trader: bob, IsXToY: false, AmountIn: 4_000_000, MinAmountOut: 500_001, Deadline: now,
	})
	require.ErrorIs(t, err, amm.ErrBrokenSlippage)
	require.Equal(t, before, f.ledger.Export())

	res, err := f.engine.Swap(f.ctx, f.pool, amm.SwapRequest{
		Trader: bob, IsXToY: false, AmountIn: 4_000_000, MinAmountOut: 500_000, Deadline: now,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(500_000), res.AmountOut)
	require.Zero(t, res.Fee)
	require.Equal(t, uint64(500_000), res.Reserves.X)
	require.Equal(t, uint64(8_000_000), res.Reserves.Y)
}

func TestSwapOnEmptyPool(t *testing.T) {
	f := newFixture(t, 30)
	_, err := f.engine.Swap(f.ctx, f.pool, amm.SwapRequest{
		Trader: bob, IsXToY: true, AmountIn: 1_000, Deadline: now,
	})
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
}

func TestSwapInsufficientFundsReverts(t *testing.T) {
	f := newFixture(t, 30)
	f.bootstrap(t, 1_000_000, 1_000_000)
	before := f.ledger.Export()

	_, err := f.engine.Swap(f.ctx, f.pool, amm.SwapRequest{
		Trader: bob, IsXToY: true, AmountIn: 100_000_001, Deadline: now,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	require.Equal(t, before, f.ledger.Export())
}

func TestPreconditionOrder(t *testing.T) {
	f := newFixture(t, 30)
	f.bootstrap(t, 1_000_000, 1_000_000)
	locker := issuer
	global := amm.NewGlobalAuthority(issuer, &locker)
	require.NoError(t, f.pool.SetLock(global, locker, true))
	before := f.ledger.Export()

	// expired wins over locked and zero amount
	_, err := f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{Depositor: alice, Deadline: now - 1})
	require.ErrorIs(t, err, amm.ErrExpiredTx)
	_, err = f.engine.Withdraw(f.ctx, f.pool, amm.WithdrawRequest{Withdrawer: alice, Deadline: now - 1})
	require.ErrorIs(t, err, amm.ErrExpiredTx)
	_, err = f.engine.Swap(f.ctx, f.pool, amm.SwapRequest{Trader: alice, Deadline: now - 1})
	require.ErrorIs(t, err, amm.ErrExpiredTx)

	// locked wins over zero amount
	_, err = f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{Depositor: alice, Deadline: now})
	require.ErrorIs(t, err, amm.ErrLockedPool)
	_, err = f.engine.Swap(f.ctx, f.pool, amm.SwapRequest{Trader: alice, AmountIn: 10, Deadline: now})
	require.ErrorIs(t, err, amm.ErrLockedPool)
	_, err = f.engine.Withdraw(f.ctx, f.pool, amm.WithdrawRequest{Withdrawer: alice, LPAmount: 10, Deadline: now})
	require.ErrorIs(t, err, amm.ErrLockedPool)

	require.NoError(t, f.pool.SetLock(global, locker, false))
	_, err = f.engine.Deposit(f.ctx, f.pool, amm.DepositRequest{Depositor: alice, Deadline: now})
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
	_, err = f.engine.Withdraw(f.ctx, f.pool, amm.WithdrawRequest{Withdrawer: alice, Deadline: now})
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
	_, err = f.engine.Swap(f.ctx, f.pool, amm.SwapRequest{Trader: alice, Deadline: now})
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	require.Equal(t, before, f.ledger.Export())
}

func TestFeesAccrueToLiquidityProviders(t *testing.T) {
	f := newFixture(t, 90)
	f.bootstrap(t, 10_000_000, 10_000_000)

	for i := 0; i < 20; i++ {
		_, err := f.engine.Swap(f.ctx, f.pool, amm.SwapRequest{Trader: bob, IsXToY: i%2 == 0, AmountIn: 500_000, Deadline: now})
		require.NoError(t, err)
	}

	snap, err := f.engine.Snapshot(f.ctx, f.pool)
	require.NoError(t, err)
	require.True(t, snap.K().Gt(curve.ConstantProduct{ReserveX: 10_000_000, ReserveY: 10_000_000}.K()))
}
