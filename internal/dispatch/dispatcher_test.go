package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cpamm/internal/amm"
	"cpamm/internal/ledger"
	"cpamm/internal/model"
)

const testNow = int64(1_700_000_000)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	locker = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	mintX  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	mintY  = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	mintZ  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *ledger.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := ledger.NewMemory()
	mem.SetNow(testNow)

	require.NoError(t, mem.CreateMint(ctx, mintX, 6, admin))
	require.NoError(t, mem.CreateMint(ctx, mintY, 9, admin))
	require.NoError(t, mem.CreateMint(ctx, mintZ, 6, admin))
	for _, mint := range []common.Address{mintX, mintY, mintZ} {
		require.NoError(t, mem.MintTo(ctx, mint, alice, 100_000_000, admin))
	}
	return NewDispatcher(mem, mem, nil), mem
}

func bootstrap(t *testing.T, d *Dispatcher, poolID uint16, x, y common.Address) {
	t.Helper()
	ctx := context.Background()
	_, err := d.CreatePool(ctx, poolID, x, y, 30)
	require.NoError(t, err)
	res, err := d.Deposit(ctx, poolID, amm.DepositRequest{
		Depositor: alice,
		LPAmount:  1,
		MaxX:      1_000_000,
		MaxY:      1_000_000,
		Deadline:  testNow,
	})
	require.NoError(t, err)
	require.True(t, res.Bootstrap)
}

func TestCreatePoolRegistry(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)

	pool, err := d.CreatePool(ctx, 2, mintX, mintY, 30)
	require.NoError(t, err)
	require.False(t, pool.Locked)
	require.Equal(t, amm.LPMintAddress(2, amm.DefaultSignerNonce), pool.MintLP)

	_, err = d.CreatePool(ctx, 2, mintX, mintZ, 30)
	require.ErrorIs(t, err, ErrPoolExists)

	_, err = d.CreatePool(ctx, 3, mintX, mintY, amm.MaxFeeBips+1)
	require.ErrorIs(t, err, amm.ErrHighFees)

	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	_, err = d.CreatePool(ctx, 4, mintX, unknown, 30)
	require.ErrorIs(t, err, ledger.ErrUnknownMint)
	_, ok := d.Pool(4)
	require.False(t, ok)

	_, err = d.CreatePool(ctx, 1, mintY, mintZ, 0)
	require.NoError(t, err)

	pools := d.Pools()
	require.Len(t, pools, 2)
	require.Equal(t, uint16(1), pools[0].PoolID)
	require.Equal(t, uint16(2), pools[1].PoolID)

	_, err = d.Swap(ctx, 9, amm.SwapRequest{Trader: alice, IsXToY: true, AmountIn: 1, Deadline: testNow})
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestSetLockAuthority(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)
	bootstrap(t, d, 1, mintX, mintY)

	require.ErrorIs(t, d.SetLock(1, locker, true), ErrAuthorityMissing)

	global, err := d.InitAuthority(admin, &locker)
	require.NoError(t, err)
	require.Equal(t, locker, global.LockAuthority)
	_, err = d.InitAuthority(admin, nil)
	require.ErrorIs(t, err, ErrAuthorityExists)

	require.ErrorIs(t, d.SetLock(1, admin, true), amm.ErrInvalidAuthority)
	require.NoError(t, d.SetLock(1, locker, true))
	require.ErrorIs(t, d.SetLock(1, locker, true), amm.ErrSameLockState)

	_, err = d.Swap(ctx, 1, amm.SwapRequest{Trader: alice, IsXToY: true, AmountIn: 1_000, Deadline: testNow})
	require.ErrorIs(t, err, amm.ErrLockedPool)

	// quoting ignores the lock
	quote, _, err := d.Quote(ctx, 1, true, 1_000)
	require.NoError(t, err)
	require.Equal(t, uint64(996), quote.Withdraw)

	require.NoError(t, d.SetLock(1, locker, false))
	pool, ok := d.Pool(1)
	require.True(t, ok)
	require.False(t, pool.Locked)
}

func TestDepositSwapWithdraw(t *testing.T) {
	ctx := context.Background()
	d, mem := newTestDispatcher(t)
	bootstrap(t, d, 1, mintX, mintY)

	pool, _ := d.Pool(1)
	locked, err := mem.BalanceOf(ctx, pool.MintLP, amm.LockedLiquidityHolder(1))
	require.NoError(t, err)
	require.Equal(t, uint64(amm.MinLockedLiquidity), locked)

	quote, snap, err := d.Quote(ctx, 1, true, 1_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), snap.ReserveX)

	swap, err := d.Swap(ctx, 1, amm.SwapRequest{Trader: alice, IsXToY: true, AmountIn: 1_000, MinAmountOut: 996, Deadline: testNow})
	require.NoError(t, err)
	require.Equal(t, quote.Withdraw, swap.AmountOut)
	require.Equal(t, uint64(3), swap.Fee)

	lp, err := mem.BalanceOf(ctx, pool.MintLP, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(999_000), lp)

	wd, err := d.Withdraw(ctx, 1, amm.WithdrawRequest{Withdrawer: alice, LPAmount: lp, Deadline: testNow})
	require.NoError(t, err)
	require.Equal(t, uint64(999_999), wd.X)
	require.Equal(t, uint64(998_004), wd.Y)
	require.Equal(t, uint64(1_001), wd.Reserves.X)
	require.Equal(t, uint64(1_000), wd.Reserves.Y)
	require.Equal(t, uint64(amm.MinLockedLiquidity), wd.LPSupply)
}

func TestPoolsRunInParallel(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)
	bootstrap(t, d, 1, mintX, mintY)
	bootstrap(t, d, 2, mintY, mintZ)

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for _, poolID := range []uint16{1, 2} {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(poolID uint16, dir bool) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					_, err := d.Swap(ctx, poolID, amm.SwapRequest{Trader: alice, IsXToY: dir, AmountIn: 500, Deadline: testNow})
					if err != nil {
						errs <- err
					}
				}
			}(poolID, w%2 == 0)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("swap failed: %v", err)
	}

	for _, poolID := range []uint16{1, 2} {
		_, snap, err := d.Quote(ctx, poolID, true, 0)
		require.NoError(t, err)
		k := snap.K()
		require.True(t, k.Uint64() >= 1_000_000*1_000_000, "pool %d invariant shrank", poolID)
	}
}

func TestApplyInstructions(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)

	events, err := d.Apply(ctx, model.Instruction{Seq: 1, Op: model.OpCreatePool, Signer: admin.Hex(), PoolID: 5, MintX: mintX.Hex(), MintY: mintY.Hex(), FeeBips: 30, Timestamp: testNow})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, model.EventPoolCreated, events[0].EventName)
	require.Equal(t, uint8(6), events[0].PoolMeta.DecimalsX)
	require.Equal(t, uint8(9), events[0].PoolMeta.DecimalsY)

	events, err = d.Apply(ctx, model.Instruction{Seq: 2, Op: model.OpDeposit, Signer: alice.Hex(), PoolID: 5, Amount: 1, MaxX: 4_000_000, MaxY: 1_000_000, Deadline: testNow})
	require.NoError(t, err)
	dep := events[0].Decoded.(model.DepositEventData)
	require.True(t, dep.Bootstrap)
	require.Equal(t, uint64(1_999_000), dep.LPMinted)
	require.Equal(t, uint64(2_000_000), dep.LPSupply)

	events, err = d.Apply(ctx, model.Instruction{Seq: 3, Op: model.OpSwap, Signer: alice.Hex(), PoolID: 5, Amount: 10_000, IsXToY: false, Deadline: testNow})
	require.NoError(t, err)
	swap := events[0].Decoded.(model.SwapEventData)
	require.Equal(t, uint64(30), swap.Fee)
	require.Equal(t, uint64(1_010_000), swap.ReserveY)

	_, err = d.Apply(ctx, model.Instruction{Seq: 4, Op: model.OpSwap, Signer: alice.Hex(), PoolID: 5, Amount: 10, Deadline: testNow - 1})
	require.ErrorIs(t, err, amm.ErrExpiredTx)

	_, err = d.Apply(ctx, model.Instruction{Seq: 5, Op: "burn_everything", Signer: alice.Hex()})
	require.ErrorIs(t, err, ErrUnknownOp)

	_, err = d.Apply(ctx, model.Instruction{Seq: 6, Op: model.OpSwap, Signer: "alice"})
	require.Error(t, err)

	_, err = d.Apply(ctx, model.Instruction{Seq: 7, Op: model.OpSetLock, Signer: admin.Hex(), PoolID: 5})
	require.Error(t, err)
}

func TestCode(t *testing.T) {
	require.Equal(t, "", Code(nil))
	require.Equal(t, "PoolNotFound", Code(ErrPoolNotFound))
	require.Equal(t, "InsufficientFunds", Code(ledger.ErrInsufficientFunds))
	require.Equal(t, "LockedPoolId", Code(amm.ErrLockedPool))
	require.Equal(t, "Internal", Code(errors.New("boom")))
}

func TestApplyRejectsPoolIdentities(t *testing.T) {
	ctx := context.Background()
	d, mem := newTestDispatcher(t)
	bootstrap(t, d, 1, mintX, mintY)

	pool, ok := d.Pool(1)
	require.True(t, ok)
	holder := amm.LockedLiquidityHolder(1)

	_, err := d.Apply(ctx, model.Instruction{
		Seq: 1, Op: model.OpWithdraw, Signer: holder.Hex(), PoolID: 1,
		Amount: amm.MinLockedLiquidity, Deadline: testNow,
	})
	require.ErrorIs(t, err, ErrReservedSigner)
	require.Equal(t, "ReservedSigner", Code(err))

	// pool_id left empty still hits the registry
	_, err = d.Apply(ctx, model.Instruction{
		Seq: 2, Op: model.OpMintTo, Signer: pool.Vault().Hex(),
		Mint: pool.MintLP.Hex(), To: alice.Hex(), Amount: 5_000_000,
	})
	require.ErrorIs(t, err, ErrReservedSigner)

	// identities of a pool that does not exist yet
	future := amm.SigningContext{PoolID: 9, Nonce: amm.DefaultSignerNonce}.Authority()
	_, err = d.Apply(ctx, model.Instruction{
		Seq: 3, Op: model.OpCreateMint, Signer: future.Hex(), PoolID: 9, Mint: mintZ.Hex(), Decimals: 6,
	})
	require.ErrorIs(t, err, ErrReservedSigner)

	locked, err := mem.BalanceOf(ctx, pool.MintLP, holder)
	require.NoError(t, err)
	require.Equal(t, uint64(amm.MinLockedLiquidity), locked)
	supply, err := mem.Supply(ctx, pool.MintLP)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), supply)

	restored := NewDispatcher(mem, mem, nil)
	restored.Restore(d.State())
	_, err = restored.Apply(ctx, model.Instruction{
		Seq: 4, Op: model.OpWithdraw, Signer: holder.Hex(), PoolID: 1,
		Amount: amm.MinLockedLiquidity, Deadline: testNow,
	})
	require.ErrorIs(t, err, ErrReservedSigner)
}
