package amm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	mintA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	mintB = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
)

func TestCreatePoolFeeCeiling(t *testing.T) {
	p, err := CreatePool(1, mintA, mintB, 90)
	require.NoError(t, err)
	require.False(t, p.Locked)
	require.Equal(t, uint16(90), p.FeeBips)

	_, err = CreatePool(1, mintA, mintB, 91)
	require.ErrorIs(t, err, ErrHighFees)
	require.Equal(t, "HighFees", Code(err))

	_, err = CreatePool(1, mintA, mintA, 30)
	require.ErrorIs(t, err, ErrIdenticalMints)
}

func TestDerivedIdentities(t *testing.T) {
	p1, err := CreatePool(1, mintA, mintB, 30)
	require.NoError(t, err)
	p2, err := CreatePool(2, mintA, mintB, 30)
	require.NoError(t, err)

	require.NotEqual(t, p1.Vault(), p2.Vault())
	require.NotEqual(t, p1.MintLP, p2.MintLP)
	require.NotEqual(t, p1.Vault(), p1.MintLP)
	require.NotEqual(t, LockedLiquidityHolder(1), LockedLiquidityHolder(2))
	require.Equal(t, p1.Vault(), SigningContext{PoolID: 1, Nonce: DefaultSignerNonce}.Authority())
}

func TestSetLock(t *testing.T) {
	admin := common.HexToAddress("0x01")
	locker := common.HexToAddress("0x02")
	global := NewGlobalAuthority(admin, &locker)
	require.Equal(t, locker, global.LockAuthority)
	require.Equal(t, admin, NewGlobalAuthority(admin, nil).LockAuthority)

	p, err := CreatePool(7, mintA, mintB, 30)
	require.NoError(t, err)

	err = p.SetLock(global, admin, true)
	require.ErrorIs(t, err, ErrInvalidAuthority)
	require.False(t, p.Locked)

	require.NoError(t, p.SetLock(global, locker, true))
	require.True(t, p.Locked)

	err = p.SetLock(global, locker, true)
	require.ErrorIs(t, err, ErrSameLockState)
	require.True(t, p.Locked)

	require.NoError(t, p.SetLock(global, locker, false))
	require.False(t, p.Locked)
	require.ErrorIs(t, p.SetLock(global, locker, false), ErrSameLockState)
}

func TestCode(t *testing.T) {
	require.Equal(t, "", Code(nil))
	require.Equal(t, "ArithmeticError", Code(ErrArithmetic))
	require.Equal(t, "LockedPoolId", Code(ErrLockedPool))
	require.Equal(t, "Internal", Code(errors.New("ledger offline")))
	require.Equal(t, "BrokenSlippage", Code(fmt.Errorf("swap: %w", ErrBrokenSlippage)))
}
