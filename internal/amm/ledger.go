package amm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the token service holding pool reserves and LP shares. Balances
// are keyed by (mint, owner). Every mutating call names the identity that
// authorises it.
type Ledger interface {
	CreateMint(ctx context.Context, mint common.Address, decimals uint8, authority common.Address) error
	Transfer(ctx context.Context, mint, from, to common.Address, amount uint64, decimals uint8, authority common.Address) error
	MintTo(ctx context.Context, mint, to common.Address, amount uint64, authority common.Address) error
	Burn(ctx context.Context, mint, from common.Address, amount uint64, authority common.Address) error
	BalanceOf(ctx context.Context, mint, owner common.Address) (uint64, error)
	Supply(ctx context.Context, mint common.Address) (uint64, error)
	Decimals(ctx context.Context, mint common.Address) (uint8, error)
}

// Transactor is implemented by ledgers that can apply a group of calls as
// one unit: if fn fails, none of its effects are kept.
type Transactor interface {
	Atomic(ctx context.Context, fn func(Ledger) error) error
}

// Clock returns the current unix time in seconds.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }
