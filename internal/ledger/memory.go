// Package ledger provides an in-memory token ledger for running pools
// outside a chain: replays, tests and quoting.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
	"cpamm/internal/fixedpoint"
)

var (
	ErrUnknownMint       = errors.New("unknown mint")
	ErrMintExists        = errors.New("mint already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrDecimalsMismatch  = errors.New("decimals mismatch")
)

type mintInfo struct {
	decimals  uint8
	authority common.Address
	supply    uint64
}

type balanceKey struct {
	mint  common.Address
	owner common.Address
}

// Memory is a mutex-guarded ledger. It also serves as the clock: Now
// returns the time set with SetNow, or the wall clock when unset.
type Memory struct {
	mu       sync.Mutex
	mints    map[common.Address]*mintInfo
	balances map[balanceKey]uint64
	now      int64
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		mints:    make(map[common.Address]*mintInfo),
		balances: make(map[balanceKey]uint64),
	}
}

// Now implements amm.Clock.
func (m *Memory) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.now != 0 {
		return m.now
	}
	return time.Now().Unix()
}

// SetNow pins the clock. Zero restores the wall clock.
func (m *Memory) SetNow(ts int64) {
	m.mu.Lock()
	m.now = ts
	m.mu.Unlock()
}

func (m *Memory) CreateMint(ctx context.Context, mint common.Address, decimals uint8, authority common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m: m}).CreateMint(ctx, mint, decimals, authority)
}

func (m *Memory) Transfer(ctx context.Context, mint, from, to common.Address, amount uint64, decimals uint8, authority common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m: m}).Transfer(ctx, mint, from, to, amount, decimals, authority)
}

func (m *Memory) MintTo(ctx context.Context, mint, to common.Address, amount uint64, authority common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m: m}).MintTo(ctx, mint, to, amount, authority)
}

func (m *Memory) Burn(ctx context.Context, mint, from common.Address, amount uint64, authority common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m: m}).Burn(ctx, mint, from, amount, authority)
}

func (m *Memory) BalanceOf(ctx context.Context, mint, owner common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m: m}).BalanceOf(ctx, mint, owner)
}

func (m *Memory) Supply(ctx context.Context, mint common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m: m}).Supply(ctx, mint)
}

func (m *Memory) Decimals(ctx context.Context, mint common.Address) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m: m}).Decimals(ctx, mint)
}

// Atomic runs fn under the ledger lock and reverts every change fn made if
// it returns an error. fn must only use the Ledger it is given.
func (m *Memory) Atomic(ctx context.Context, fn func(amm.Ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := &view{m: m, journal: true}
	if err := fn(v); err != nil {
		v.rollback()
		return err
	}
	return nil
}

// view applies operations to the maps of m without locking. With journal
// set it records an undo step per mutation.
type view struct {
	m       *Memory
	journal bool
	undo    []func()
}

func (v *view) record(step func()) {
	if v.journal {
		v.undo = append(v.undo, step)
	}
}

func (v *view) rollback() {
	for i := len(v.undo) - 1; i >= 0; i-- {
		v.undo[i]()
	}
	v.undo = nil
}

func (v *view) setBalance(key balanceKey, amount uint64) {
	prev, existed := v.m.balances[key]
	v.record(func() {
		if existed {
			v.m.balances[key] = prev
		} else {
			delete(v.m.balances, key)
		}
	})
	v.m.balances[key] = amount
}

func (v *view) setSupply(info *mintInfo, supply uint64) {
	prev := info.supply
	v.record(func() { info.supply = prev })
	info.supply = supply
}

func (v *view) mint(mint common.Address) (*mintInfo, error) {
	info, ok := v.m.mints[mint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMint, mint.Hex())
	}
	return info, nil
}

func (v *view) CreateMint(_ context.Context, mint common.Address, decimals uint8, authority common.Address) error {
	if _, ok := v.m.mints[mint]; ok {
		return fmt.Errorf("%w: %s", ErrMintExists, mint.Hex())
	}
	v.m.mints[mint] = &mintInfo{decimals: decimals, authority: authority}
	v.record(func() { delete(v.m.mints, mint) })
	return nil
}

func (v *view) Transfer(_ context.Context, mint, from, to common.Address, amount uint64, decimals uint8, authority common.Address) error {
	info, err := v.mint(mint)
	if err != nil {
		return err
	}
	if decimals != info.decimals {
		return fmt.Errorf("%w: mint %s has %d, got %d", ErrDecimalsMismatch, mint.Hex(), info.decimals, decimals)
	}
	if authority != from {
		return fmt.Errorf("%w: %s cannot move funds of %s", ErrUnauthorized, authority.Hex(), from.Hex())
	}
	if amount == 0 || from == to {
		return nil
	}

	fromKey := balanceKey{mint: mint, owner: from}
	toKey := balanceKey{mint: mint, owner: to}
	fromBal := v.m.balances[fromKey]
	if fromBal < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientFunds, from.Hex(), fromBal, mint.Hex(), amount)
	}
	toBal, err := fixedpoint.Add64(v.m.balances[toKey], amount)
	if err != nil {
		return err
	}
	v.setBalance(fromKey, fromBal-amount)
	v.setBalance(toKey, toBal)
	return nil
}

func (v *view) MintTo(_ context.Context, mint, to common.Address, amount uint64, authority common.Address) error {
	info, err := v.mint(mint)
	if err != nil {
		return err
	}
	if authority != info.authority {
		return fmt.Errorf("%w: %s is not the authority of %s", ErrUnauthorized, authority.Hex(), mint.Hex())
	}
	supply, err := fixedpoint.Add64(info.supply, amount)
	if err != nil {
		return err
	}
	key := balanceKey{mint: mint, owner: to}
	bal, err := fixedpoint.Add64(v.m.balances[key], amount)
	if err != nil {
		return err
	}
	v.setSupply(info, supply)
	v.setBalance(key, bal)
	return nil
}

func (v *view) Burn(_ context.Context, mint, from common.Address, amount uint64, authority common.Address) error {
	info, err := v.mint(mint)
	if err != nil {
		return err
	}
	if authority != from {
		return fmt.Errorf("%w: %s cannot burn for %s", ErrUnauthorized, authority.Hex(), from.Hex())
	}
	key := balanceKey{mint: mint, owner: from}
	bal := v.m.balances[key]
	if bal < amount {
		return fmt.Errorf("%w: %s holds %d of %s, burns %d", ErrInsufficientFunds, from.Hex(), bal, mint.Hex(), amount)
	}
	v.setBalance(key, bal-amount)
	v.setSupply(info, info.supply-amount)
	return nil
}

func (v *view) BalanceOf(_ context.Context, mint, owner common.Address) (uint64, error) {
	if _, err := v.mint(mint); err != nil {
		return 0, err
	}
	return v.m.balances[balanceKey{mint: mint, owner: owner}], nil
}

func (v *view) Supply(_ context.Context, mint common.Address) (uint64, error) {
	info, err := v.mint(mint)
	if err != nil {
		return 0, err
	}
	return info.supply, nil
}

func (v *view) Decimals(_ context.Context, mint common.Address) (uint8, error) {
	info, err := v.mint(mint)
	if err != nil {
		return 0, err
	}
	return info.decimals, nil
}
