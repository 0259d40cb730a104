package ledger

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// MintState is the persisted form of a mint.
type MintState struct {
	Mint      common.Address `json:"mint"`
	Decimals  uint8          `json:"decimals"`
	Authority common.Address `json:"authority"`
	Supply    uint64         `json:"supply"`
}

// BalanceState is the persisted form of one balance.
type BalanceState struct {
	Mint   common.Address `json:"mint"`
	Owner  common.Address `json:"owner"`
	Amount uint64         `json:"amount"`
}

// State is a full copy of the ledger, sorted for stable output.
type State struct {
	Now      int64          `json:"now"`
	Mints    []MintState    `json:"mints"`
	Balances []BalanceState `json:"balances"`
}

// Export copies the ledger into a State.
func (m *Memory) Export() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		Now:      m.now,
		Mints:    make([]MintState, 0, len(m.mints)),
		Balances: make([]BalanceState, 0, len(m.balances)),
	}
	for addr, info := range m.mints {
		st.Mints = append(st.Mints, MintState{
			Mint:      addr,
			Decimals:  info.decimals,
			Authority: info.authority,
			Supply:    info.supply,
		})
	}
	for key, amount := range m.balances {
		if amount == 0 {
			continue
		}
		st.Balances = append(st.Balances, BalanceState{Mint: key.mint, Owner: key.owner, Amount: amount})
	}

	sort.Slice(st.Mints, func(i, j int) bool {
		return bytes.Compare(st.Mints[i].Mint[:], st.Mints[j].Mint[:]) < 0
	})
	sort.Slice(st.Balances, func(i, j int) bool {
		a, b := st.Balances[i], st.Balances[j]
		if c := bytes.Compare(a.Mint[:], b.Mint[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Owner[:], b.Owner[:]) < 0
	})
	return st
}

// Restore builds a ledger from a State.
func Restore(st State) *Memory {
	m := NewMemory()
	m.now = st.Now
	for _, mint := range st.Mints {
		m.mints[mint.Mint] = &mintInfo{
			decimals:  mint.Decimals,
			authority: mint.Authority,
			supply:    mint.Supply,
		}
	}
	for _, bal := range st.Balances {
		m.balances[balanceKey{mint: bal.Mint, owner: bal.Owner}] = bal.Amount
	}
	return m
}
