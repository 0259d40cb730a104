package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/curve"
)

const (
	// MaxFeeBips caps the swap fee at 0.9%.
	MaxFeeBips = 90

	// LPDecimals is the precision of every LP mint.
	LPDecimals = 6

	// MinLockedLiquidity is minted to the locked holder on the first deposit.
	MinLockedLiquidity = curve.MinLockedLiquidity
)

// PoolConfig is the persistent configuration of one trading pair.
type PoolConfig struct {
	PoolID  uint16         `json:"pool_id"`
	MintX   common.Address `json:"mint_x"`
	MintY   common.Address `json:"mint_y"`
	FeeBips uint16         `json:"fee_bips"`
	Locked  bool           `json:"locked"`
}

// Pool is a pool config plus the identities derived from it.
type Pool struct {
	PoolConfig
	Signer SigningContext `json:"signer"`
	MintLP common.Address `json:"mint_lp"`
}

// CreatePool builds an unlocked pool. It does not touch the ledger; see
// Engine.InitPool.
func CreatePool(poolID uint16, mintX, mintY common.Address, feeBips uint16) (*Pool, error) {
	if feeBips > MaxFeeBips {
		return nil, fmt.Errorf("%w: %d > %d", ErrHighFees, feeBips, MaxFeeBips)
	}
	if mintX == mintY {
		return nil, fmt.Errorf("%w: %s", ErrIdenticalMints, mintX.Hex())
	}

	signer := SigningContext{PoolID: poolID, Nonce: DefaultSignerNonce}
	return &Pool{
		PoolConfig: PoolConfig{
			PoolID:  poolID,
			MintX:   mintX,
			MintY:   mintY,
			FeeBips: feeBips,
		},
		Signer: signer,
		MintLP: LPMintAddress(poolID, signer.Nonce),
	}, nil
}

// SetLock moves the pool between Unlocked and Locked. Only the global lock
// authority may do so, and only as a real transition.
func (p *Pool) SetLock(global GlobalAuthority, caller common.Address, lock bool) error {
	if caller != global.LockAuthority {
		return fmt.Errorf("%w: %s", ErrInvalidAuthority, caller.Hex())
	}
	if lock == p.Locked {
		return fmt.Errorf("%w: locked=%t", ErrSameLockState, lock)
	}
	p.Locked = lock
	return nil
}

// Vault returns the owner of both reserve balances.
func (p *Pool) Vault() common.Address {
	return p.Signer.Authority()
}

// Mints returns (input, output) mints for a swap direction.
func (p *Pool) Mints(isXToY bool) (common.Address, common.Address) {
	if isXToY {
		return p.MintX, p.MintY
	}
	return p.MintY, p.MintX
}
