package amm

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	seedPoolConfig      = "pool_config"
	seedLPMint          = "lp"
	seedLockedLiquidity = "locked_liquidity"

	// DefaultSignerNonce is the nonce stored with new pools.
	DefaultSignerNonce uint8 = 255
)

// SigningContext identifies the pool's own authority. Only pool logic holds
// one, so only pool logic can move reserves out of the vaults or mint LP.
type SigningContext struct {
	PoolID uint16 `json:"pool_id"`
	Nonce  uint8  `json:"nonce"`
}

// Authority is the identity that owns the pool vaults and the LP mint.
func (s SigningContext) Authority() common.Address {
	return deriveAddress(seedPoolConfig, s.PoolID, s.Nonce)
}

// LPMintAddress is the LP-share mint of a pool.
func LPMintAddress(poolID uint16, nonce uint8) common.Address {
	return deriveAddress(seedLPMint, poolID, nonce)
}

// LockedLiquidityHolder is a holder nobody has a key for. LP minted there
// can never be burned or moved.
func LockedLiquidityHolder(poolID uint16) common.Address {
	return deriveAddress(seedLockedLiquidity, poolID, 0)
}

func deriveAddress(seed string, poolID uint16, nonce uint8) common.Address {
	var id [2]byte
	binary.LittleEndian.PutUint16(id[:], poolID)
	return common.BytesToAddress(crypto.Keccak256([]byte(seed), id[:], []byte{nonce}))
}
