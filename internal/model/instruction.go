package model

import (
	"encoding/json"
)

// Instruction ops understood by the dispatcher.
const (
	OpInitAuthority = "init_authority"
	OpCreateMint    = "create_mint"
	OpMintTo        = "mint_to"
	OpCreatePool    = "create_pool"
	OpSetLock       = "set_lock"
	OpDeposit       = "deposit"
	OpWithdraw      = "withdraw"
	OpSwap          = "swap"
)

// Instruction is one line of an instruction journal. Addresses are hex
// strings; which fields apply depends on Op.
type Instruction struct {
	Seq           uint64 `json:"seq"`
	Op            string `json:"op"`
	Timestamp     int64  `json:"timestamp"`
	Signer        string `json:"signer"`
	PoolID        uint16 `json:"pool_id,omitempty"`
	Mint          string `json:"mint,omitempty"`
	MintX         string `json:"mint_x,omitempty"`
	MintY         string `json:"mint_y,omitempty"`
	To            string `json:"to,omitempty"`
	LockAuthority string `json:"lock_authority,omitempty"`
	Decimals      uint8  `json:"decimals,omitempty"`
	FeeBips       uint16 `json:"fee_bips,omitempty"`
	Lock          *bool  `json:"lock,omitempty"`
	Amount        uint64 `json:"amount,omitempty"`
	MaxX          uint64 `json:"max_x,omitempty"`
	MaxY          uint64 `json:"max_y,omitempty"`
	MinX          uint64 `json:"min_x,omitempty"`
	MinY          uint64 `json:"min_y,omitempty"`
	MinAmountOut  uint64 `json:"min_amount_out,omitempty"`
	IsXToY        bool   `json:"is_x_to_y,omitempty"`
	Deadline      int64  `json:"deadline,omitempty"`
}

// UnmarshalJSON decodes an Instruction and normalizes the op name.
func (in *Instruction) UnmarshalJSON(data []byte) error {
	type Alias Instruction
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*in = Instruction(a)
	in.Op = normalizeOp(in.Op)
	return nil
}

func normalizeOp(op string) string {
	out := make([]byte, 0, len(op))
	for i := 0; i < len(op); i++ {
		c := op[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c == '-' || c == ' ':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// InstructionError records an instruction the dispatcher rejected.
type InstructionError struct {
	Seq    uint64 `json:"seq"`
	Op     string `json:"op"`
	PoolID uint16 `json:"pool_id"`
	Signer string `json:"signer"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}
