package model

import "encoding/json"

// Event names.
const (
	EventPoolCreated = "PoolCreated"
	EventLockSet     = "LockSet"
	EventDeposit     = "Deposit"
	EventWithdraw    = "Withdraw"
	EventSwap        = "Swap"
)

// PoolMeta is the immutable description of a pool carried by every event.
type PoolMeta struct {
	MintX     string `json:"mint_x"`
	MintY     string `json:"mint_y"`
	MintLP    string `json:"mint_lp"`
	Vault     string `json:"vault"`
	FeeBips   uint16 `json:"fee_bips"`
	DecimalsX uint8  `json:"decimals_x"`
	DecimalsY uint8  `json:"decimals_y"`
}

// Event is a pool event produced by a successful instruction.
type Event struct {
	Seq       uint64      `json:"seq"`
	Timestamp int64       `json:"timestamp"`
	PoolID    uint16      `json:"pool_id"`
	EventName string      `json:"event_name"`
	Decoded   interface{} `json:"decoded"`
	PoolMeta  PoolMeta    `json:"pool_meta"`
}

// EventRecord is the JSON form of Event read back for aggregation.
type EventRecord struct {
	Seq       uint64          `json:"seq"`
	Timestamp int64           `json:"timestamp"`
	PoolID    uint16          `json:"pool_id"`
	EventName string          `json:"event_name"`
	Decoded   json.RawMessage `json:"decoded"`
	PoolMeta  PoolMeta        `json:"pool_meta"`
}

// PoolCreatedEventData is the PoolCreated payload.
type PoolCreatedEventData struct {
	Creator string `json:"creator"`
	Locked  bool   `json:"locked"`
}

// LockSetEventData is the LockSet payload.
type LockSetEventData struct {
	Authority string `json:"authority"`
	Locked    bool   `json:"locked"`
}

// DepositEventData is the Deposit payload. Reserves and supply are post-trade.
type DepositEventData struct {
	Depositor string `json:"depositor"`
	AmountX   uint64 `json:"amount_x"`
	AmountY   uint64 `json:"amount_y"`
	LPMinted  uint64 `json:"lp_minted"`
	LockedLP  uint64 `json:"locked_lp"`
	Bootstrap bool   `json:"bootstrap"`
	ReserveX  uint64 `json:"reserve_x"`
	ReserveY  uint64 `json:"reserve_y"`
	LPSupply  uint64 `json:"lp_supply"`
}

// WithdrawEventData is the Withdraw payload. Reserves and supply are post-trade.
type WithdrawEventData struct {
	Withdrawer string `json:"withdrawer"`
	AmountX    uint64 `json:"amount_x"`
	AmountY    uint64 `json:"amount_y"`
	LPBurned   uint64 `json:"lp_burned"`
	ReserveX   uint64 `json:"reserve_x"`
	ReserveY   uint64 `json:"reserve_y"`
	LPSupply   uint64 `json:"lp_supply"`
}

// SwapEventData is the Swap payload. Fee is denominated in the input mint.
type SwapEventData struct {
	Trader    string `json:"trader"`
	IsXToY    bool   `json:"is_x_to_y"`
	AmountIn  uint64 `json:"amount_in"`
	AmountOut uint64 `json:"amount_out"`
	Fee       uint64 `json:"fee"`
	ReserveX  uint64 `json:"reserve_x"`
	ReserveY  uint64 `json:"reserve_y"`
}
