package model

// Pool is a pool record for storage.
type Pool struct {
	PoolID       uint16 `json:"pool_id"`
	MintX        string `json:"mint_x"`
	MintY        string `json:"mint_y"`
	MintLP       string `json:"mint_lp"`
	Vault        string `json:"vault"`
	FeeBips      uint16 `json:"fee_bips"`
	FirstSeenSeq uint64 `json:"first_seen_seq"`
}
