package amm

import "github.com/ethereum/go-ethereum/common"

// GlobalAuthority holds the identity allowed to lock and unlock pools. It is
// passed explicitly to every lock-sensitive call.
type GlobalAuthority struct {
	LockAuthority common.Address `json:"lock_authority"`
}

// NewGlobalAuthority uses lockAuthority when given, the admin otherwise.
func NewGlobalAuthority(admin common.Address, lockAuthority *common.Address) GlobalAuthority {
	if lockAuthority != nil {
		return GlobalAuthority{LockAuthority: *lockAuthority}
	}
	return GlobalAuthority{LockAuthority: admin}
}
