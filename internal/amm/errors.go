package amm

import (
	"errors"

	"cpamm/internal/curve"
	"cpamm/internal/fixedpoint"
)

// Failure kinds returned by pool operations. Call sites wrap them with
// context; match with errors.Is.
var (
	ErrArithmetic          = fixedpoint.ErrArithmetic
	ErrInvalidAmount       = curve.ErrInvalidAmount
	ErrBrokenSlippage      = errors.New("slippage bound exceeded")
	ErrExpiredTx           = errors.New("transaction expired")
	ErrLockedPool          = errors.New("pool is locked")
	ErrInvalidAuthority    = errors.New("invalid lock authority")
	ErrSameLockState       = errors.New("pool is already in the requested lock state")
	ErrHighFees            = errors.New("fee exceeds max ceiling")
	ErrIdenticalMints      = errors.New("pool mints must differ")
	ErrMissingLockedHolder = errors.New("locked liquidity holder required on first deposit")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrArithmetic, "ArithmeticError"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrBrokenSlippage, "BrokenSlippage"},
	{ErrExpiredTx, "ExpiredTx"},
	{ErrLockedPool, "LockedPoolId"},
	{ErrInvalidAuthority, "InvalidAuthority"},
	{ErrSameLockState, "SameLockState"},
	{ErrHighFees, "HighFees"},
	{ErrIdenticalMints, "IdenticalMints"},
	{ErrMissingLockedHolder, "MissingLockedHolder"},
}

// Code returns the kind name of err, "" for nil and "Internal" for errors
// outside the pool taxonomy (ledger failures, storage, ...).
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "Internal"
}
