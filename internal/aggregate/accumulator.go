package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"cpamm/internal/model"
)

// Reserves is the last known post-trade state of a pool.
type Reserves struct {
	X   uint64
	Y   uint64
	Set bool
}

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	PoolID      uint16
	PoolMeta    model.PoolMeta
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	VolumeX     *big.Int
	VolumeY     *big.Int
	FeeX        *big.Int
	FeeY        *big.Int
	Reserves    Reserves
	FirstSeq    uint64
	LastTS      uint64
}

// NewAccumulator opens a window. carried seeds the reserves so a window
// without liquidity events still reports TVL.
func NewAccumulator(record model.EventRecord, windowStart, windowEnd uint64, carried Reserves) *Accumulator {
	return &Accumulator{
		PoolID:      record.PoolID,
		PoolMeta:    record.PoolMeta,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeX:     big.NewInt(0),
		VolumeY:     big.NewInt(0),
		FeeX:        big.NewInt(0),
		FeeY:        big.NewInt(0),
		Reserves:    carried,
		FirstSeq:    record.Seq,
		LastTS:      uint64(record.Timestamp),
	}
}

func (a *Accumulator) AddEvent(record model.EventRecord) error {
	if ts := uint64(record.Timestamp); ts >= a.LastTS {
		a.LastTS = ts
	}
	if a.FirstSeq == 0 || record.Seq < a.FirstSeq {
		a.FirstSeq = record.Seq
	}

	switch record.EventName {
	case model.EventSwap:
		var swap model.SwapEventData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		a.applySwap(swap)
	case model.EventDeposit:
		var dep model.DepositEventData
		if err := json.Unmarshal(record.Decoded, &dep); err != nil {
			return fmt.Errorf("decode deposit: %w", err)
		}
		a.Reserves = Reserves{X: dep.ReserveX, Y: dep.ReserveY, Set: true}
	case model.EventWithdraw:
		var wd model.WithdrawEventData
		if err := json.Unmarshal(record.Decoded, &wd); err != nil {
			return fmt.Errorf("decode withdraw: %w", err)
		}
		a.Reserves = Reserves{X: wd.ReserveX, Y: wd.ReserveY, Set: true}
	}
	return nil
}

// applySwap books volume on both sides and the fee on the input side.
func (a *Accumulator) applySwap(swap model.SwapEventData) {
	in := new(big.Int).SetUint64(swap.AmountIn)
	out := new(big.Int).SetUint64(swap.AmountOut)
	fee := new(big.Int).SetUint64(swap.Fee)
	if swap.IsXToY {
		a.VolumeX.Add(a.VolumeX, in)
		a.VolumeY.Add(a.VolumeY, out)
		a.FeeX.Add(a.FeeX, fee)
	} else {
		a.VolumeY.Add(a.VolumeY, in)
		a.VolumeX.Add(a.VolumeX, out)
		a.FeeY.Add(a.FeeY, fee)
	}
	a.Reserves = Reserves{X: swap.ReserveX, Y: swap.ReserveY, Set: true}
	a.SwapCount++
}

// eventReserves extracts the post-trade reserves an event carries.
func eventReserves(record model.EventRecord) (Reserves, bool) {
	var payload struct {
		ReserveX *uint64 `json:"reserve_x"`
		ReserveY *uint64 `json:"reserve_y"`
	}
	if err := json.Unmarshal(record.Decoded, &payload); err != nil {
		return Reserves{}, false
	}
	if payload.ReserveX == nil || payload.ReserveY == nil {
		return Reserves{}, false
	}
	return Reserves{X: *payload.ReserveX, Y: *payload.ReserveY, Set: true}, true
}
