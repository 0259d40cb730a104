package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"go.uber.org/zap"

	"cpamm/internal/model"
	"cpamm/internal/retry"
	"cpamm/internal/storage"
)

const (
	feeMethodExact   = "swap_event_fee"
	tvlMethodReserve = "event_reserves"
	tvlMethodNone    = "unavailable"
)

// MetricsStore persists pools and window metrics.
type MetricsStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
	MaxRetries    int
	RetryBackoff  time.Duration
}

// eventKey identifies an event across replays of the same journal.
type eventKey struct {
	seq  uint64
	name string
}

// Aggregator aggregates pool events into fee and volume metrics per window.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	logger       *zap.Logger
	accumulators map[uint16]*Accumulator
	reserves     map[uint16]Reserves
	poolSeen     map[uint16]model.Pool
}

func NewAggregator(cfg Config, store MetricsStore, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		accumulators: make(map[uint16]*Accumulator),
		reserves:     make(map[uint16]Reserves),
		poolSeen:     make(map[uint16]model.Pool),
	}
}

// Run executes aggregation over an events JSONL file. Events of one pool
// are expected in timestamp order.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 256)
	maxTs := startTs
	var total, windows, skipped, duplicates, failed int
	seen := make(map[eventKey]struct{})

	err = storage.ScanLines(file, func(_ int, line []byte) error {
		total++

		var record model.EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode event", zap.Error(err))
			return nil
		}
		key := eventKey{seq: record.Seq, name: record.EventName}
		if _, ok := seen[key]; ok {
			duplicates++
			return nil
		}
		seen[key] = struct{}{}

		if record.Timestamp <= 0 {
			failed++
			a.logger.Warn("event without timestamp", zap.Uint64("seq", record.Seq))
			return nil
		}
		ts := uint64(record.Timestamp)

		if ts <= startTs {
			// reserves before the start still seed the first window
			a.trackReserves(record)
			skipped++
			return nil
		}

		windowStart := windowStart(ts, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		acc := a.accumulators[record.PoolID]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd, a.reserves[record.PoolID])
			a.accumulators[record.PoolID] = acc
		} else if acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(acc)
			batch = append(batch, metrics)
			windows++
			if pool != nil {
				pools = append(pools, *pool)
			}
			acc = NewAccumulator(record, windowStart, windowEnd, acc.Reserves)
			a.accumulators[record.PoolID] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.Uint16("pool_id", record.PoolID), zap.String("event", record.EventName))
			return nil
		}
		a.reserves[record.PoolID] = acc.Reserves

		if ts > maxTs {
			maxTs = ts
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(acc)
		batch = append(batch, metrics)
		windows++
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[uint16]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
		zap.Int("duplicates", duplicates),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) trackReserves(record model.EventRecord) {
	if reserves, ok := eventReserves(record); ok {
		a.reserves[record.PoolID] = reserves
	}
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	return retry.Do(ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, func(ctx context.Context) error {
		if len(pools) > 0 {
			if err := a.store.UpsertPools(ctx, pools); err != nil {
				a.logger.Warn("upsert pools failed", zap.Error(err), zap.Int("pools", len(pools)))
				return err
			}
		}
		if len(batch) > 0 {
			if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
				a.logger.Warn("upsert window metrics failed", zap.Error(err), zap.Int("metrics", len(batch)))
				return err
			}
		}
		return nil
	})
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) (model.PoolWindowMetrics, *model.Pool) {
	poolRecord := a.registerPool(acc)
	meta := acc.PoolMeta

	tvlMethod := tvlMethodNone
	var tvlX, tvlY *string
	if acc.Reserves.Set {
		x := formatTokenAmount(new(big.Int).SetUint64(acc.Reserves.X), meta.DecimalsX)
		y := formatTokenAmount(new(big.Int).SetUint64(acc.Reserves.Y), meta.DecimalsY)
		tvlX, tvlY = &x, &y
		tvlMethod = tvlMethodReserve
	}

	rateX, rateY := computeFeeRates(acc.FeeX, acc.FeeY, acc.Reserves)
	yield := windowYield(rateX, rateY)

	return model.PoolWindowMetrics{
		PoolID:         acc.PoolID,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		VolumeX:        formatTokenAmount(acc.VolumeX, meta.DecimalsX),
		VolumeY:        formatTokenAmount(acc.VolumeY, meta.DecimalsY),
		FeeX:           formatTokenAmount(acc.FeeX, meta.DecimalsX),
		FeeY:           formatTokenAmount(acc.FeeY, meta.DecimalsY),
		FeeRateX:       formatRat(rateX),
		FeeRateY:       formatRat(rateY),
		TVLX:           tvlX,
		TVLY:           tvlY,
		APR:            computeAPR(yield, a.cfg.WindowSeconds),
		APY:            computeAPY(yield, a.cfg.WindowSeconds),
		FeeMethod:      feeMethodExact,
		TVLMethod:      tvlMethod,
	}, poolRecord
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	pool := model.Pool{
		PoolID:       acc.PoolID,
		MintX:        acc.PoolMeta.MintX,
		MintY:        acc.PoolMeta.MintY,
		MintLP:       acc.PoolMeta.MintLP,
		Vault:        acc.PoolMeta.Vault,
		FeeBips:      acc.PoolMeta.FeeBips,
		FirstSeenSeq: acc.FirstSeq,
	}

	existing, ok := a.poolSeen[acc.PoolID]
	if ok && existing.FirstSeenSeq <= pool.FirstSeenSeq {
		return nil
	}

	a.poolSeen[acc.PoolID] = pool
	return &pool
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func minOpenWindowStart(acc map[uint16]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
