package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"cpamm/internal/ledger"
	"cpamm/internal/model"
	"cpamm/internal/retry"
	"cpamm/internal/storage"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	FromSeq           uint64
	ToSeq             uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	StatePath         string
	MaxRetries        int
	RetryBackoff      time.Duration
	StopOnError       bool
}

// Summary counts what a replay did.
type Summary struct {
	Applied  int
	Rejected int
	Skipped  int
	Events   int
	LastSeq  uint64
}

// Runner replays an instruction journal against an in-memory ledger and
// writes the resulting events to storage.
type Runner struct {
	cfg        RunConfig
	ledger     *ledger.Memory
	dispatcher *Dispatcher
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[uint64]struct{}
	checkpoint *CheckpointStore
	state      *FileStateStore
}

// NewRunner builds a Runner with an empty ledger and registry.
func NewRunner(cfg RunConfig, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	mem := ledger.NewMemory()
	return &Runner{
		cfg:        cfg,
		ledger:     mem,
		dispatcher: NewDispatcher(mem, mem, logger.Named("dispatch")),
		storage:    storageSink,
		logger:     logger,
		seen:       make(map[uint64]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		state:      &FileStateStore{Path: cfg.StatePath},
	}
}

// Dispatcher exposes the registry the runner drives.
func (r *Runner) Dispatcher() *Dispatcher {
	return r.dispatcher
}

// Ledger exposes the runner's ledger.
func (r *Runner) Ledger() *ledger.Memory {
	return r.ledger
}

// Run replays instructions. Sequence numbers missing from the journal are
// assigned from the line order.
func (r *Runner) Run(ctx context.Context, instructions []model.Instruction) (Summary, error) {
	var summary Summary
	if r.storage == nil {
		return summary, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return summary, fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.CheckpointEnabled && r.cfg.StatePath == "" {
		return summary, fmt.Errorf("checkpointing requires a state path")
	}

	ordered := r.order(instructions, &summary)
	if len(ordered) == 0 {
		r.logger.Info("nothing to replay")
		return summary, nil
	}

	from := r.cfg.FromSeq
	if from == 0 {
		from = ordered[0].Seq
	}
	to := r.cfg.ToSeq
	if to == 0 {
		to = ordered[len(ordered)-1].Seq
	}

	resumed, err := r.resume(from)
	if err != nil {
		return summary, err
	}
	if resumed > 0 {
		from = resumed
	}

	if from > to {
		r.logger.Info("nothing to replay", zap.Uint64("from", from), zap.Uint64("to", to))
		return summary, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	cursor := sort.Search(len(ordered), func(i int) bool { return ordered[i].Seq >= from })
	for _, seqRange := range ranges {
		if cursor >= len(ordered) {
			break
		}
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		var (
			events []model.Event
			errs   []model.InstructionError
		)
		for cursor < len(ordered) && seqRange.Contains(ordered[cursor].Seq) {
			in := ordered[cursor]
			cursor++

			if in.Timestamp != 0 {
				r.ledger.SetNow(in.Timestamp)
			}
			out, err := r.dispatcher.Apply(ctx, in)
			if err != nil {
				rec := instructionError(in, err)
				errs = append(errs, rec)
				summary.Rejected++
				r.logger.Debug("instruction rejected",
					zap.Uint64("seq", in.Seq),
					zap.String("op", in.Op),
					zap.String("code", rec.Code),
					zap.Error(err),
				)
				if r.cfg.StopOnError {
					if flushErr := r.flush(ctx, events, errs); flushErr != nil {
						return summary, flushErr
					}
					return summary, fmt.Errorf("instruction %d (%s): %w", in.Seq, in.Op, err)
				}
				continue
			}
			events = append(events, out...)
			summary.Applied++
			summary.Events += len(out)
			summary.LastSeq = in.Seq
		}

		if err := r.flush(ctx, events, errs); err != nil {
			return summary, err
		}
		if err := r.persist(seqRange.To); err != nil {
			return summary, err
		}

		r.logger.Info("batch complete",
			zap.Int("events", len(events)),
			zap.Int("rejected", len(errs)),
			zap.Uint64("from", seqRange.From),
			zap.Uint64("to", seqRange.To),
		)
	}

	return summary, nil
}

// order drops duplicate sequence numbers and sorts the rest.
func (r *Runner) order(instructions []model.Instruction, summary *Summary) []model.Instruction {
	ordered := make([]model.Instruction, 0, len(instructions))
	for i, in := range instructions {
		if in.Seq == 0 {
			in.Seq = uint64(i + 1)
		}
		if r.isDuplicate(in.Seq) {
			summary.Skipped++
			continue
		}
		ordered = append(ordered, in)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })
	return ordered
}

// resume restores the snapshot matching the checkpoint and returns the
// first sequence number still to apply, or zero when starting fresh.
func (r *Runner) resume(from uint64) (uint64, error) {
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return 0, err
	}
	if !ok || cp.LastProcessedSeq < from {
		return 0, nil
	}

	snap, ok, err := r.state.Load()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("checkpoint at seq %d has no state snapshot", cp.LastProcessedSeq)
	}
	if snap.LastProcessedSeq != cp.LastProcessedSeq {
		return 0, fmt.Errorf("state snapshot at seq %d does not match checkpoint at seq %d", snap.LastProcessedSeq, cp.LastProcessedSeq)
	}

	r.ledger = ledger.Restore(snap.Ledger)
	r.dispatcher = NewDispatcher(r.ledger, r.ledger, r.logger.Named("dispatch"))
	r.dispatcher.Restore(snap.Registry)

	r.logger.Info("resume from checkpoint",
		zap.Uint64("last_processed", cp.LastProcessedSeq),
		zap.Int("pools", len(snap.Registry.Pools)),
	)
	return cp.LastProcessedSeq + 1, nil
}

// flush delivers a batch to every sink. Each sink is retried on its own so a
// failing sink never makes an earlier one receive the batch twice.
func (r *Runner) flush(ctx context.Context, events []model.Event, errs []model.InstructionError) error {
	for i, sink := range storage.Sinks(r.storage) {
		err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			err := sink.PutEventBatch(events)
			if err != nil {
				r.logger.Warn("store events failed", zap.Error(err), zap.Int("sink", i), zap.Int("events", len(events)))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("store events (sink %d): %w", i, err)
		}

		err = retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			err := sink.PutErrorBatch(errs)
			if err != nil {
				r.logger.Warn("store instruction errors failed", zap.Error(err), zap.Int("sink", i), zap.Int("errors", len(errs)))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("store instruction errors (sink %d): %w", i, err)
		}
	}
	return nil
}

func (r *Runner) persist(lastSeq uint64) error {
	if r.cfg.StatePath != "" {
		snap := Snapshot{
			LastProcessedSeq: lastSeq,
			Registry:         r.dispatcher.State(),
			Ledger:           r.ledger.Export(),
		}
		if err := r.state.Save(snap); err != nil {
			return err
		}
	}
	return r.checkpoint.Save(lastSeq)
}

func (r *Runner) isDuplicate(seq uint64) bool {
	if _, ok := r.seen[seq]; ok {
		return true
	}
	r.seen[seq] = struct{}{}
	return false
}
