package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cpamm/internal/model"
	"cpamm/internal/storage"
)

// Store provides Postgres persistence for pools, events and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_id, mint_x, mint_y, mint_lp, vault, fee_bips, first_seen_seq, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (pool_id)
			DO UPDATE SET
				mint_x = EXCLUDED.mint_x,
				mint_y = EXCLUDED.mint_y,
				mint_lp = EXCLUDED.mint_lp,
				vault = EXCLUDED.vault,
				fee_bips = EXCLUDED.fee_bips,
				first_seen_seq = LEAST(pools.first_seen_seq, EXCLUDED.first_seen_seq),
				updated_at = now()
		`,
			int32(pool.PoolID),
			pool.MintX,
			pool.MintY,
			pool.MintLP,
			pool.Vault,
			int32(pool.FeeBips),
			strconv.FormatUint(pool.FirstSeenSeq, 10),
		)
	}
	return s.sendBatch(ctx, batch, len(pools))
}

// InsertEvents stores pool events. Replaying the same sequence number is a no-op.
func (s *Store) InsertEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		payload, err := json.Marshal(event.Decoded)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", event.Seq, err)
		}
		batch.Queue(`
			INSERT INTO pool_events (seq, pool_id, event_name, event_ts, decoded, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (seq, event_name) DO NOTHING
		`,
			strconv.FormatUint(event.Seq, 10),
			int32(event.PoolID),
			event.EventName,
			time.Unix(event.Timestamp, 0).UTC(),
			payload,
		)
	}
	return s.sendBatch(ctx, batch, len(events))
}

// InsertInstructionErrors stores rejected instructions.
func (s *Store) InsertInstructionErrors(ctx context.Context, errs []model.InstructionError) error {
	if len(errs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range errs {
		batch.Queue(`
			INSERT INTO instruction_errors (seq, op, pool_id, signer, code, error, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (seq) DO UPDATE SET code = EXCLUDED.code, error = EXCLUDED.error
		`,
			strconv.FormatUint(e.Seq, 10),
			e.Op,
			int32(e.PoolID),
			e.Signer,
			e.Code,
			e.Error,
		)
	}
	return s.sendBatch(ctx, batch, len(errs))
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pool_id, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume_x, volume_y, fee_x, fee_y, fee_rate_x, fee_rate_y,
				tvl_x, tvl_y, apr, apy, fee_method, tvl_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now())
			ON CONFLICT (pool_id, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume_x = EXCLUDED.volume_x,
				volume_y = EXCLUDED.volume_y,
				fee_x = EXCLUDED.fee_x,
				fee_y = EXCLUDED.fee_y,
				fee_rate_x = EXCLUDED.fee_rate_x,
				fee_rate_y = EXCLUDED.fee_rate_y,
				tvl_x = EXCLUDED.tvl_x,
				tvl_y = EXCLUDED.tvl_y,
				apr = EXCLUDED.apr,
				apy = EXCLUDED.apy,
				fee_method = EXCLUDED.fee_method,
				tvl_method = EXCLUDED.tvl_method,
				updated_at = now()
		`,
			int32(m.PoolID),
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.VolumeX,
			m.VolumeY,
			m.FeeX,
			m.FeeY,
			m.FeeRateX,
			m.FeeRateY,
			m.TVLX,
			m.TVLY,
			m.APR,
			m.APY,
			m.FeeMethod,
			m.TVLMethod,
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM amm_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO amm_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Sink adapts the store to storage.Storage, using ctx for every write.
func (s *Store) Sink(ctx context.Context) storage.Storage {
	return &sink{ctx: ctx, store: s}
}

type sink struct {
	ctx   context.Context
	store *Store
}

func (s *sink) PutEventBatch(events []model.Event) error {
	return s.store.InsertEvents(s.ctx, events)
}

func (s *sink) PutErrorBatch(errs []model.InstructionError) error {
	return s.store.InsertInstructionErrors(s.ctx, errs)
}
