package postgres

import (
	"context"
	"fmt"
)

// Migration is one schema step.
type Migration struct {
	Version     int
	Description string
	Up          string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: `
		CREATE TABLE IF NOT EXISTS pools (
			pool_id INTEGER PRIMARY KEY,
			mint_x TEXT NOT NULL,
			mint_y TEXT NOT NULL,
			mint_lp TEXT NOT NULL,
			vault TEXT NOT NULL,
			fee_bips INTEGER NOT NULL,
			first_seen_seq NUMERIC(20,0) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pool_events (
			seq NUMERIC(20,0) NOT NULL,
			pool_id INTEGER NOT NULL,
			event_name TEXT NOT NULL,
			event_ts TIMESTAMPTZ NOT NULL,
			decoded JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (seq, event_name)
		);
		CREATE INDEX IF NOT EXISTS idx_pool_events_pool_ts ON pool_events(pool_id, event_ts);

		CREATE TABLE IF NOT EXISTS instruction_errors (
			seq NUMERIC(20,0) PRIMARY KEY,
			op TEXT NOT NULL,
			pool_id INTEGER NOT NULL,
			signer TEXT NOT NULL,
			code TEXT NOT NULL,
			error TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pool_window_metrics (
			pool_id INTEGER NOT NULL,
			window_size_seconds BIGINT NOT NULL,
			window_start_ts TIMESTAMPTZ NOT NULL,
			window_end_ts TIMESTAMPTZ NOT NULL,
			swap_count BIGINT NOT NULL,
			volume_x NUMERIC NOT NULL,
			volume_y NUMERIC NOT NULL,
			fee_x NUMERIC NOT NULL,
			fee_y NUMERIC NOT NULL,
			fee_rate_x NUMERIC,
			fee_rate_y NUMERIC,
			tvl_x NUMERIC,
			tvl_y NUMERIC,
			apr NUMERIC,
			apy NUMERIC,
			fee_method TEXT NOT NULL,
			tvl_method TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (pool_id, window_size_seconds, window_start_ts)
		);

		CREATE TABLE IF NOT EXISTS amm_state (
			name TEXT PRIMARY KEY,
			last_processed_ts BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		`,
	},
}

// Migrate applies every migration newer than the recorded schema version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range pending(current) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx, m.Up); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`, m.Version, m.Description); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func pending(current int) []Migration {
	out := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out
}
