package aggregate

import (
	"context"
	"fmt"
)

// NamedStateStore is the subset of the Postgres store that keeps progress
// markers by name.
type NamedStateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// DBStateStore stores state in the amm_state table, one row per window size.
type DBStateStore struct {
	Store         NamedStateStore
	WindowSeconds uint64
}

// Name is the amm_state key for this window size.
func (s *DBStateStore) Name() string {
	return fmt.Sprintf("aggregator:%d", s.WindowSeconds)
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadState(ctx, s.Name())
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name(), ts)
}
