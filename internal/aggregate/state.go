package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cpamm/internal/storage"
)

// StateStore remembers the timestamp up to which windows are final.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// FileStateStore keeps progress in a JSON file. The file records its window
// size and refuses to resume a run with another one.
type FileStateStore struct {
	Path          string
	WindowSeconds uint64
}

type progress struct {
	LastProcessedTS uint64 `json:"last_processed_ts"`
	WindowSeconds   uint64 `json:"window_seconds"`
	UpdatedAt       string `json:"updated_at"`
}

func (s *FileStateStore) Load(_ context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	var p progress
	ok, err := storage.ReadJSONFile(s.Path, &p)
	if err != nil || !ok {
		return 0, false, err
	}
	if p.WindowSeconds != 0 && s.WindowSeconds != 0 && p.WindowSeconds != s.WindowSeconds {
		return 0, false, fmt.Errorf("state file %s was written for %ds windows, not %ds", s.Path, p.WindowSeconds, s.WindowSeconds)
	}
	return p.LastProcessedTS, true, nil
}

func (s *FileStateStore) Save(_ context.Context, ts uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	data, err := json.Marshal(progress{
		LastProcessedTS: ts,
		WindowSeconds:   s.WindowSeconds,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal aggregator state: %w", err)
	}
	if err := storage.WriteFileAtomic(s.Path, data); err != nil {
		return fmt.Errorf("aggregator state: %w", err)
	}
	return nil
}
