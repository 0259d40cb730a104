package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
	"cpamm/internal/ledger"
	"cpamm/internal/storage"
)

// State is the registry part of a snapshot.
type State struct {
	Authority *amm.GlobalAuthority `json:"authority,omitempty"`
	Pools     []amm.Pool           `json:"pools"`
}

// State copies the registry.
func (d *Dispatcher) State() State {
	st := State{Pools: d.Pools()}
	if global, ok := d.Authority(); ok {
		st.Authority = &global
	}
	return st
}

// Restore replaces the registry with st. Pool mints are assumed to be
// present on the ledger already.
func (d *Dispatcher) Restore(st State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.global = nil
	if st.Authority != nil {
		global := *st.Authority
		d.global = &global
	}
	d.pools = make(map[uint16]*poolEntry, len(st.Pools))
	d.reserved = make(map[common.Address]uint16, 2*len(st.Pools))
	for i := range st.Pools {
		pool := st.Pools[i]
		d.pools[pool.PoolID] = &poolEntry{pool: &pool}
		d.reserve(&pool)
	}
}

// Snapshot is everything a replay needs to resume.
type Snapshot struct {
	LastProcessedSeq uint64       `json:"last_processed_seq"`
	UpdatedAt        string       `json:"updated_at"`
	Registry         State        `json:"registry"`
	Ledger           ledger.State `json:"ledger"`
}

// FileStateStore stores snapshots in a local JSON file.
type FileStateStore struct {
	Path string
}

func (s *FileStateStore) Load() (Snapshot, bool, error) {
	if s == nil || s.Path == "" {
		return Snapshot{}, false, nil
	}
	var snap Snapshot
	ok, err := storage.ReadJSONFile(s.Path, &snap)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("state: %w", err)
	}
	return snap, ok, nil
}

func (s *FileStateStore) Save(snap Snapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := storage.WriteFileAtomic(s.Path, data); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return nil
}
