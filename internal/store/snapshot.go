package store

import (
	"errors"
	"sync"

	"github.com/taipei-transit/crowding-dashboard/internal/transit"
)

// ErrEmpty is returned before the first reconciliation cycle has completed.
var ErrEmpty = errors.New("no snapshot available yet")

// SnapshotStore holds the latest PollResult. There is deliberately no
// history: the dashboard only ever shows the current state, and a failed feed
// is carried forward inside the snapshot itself.
type SnapshotStore struct {
	mu     sync.RWMutex
	latest transit.PollResult
	has    bool
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Save replaces the latest snapshot. Called once per completed cycle.
func (s *SnapshotStore) Save(res transit.PollResult) {
	s.mu.Lock()
	s.latest = res
	s.has = true
	s.mu.Unlock()
}

// Latest returns the most recent snapshot, or ErrEmpty before the first one.
func (s *SnapshotStore) Latest() (transit.PollResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.has {
		return transit.PollResult{}, ErrEmpty
	}
	return s.latest, nil
}
