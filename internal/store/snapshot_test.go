package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipei-transit/crowding-dashboard/internal/transit"
)

func TestLatestBeforeFirstCycle(t *testing.T) {
	s := NewSnapshotStore()
	_, err := s.Latest()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSaveReplacesLatest(t *testing.T) {
	s := NewSnapshotStore()

	first := transit.PollResult{CycleID: "a", Timestamp: time.Now()}
	s.Save(first)

	got, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "a", got.CycleID)

	second := transit.PollResult{
		CycleID:         "b",
		Timestamp:       time.Now(),
		CrowdingRecords: []transit.CrowdingRecord{{BusID: "111-FB"}},
	}
	s.Save(second)

	got, err = s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "b", got.CycleID)
	assert.True(t, got.HasData())
}
