package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_Finish_Monotonic(t *testing.T) {
	snap := NewSnapshot(1, "GBP", time.Now())
	assert.Equal(t, SnapshotStatusProcessing, snap.Status)
	assert.Nil(t, snap.EndTime)

	end := time.Now()
	err := snap.Finish(SnapshotStatusSuccess, end)
	assert.NoError(t, err)
	assert.Equal(t, SnapshotStatusSuccess, snap.Status)
	assert.Equal(t, end, *snap.EndTime)

	// Terminal is terminal: a second transition must be rejected.
	err = snap.Finish(SnapshotStatusFailed, time.Now())
	assert.ErrorIs(t, err, ErrSnapshotFinished)
	assert.Equal(t, SnapshotStatusSuccess, snap.Status)
}

func TestSnapshot_Finish_RejectsNonTerminalStatus(t *testing.T) {
	snap := NewSnapshot(1, "GBP", time.Now())

	err := snap.Finish(SnapshotStatusProcessing, time.Now())
	assert.ErrorIs(t, err, ErrNonTerminalStatus)
	assert.Equal(t, SnapshotStatusProcessing, snap.Status)
}

func TestSnapshot_EntryFor(t *testing.T) {
	snap := NewSnapshot(1, "GBP", time.Now())
	snap.Entries = []LinkedAccountSnapshotEntry{
		{LinkedAccountID: 10, Success: true},
		{LinkedAccountID: 20, Success: false},
	}

	entry := snap.EntryFor(20)
	assert.NotNil(t, entry)
	assert.False(t, entry.Success)

	assert.Nil(t, snap.EntryFor(99))
}

func TestSnapshot_EffectiveTime(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	snap := NewSnapshot(1, "GBP", start)
	assert.Equal(t, start, snap.EffectiveTime())

	assert.NoError(t, snap.Finish(SnapshotStatusSuccess, end))
	assert.Equal(t, end, snap.EffectiveTime())
}
