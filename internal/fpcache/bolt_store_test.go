package fpcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auralis/internal/fingerprint"
	"auralis/internal/trackid"
)

func openTestStore(t *testing.T, maxBytes int64) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fingerprints.db")
	store, err := OpenBoltStore(path, maxBytes)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleEntry(id string, confidence float64) Entry {
	var fp fingerprint.Fingerprint
	fp.Frequency = [7]float32{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.4}
	return Entry{
		TrackID:     trackid.ID(id),
		Fingerprint: fp,
		Confidence:  confidence,
		ComputedAt:  time.Now(),
	}
}

func TestBoltStoreGetMiss(t *testing.T) {
	s := openTestStore(t, 1<<20)
	_, found, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBoltStorePutThenGet(t *testing.T) {
	s := openTestStore(t, 1<<20)
	ctx := context.Background()
	entry := sampleEntry("trackA", 0.9)

	wrote, err := s.Put(ctx, entry)
	require.NoError(t, err)
	assert.True(t, wrote)

	got, found, err := s.Get(ctx, entry.TrackID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry.Fingerprint, got.Fingerprint)
	assert.InDelta(t, entry.Confidence, got.Confidence, 1e-6)
}

func TestBoltStorePutDoesNotDowngrade(t *testing.T) {
	s := openTestStore(t, 1<<20)
	ctx := context.Background()

	high := sampleEntry("trackA", 0.9)
	low := sampleEntry("trackA", 0.3)

	_, err := s.Put(ctx, high)
	require.NoError(t, err)
	wrote, err := s.Put(ctx, low)
	require.NoError(t, err)
	assert.False(t, wrote)

	got, _, err := s.Get(ctx, "trackA")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Confidence, 1e-6)
}

func TestBoltStoreEvictsOldestAndTrimsToCap(t *testing.T) {
	s := openTestStore(t, 600)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		_, err := s.Put(ctx, sampleEntry(id, 0.5+float64(i)*0.01))
		require.NoError(t, err)
	}

	entryCount, bytesUsed, capBytes, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600), capBytes)
	assert.Greater(t, entryCount, 0, "eviction must not wipe the whole cache")
	assert.Less(t, entryCount, 10, "eviction must actually trim over-cap entries")
	assert.LessOrEqual(t, bytesUsed, capBytes, "bytes used must settle back under the cap")

	_, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found, "oldest entry should have been evicted first")

	_, found, err = s.Get(ctx, "j")
	require.NoError(t, err)
	assert.True(t, found, "most recently written entry should survive eviction")
}

func TestBoltStoreInvalidate(t *testing.T) {
	s := openTestStore(t, 1<<20)
	ctx := context.Background()
	entry := sampleEntry("trackA", 0.5)

	_, err := s.Put(ctx, entry)
	require.NoError(t, err)
	require.NoError(t, s.Invalidate(ctx, entry.TrackID))

	_, found, err := s.Get(ctx, entry.TrackID)
	require.NoError(t, err)
	assert.False(t, found)
}
