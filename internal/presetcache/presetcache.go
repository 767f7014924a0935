// Package presetcache implements the Preset Cache (C8): an in-memory
// LRU keyed by (TrackId, Preset) storing a MasteringTarget and its
// derived Chunk Descriptors, bounded to a configurable entry count via
// github.com/hashicorp/golang-lru/v2 (grounded on the rest of the
// example pack's use of the same bounded-cache library for in-process
// LRU needs).
package presetcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"auralis/internal/target"
	"auralis/internal/trackid"
)

// Key identifies one cached MasteringTarget + chunk layout.
type Key struct {
	TrackID trackid.ID
	Preset  target.Preset
}

// ChunkDescriptor mirrors the data model's Chunk Descriptor entity:
// a deterministic slice boundary within a track at a given sample rate.
type ChunkDescriptor struct {
	Index              int
	StartFrame         uint64
	FrameCount         uint64
	HasLeadingContext  bool
	HasTrailingContext bool
}

// Entry is what's stored per (TrackId, Preset).
type Entry struct {
	Target      target.MasteringTarget
	Descriptors []ChunkDescriptor
}

// Cache is a thread-safe reader-writer wrapper around an LRU of Entry,
// with invalidation by TrackId so a higher-confidence fingerprint
// re-extraction can wipe every preset cached for that track in one
// call. The lock is only ever held for the dictionary
// operation itself, never across DSP work, matching the "lock held only
// for the dictionary operation" requirement.
type Cache struct {
	mu    sync.RWMutex
	inner *lru.Cache[Key, Entry]
	byTrack map[trackid.ID]map[target.Preset]struct{}
}

// New builds a Cache bounded to maxEntries, the default being 512 per
// preset_cache_max_entries.
func New(maxEntries int) *Cache {
	inner, _ := lru.New[Key, Entry](maxEntries)
	return &Cache{inner: inner, byTrack: make(map[trackid.ID]map[target.Preset]struct{})}
}

// Get returns the cached entry for key, if present.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner.Get(key)
}

// Put stores entry under key, recording it for wholesale invalidation.
func (c *Cache) Put(key Key, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, entry)
	presets, ok := c.byTrack[key.TrackID]
	if !ok {
		presets = make(map[target.Preset]struct{})
		c.byTrack[key.TrackID] = presets
	}
	presets[key.Preset] = struct{}{}
}

// InvalidateTrack removes every cached preset entry for trackID, called
// when the Fingerprint Cache reports a higher-confidence re-extraction.
func (c *Cache) InvalidateTrack(trackID trackid.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	presets, ok := c.byTrack[trackID]
	if !ok {
		return
	}
	for preset := range presets {
		c.inner.Remove(Key{TrackID: trackID, Preset: preset})
	}
	delete(c.byTrack, trackID)
}

// Len reports the current number of cached entries, for tests and
// diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner.Len()
}
