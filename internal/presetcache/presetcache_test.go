package presetcache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"auralis/internal/target"
	"auralis/internal/trackid"
)

func TestPutGet(t *testing.T) {
	c := New(8)
	key := Key{TrackID: "trackA", Preset: target.Adaptive}
	entry := Entry{Target: target.MasteringTarget{TargetLUFS: -14}}

	c.Put(key, entry)
	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, -14.0, got.Target.TargetLUFS)
}

func TestInvalidateTrackRemovesAllPresets(t *testing.T) {
	c := New(8)
	c.Put(Key{TrackID: "trackA", Preset: target.Adaptive}, Entry{})
	c.Put(Key{TrackID: "trackA", Preset: target.Warm}, Entry{})
	c.Put(Key{TrackID: "trackB", Preset: target.Adaptive}, Entry{})

	c.InvalidateTrack("trackA")

	_, ok := c.Get(Key{TrackID: "trackA", Preset: target.Adaptive})
	assert.False(t, ok)
	_, ok = c.Get(Key{TrackID: "trackA", Preset: target.Warm})
	assert.False(t, ok)
	_, ok = c.Get(Key{TrackID: "trackB", Preset: target.Adaptive})
	assert.True(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c := New(3)
	for i := 0; i < 5; i++ {
		c.Put(Key{TrackID: trackIDFor(i), Preset: target.Adaptive}, Entry{})
	}
	assert.Equal(t, 3, c.Len())
}

func trackIDFor(i int) trackid.ID {
	switch i {
	case 0:
		return "t0"
	case 1:
		return "t1"
	case 2:
		return "t2"
	case 3:
		return "t3"
	default:
		return "t4"
	}
}
