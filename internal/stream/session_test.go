package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auralis/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ChunkDurationSeconds = 1.0
	cfg.CrossfadeDurationSeconds = 0.1
	cfg.ContextLeadSeconds = 0.1
	cfg.ContextTrailSeconds = 0.05
	cfg.DSPWorkerCount = 2
	cfg.LookaheadQueueSize = 2
	cfg.TruePeakOversample = 2
	return cfg
}

func TestLoadTransitionsToReady(t *testing.T) {
	src := newSineSource(3, 220, 44100)
	s := New("sess-1", testConfig(), Deps{})
	err := s.Load(context.Background(), src, "trackA")
	require.NoError(t, err)
	assert.Equal(t, StateReady, s.State())
}

func TestPullNextChunkOrderAndCompletion(t *testing.T) {
	src := newSineSource(3, 220, 44100)
	s := New("sess-2", testConfig(), Deps{})
	require.NoError(t, s.Load(context.Background(), src, "trackB"))

	var got []int
	for {
		chunk, err := s.PullNextChunk(context.Background())
		require.NoError(t, err)
		if chunk == nil {
			break
		}
		got = append(got, chunk.Index)
		assertFiniteChunk(t, chunk)
	}

	require.NotEmpty(t, got)
	for i, idx := range got {
		assert.Equal(t, i, idx)
	}
	assert.Equal(t, StateCompleted, s.State())
}

func TestCancelStopsFurtherPulls(t *testing.T) {
	src := newSineSource(5, 220, 44100)
	s := New("sess-3", testConfig(), Deps{})
	require.NoError(t, s.Load(context.Background(), src, "trackC"))

	_, err := s.PullNextChunk(context.Background())
	require.NoError(t, err)

	s.Cancel()
	assert.Equal(t, StateCancelled, s.State())

	chunk, err := s.PullNextChunk(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestSeekRealignsNextChunkIndex(t *testing.T) {
	src := newSineSource(5, 220, 44100)
	s := New("sess-4", testConfig(), Deps{})
	require.NoError(t, s.Load(context.Background(), src, "trackD"))

	_, err := s.PullNextChunk(context.Background())
	require.NoError(t, err)

	s.Seek(3.0)
	s.mu.Lock()
	idx := s.nextChunkIndex
	tail := s.crossfadeTail
	s.mu.Unlock()

	assert.Equal(t, uint64(3), idx)
	assert.Empty(t, tail)

	chunk, err := s.PullNextChunk(context.Background())
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, 3, chunk.Index)
}

func TestIntensityZeroYieldsPassthroughLikeOutput(t *testing.T) {
	src := newSineSource(2, 220, 44100)
	s := New("sess-5", testConfig(), Deps{})
	require.NoError(t, s.Load(context.Background(), src, "trackE"))
	s.SetIntensity(0)

	chunk, err := s.PullNextChunk(context.Background())
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assertFiniteChunk(t, chunk)

	fadeN := int(fadeInMs / 1000.0 * 44100)
	for i := fadeN; i < len(chunk.PCM.Frames); i++ {
		assert.InDelta(t, src.frames[i].L, chunk.PCM.Frames[i].L, 1e-6)
		assert.InDelta(t, src.frames[i].R, chunk.PCM.Frames[i].R, 1e-6)
	}
}

func assertFiniteChunk(t *testing.T, c *ProcessedChunk) {
	t.Helper()
	for _, f := range c.PCM.Frames {
		assert.False(t, isNaNOrInf(float64(f.L)))
		assert.False(t, isNaNOrInf(float64(f.R)))
	}
}

func isNaNOrInf(v float64) bool {
	return v != v || v > 1e300 || v < -1e300
}
