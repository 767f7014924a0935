package control

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auralis/internal/config"
	"auralis/internal/pcm"
	"auralis/internal/presetcache"
	"auralis/internal/target"
	"auralis/internal/trackid"
)

type memSource struct {
	sampleRate uint32
	frames     []pcm.Frame
}

func newSineSource(seconds, freqHz float64, sampleRate uint32) *memSource {
	n := int(seconds * float64(sampleRate))
	frames := make([]pcm.Frame, n)
	for i := range frames {
		v := float32(0.3 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
		frames[i] = pcm.Frame{L: v, R: v}
	}
	return &memSource{sampleRate: sampleRate, frames: frames}
}

func (m *memSource) SampleRate() uint32  { return m.sampleRate }
func (m *memSource) ChannelCount() uint8 { return 2 }
func (m *memSource) FrameCount() uint64  { return uint64(len(m.frames)) }
func (m *memSource) Close() error        { return nil }
func (m *memSource) ReadFrames(start, maxFrames uint64) (pcm.AudioBlock, error) {
	total := uint64(len(m.frames))
	if start >= total {
		return pcm.AudioBlock{SampleRate: m.sampleRate, StartFrame: start}, nil
	}
	end := start + maxFrames
	if end > total {
		end = total
	}
	out := make([]pcm.Frame, end-start)
	copy(out, m.frames[start:end])
	return pcm.AudioBlock{Frames: out, SampleRate: m.sampleRate, StartFrame: start}, nil
}

func testPlane() *Plane {
	cfg := config.Default()
	cfg.ChunkDurationSeconds = 1.0
	cfg.CrossfadeDurationSeconds = 0.1
	cfg.ContextLeadSeconds = 0.1
	cfg.ContextTrailSeconds = 0.05
	return New(cfg, nil, presetcache.New(64), func(id trackid.ID) (pcm.Source, error) {
		return newSineSource(3, 220, 44100), nil
	})
}

func TestCreateLoadAndPullChunk(t *testing.T) {
	p := testPlane()
	id := p.CreateSession()
	require.NoError(t, p.Load(context.Background(), id, "trackA"))

	chunk, err := p.PullNextChunk(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, 0, chunk.Index)
}

func TestUnknownSessionErrors(t *testing.T) {
	p := testPlane()
	_, err := p.PullNextChunk(context.Background(), "bogus")
	assert.Error(t, err)
}

func TestSetPresetAppliesToProfile(t *testing.T) {
	p := testPlane()
	id := p.CreateSession()
	require.NoError(t, p.Load(context.Background(), id, "trackB"))

	require.NoError(t, p.SetPreset(context.Background(), id, target.Warm))
	profile, err := p.ContentProfile(id)
	require.NoError(t, err)
	assert.Equal(t, target.Warm, profile.Preset)
}

func TestCancelEndsStream(t *testing.T) {
	p := testPlane()
	id := p.CreateSession()
	require.NoError(t, p.Load(context.Background(), id, "trackC"))

	require.NoError(t, p.Cancel(id))
	chunk, err := p.PullNextChunk(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestSetIntensityOutOfRangeStillStreams(t *testing.T) {
	p := testPlane()
	id := p.CreateSession()
	require.NoError(t, p.Load(context.Background(), id, "trackD"))
	require.NoError(t, p.SetIntensity(id, 5.0))

	chunk, err := p.PullNextChunk(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, chunk)
}
