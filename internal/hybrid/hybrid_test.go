package hybrid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auralis/internal/fingerprint"
	"auralis/internal/pcm"
	"auralis/internal/target"
)

func testBlock(n int) pcm.AudioBlock {
	frames := make([]pcm.Frame, n)
	for i := range frames {
		v := float32(0.4 * math.Sin(2*math.Pi*440*float64(i)/44100))
		frames[i] = pcm.Frame{L: v, R: v}
	}
	return pcm.AudioBlock{Frames: frames, SampleRate: 44100}
}

func TestProcessPreservesSampleCount(t *testing.T) {
	p := New(44100, 4)
	p.SetTarget(target.Generate(fingerprint.Fingerprint{Frequency: [7]float32{1, 0, 0, 0, 0, 0, 0}}, target.Adaptive))

	block := testBlock(4096)
	out := p.Process(block, 1.0)
	require.Equal(t, block.Len(), out.Len())
}

func TestZeroIntensityIsDry(t *testing.T) {
	p := New(44100, 4)
	var fp fingerprint.Fingerprint
	fp.Frequency = [7]float32{0.05, 0.05, 0.6, 0.1, 0.1, 0.05, 0.05}
	fp.Dynamics = [3]float32{-10, 4, 0.2}
	p.SetTarget(target.Generate(fp, target.Adaptive))

	block := testBlock(4096)
	out := p.Process(block, 0.0)
	for i := range block.Frames {
		assert.InDelta(t, block.Frames[i].L, out.Frames[i].L, 1e-5)
	}
}

func TestMixIsEqualPower(t *testing.T) {
	dry := pcm.AudioBlock{Frames: []pcm.Frame{{L: 1, R: 1}}, SampleRate: 44100}
	wet := pcm.AudioBlock{Frames: []pcm.Frame{{L: 0, R: 0}}, SampleRate: 44100}

	out := mix(dry, wet, 0.5)
	power := float64(out.Frames[0].L)*float64(out.Frames[0].L) + float64(out.Frames[0].R)*float64(out.Frames[0].R)
	assert.InDelta(t, 1.0, power, 0.05)
}
