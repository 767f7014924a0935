package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auralis/internal/fingerprint"
	"auralis/internal/pcm"
	"auralis/internal/target"
)

func testBlock(n int, freqHz, sampleRate float64) pcm.AudioBlock {
	frames := make([]pcm.Frame, n)
	for i := range frames {
		v := float32(0.5 * math.Sin(2*math.Pi*freqHz*float64(i)/sampleRate))
		frames[i] = pcm.Frame{L: v, R: v}
	}
	return pcm.AudioBlock{Frames: frames, SampleRate: uint32(sampleRate)}
}

func defaultTarget() target.MasteringTarget {
	return target.Generate(sampleFingerprintForDSP(), target.Adaptive)
}

func sampleFingerprintForDSP() (fp fingerprint.Fingerprint) {
	fp.Frequency = [7]float32{0.1, 0.15, 0.2, 0.2, 0.15, 0.1, 0.1}
	fp.Dynamics = [3]float32{-16, 9, 0.4}
	fp.Temporal = [4]float32{120, 2, 0.5, 0.3}
	fp.Spectral = [3]float32{2500, 8000, 0.4}
	fp.Harmonic = [3]float32{0.6, 0.7, 0.5}
	fp.Variation = [3]float32{3, 0.2, 4}
	fp.Stereo = [2]float32{0.8, 0.6}
	return fp
}

func TestEQPreservesFrameCountAndFinite(t *testing.T) {
	eq := NewCriticalBandEQ(44100)
	block := testBlock(4096, 440, 44100)
	warn := &Warning{}

	out := eq.Process(block, defaultTarget(), warn)
	require.Equal(t, block.Len(), out.Len())
	assertFinite(t, out)
}

func TestCompressorConverges(t *testing.T) {
	comp := NewAdaptiveCompressor(44100)
	block := testBlock(44100, 200, 44100)
	tgt := defaultTarget()
	tgt.CompressorThresh = -20
	tgt.CompressorRatio = 4

	var rmsValues []float64
	for i := 0; i < 12; i++ {
		warn := &Warning{}
		out := comp.Process(block, tgt, warn)
		rmsValues = append(rmsValues, blockRMS(out))
	}

	var maxDelta float64
	for i := len(rmsValues) - 10; i < len(rmsValues); i++ {
		for j := i + 1; j < len(rmsValues); j++ {
			deltaDb := math.Abs(20 * math.Log10(rmsValues[i]/rmsValues[j]))
			if deltaDb > maxDelta {
				maxDelta = deltaDb
			}
		}
	}
	assert.Less(t, maxDelta, 0.08)
}

func TestSaturatorIsMonotonic(t *testing.T) {
	sat := NewSoftSaturator()
	tgt := defaultTarget()
	tgt.SaturationAmount = 0.4

	prev := -1.0
	for i := 0; i < 100; i++ {
		v := float32(-1.0 + 2.0*float64(i)/99.0)
		block := pcm.AudioBlock{Frames: []pcm.Frame{{L: v, R: v}}, SampleRate: 44100}
		warn := &Warning{}
		out := sat.Process(block, tgt, warn)
		cur := float64(out.Frames[0].L)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestLimiterEnforcesCeiling(t *testing.T) {
	lim := NewAdaptiveLimiter(44100, 4)
	tgt := defaultTarget()
	tgt.MaxTruePeakDB = -1.0

	block := testBlock(44100, 1000, 44100)
	for i := range block.Frames {
		block.Frames[i].L *= 4
		block.Frames[i].R *= 4
	}

	ceilingLin := math.Pow(10, tgt.MaxTruePeakDB/20)
	for i := 0; i < 5; i++ {
		warn := &Warning{}
		out := lim.Process(block, tgt, warn)
		for _, f := range out.Frames {
			assert.LessOrEqual(t, math.Abs(float64(f.L)), ceilingLin*1.01)
			assert.LessOrEqual(t, math.Abs(float64(f.R)), ceilingLin*1.01)
		}
	}
}

func TestLevelMatcherConvergesToTarget(t *testing.T) {
	lm := NewLevelMatcher()
	tgt := defaultTarget()
	tgt.TargetLUFS = -14

	block := testBlock(44100, 300, 44100)
	var out pcm.AudioBlock
	for i := 0; i < 2000; i++ {
		warn := &Warning{}
		out = lm.Process(block, tgt, warn)
	}
	lufs := 20*math.Log10(math.Sqrt(blockMeanSquare(out))) - 0.691
	assert.InDelta(t, tgt.TargetLUFS, lufs, 1.0)
}

func blockRMS(b pcm.AudioBlock) float64 {
	return math.Sqrt(blockMeanSquare(b))
}

func blockMeanSquare(b pcm.AudioBlock) float64 {
	var sum float64
	for _, f := range b.Frames {
		sum += float64(f.L)*float64(f.L) + float64(f.R)*float64(f.R)
	}
	if b.Len() == 0 {
		return 0
	}
	return sum / float64(2*b.Len())
}

func assertFinite(t *testing.T, b pcm.AudioBlock) {
	t.Helper()
	for _, f := range b.Frames {
		assert.False(t, math.IsNaN(float64(f.L)) || math.IsInf(float64(f.L), 0))
		assert.False(t, math.IsNaN(float64(f.R)) || math.IsInf(float64(f.R), 0))
	}
}
