package fingerprint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auralis/internal/pcm"
)

func sineBlock(t *testing.T, seconds float64, freqHz float64, sampleRate uint32) pcm.AudioBlock {
	t.Helper()
	n := int(seconds * float64(sampleRate))
	frames := make([]pcm.Frame, n)
	for i := range frames {
		v := float32(0.4 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
		frames[i] = pcm.Frame{L: v, R: v}
	}
	return pcm.AudioBlock{Frames: frames, SampleRate: sampleRate}
}

func TestAnalyzeIsFinite(t *testing.T) {
	e := New()
	block := sineBlock(t, 12, 440, 44100)

	result, err := e.Analyze(block)
	require.NoError(t, err)
	assert.True(t, result.Fingerprint.Finite())
	assert.Greater(t, result.Confidence, 0.5)
}

func TestAnalyzeShortBlockIsLowConfidence(t *testing.T) {
	e := New()
	block := sineBlock(t, 2, 440, 44100)

	result, err := e.Analyze(block)
	require.Error(t, err)
	assert.Less(t, result.Confidence, 0.5)
	assert.True(t, result.Fingerprint.Finite())
}

func TestFrequencyBandsSumToOne(t *testing.T) {
	e := New()
	block := sineBlock(t, 12, 1000, 44100)

	result, err := e.Analyze(block)
	require.NoError(t, err)

	var sum float32
	for _, v := range result.Fingerprint.Frequency {
		sum += v
	}
	assert.InDelta(t, 1.0, float64(sum), 0.05)
}

func TestToVectorFromVectorRoundTrip(t *testing.T) {
	e := New()
	block := sineBlock(t, 12, 440, 44100)
	result, err := e.Analyze(block)
	require.NoError(t, err)

	v := result.Fingerprint.ToVector()
	back := FromVector(v)
	assert.Equal(t, result.Fingerprint, back)
}

func TestAnalyzeDeterministic(t *testing.T) {
	e1 := New()
	e2 := New()
	block := sineBlock(t, 15, 220, 44100)

	r1, err1 := e1.Analyze(block)
	r2, err2 := e2.Analyze(block)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, r1.Fingerprint, r2.Fingerprint)
}

func TestStereoCorrelationForMonoSourceIsOne(t *testing.T) {
	e := New()
	block := sineBlock(t, 12, 440, 44100) // L==R by construction

	result, err := e.Analyze(block)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(result.Fingerprint.Stereo[0]), 0.01)
	assert.InDelta(t, 0.0, float64(result.Fingerprint.Stereo[1]), 0.01)
}

func TestStreamingExtractorAggregates(t *testing.T) {
	s := NewStreaming(44100, 12, 3)
	full := sineBlock(t, 14, 330, 44100)

	chunk := 44100 // 1 second at a time
	for start := 0; start < full.Len(); start += chunk {
		end := start + chunk
		if end > full.Len() {
			end = full.Len()
		}
		s.Push(full.Slice(start, end))
	}

	latest := s.Latest()
	assert.True(t, latest.Fingerprint.Finite())
}
