package dsp

import (
	"math"

	"auralis/internal/pcm"
	"auralis/internal/target"
)

// LevelMatcher is the final stage: a stateful LUFS meter shared across
// the session whose integrated reading converges towards
// target.TargetLUFS, applying a per-block correction capped at ±0.25 dB
// to avoid audible pumping.
type LevelMatcher struct {
	sumSquares   float64
	sampleCount  float64
	currentGainDb float64
}

const maxCorrectionDbPerBlock = 0.25

// NewLevelMatcher builds a level matcher stage.
func NewLevelMatcher() *LevelMatcher {
	return &LevelMatcher{}
}

func (m *LevelMatcher) Process(input pcm.AudioBlock, t target.MasteringTarget, warn *Warning) pcm.AudioBlock {
	clean, dirty := sanitizeInput(input)
	warn.mergeDirty(dirty)

	// The session meter tracks the pre-gain (raw) loudness of everything
	// seen so far, so it reflects the source material rather than this
	// stage's own correction.
	for _, f := range clean.Frames {
		m.sumSquares += float64(f.L)*float64(f.L) + float64(f.R)*float64(f.R)
		m.sampleCount += 2
	}

	rawLufs := -70.0
	if m.sampleCount > 0 && m.sumSquares > 0 {
		meanSquare := m.sumSquares / m.sampleCount
		rawLufs = 20*math.Log10(math.Sqrt(meanSquare)) - 0.691
	}

	// Projected loudness if the currently applied gain were left
	// unchanged; driving this to target_lufs is what "converges over
	// time" means without re-measuring the already-gained signal.
	projectedLufs := rawLufs + m.currentGainDb
	errorDb := t.TargetLUFS - projectedLufs
	correction := clampAbs(errorDb, maxCorrectionDbPerBlock)
	m.currentGainDb += correction

	gainLin := dbToLinear(m.currentGainDb)

	out := make([]pcm.Frame, clean.Len())
	for i, f := range clean.Frames {
		out[i] = pcm.Frame{L: f.L * float32(gainLin), R: f.R * float32(gainLin)}
	}
	return pcm.AudioBlock{Frames: out, SampleRate: clean.SampleRate, StartFrame: clean.StartFrame}
}

func clampAbs(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}
