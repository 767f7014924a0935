package dsp

import (
	"math"

	"auralis/internal/pcm"
	"auralis/internal/target"
)

// AdaptiveCompressor is a single-band dynamics processor whose detector
// mode (Peak, RMS, or Hybrid) is selected per-block by the target.
// Gain reduction uses a stateful envelope follower plus a smoothed
// makeup gain, so repeated processing of identical input converges
// rather than oscillates, satisfying the no-gain-pumping invariant.
type AdaptiveCompressor struct {
	sampleRate float64

	envelope   float64 // current detector envelope, linear
	makeupGain float64 // smoothed makeup gain, linear
}

// NewAdaptiveCompressor builds a compressor stage for sampleRate.
func NewAdaptiveCompressor(sampleRate float64) *AdaptiveCompressor {
	return &AdaptiveCompressor{sampleRate: sampleRate, envelope: 0, makeupGain: 1}
}

func (c *AdaptiveCompressor) Process(input pcm.AudioBlock, t target.MasteringTarget, warn *Warning) pcm.AudioBlock {
	clean, dirty := sanitizeInput(input)
	warn.mergeDirty(dirty)

	thresholdLin := dbToLinear(t.CompressorThresh)
	ratio := t.CompressorRatio
	if ratio < 1 {
		ratio = 1
	}
	attackCoeff := timeConstantCoeff(t.AttackMs, clean.SampleRate)
	releaseCoeff := timeConstantCoeff(t.ReleaseMs, clean.SampleRate)

	out := make([]pcm.Frame, clean.Len())

	for i, f := range clean.Frames {
		detector := detect(f, t.DetectorMode)

		if detector > c.envelope {
			c.envelope += (detector - c.envelope) * attackCoeff
		} else {
			c.envelope += (detector - c.envelope) * releaseCoeff
		}

		gainLin := 1.0
		if c.envelope > thresholdLin && c.envelope > 0 {
			excessDb := linearToDb(c.envelope / thresholdLin)
			reducedDb := excessDb * (1 - 1/ratio)
			gainLin = dbToLinear(-reducedDb)
		}

		// smooth makeup gain towards the instantaneous gain's inverse so
		// average level tracks back towards unity without per-sample jumps
		targetMakeup := 1.0 / math.Max(gainLin, 1e-6)
		c.makeupGain += (targetMakeup - c.makeupGain) * 0.001

		appliedGain := gainLin * math.Sqrt(c.makeupGain)
		out[i] = pcm.Frame{L: f.L * float32(appliedGain), R: f.R * float32(appliedGain)}
	}

	return pcm.AudioBlock{Frames: out, SampleRate: clean.SampleRate, StartFrame: clean.StartFrame}
}

func detect(f pcm.Frame, mode target.DetectorMode) float64 {
	peak := math.Max(math.Abs(float64(f.L)), math.Abs(float64(f.R)))
	rms := math.Sqrt((float64(f.L)*float64(f.L) + float64(f.R)*float64(f.R)) / 2)
	switch mode {
	case target.DetectorPeak:
		return peak
	case target.DetectorRMS:
		return rms
	default: // Hybrid
		return 0.5*peak + 0.5*rms
	}
}

func timeConstantCoeff(ms float64, sampleRate float64) float64 {
	if ms <= 0 {
		return 1
	}
	samples := ms / 1000.0 * sampleRate
	if samples < 1 {
		return 1
	}
	return 1 - math.Exp(-1/samples)
}

func dbToLinear(db float64) float64 { return math.Pow(10, db/20) }

func linearToDb(lin float64) float64 {
	if lin <= 0 {
		return -144
	}
	return 20 * math.Log10(lin)
}
