package dsp

import (
	"math"

	"auralis/internal/pcm"
	"auralis/internal/target"
)

// SoftSaturator is a tanh-based waveshaper whose drive is controlled by
// target.SaturationAmount. tanh is monotonic and has no hard knee, so it
// cannot introduce discontinuities in the output waveform.
type SoftSaturator struct {
	driveSmoothed float64
}

// NewSoftSaturator builds a saturator stage; it has no sample-rate
// dependence since tanh shaping is purely sample-wise.
func NewSoftSaturator() *SoftSaturator {
	return &SoftSaturator{}
}

func (s *SoftSaturator) Process(input pcm.AudioBlock, t target.MasteringTarget, warn *Warning) pcm.AudioBlock {
	clean, dirty := sanitizeInput(input)
	warn.mergeDirty(dirty)

	blockMs := clean.Duration() * 1000.0
	alpha := smoothingAlpha(blockMs, 50)
	s.driveSmoothed += (t.SaturationAmount - s.driveSmoothed) * alpha

	drive := 1.0 + s.driveSmoothed*8.0 // amount in [0,0.5] maps to drive in [1,5]
	normalizer := math.Tanh(drive)    // keeps unity input near unity output at max drive

	out := make([]pcm.Frame, clean.Len())
	for i, f := range clean.Frames {
		out[i] = pcm.Frame{
			L: float32(math.Tanh(float64(f.L)*drive) / normalizer),
			R: float32(math.Tanh(float64(f.R)*drive) / normalizer),
		}
	}
	return pcm.AudioBlock{Frames: out, SampleRate: clean.SampleRate, StartFrame: clean.StartFrame}
}
