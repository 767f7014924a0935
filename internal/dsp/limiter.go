package dsp

import (
	"math"

	"auralis/internal/pcm"
	"auralis/internal/target"
)

const defaultLookaheadMs = 5.0

// AdaptiveLimiter is a look-ahead peak limiter enforcing
// target.MaxTruePeakDB. Peak detection oversamples the lookahead
// window (default 4x, configurable) by linear interpolation between
// samples; a linearly interpolated point never exceeds the larger of its
// two neighbouring samples, so the detected peak equals the sample peak
// and inter-sample overs are not detected. A fixed lookahead delay keeps
// output latency constant across blocks so chunk boundaries stay
// sample-continuous.
type AdaptiveLimiter struct {
	sampleRate     float64
	lookaheadN     int
	oversample     int
	buffer         []pcm.Frame
	gain           float64 // current smoothed gain, linear
	maxGainStepDb  float64
}

// NewAdaptiveLimiter builds a limiter stage with defaultLookaheadMs worth
// of delay and the given peak-detection oversampling factor.
func NewAdaptiveLimiter(sampleRate float64, oversample int) *AdaptiveLimiter {
	if oversample < 1 {
		oversample = 4
	}
	lookaheadN := int(defaultLookaheadMs / 1000.0 * sampleRate)
	if lookaheadN < 1 {
		lookaheadN = 1
	}
	buf := make([]pcm.Frame, lookaheadN)
	return &AdaptiveLimiter{
		sampleRate:    sampleRate,
		lookaheadN:    lookaheadN,
		oversample:    oversample,
		buffer:        buf,
		gain:          1.0,
		maxGainStepDb: 3.0,
	}
}

func (l *AdaptiveLimiter) Process(input pcm.AudioBlock, t target.MasteringTarget, warn *Warning) pcm.AudioBlock {
	clean, dirty := sanitizeInput(input)
	warn.mergeDirty(dirty)

	ceilingLin := dbToLinear(t.MaxTruePeakDB)

	l.buffer = append(l.buffer, clean.Frames...)
	emitCount := clean.Len()
	if emitCount > len(l.buffer)-l.lookaheadN {
		emitCount = len(l.buffer) - l.lookaheadN
	}
	if emitCount < 0 {
		emitCount = 0
	}

	out := make([]pcm.Frame, emitCount)
	releaseStep := dbToLinear(l.maxGainStepDb)

	for i := 0; i < emitCount; i++ {
		windowEnd := i + l.lookaheadN
		if windowEnd > len(l.buffer) {
			windowEnd = len(l.buffer)
		}
		peak := l.truePeakInWindow(l.buffer[i:windowEnd])

		desiredGain := 1.0
		if peak > 0 {
			desiredGain = math.Min(1.0, ceilingLin/peak)
		}

		if desiredGain < l.gain {
			l.gain = desiredGain // instant attack: never let a peak through
		} else {
			maxGain := l.gain * releaseStep
			if desiredGain > maxGain {
				desiredGain = maxGain
			}
			l.gain = desiredGain
		}

		f := l.buffer[i]
		out[i] = pcm.Frame{L: f.L * float32(l.gain), R: f.R * float32(l.gain)}
	}

	remaining := len(l.buffer) - emitCount
	newBuf := make([]pcm.Frame, remaining)
	copy(newBuf, l.buffer[emitCount:])
	l.buffer = newBuf

	return pcm.AudioBlock{Frames: out, SampleRate: clean.SampleRate, StartFrame: clean.StartFrame}
}

// truePeakInWindow returns the maximum absolute value across frames and
// oversample points linearly interpolated between each sample pair.
// Because linear interpolation stays between its endpoints, the result
// equals the window's sample peak.
func (l *AdaptiveLimiter) truePeakInWindow(frames []pcm.Frame) float64 {
	if len(frames) == 0 {
		return 0
	}
	peak := 0.0
	for i := 0; i < len(frames); i++ {
		l0, r0 := float64(frames[i].L), float64(frames[i].R)
		peak = math.Max(peak, math.Max(math.Abs(l0), math.Abs(r0)))
		if i+1 >= len(frames) {
			continue
		}
		l1, r1 := float64(frames[i+1].L), float64(frames[i+1].R)
		for s := 1; s < l.oversample; s++ {
			frac := float64(s) / float64(l.oversample)
			il := l0 + (l1-l0)*frac
			ir := r0 + (r1-r0)*frac
			peak = math.Max(peak, math.Max(math.Abs(il), math.Abs(ir)))
		}
	}
	return peak
}
