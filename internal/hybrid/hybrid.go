// Package hybrid implements the Hybrid Processor (C6): a thin
// orchestrator holding one instance of each DSP stage's persistent
// state per session, running the pipeline in order, and mixing the
// fully-processed ("wet") result back with the dry input by intensity
// using an equal-power crossfade.
package hybrid

import (
	"math"
	"sync"
	"time"

	"auralis/internal/dsp"
	"auralis/internal/pcm"
	"auralis/internal/target"
)

// targetInterpolationMs is how long set_target gives the stages to
// interpolate towards new parameters.
const targetInterpolationMs = 50.0

// Processor runs the five DSP stages in order and mixes wet against dry
// by intensity. It holds no audio data of its own beyond stage state.
type Processor struct {
	mu sync.Mutex

	sampleRate float64
	eq         *dsp.CriticalBandEQ
	compressor *dsp.AdaptiveCompressor
	saturator  *dsp.SoftSaturator
	limiter    *dsp.AdaptiveLimiter
	levelMatch *dsp.LevelMatcher

	currentTarget  target.MasteringTarget
	targetSetAt    time.Time
	lastWarning    dsp.Warning
}

// New builds a Processor for sampleRate with every stage at its default
// (pass-through-ish) initial state.
func New(sampleRate float64, trueOversample int) *Processor {
	return &Processor{
		sampleRate: sampleRate,
		eq:         dsp.NewCriticalBandEQ(sampleRate),
		compressor: dsp.NewAdaptiveCompressor(sampleRate),
		saturator:  dsp.NewSoftSaturator(),
		limiter:    dsp.NewAdaptiveLimiter(sampleRate, trueOversample),
		levelMatch: dsp.NewLevelMatcher(),
	}
}

// SetTarget atomically swaps the active MasteringTarget. Stages pick up
// the new values on their next Process call; the EQ's gain smoothing and
// the saturator's drive smoothing interpolate over roughly
// targetInterpolationMs, so this call itself does nothing more
// than record the swap.
func (p *Processor) SetTarget(t target.MasteringTarget) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentTarget = t
	p.targetSetAt = time.Now()
}

// Target returns the currently active MasteringTarget.
func (p *Processor) Target() target.MasteringTarget {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTarget
}

// LastWarning reports whether the most recent Process call had to
// substitute silence for non-finite input in any stage.
func (p *Processor) LastWarning() dsp.Warning {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastWarning
}

// Process runs the pipeline end to end and mixes the wet result with
// the dry input per intensity using an equal-power crossfade, so gain
// stays constant across the full [0,1] range instead of dipping at 0.5.
func (p *Processor) Process(input pcm.AudioBlock, intensity float32) pcm.AudioBlock {
	p.mu.Lock()
	t := p.currentTarget
	eq := p.eq
	compressor := p.compressor
	saturator := p.saturator
	limiter := p.limiter
	levelMatch := p.levelMatch
	p.mu.Unlock()

	warn := &dsp.Warning{}
	wet := eq.Process(input, t, warn)
	wet = compressor.Process(wet, t, warn)
	wet = saturator.Process(wet, t, warn)
	wet = limiter.Process(wet, t, warn)
	wet = levelMatch.Process(wet, t, warn)

	p.mu.Lock()
	p.lastWarning = *warn
	p.mu.Unlock()

	return mix(input, wet, intensity)
}

// mix performs an equal-power crossfade between dry and wet per frame,
// with gain cos(π·i/2) on dry and sin(π·i/2) on wet, whose squares sum
// to 1 so total power stays constant across the full intensity range.
func mix(dry, wet pcm.AudioBlock, intensity float32) pcm.AudioBlock {
	n := dry.Len()
	if wet.Len() < n {
		n = wet.Len()
	}
	clamped := intensity
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 1 {
		clamped = 1
	}
	theta := float64(clamped) * math.Pi / 2
	dryGain := float32(math.Cos(theta))
	wetGain := float32(math.Sin(theta))

	out := make([]pcm.Frame, n)
	for i := 0; i < n; i++ {
		d := dry.Frames[i]
		w := wet.Frames[i]
		out[i] = pcm.Frame{
			L: d.L*dryGain + w.L*wetGain,
			R: d.R*dryGain + w.R*wetGain,
		}
	}
	return pcm.AudioBlock{Frames: out, SampleRate: dry.SampleRate, StartFrame: dry.StartFrame}
}

// ResetEnvelopes replaces the compressor and limiter state with fresh
// defaults, used after a seek so the next chunk doesn't inherit a
// pumped envelope from far-away audio.
func (p *Processor) ResetEnvelopes(oversample int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.compressor = dsp.NewAdaptiveCompressor(p.sampleRate)
	p.limiter = dsp.NewAdaptiveLimiter(p.sampleRate, oversample)
}
