// Package dsp implements the five DSP Stages (C5): Critical-Band EQ,
// Adaptive Compressor, Soft Saturator, Adaptive Limiter, and Level
// Matcher. Every stage is a stateful block processor with the shared
// shape `Process(state, input, target) -> output`: it never mutates its
// input, always returns a block of the same frame count, and guarantees
// finite output by substituting silence for non-finite input.
package dsp

import (
	"math"

	"auralis/internal/pcm"
	"auralis/internal/target"
)

// sanitizeInput returns a finite copy of block, substituting zero for
// any non-finite frame so a stage never has to special-case NaN/Inf in
// its core math. Reports whether any substitution happened, for the
// session-visible warning flag.
func sanitizeInput(block pcm.AudioBlock) (pcm.AudioBlock, bool) {
	dirty := false
	out := make([]pcm.Frame, block.Len())
	for i, f := range block.Frames {
		l, okL := safeFloat(f.L)
		r, okR := safeFloat(f.R)
		if !okL || !okR {
			dirty = true
		}
		out[i] = pcm.Frame{L: l, R: r}
	}
	return pcm.AudioBlock{Frames: out, SampleRate: block.SampleRate, StartFrame: block.StartFrame}, dirty
}

func safeFloat(v float32) (float32, bool) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return v, true
}

// Warning accumulates whether any stage degraded its output this block,
// so the Hybrid Processor can surface a single session-level flag
// without each stage needing its own channel back to the caller.
type Warning struct {
	NonFiniteInputSubstituted bool
}

func (w *Warning) mergeDirty(dirty bool) {
	if dirty {
		w.NonFiniteInputSubstituted = true
	}
}

// Stage is implemented by every processor in the pipeline.
type Stage interface {
	Process(input pcm.AudioBlock, t target.MasteringTarget, warn *Warning) pcm.AudioBlock
}
