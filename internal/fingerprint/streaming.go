package fingerprint

import (
	"auralis/internal/pcm"
)

// StreamingExtractor maintains a bounded ring buffer of recent frames and
// re-aggregates a Fingerprint every aggregateEvery frames pushed. A
// session fingerprinting a track too long to hold fully in memory feeds
// it windows of decoded audio via Push instead of a single full-track
// buffer, trading exactness for a memory footprint bounded by the ring
// size rather than track length.
type StreamingExtractor struct {
	extractor      *Extractor
	ring           []pcm.Frame
	capacity       int
	writeIdx       int
	filled         bool
	sampleRate     uint32
	framesSince    int
	aggregateEvery int
	last           Result
}

// NewStreaming builds a StreamingExtractor holding windowSeconds of audio
// at sampleRate, re-aggregating every aggregateEverySeconds.
func NewStreaming(sampleRate uint32, windowSeconds, aggregateEverySeconds float64) *StreamingExtractor {
	capacity := int(windowSeconds * float64(sampleRate))
	if capacity < fftSize {
		capacity = fftSize
	}
	aggEvery := int(aggregateEverySeconds * float64(sampleRate))
	if aggEvery < hopSize {
		aggEvery = hopSize
	}
	return &StreamingExtractor{
		extractor:      New(),
		ring:           make([]pcm.Frame, capacity),
		capacity:       capacity,
		sampleRate:     sampleRate,
		aggregateEvery: aggEvery,
		last:           Result{Fingerprint: safeDefault(), Confidence: 0.1, Reason: FailureInsufficientAudio},
	}
}

// Push appends block's frames to the ring buffer, wrapping around once
// full, and re-runs Analyze over the current window whenever at least
// aggregateEvery new frames have accumulated since the last aggregation.
func (s *StreamingExtractor) Push(block pcm.AudioBlock) {
	for _, f := range block.Frames {
		s.ring[s.writeIdx] = f
		s.writeIdx = (s.writeIdx + 1) % s.capacity
		if s.writeIdx == 0 {
			s.filled = true
		}
		s.framesSince++
	}
	if s.framesSince >= s.aggregateEvery {
		s.framesSince = 0
		s.reaggregate()
	}
}

func (s *StreamingExtractor) reaggregate() {
	window := s.orderedWindow()
	result, err := s.extractor.Analyze(pcm.AudioBlock{Frames: window, SampleRate: s.sampleRate})
	if err != nil && result.Reason == FailureNone {
		return
	}
	s.last = result
}

// orderedWindow returns the ring buffer's contents in chronological order.
func (s *StreamingExtractor) orderedWindow() []pcm.Frame {
	if !s.filled {
		out := make([]pcm.Frame, s.writeIdx)
		copy(out, s.ring[:s.writeIdx])
		return out
	}
	out := make([]pcm.Frame, s.capacity)
	n := copy(out, s.ring[s.writeIdx:])
	copy(out[n:], s.ring[:s.writeIdx])
	return out
}

// Latest returns the most recently aggregated result.
func (s *StreamingExtractor) Latest() Result { return s.last }
