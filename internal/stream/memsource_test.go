package stream

import (
	"math"

	"auralis/internal/pcm"
)

// memSource is an in-memory pcm.Source generating a pure sine tone, used
// so stream tests don't depend on decoding a real WAV file.
type memSource struct {
	sampleRate uint32
	frames     []pcm.Frame
}

func newSineSource(seconds float64, freqHz float64, sampleRate uint32) *memSource {
	n := int(seconds * float64(sampleRate))
	frames := make([]pcm.Frame, n)
	for i := range frames {
		v := float32(0.3 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
		frames[i] = pcm.Frame{L: v, R: v}
	}
	return &memSource{sampleRate: sampleRate, frames: frames}
}

func (m *memSource) SampleRate() uint32  { return m.sampleRate }
func (m *memSource) ChannelCount() uint8 { return 2 }
func (m *memSource) FrameCount() uint64  { return uint64(len(m.frames)) }
func (m *memSource) Close() error        { return nil }

func (m *memSource) ReadFrames(start, maxFrames uint64) (pcm.AudioBlock, error) {
	total := uint64(len(m.frames))
	if start >= total {
		return pcm.AudioBlock{SampleRate: m.sampleRate, StartFrame: start}, nil
	}
	end := start + maxFrames
	if end > total {
		end = total
	}
	out := make([]pcm.Frame, end-start)
	copy(out, m.frames[start:end])
	return pcm.AudioBlock{Frames: out, SampleRate: m.sampleRate, StartFrame: start}, nil
}
