// Package pcm implements the PCM Source (C1): decoding an encoded track
// to a finite, randomly-addressable sequence of interleaved stereo
// float32 frames at a declared sample rate. Only a WAV decoder is
// implemented here, built on github.com/go-audio/wav and
// github.com/go-audio/audio; other container formats are out of scope
// and are a matter of implementing the same Source interface.
package pcm

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/wav"
)

// Frame is one interleaved stereo PCM sample pair, nominally in
// [-1.0, 1.0].
type Frame struct {
	L, R float32
}

// AudioBlock is an immutable, ordered sequence of PCM frames with an
// attached sample rate and a logical start frame index within the track
// it was read from.
type AudioBlock struct {
	Frames     []Frame
	SampleRate uint32
	StartFrame uint64
}

// Len returns the number of frames in the block.
func (b AudioBlock) Len() int { return len(b.Frames) }

// Duration returns the block's length in seconds.
func (b AudioBlock) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(len(b.Frames)) / float64(b.SampleRate)
}

// Slice returns a new AudioBlock over [start, end) of b's frames, with
// StartFrame adjusted accordingly. It shares no backing array mutation
// contract with b beyond Go's normal slice aliasing; callers that intend
// to mutate a slice result should copy first, since stage invariants
// never mutate an input block.
func (b AudioBlock) Slice(start, end int) AudioBlock {
	if start < 0 {
		start = 0
	}
	if end > len(b.Frames) {
		end = len(b.Frames)
	}
	if start > end {
		start = end
	}
	out := make([]Frame, end-start)
	copy(out, b.Frames[start:end])
	return AudioBlock{
		Frames:     out,
		SampleRate: b.SampleRate,
		StartFrame: b.StartFrame + uint64(start),
	}
}

// DecodeErrorKind enumerates the reasons open() can fail.
type DecodeErrorKind int

const (
	DecodeUnsupported DecodeErrorKind = iota
	DecodeCorrupt
	DecodeIO
)

// DecodeError wraps a PCM source open failure with the kind callers
// need to branch on.
type DecodeError struct {
	Kind DecodeErrorKind
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	var kind string
	switch e.Kind {
	case DecodeUnsupported:
		kind = "unsupported"
	case DecodeCorrupt:
		kind = "corrupt"
	default:
		kind = "io"
	}
	return fmt.Sprintf("decode %s (%s): %v", e.Path, kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Source is the contract every concrete decoder implements: random-access
// reads of stereo float32 frames at a declared sample rate.
type Source interface {
	SampleRate() uint32
	ChannelCount() uint8
	FrameCount() uint64
	// ReadFrames returns up to maxFrames frames starting at startFrame.
	// If startFrame >= FrameCount(), it returns an empty block.
	ReadFrames(startFrame uint64, maxFrames uint64) (AudioBlock, error)
	Close() error
}

// WAVSource is a Source backed by a single WAV file, decoded once into a
// stereo frame slice on Open so ReadFrames is a pure slice operation.
// This trades memory for a random-access guarantee; streaming
// multi-gigabyte containers without a full decode is out of scope for
// the single concrete decoder this module ships.
type WAVSource struct {
	mu         sync.Mutex
	path       string
	sampleRate uint32
	channels   uint8
	frames     []Frame
}

// Open decodes path fully into memory and returns a random-access Source.
// Mono files report ChannelCount()==1 here; the decoded frame slice is
// always upmixed to stereo by duplication.
func Open(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Kind: DecodeIO, Path: path, Err: err}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, &DecodeError{Kind: DecodeUnsupported, Path: path, Err: fmt.Errorf("not a valid WAV file")}
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Kind: DecodeCorrupt, Path: path, Err: err}
	}
	if dec.SampleRate == 0 || dec.NumChans == 0 || dec.BitDepth == 0 {
		return nil, &DecodeError{Kind: DecodeCorrupt, Path: path, Err: fmt.Errorf("missing format chunk")}
	}

	channels := int(dec.NumChans)
	maxVal := float32(int(1) << (dec.BitDepth - 1))
	frameN := len(buf.Data) / channels

	frames := make([]Frame, frameN)
	for i := 0; i < frameN; i++ {
		if channels == 1 {
			v := clamp(float32(buf.Data[i]) / maxVal)
			frames[i] = Frame{L: v, R: v}
			continue
		}
		l := clamp(float32(buf.Data[i*channels]) / maxVal)
		r := clamp(float32(buf.Data[i*channels+1]) / maxVal)
		frames[i] = Frame{L: l, R: r}
	}

	return &WAVSource{
		path:       path,
		sampleRate: dec.SampleRate,
		channels:   uint8(dec.NumChans),
		frames:     frames,
	}, nil
}

func (s *WAVSource) SampleRate() uint32  { return s.sampleRate }
func (s *WAVSource) ChannelCount() uint8 { return s.channels }
func (s *WAVSource) FrameCount() uint64  { return uint64(len(s.frames)) }
func (s *WAVSource) Close() error        { return nil }

// ReadFrames returns up to maxFrames frames starting at startFrame,
// clamped to the available range. Concurrent callers serialize on the
// source's mutex, satisfying the "must not be shared without
// serialization" guarantee while still allowing multiple sessions to
// read the same decoded source.
func (s *WAVSource) ReadFrames(startFrame uint64, maxFrames uint64) (AudioBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := uint64(len(s.frames))
	if startFrame >= total {
		return AudioBlock{SampleRate: s.sampleRate, StartFrame: startFrame}, nil
	}
	end := startFrame + maxFrames
	if end > total {
		end = total
	}

	out := make([]Frame, end-startFrame)
	copy(out, s.frames[startFrame:end])
	return AudioBlock{Frames: out, SampleRate: s.sampleRate, StartFrame: startFrame}, nil
}

func clamp(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}
