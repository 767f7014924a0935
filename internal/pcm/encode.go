package pcm

import (
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes frames as 16-bit PCM stereo WAV at sampleRate, for
// the CLI's `master` command and for tests that want to inspect output
// with an external player.
func WriteWAV(path string, frames []Frame, sampleRate uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return &DecodeError{Kind: DecodeIO, Path: path, Err: err}
	}
	defer f.Close()

	enc := wav.NewEncoder(f, int(sampleRate), 16, 2, 1)

	const maxVal = float32(1 << 15)
	ints := make([]int, len(frames)*2)
	for i, fr := range frames {
		ints[i*2] = int(clamp(fr.L) * (maxVal - 1))
		ints[i*2+1] = int(clamp(fr.R) * (maxVal - 1))
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{SampleRate: int(sampleRate), NumChannels: 2},
		Data:   ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return &DecodeError{Kind: DecodeIO, Path: path, Err: err}
	}
	return enc.Close()
}
