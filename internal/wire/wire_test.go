package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRoundTrip(t *testing.T) {
	h := ChunkHeader{
		ChunkIndex:    7,
		SampleRate:    44100,
		FrameCount:    3,
		BitsPerSample: 16,
		Channels:      2,
		Flags:         FlagCrossfadeHead | FlagWarning,
	}
	payload := make([]byte, int(h.FrameCount)*int(h.Channels)*int(h.BitsPerSample)/8)
	for i := range payload {
		payload[i] = byte(i)
	}

	frame := EncodeChunk(h, payload)
	gotHeader, gotPayload, err := DecodeChunk(frame)
	require.NoError(t, err)
	assert.Equal(t, h, gotHeader)
	assert.Equal(t, payload, gotPayload)
}

func TestDecodeChunkRejectsBadMagic(t *testing.T) {
	data := make([]byte, chunkHeaderLen)
	_, _, err := DecodeChunk(data)
	assert.Error(t, err)
}

func TestDecodeChunkRejectsTruncatedPayload(t *testing.T) {
	h := ChunkHeader{ChunkIndex: 0, SampleRate: 44100, FrameCount: 10, BitsPerSample: 16, Channels: 2}
	frame := EncodeChunk(h, make([]byte, 40))
	_, _, err := DecodeChunk(frame[:len(frame)-5])
	assert.Error(t, err)
}

func TestFingerprintEntryRoundTrip(t *testing.T) {
	var vec [VectorLen]float32
	for i := range vec {
		vec[i] = float32(i) * 0.1
	}
	data := EncodeFingerprintEntry("track-123", vec, 0.87, 1732000000)

	entry, err := DecodeFingerprintEntry(data)
	require.NoError(t, err)
	assert.Equal(t, "track-123", entry.TrackID)
	assert.Equal(t, vec, entry.Vector)
	assert.InDelta(t, 0.87, entry.Confidence, 1e-6)
	assert.EqualValues(t, 1732000000, entry.ComputedAt)
}

func TestDecodeFingerprintEntryRejectsUnknownVersion(t *testing.T) {
	data := EncodeFingerprintEntry("t", [VectorLen]float32{}, 0.5, 1)
	data[0] = 0xff // corrupt version byte low
	_, err := DecodeFingerprintEntry(data)
	assert.Error(t, err)
}
