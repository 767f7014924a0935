// Package wire implements the binary on-wire formats described in the
// data model: the AURC chunk header for processed chunks, and the
// fingerprint cache entry record used by the persistent store. The
// Chunked Stream Engine hands out ProcessedChunk values and does not
// encode AURC frames itself. Both are little-endian and self-describing so a
// reader can validate and skip unknown versions without crashing.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ChunkMagic is the 4-byte tag every Processed Chunk frame starts with.
var ChunkMagic = [4]byte{'A', 'U', 'R', 'C'}

// Chunk flag bits.
const (
	FlagLeadingContextTrimmed uint32 = 1 << 0
	FlagCrossfadeHead         uint32 = 1 << 1
	FlagCrossfadeTail         uint32 = 1 << 2
	FlagWarning               uint32 = 1 << 3
)

const chunkHeaderLen = 4 + 4 + 4 + 4 + 2 + 2 + 4

// ChunkHeader is the fixed-size header preceding every chunk's PCM
// payload on the wire.
type ChunkHeader struct {
	ChunkIndex    uint32
	SampleRate    uint32
	FrameCount    uint32
	BitsPerSample uint16
	Channels      uint16
	Flags         uint32
}

// EncodeChunk serializes header and payload into a single AURC frame.
// payload must already hold frame_count*channels*bits_per_sample/8
// bytes; no validation of that invariant is performed here.
func EncodeChunk(h ChunkHeader, payload []byte) []byte {
	buf := make([]byte, chunkHeaderLen+len(payload))
	copy(buf[0:4], ChunkMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.ChunkIndex)
	binary.LittleEndian.PutUint32(buf[8:12], h.SampleRate)
	binary.LittleEndian.PutUint32(buf[12:16], h.FrameCount)
	binary.LittleEndian.PutUint16(buf[16:18], h.BitsPerSample)
	binary.LittleEndian.PutUint16(buf[18:20], h.Channels)
	binary.LittleEndian.PutUint32(buf[20:24], h.Flags)
	copy(buf[chunkHeaderLen:], payload)
	return buf
}

// DecodeChunk parses an AURC frame, returning the header and a view into
// data's payload bytes (no copy).
func DecodeChunk(data []byte) (ChunkHeader, []byte, error) {
	if len(data) < chunkHeaderLen {
		return ChunkHeader{}, nil, fmt.Errorf("wire: chunk frame too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != string(ChunkMagic[:]) {
		return ChunkHeader{}, nil, fmt.Errorf("wire: bad magic %q", data[0:4])
	}
	h := ChunkHeader{
		ChunkIndex:    binary.LittleEndian.Uint32(data[4:8]),
		SampleRate:    binary.LittleEndian.Uint32(data[8:12]),
		FrameCount:    binary.LittleEndian.Uint32(data[12:16]),
		BitsPerSample: binary.LittleEndian.Uint16(data[16:18]),
		Channels:      binary.LittleEndian.Uint16(data[18:20]),
		Flags:         binary.LittleEndian.Uint32(data[20:24]),
	}
	want := int(h.FrameCount) * int(h.Channels) * int(h.BitsPerSample) / 8
	if len(data)-chunkHeaderLen < want {
		return ChunkHeader{}, nil, fmt.Errorf("wire: payload truncated, want %d got %d", want, len(data)-chunkHeaderLen)
	}
	return h, data[chunkHeaderLen : chunkHeaderLen+want], nil
}

// FingerprintRecordVersion is the current on-disk record version for
// fingerprint cache entries. Readers encountering a higher version must
// skip the entry rather than fail.
const FingerprintRecordVersion uint16 = 1

// VectorLen must match fingerprint.VectorLen; duplicated here as a
// constant (not an import) to keep the wire package dependency-free of
// the fingerprint package's aggregation logic, favoring small leaf
// packages over import cycles.
const VectorLen = 25

// EncodeFingerprintEntry serializes a fingerprint cache entry: version,
// length-prefixed track id, 25 f32 values in band order, confidence,
// computed_at.
func EncodeFingerprintEntry(trackID string, vector [VectorLen]float32, confidence float32, computedAt uint64) []byte {
	idBytes := []byte(trackID)
	size := 2 + 2 + len(idBytes) + VectorLen*4 + 4 + 8
	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint16(buf[off:], FingerprintRecordVersion)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(idBytes)))
	off += 2
	off += copy(buf[off:], idBytes)
	for _, v := range vector {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(confidence))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], computedAt)
	return buf
}

// FingerprintEntry is the decoded form of a fingerprint cache record.
type FingerprintEntry struct {
	Version    uint16
	TrackID    string
	Vector     [VectorLen]float32
	Confidence float32
	ComputedAt uint64
}

// DecodeFingerprintEntry parses a record written by EncodeFingerprintEntry.
// Readers must check Version before trusting the remaining fields; a
// version this package does not recognize is reported as an error so the
// caller can treat the entry as absent rather than misreading it.
func DecodeFingerprintEntry(data []byte) (FingerprintEntry, error) {
	if len(data) < 4 {
		return FingerprintEntry{}, fmt.Errorf("wire: fingerprint record too short")
	}
	off := 0
	version := binary.LittleEndian.Uint16(data[off:])
	off += 2
	if version != FingerprintRecordVersion {
		return FingerprintEntry{}, fmt.Errorf("wire: unrecognized fingerprint record version %d", version)
	}
	idLen := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	if len(data) < off+idLen+VectorLen*4+4+8 {
		return FingerprintEntry{}, fmt.Errorf("wire: fingerprint record truncated")
	}
	id := string(data[off : off+idLen])
	off += idLen

	var vector [VectorLen]float32
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	confidence := math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	computedAt := binary.LittleEndian.Uint64(data[off:])

	return FingerprintEntry{
		Version:    version,
		TrackID:    id,
		Vector:     vector,
		Confidence: confidence,
		ComputedAt: computedAt,
	}, nil
}
