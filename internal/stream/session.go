// Package stream implements the Chunked Stream Engine (C7): the
// component that turns a (TrackId, Preset, intensity, seek_position)
// tuple into a lazy, crossfaded sequence of Processed Chunks. It owns a
// session's processor state, dry/wet gains, and crossfade tails
// exclusively; the Fingerprint Cache and Preset Cache it reads from are
// shared across sessions behind their own synchronization.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"auralis/internal/config"
	"auralis/internal/fingerprint"
	"auralis/internal/fpcache"
	"auralis/internal/hybrid"
	"auralis/internal/logging"
	"auralis/internal/pcm"
	"auralis/internal/presetcache"
	"auralis/internal/target"
	"auralis/internal/trackid"
)

// State is one of the session lifecycle states: Idle, Loading, Ready,
// Streaming, Paused, Seeking, Cancelled, or Completed.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateStreaming
	StatePaused
	StateSeeking
	StateCancelled
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "Loading"
	case StateReady:
		return "Ready"
	case StateStreaming:
		return "Streaming"
	case StatePaused:
		return "Paused"
	case StateSeeking:
		return "Seeking"
	case StateCancelled:
		return "Cancelled"
	case StateCompleted:
		return "Completed"
	default:
		return "Idle"
	}
}

// ProcessedChunk mirrors the data model's Processed Chunk entity.
type ProcessedChunk struct {
	Index         int
	PCM           pcm.AudioBlock
	PeakDbfs       float64
	RMSDbfs        float64
	AppliedTarget target.MasteringTarget
}

// ContentProfile is the read-only observable snapshot exposed to the
// Control Plane for UI display.
type ContentProfile struct {
	LastFingerprint fingerprint.Fingerprint
	Preset          target.Preset
	AppliedTarget   target.MasteringTarget
	Warning         bool
}

// Deps bundles the shared services a Session needs; these are
// constructed once and shared across many sessions.
type Deps struct {
	FingerprintCache fpcache.Store
	PresetCache      *presetcache.Cache
	Logger           *logging.Logger
}

// Session owns one consumer's streaming state. Control operations on a
// session are serialized within that session; a Session must not be
// shared across goroutines driving it as if it were two independent
// consumers.
type Session struct {
	mu sync.Mutex

	id      string
	cfg     config.Config
	deps    Deps
	source  pcm.Source
	trackID trackid.ID
	preset  target.Preset

	intensityVal atomic.Value // float32

	state      State
	cancelled  atomic.Bool
	warning    atomic.Bool

	processor *hybrid.Processor

	chunkFrames     uint64
	crossfadeFrames uint64
	leadFrames      uint64
	trailFrames     uint64
	totalFrames     uint64
	nextChunkIndex  uint64

	crossfadeTail []pcm.Frame // trailing crossfade region of the last emitted chunk, awaiting join

	lookahead *lookaheadPool

	contentProfile ContentProfile
	lastErr        error
}

// New creates a Session in the Idle state. Load must be called before
// streaming begins.
func New(id string, cfg config.Config, deps Deps) *Session {
	s := &Session{
		id:    id,
		cfg:   cfg,
		deps:  deps,
		state: StateIdle,
	}
	s.intensityVal.Store(float32(1.0))
	return s
}

func (s *Session) ID() string { return s.id }

// Load transitions Idle -> Loading -> Ready, opening the PCM source,
// ensuring a fingerprint is cached (extracting on miss), and resolving
// the initial MasteringTarget for the default Adaptive preset. Non-
// blocking in spirit: the heavy work happens synchronously here because
// this engine has no async runtime, but callers are expected to invoke
// Load from a worker goroutine if they want the control-plane call to
// return immediately.
func (s *Session) Load(ctx context.Context, source pcm.Source, id trackid.ID) error {
	s.mu.Lock()
	s.state = StateLoading
	s.source = source
	s.trackID = id
	s.preset = target.Adaptive
	s.mu.Unlock()

	sampleRate := source.SampleRate()
	chunkFrames := evenFrameCount(s.cfg.ChunkDurationSeconds, sampleRate)
	crossfadeFrames := uint64(s.cfg.CrossfadeDurationSeconds * float64(sampleRate))
	leadFrames := uint64(s.cfg.ContextLeadSeconds * float64(sampleRate))
	trailFrames := uint64(s.cfg.ContextTrailSeconds * float64(sampleRate))

	fp, _, err := s.ensureFingerprint(ctx, source, id)
	if err != nil {
		s.mu.Lock()
		s.state = StateCancelled
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.chunkFrames = chunkFrames
	s.totalFrames = source.FrameCount()
	s.mu.Unlock()

	tgt, err := s.resolveTarget(ctx, id, target.Adaptive, fp)
	if err != nil {
		s.mu.Lock()
		s.state = StateCancelled
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkFrames = chunkFrames
	s.crossfadeFrames = crossfadeFrames
	s.leadFrames = leadFrames
	s.trailFrames = trailFrames
	s.totalFrames = source.FrameCount()
	s.nextChunkIndex = 0
	s.processor = hybrid.New(float64(sampleRate), s.cfg.TruePeakOversample)
	s.processor.SetTarget(tgt)
	s.contentProfile = ContentProfile{LastFingerprint: fp, Preset: target.Adaptive, AppliedTarget: tgt}
	s.lookahead = newLookaheadPool(s.cfg.DSPWorkerCount, s.cfg.LookaheadQueueSize)
	s.state = StateReady
	return nil
}

// evenFrameCount converts a duration in seconds to a frame count,
// rounded down to the nearest even number so stereo alignment holds.
func evenFrameCount(seconds float64, sampleRate uint32) uint64 {
	n := uint64(seconds * float64(sampleRate))
	if n%2 != 0 {
		n--
	}
	if n == 0 {
		n = 2
	}
	return n
}

// streamingExtractionThresholdSeconds is the track length above which
// ensureFingerprint reads in bounded windows through a
// fingerprint.StreamingExtractor instead of decoding the whole track
// into one buffer, keeping memory proportional to window size rather
// than track length for long inputs.
const streamingExtractionThresholdSeconds = 120.0

// streamingReadChunkFrames bounds how many frames are pulled into memory
// at once while streaming-extracting a long track.
const streamingReadChunkFrames = 1 << 20

// ensureFingerprint fetches or extracts and persists a fingerprint for
// id, degrading to a zero fingerprint + warning on extraction failure
// rather than failing the session.
func (s *Session) ensureFingerprint(ctx context.Context, source pcm.Source, id trackid.ID) (fingerprint.Fingerprint, float64, error) {
	if s.deps.FingerprintCache != nil {
		if entry, found, err := s.deps.FingerprintCache.Get(ctx, id); err == nil && found {
			return entry.Fingerprint, entry.Confidence, nil
		}
	}

	var result fingerprint.Result
	sampleRate := source.SampleRate()
	durationSeconds := 0.0
	if sampleRate > 0 {
		durationSeconds = float64(source.FrameCount()) / float64(sampleRate)
	}

	if durationSeconds > streamingExtractionThresholdSeconds {
		result = s.streamingAnalyze(source)
	} else {
		block, err := source.ReadFrames(0, source.FrameCount())
		if err != nil {
			s.warning.Store(true)
			return fingerprint.Fingerprint{}, 0.1, nil
		}
		var extractErr error
		result, extractErr = fingerprint.New().Analyze(block)
		if extractErr != nil && result.Reason == fingerprint.FailureNonFinite {
			s.warning.Store(true)
		}
	}

	if s.deps.FingerprintCache != nil {
		_, _ = s.deps.FingerprintCache.Put(ctx, fpcache.Entry{
			TrackID:     id,
			Fingerprint: result.Fingerprint,
			Confidence:  result.Confidence,
			ComputedAt:  time.Now(),
		})
	}
	return result.Fingerprint, result.Confidence, nil
}

// streamingAnalyze feeds source through a fingerprint.StreamingExtractor
// in bounded windows rather than decoding the whole track into memory at
// once. The returned result is the extractor's latest re-aggregation,
// which describes the most recent 30 s window of the track, not the
// whole track.
func (s *Session) streamingAnalyze(source pcm.Source) fingerprint.Result {
	se := fingerprint.NewStreaming(source.SampleRate(), 30.0, 10.0)
	total := source.FrameCount()
	for start := uint64(0); start < total; start += streamingReadChunkFrames {
		block, err := source.ReadFrames(start, streamingReadChunkFrames)
		if err != nil || block.Len() == 0 {
			break
		}
		se.Push(block)
	}
	result := se.Latest()
	if result.Reason == fingerprint.FailureNonFinite {
		s.warning.Store(true)
	}
	return result
}

// resolveTarget consults the Preset Cache, generating and storing a
// fresh MasteringTarget on miss.
func (s *Session) resolveTarget(ctx context.Context, id trackid.ID, preset target.Preset, fp fingerprint.Fingerprint) (target.MasteringTarget, error) {
	if s.deps.PresetCache != nil {
		key := presetcache.Key{TrackID: id, Preset: preset}
		if entry, ok := s.deps.PresetCache.Get(key); ok {
			return entry.Target, nil
		}
	}
	tgt := target.Generate(fp, preset)
	if s.deps.PresetCache != nil {
		descriptors := s.buildChunkDescriptors()
		s.deps.PresetCache.Put(presetcache.Key{TrackID: id, Preset: preset}, presetcache.Entry{
			Target:      tgt,
			Descriptors: descriptors,
		})
	}
	return tgt, nil
}

func (s *Session) buildChunkDescriptors() []presetcache.ChunkDescriptor {
	if s.chunkFrames == 0 || s.totalFrames == 0 {
		return nil
	}
	var out []presetcache.ChunkDescriptor
	for start, idx := uint64(0), 0; start < s.totalFrames; idx++ {
		count := s.chunkFrames
		if start+count > s.totalFrames {
			count = s.totalFrames - start
		}
		out = append(out, presetcache.ChunkDescriptor{
			Index:              idx,
			StartFrame:         start,
			FrameCount:         count,
			HasLeadingContext:  start > 0,
			HasTrailingContext: start+count < s.totalFrames,
		})
		start += count
	}
	return out
}

// SetPreset changes the active preset. It takes effect starting with
// the next chunk whose index is strictly greater than the one currently
// in flight; this engine restricts to one in-flight chunk per session
// (see DESIGN.md), so in practice it takes effect on the very next pull.
func (s *Session) SetPreset(ctx context.Context, preset target.Preset) error {
	s.mu.Lock()
	id := s.trackID
	fp := s.contentProfile.LastFingerprint
	s.mu.Unlock()

	tgt, err := s.resolveTarget(ctx, id, preset, fp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.preset = preset
	s.processor.SetTarget(tgt)
	s.contentProfile.Preset = preset
	s.contentProfile.AppliedTarget = tgt
	return nil
}

// SetIntensity clamps and stores the dry/wet intensity for subsequent
// chunks.
func (s *Session) SetIntensity(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.intensityVal.Store(v)
}

func (s *Session) intensity() float32 {
	return s.intensityVal.Load().(float32)
}

// Cancel sets the cooperative cancellation flag, which the producer
// checks once at the start of each chunk, and stops the lookahead pool.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.mu.Lock()
	if s.lookahead != nil {
		s.lookahead.drop()
	}
	s.state = StateCancelled
	s.mu.Unlock()
}

// ContentProfile returns a read-only snapshot for UI display.
func (s *Session) ContentProfile() ContentProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.contentProfile
	cp.Warning = s.warning.Load()
	return cp
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error that moved the session to Cancelled, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
