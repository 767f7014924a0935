package stream

import (
	"context"
	"math"

	"auralis/internal/pcm"
)

// fadeInMs is the short fade applied to chunk 0 when it has no
// crossfade tail to blend against. A chunk after a seek that has no
// tail gets no fade.
const fadeInMs = 20.0

// StreamError reports why a session can no longer produce chunks.
type StreamError struct {
	Reason string
	Cause  error
}

func (e *StreamError) Error() string { return e.Reason + ": " + e.Cause.Error() }
func (e *StreamError) Unwrap() error { return e.Cause }

// lookaheadPool runs a single background producer goroutine per session
// that renders chunks strictly in index order into a bounded channel.
//
// The DSP stage chain in internal/hybrid is stateful and order-dependent
// (the compressor's envelope, the limiter's lookahead buffer, the level
// matcher's cumulative loudness meter all carry across calls), so two
// chunks of the same session can never be processed concurrently without
// either snapshotting and restoring that state at every chunk boundary,
// or accepting that speculative work only ever has one chunk in flight.
// This engine takes the second option: the worker-pool size in
// config.Config.DSPWorkerCount bounds how many sessions may have an
// active producer goroutine at once (acquired via a semaphore), not how
// many chunks of a single session process in parallel. See DESIGN.md.
type lookaheadPool struct {
	sem     chan struct{}
	results chan chunkResult
	cancel  chan struct{}
	done    chan struct{}
}

type chunkResult struct {
	chunk *ProcessedChunk
	err   error
}

func newLookaheadPool(workers, queueSize int) *lookaheadPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &lookaheadPool{
		sem:     make(chan struct{}, workers),
		results: make(chan chunkResult, queueSize),
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// drop stops the producer and discards any buffered results, used on
// Cancel and on seek (where every queued chunk is stale).
func (p *lookaheadPool) drop() {
	select {
	case <-p.cancel:
	default:
		close(p.cancel)
	}
}

// start launches the producer goroutine, which calls produce(idx) for
// consecutive indices starting at startIndex until produce returns
// ok=false (end of track) or the pool is cancelled.
func (p *lookaheadPool) start(startIndex uint64, produce func(idx uint64, stale <-chan struct{}) (*ProcessedChunk, bool, error)) {
	go func() {
		defer close(p.done)
		idx := startIndex
		for {
			select {
			case p.sem <- struct{}{}:
			case <-p.cancel:
				return
			}
			chunk, ok, err := produce(idx, p.cancel)
			<-p.sem

			select {
			case <-p.cancel:
				return
			default:
			}

			if err != nil {
				p.results <- chunkResult{err: err}
				return
			}
			if !ok {
				close(p.results)
				return
			}
			select {
			case p.results <- chunkResult{chunk: chunk}:
			case <-p.cancel:
				return
			}
			idx++
		}
	}()
}

// PullNextChunk returns the next ProcessedChunk for the session, or
// nil, nil at end of track or after Cancel. A session stopped by a
// stream error keeps returning that error. It is the only non-idempotent
// control-plane operation: each call advances the session's read position.
func (s *Session) PullNextChunk(ctx context.Context) (*ProcessedChunk, error) {
	s.mu.Lock()
	if s.state == StateCancelled {
		err := s.lastErr
		s.mu.Unlock()
		return nil, err
	}
	if s.state == StateCompleted {
		s.mu.Unlock()
		return nil, nil
	}
	pool := s.lookahead
	if s.state == StateReady {
		s.state = StateStreaming
		startIdx := s.nextChunkIndex
		s.mu.Unlock()
		pool.start(startIdx, s.produceChunk)
	} else {
		s.mu.Unlock()
	}

	select {
	case res, open := <-pool.results:
		if !open {
			s.mu.Lock()
			s.state = StateCompleted
			s.mu.Unlock()
			return nil, nil
		}
		if res.err != nil {
			s.mu.Lock()
			s.state = StateCancelled
			s.lastErr = res.err
			s.mu.Unlock()
			return nil, res.err
		}
		s.mu.Lock()
		s.nextChunkIndex++
		s.mu.Unlock()
		return res.chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// produceChunk reads, fingerprints-refreshes (rarely), DSP-processes and
// crossfades the chunk at idx. It is called only from the lookahead
// pool's single producer goroutine for this session, so it may freely
// touch the session's stateful processor without additional locking
// beyond what reading s.* fields under s.mu requires.
func (s *Session) produceChunk(idx uint64, stale <-chan struct{}) (*ProcessedChunk, bool, error) {
	if s.cancelled.Load() {
		return nil, false, nil
	}

	s.mu.Lock()
	start, count, _, _ := s.descriptorAt(idx)
	intensity := s.intensity()
	s.mu.Unlock()

	if count == 0 {
		return nil, false, nil
	}

	raw, lead, trail, err := s.readWithContext(start, count)
	if err != nil {
		raw, lead, trail, err = s.readWithContext(start, count)
		if err != nil {
			return nil, false, &StreamError{Reason: "chunk_io_failed", Cause: err}
		}
	}

	sanitized, substituted := sanitizeBlock(raw)
	if substituted {
		s.warning.Store(true)
	}

	s.mu.Lock()
	processor := s.processor
	s.mu.Unlock()

	wet := processor.Process(sanitized, intensity)
	if processor.LastWarning().NonFiniteInputSubstituted {
		s.warning.Store(true)
	}
	trimmed := trimContext(wet, lead, trail)

	select {
	case <-stale:
		return nil, false, nil
	default:
	}

	s.mu.Lock()
	tail := s.crossfadeTail
	crossfadeN := int(s.crossfadeFrames)
	sampleRate := trimmed.SampleRate
	s.mu.Unlock()

	frames := make([]pcm.Frame, len(trimmed.Frames))
	copy(frames, trimmed.Frames)

	if len(tail) > 0 {
		crossfadeInPlace(tail, frames)
	} else if idx == 0 {
		n := int(fadeInMs / 1000.0 * float64(sampleRate))
		startFadeIn(frames, n)
	}

	newTailLen := crossfadeN
	if newTailLen > len(frames) {
		newTailLen = len(frames)
	}
	nextTail := make([]pcm.Frame, newTailLen)
	copy(nextTail, frames[len(frames)-newTailLen:])

	s.mu.Lock()
	s.crossfadeTail = nextTail
	s.mu.Unlock()

	peak, rms := peakAndRMS(frames)

	chunk := &ProcessedChunk{
		Index:         int(idx),
		PCM:           pcm.AudioBlock{Frames: frames, SampleRate: sampleRate, StartFrame: start},
		PeakDbfs:      peak,
		RMSDbfs:       rms,
		AppliedTarget: processor.Target(),
	}
	return chunk, true, nil
}

// Seek invalidates queued lookahead work, resets the DSP stages'
// envelopes (so the next chunk doesn't inherit state carried from
// far-away audio), clears the crossfade tail, and realigns the next
// chunk index to the one containing positionSeconds.
func (s *Session) Seek(positionSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookahead != nil {
		s.lookahead.drop()
	}

	frame := uint64(positionSeconds * float64(s.source.SampleRate()))
	idx := uint64(0)
	if s.chunkFrames > 0 {
		idx = frame / s.chunkFrames
	}

	s.state = StateSeeking
	s.nextChunkIndex = idx
	s.crossfadeTail = nil
	if s.processor != nil {
		s.processor.ResetEnvelopes(s.cfg.TruePeakOversample)
	}
	s.lookahead = newLookaheadPool(s.cfg.DSPWorkerCount, s.cfg.LookaheadQueueSize)
	s.state = StateReady
}

// sanitizeBlock replaces any non-finite frame with silence, reporting
// whether a substitution occurred, per the degraded-output failure path
// in  (DSP stages never panic or propagate NaN/Inf downstream).
func sanitizeBlock(block pcm.AudioBlock) (pcm.AudioBlock, bool) {
	dirty := false
	out := make([]pcm.Frame, len(block.Frames))
	for i, f := range block.Frames {
		l, okL := finite(f.L)
		r, okR := finite(f.R)
		if !okL || !okR {
			dirty = true
		}
		out[i] = pcm.Frame{L: l, R: r}
	}
	return pcm.AudioBlock{Frames: out, SampleRate: block.SampleRate, StartFrame: block.StartFrame}, dirty
}

func finite(v float32) (float32, bool) {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0, false
	}
	return v, true
}

func peakAndRMS(frames []pcm.Frame) (peakDbfs, rmsDbfs float64) {
	var peak float64
	var sumSquares float64
	for _, f := range frames {
		al, ar := math.Abs(float64(f.L)), math.Abs(float64(f.R))
		if al > peak {
			peak = al
		}
		if ar > peak {
			peak = ar
		}
		sumSquares += float64(f.L)*float64(f.L) + float64(f.R)*float64(f.R)
	}
	if peak <= 0 {
		peakDbfs = -120
	} else {
		peakDbfs = 20 * math.Log10(peak)
	}
	if len(frames) == 0 {
		return peakDbfs, -120
	}
	ms := sumSquares / float64(2*len(frames))
	if ms <= 0 {
		rmsDbfs = -120
	} else {
		rmsDbfs = 10 * math.Log10(ms)
	}
	return peakDbfs, rmsDbfs
}
