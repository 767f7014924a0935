// Package control implements the Control Plane (C9): the thin,
// push-based API upstream layers drive a streaming session through —
// create_session, load, set_preset, set_intensity, seek,
// pull_next_chunk, content_profile, cancel —. It is a
// session registry on top of internal/stream; every method other than
// PullNextChunk is idempotent.
package control

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"auralis/internal/config"
	"auralis/internal/fpcache"
	"auralis/internal/logging"
	"auralis/internal/pcm"
	"auralis/internal/presetcache"
	"auralis/internal/stream"
	"auralis/internal/target"
	"auralis/internal/trackid"
	"auralis/internal/xerr"
)

// SessionID identifies one streaming session, generated with
// google/uuid so ids are unique across process restarts, matching the
// teacher's use of uuid for request-scoped identifiers.
type SessionID string

// SourceOpener opens a TrackId into a decodable PCM source; the control
// plane depends on this rather than a concrete decoder so new container
// formats only need a new implementation of this func, not a change
// here.
type SourceOpener func(id trackid.ID) (pcm.Source, error)

// Plane is the process-wide control plane: a registry of sessions plus
// the shared Fingerprint Cache, Preset Cache, and source opener every
// session is built from.
type Plane struct {
	mu       sync.RWMutex
	sessions map[SessionID]*stream.Session

	cfg         config.Config
	fpCache     fpcache.Store
	presetCache *presetcache.Cache
	logger      *logging.Logger
	openSource  SourceOpener
}

// New builds a Plane. fpCache and presetCache may be nil, in which case
// sessions skip caching (every load recomputes a fingerprint and target).
func New(cfg config.Config, fpCache fpcache.Store, presetCache *presetcache.Cache, openSource SourceOpener) *Plane {
	return &Plane{
		sessions:    make(map[SessionID]*stream.Session),
		cfg:         cfg,
		fpCache:     fpCache,
		presetCache: presetCache,
		logger:      logging.New("control"),
		openSource:  openSource,
	}
}

// CreateSession allocates a new session in the Idle state and returns
// its id.
func (p *Plane) CreateSession() SessionID {
	id := SessionID(uuid.NewString())
	sess := stream.New(string(id), p.cfg, stream.Deps{
		FingerprintCache: p.fpCache,
		PresetCache:      p.presetCache,
		Logger:           p.logger.WithSession(string(id)),
	})
	p.mu.Lock()
	p.sessions[id] = sess
	p.mu.Unlock()
	return id
}

func (p *Plane) lookup(id SessionID) (*stream.Session, error) {
	p.mu.RLock()
	sess, ok := p.sessions[id]
	p.mu.RUnlock()
	if !ok {
		return nil, xerr.Newf(xerr.KindInput, "control.lookup", "unknown session %s", id)
	}
	return sess, nil
}

// Load opens trackID's source and transitions the session Loading ->
// Ready. It runs synchronously; callers that want a
// non-blocking call should invoke Load from their own goroutine.
func (p *Plane) Load(ctx context.Context, id SessionID, trackID trackid.ID) error {
	sess, err := p.lookup(id)
	if err != nil {
		return err
	}
	source, err := p.openSource(trackID)
	if err != nil {
		return xerr.New(xerr.KindInput, "control.Load", err)
	}
	return sess.Load(ctx, source, trackID)
}

// SetPreset changes the session's active preset.
func (p *Plane) SetPreset(ctx context.Context, id SessionID, preset target.Preset) error {
	sess, err := p.lookup(id)
	if err != nil {
		return err
	}
	return sess.SetPreset(ctx, preset)
}

// SetIntensity clamps and applies v as the session's dry/wet intensity.
func (p *Plane) SetIntensity(id SessionID, v float32) error {
	sess, err := p.lookup(id)
	if err != nil {
		return err
	}
	sess.SetIntensity(v)
	return nil
}

// Seek realigns the session's chunk cursor to positionSeconds.
func (p *Plane) Seek(id SessionID, positionSeconds float64) error {
	sess, err := p.lookup(id)
	if err != nil {
		return err
	}
	sess.Seek(positionSeconds)
	return nil
}

// PullNextChunk returns the session's next ProcessedChunk, or nil at
// end of stream. The only non-idempotent operation in this API.
func (p *Plane) PullNextChunk(ctx context.Context, id SessionID) (*stream.ProcessedChunk, error) {
	sess, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.PullNextChunk(ctx)
}

// ContentProfile returns a read-only snapshot for UI display.
func (p *Plane) ContentProfile(id SessionID) (stream.ContentProfile, error) {
	sess, err := p.lookup(id)
	if err != nil {
		return stream.ContentProfile{}, err
	}
	return sess.ContentProfile(), nil
}

// Cancel stops the session; at most one further chunk may be returned,
// after which pull_next_chunk reports end-of-stream. Cancellation leaves
// no stream residue behind.
func (p *Plane) Cancel(id SessionID) error {
	sess, err := p.lookup(id)
	if err != nil {
		return err
	}
	sess.Cancel()
	return nil
}

// Close drops every session. Intended for process shutdown; individual
// sessions are expected to be cancelled by their owners beforehand.
func (p *Plane) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sess := range p.sessions {
		sess.Cancel()
		delete(p.sessions, id)
	}
}
