// Package fpcache implements the Fingerprint Cache (C3): a persistent
// key-value store mapping a TrackId to a Fingerprint Entry, bounded on
// disk with LRU eviction, atomic per-key writes, and per-key locking so
// readers never block on unrelated keys. Two backends share the Store
// interface: a local go.etcd.io/bbolt store as an embedded KV store, and
// a networked go.mongodb.org/mongo-driver store for deployments that
// share a cache across machines, using the mongo-driver dependency for
// persistent fingerprint storage rather than a song-metadata database.
package fpcache

import (
	"context"
	"time"

	"auralis/internal/fingerprint"
	"auralis/internal/trackid"
	"auralis/internal/wire"
)

// Entry is the in-memory form of a persisted fingerprint record.
type Entry struct {
	TrackID     trackid.ID
	Fingerprint fingerprint.Fingerprint
	Confidence  float64
	ComputedAt  time.Time
}

// Store is the contract both backends implement. get/put/invalidate
// mirror operations exactly.
type Store interface {
	// Get returns the entry for id and true, or a zero Entry and false
	// on a miss. It never computes a fingerprint itself.
	Get(ctx context.Context, id trackid.ID) (Entry, bool, error)
	// Put writes entry only if no existing entry for its TrackID has
	// confidence >= entry.Confidence, per the "overwrite only on strictly
	// higher confidence" rule. It returns whether the write happened.
	Put(ctx context.Context, entry Entry) (bool, error)
	// Invalidate removes the entry for id, if any.
	Invalidate(ctx context.Context, id trackid.ID) error
	// Stats reports the current entry count and bytes used against the
	// store's configured cap, for CLI and diagnostics use.
	Stats(ctx context.Context) (entryCount int, bytesUsed int64, capBytes int64, err error)
	Close() error
}

func toWireEntry(e Entry) wire.FingerprintEntry {
	return wire.FingerprintEntry{
		Version:    wire.FingerprintRecordVersion,
		TrackID:    string(e.TrackID),
		Vector:     e.Fingerprint.ToVector(),
		Confidence: float32(e.Confidence),
		ComputedAt: uint64(e.ComputedAt.Unix()),
	}
}

func fromWireEntry(w wire.FingerprintEntry) Entry {
	return Entry{
		TrackID:     trackid.ID(w.TrackID),
		Fingerprint: fingerprint.FromVector(w.Vector),
		Confidence:  float64(w.Confidence),
		ComputedAt:  time.Unix(int64(w.ComputedAt), 0),
	}
}
