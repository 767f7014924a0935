package fpcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"auralis/internal/trackid"
	"auralis/internal/wire"
	"auralis/internal/xerr"
)

var (
	entriesBucket   = []byte("fingerprints")
	lastAccessBucket = []byte("last_access")
)

// BoltStore is the default local Store backend: a single bbolt file with
// one bucket for encoded entries and a second tracking last-access time
// for LRU eviction. bbolt's single-writer transactions give write
// atomicity for free, satisfying the "readers never see a torn value"
// requirement without any extra journaling.
type BoltStore struct {
	db       *bbolt.DB
	maxBytes int64

	keyLocksMu sync.Mutex
	keyLocks   map[trackid.ID]*sync.Mutex
}

// OpenBoltStore opens (creating if absent) a bbolt file at path, bounded
// to maxBytes of summed encoded entry bytes before LRU eviction kicks in.
func OpenBoltStore(path string, maxBytes int64) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, xerr.New(xerr.KindSystem, "fpcache.OpenBoltStore", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(lastAccessBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, xerr.New(xerr.KindSystem, "fpcache.OpenBoltStore", err)
	}
	return &BoltStore{db: db, maxBytes: maxBytes, keyLocks: make(map[trackid.ID]*sync.Mutex)}, nil
}

func (s *BoltStore) lockFor(id trackid.ID) *sync.Mutex {
	s.keyLocksMu.Lock()
	defer s.keyLocksMu.Unlock()
	l, ok := s.keyLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[id] = l
	}
	return l
}

// Get looks up id. A record this version doesn't recognize, or a
// corrupt one, is treated as a miss rather than propagated as a crash,
// per the cache corruption handling in the error taxonomy.
func (s *BoltStore) Get(ctx context.Context, id trackid.ID) (Entry, bool, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(entriesBucket).Get([]byte(id))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, xerr.New(xerr.KindSystem, "fpcache.Get", err)
	}
	if raw == nil {
		return Entry{}, false, nil
	}

	decoded, err := wire.DecodeFingerprintEntry(raw)
	if err != nil {
		return Entry{}, false, nil // corrupt or future version: treat as miss
	}

	_ = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(lastAccessBucket).Put([]byte(id), encodeTime(time.Now()))
	})

	return fromWireEntry(decoded), true, nil
}

// Put writes entry if it strictly improves on any existing confidence,
// then enforces the size bound by evicting least-recently-accessed
// entries down to 90% of maxBytes.
func (s *BoltStore) Put(ctx context.Context, entry Entry) (bool, error) {
	l := s.lockFor(entry.TrackID)
	l.Lock()
	defer l.Unlock()

	wrote := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(entriesBucket)
		existing := bucket.Get([]byte(entry.TrackID))
		if existing != nil {
			if old, err := wire.DecodeFingerprintEntry(existing); err == nil {
				if float64(old.Confidence) >= entry.Confidence {
					return nil
				}
			}
		}
		if err := bucket.Put([]byte(entry.TrackID), wireBytes(entry)); err != nil {
			return err
		}
		wrote = true
		return tx.Bucket(lastAccessBucket).Put([]byte(entry.TrackID), encodeTime(time.Now()))
	})
	if err != nil {
		return false, xerr.New(xerr.KindSystem, "fpcache.Put", err)
	}
	if wrote {
		if err := s.evictIfOverCap(); err != nil {
			return true, err
		}
	}
	return wrote, nil
}

func (s *BoltStore) Invalidate(ctx context.Context, id trackid.ID) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(entriesBucket).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(lastAccessBucket).Delete([]byte(id))
	})
	if err != nil {
		return xerr.New(xerr.KindSystem, "fpcache.Invalidate", err)
	}
	return nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

type accessRecord struct {
	key      string
	accessed time.Time
	size     int64
}

// evictIfOverCap removes least-recently-accessed entries until the sum
// of entry bytes is back under 90% of maxBytes. It tracks the total
// against the in-memory records slice rather than the bbolt file's size
// on disk: bbolt never shrinks a data file on key deletion (freed pages
// go to the internal freelist for reuse, not back to the OS), so
// re-statting the file after each delete would never observe a
// decrease and would evict every record.
func (s *BoltStore) evictIfOverCap() error {
	var records []accessRecord
	var totalBytes int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		access := tx.Bucket(lastAccessBucket)
		return access.ForEach(func(k, v []byte) error {
			size := int64(len(entries.Get(k)))
			totalBytes += size
			records = append(records, accessRecord{key: string(k), accessed: decodeTime(v), size: size})
			return nil
		})
	})
	if err != nil {
		return xerr.New(xerr.KindSystem, "fpcache.evictIfOverCap", err)
	}
	if totalBytes <= s.maxBytes {
		return nil
	}
	sort.Slice(records, func(i, j int) bool { return records[i].accessed.Before(records[j].accessed) })

	target := int64(float64(s.maxBytes) * 0.9)
	for _, rec := range records {
		if totalBytes <= target {
			break
		}
		if err := s.db.Update(func(tx *bbolt.Tx) error {
			if err := tx.Bucket(entriesBucket).Delete([]byte(rec.key)); err != nil {
				return err
			}
			return tx.Bucket(lastAccessBucket).Delete([]byte(rec.key))
		}); err != nil {
			return xerr.New(xerr.KindSystem, "fpcache.evictIfOverCap", err)
		}
		totalBytes -= rec.size
	}
	return nil
}

// Stats reports the cache's current entry count and estimated bytes
// used against its configured cap, for the CLI's "cache warm" summary.
func (s *BoltStore) Stats(ctx context.Context) (entryCount int, bytesUsed int64, capBytes int64, err error) {
	txErr := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		return b.ForEach(func(k, v []byte) error {
			entryCount++
			bytesUsed += int64(len(v))
			return nil
		})
	})
	if txErr != nil {
		return 0, 0, s.maxBytes, xerr.New(xerr.KindSystem, "fpcache.Stats", txErr)
	}
	return entryCount, bytesUsed, s.maxBytes, nil
}

func wireBytes(e Entry) []byte {
	w := toWireEntry(e)
	return wire.EncodeFingerprintEntry(w.TrackID, w.Vector, w.Confidence, w.ComputedAt)
}

func encodeTime(t time.Time) []byte {
	b := make([]byte, 8)
	v := uint64(t.UnixNano())
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func decodeTime(b []byte) time.Time {
	if len(b) < 8 {
		return time.Time{}
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return time.Unix(0, int64(v))
}
