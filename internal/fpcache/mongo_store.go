package fpcache

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"auralis/internal/fingerprint"
	"auralis/internal/trackid"
	"auralis/internal/xerr"
)

// approxBytesPerDoc estimates a stored document's on-disk footprint,
// since an exact byte count would require Mongo's collStats admin
// command; used both for eviction and for Stats' reported bytesUsed.
const approxBytesPerDoc = 256

// mongoDoc is the persisted shape of an Entry in the networked backend.
// Field names are deliberately short; this collection holds nothing but
// fingerprint records.
type mongoDoc struct {
	TrackID    string    `bson:"_id"`
	Vector     []float32 `bson:"vector"`
	Confidence float64   `bson:"confidence"`
	ComputedAt time.Time `bson:"computed_at"`
	AccessedAt time.Time `bson:"accessed_at"`
}

// MongoStore is the networked alternative to BoltStore, for deployments
// that share one fingerprint cache across multiple engine instances.
type MongoStore struct {
	coll     *mongo.Collection
	maxBytes int64

	keyLocksMu sync.Mutex
	keyLocks   map[trackid.ID]*sync.Mutex
}

// NewMongoStore wraps an already-connected collection. Connection setup
// (mongo.Connect, auth, TLS) is the caller's responsibility so this
// package stays testable against a fake collection interface boundary
// the driver itself doesn't provide.
func NewMongoStore(coll *mongo.Collection, maxBytes int64) *MongoStore {
	return &MongoStore{coll: coll, maxBytes: maxBytes, keyLocks: make(map[trackid.ID]*sync.Mutex)}
}

func (s *MongoStore) lockFor(id trackid.ID) *sync.Mutex {
	s.keyLocksMu.Lock()
	defer s.keyLocksMu.Unlock()
	l, ok := s.keyLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[id] = l
	}
	return l
}

func (s *MongoStore) Get(ctx context.Context, id trackid.ID) (Entry, bool, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, xerr.New(xerr.KindTransient, "fpcache.MongoStore.Get", err)
	}

	_, _ = s.coll.UpdateOne(ctx, bson.M{"_id": string(id)}, bson.M{"$set": bson.M{"accessed_at": time.Now()}})

	return docToEntry(doc), true, nil
}

func (s *MongoStore) Put(ctx context.Context, entry Entry) (bool, error) {
	l := s.lockFor(entry.TrackID)
	l.Lock()
	defer l.Unlock()

	var existing mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": string(entry.TrackID)}).Decode(&existing)
	if err != nil && err != mongo.ErrNoDocuments {
		return false, xerr.New(xerr.KindTransient, "fpcache.MongoStore.Put", err)
	}
	if err == nil && existing.Confidence >= entry.Confidence {
		return false, nil
	}

	doc := entryToDoc(entry)
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": string(entry.TrackID)}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return false, xerr.New(xerr.KindTransient, "fpcache.MongoStore.Put", err)
	}

	if err := s.evictIfOverCap(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (s *MongoStore) Invalidate(ctx context.Context, id trackid.ID) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return xerr.New(xerr.KindTransient, "fpcache.MongoStore.Invalidate", err)
	}
	return nil
}

func (s *MongoStore) Close() error { return nil }

// Stats reports the collection's document count and an approximate byte
// total (count * approxBytesPerDoc, the same estimate evictIfOverCap
// uses) against the configured cap.
func (s *MongoStore) Stats(ctx context.Context) (entryCount int, bytesUsed int64, capBytes int64, err error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, 0, s.maxBytes, xerr.New(xerr.KindTransient, "fpcache.MongoStore.Stats", err)
	}
	return int(count), count * approxBytesPerDoc, s.maxBytes, nil
}

// evictIfOverCap estimates collection size via Mongo's stored-document
// count (an exact byte count would require a collStats admin command);
// this is a coarse approximation of the byte-bound eviction rule, noted
// as a simplification versus BoltStore's sum of encoded entry sizes.
func (s *MongoStore) evictIfOverCap(ctx context.Context) error {
	count, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return xerr.New(xerr.KindTransient, "fpcache.evictIfOverCap", err)
	}
	maxDocs := s.maxBytes / approxBytesPerDoc
	if count <= maxDocs {
		return nil
	}
	toEvict := count - int64(float64(maxDocs)*0.9)
	if toEvict <= 0 {
		return nil
	}

	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"accessed_at": 1}).SetLimit(toEvict))
	if err != nil {
		return xerr.New(xerr.KindTransient, "fpcache.evictIfOverCap", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err == nil {
			ids = append(ids, doc.TrackID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return xerr.New(xerr.KindTransient, "fpcache.evictIfOverCap", err)
	}
	return nil
}

func entryToDoc(e Entry) mongoDoc {
	vec := e.Fingerprint.ToVector()
	return mongoDoc{
		TrackID:    string(e.TrackID),
		Vector:     vec[:],
		Confidence: e.Confidence,
		ComputedAt: e.ComputedAt,
		AccessedAt: time.Now(),
	}
}

func docToEntry(d mongoDoc) Entry {
	var vec [fingerprint.VectorLen]float32
	copy(vec[:], d.Vector)
	return Entry{
		TrackID:     trackid.ID(d.TrackID),
		Fingerprint: fingerprint.FromVector(vec),
		Confidence:  d.Confidence,
		ComputedAt:  d.ComputedAt,
	}
}
