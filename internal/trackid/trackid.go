// Package trackid derives the stable TrackId described in the data
// model: a content hash over the first contentHashPrefixBytes of a
// track's bytes, so two decoded files with identical content yield
// identical ids regardless of where they live on disk, their file name,
// or their modification time.
package trackid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"auralis/internal/xerr"
)

// ID is an opaque stable identifier for a track.
type ID string

// contentHashPrefixBytes bounds how much of the file is hashed, so
// deriving an id for a multi-hour recording stays cheap.
const contentHashPrefixBytes = 1 << 20 // 1 MiB

// FromFile derives a TrackId from the first contentHashPrefixBytes of
// path's content alone, so copying or renaming a file never changes its
// id and two files with identical leading content always collide.
func FromFile(path string) (ID, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", xerr.New(xerr.KindInput, "trackid.FromFile", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, contentHashPrefixBytes); err != nil && err != io.EOF {
		return "", xerr.New(xerr.KindInput, "trackid.FromFile", err)
	}

	return ID(hex.EncodeToString(h.Sum(nil))), nil
}

// FromBytes derives a TrackId for in-memory content that has no backing
// file (e.g. an uploaded buffer), hashing the whole payload and embedding
// name and payload length in the id, so unlike FromFile the same content
// under a different name yields a different id.
func FromBytes(name string, content []byte) ID {
	h := sha256.Sum256(content)
	return ID(fmt.Sprintf("%s-%d-mem-%s", name, len(content), hex.EncodeToString(h[:])[:16]))
}
