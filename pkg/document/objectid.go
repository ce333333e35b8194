package document

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/cuemby/mikudb/pkg/mdberr"
)

// ObjectID is MikuDB's 12-byte document identifier: a 4-byte big-endian
// unix-second timestamp followed by 8 random bytes (§3).
type ObjectID [12]byte

// counter perturbs the random tail so ObjectIDs generated within the same
// process in the same second still differ even if crypto/rand is slow to
// seed; it is a process-wide monotonic atomic per the §9 global-state note.
var counter uint64

// NewObjectID generates a fresh ObjectID stamped with the current time.
func NewObjectID() ObjectID {
	return newObjectIDAt(time.Now())
}

func newObjectIDAt(t time.Time) ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	tail := make([]byte, 8)
	_, _ = rand.Read(tail)
	n := atomic.AddUint64(&counter, 1)
	binary.BigEndian.PutUint64(tail[0:8], binary.BigEndian.Uint64(tail)^n)
	copy(id[4:12], tail)
	return id
}

// Timestamp returns the creation time encoded in id's first 4 bytes.
func (id ObjectID) Timestamp() time.Time {
	sec := binary.BigEndian.Uint32(id[0:4])
	return time.Unix(int64(sec), 0).UTC()
}

func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// ObjectIDFromHex parses the 24-character hex form produced by String.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 12 {
		return id, mdberr.New(mdberr.KindInvalidObjectID, "invalid ObjectId hex %q", s)
	}
	copy(id[:], b)
	return id, nil
}

// ObjectIDFromBytes wraps a raw 12-byte slice.
func ObjectIDFromBytes(b []byte) (ObjectID, error) {
	var id ObjectID
	if len(b) != 12 {
		return id, mdberr.New(mdberr.KindInvalidObjectID, "ObjectId must be 12 bytes, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}
