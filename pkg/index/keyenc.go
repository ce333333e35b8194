package index

import (
	"encoding/binary"
	"math"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/zeebo/xxh3"
)

// Order-preserving type tags (§4.5 "Key encoding"). The tag ordering is the
// logical type ordering an ordered index sorts by: Null < Bool < I32/I64 <
// F64 < String < ObjectId.
const (
	tagNull     byte = 0x00
	tagBool     byte = 0x01
	tagI32      byte = 0x02
	tagI64      byte = 0x03
	tagF64      byte = 0x04
	tagString   byte = 0x05
	tagObjectID byte = 0x06
)

// encodeTagged appends one field value's order-preserving tagged encoding
// to buf. Integers are sign-flipped on their top bit so two's-complement
// big-endian bytes sort correctly across negative and positive values;
// floats are stored as raw IEEE754 big-endian bits with no such correction,
// so range queries across zero or NaN follow the caveat in §4.5.
func encodeTagged(buf []byte, v document.Value) []byte {
	switch v.Kind {
	case document.KindNull:
		return append(buf, tagNull)
	case document.KindBool:
		b, _ := v.AsBool()
		buf = append(buf, tagBool)
		if b {
			return append(buf, 1)
		}
		return append(buf, 0)
	case document.KindI32:
		i, _ := v.Raw.(int32)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(i)^0x80000000)
		return append(append(buf, tagI32), b[:]...)
	case document.KindI64:
		i, _ := v.AsInt64()
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(i)^0x8000000000000000)
		return append(append(buf, tagI64), b[:]...)
	case document.KindF64, document.KindF32, document.KindDecimal, document.KindI128:
		f, _ := v.AsFloat64()
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
		return append(append(buf, tagF64), b[:]...)
	case document.KindString:
		s, _ := v.AsString()
		buf = append(buf, tagString)
		return append(buf, s...)
	case document.KindObjectID:
		id, _ := v.AsObjectID()
		buf = append(buf, tagObjectID)
		return append(buf, id[:]...)
	default:
		// Anything else (arrays, sub-documents, binary, ...) indexes by its
		// kind name alone, so all values of one such kind share a key;
		// §4.5 only specifies scalar field values as index keys.
		buf = append(buf, tagString)
		return append(buf, v.Kind.String()...)
	}
}

// fieldSep separates successive fields' tagged encodings within one
// ordered-index key so a shorter field value's bytes can never be
// misread as a prefix of a different, longer field value.
const fieldSep = 0x00

// EncodeOrderedKey builds the full ordered-index key for one document:
// each indexed field's tagged encoding, 0x00-separated, followed by the
// owning document's raw 12-byte ObjectId as a uniqueness-breaking suffix.
func EncodeOrderedKey(values []document.Value, owner document.ObjectID) []byte {
	buf := make([]byte, 0, 32)
	for i, v := range values {
		if i > 0 {
			buf = append(buf, fieldSep)
		}
		buf = encodeTagged(buf, v)
	}
	buf = append(buf, owner[:]...)
	return buf
}

// EncodeOrderedPrefix builds only the field-value portion of an ordered key
// (no owner suffix), used for prefix scans in lookup() and as a range
// bound in range_query().
func EncodeOrderedPrefix(values []document.Value) []byte {
	buf := make([]byte, 0, 32)
	for i, v := range values {
		if i > 0 {
			buf = append(buf, fieldSep)
		}
		buf = encodeTagged(buf, v)
	}
	return buf
}

// EncodeHashKey builds a hash-index key: an 8-byte big-endian xxHash3-64
// digest of the tagged field-value concatenation, followed by the 12-byte
// owner ObjectId, so distinct documents sharing a hash never collide on
// the stored key even though the index is not unique by default.
func EncodeHashKey(values []document.Value, owner document.ObjectID) []byte {
	digest := hashDigest(values)
	buf := make([]byte, 0, 20)
	buf = append(buf, digest...)
	buf = append(buf, owner[:]...)
	return buf
}

// EncodeHashPrefix returns just the 8-byte digest, used to probe for
// existing entries under a unique hash index and for lookup().
func EncodeHashPrefix(values []document.Value) []byte {
	return hashDigest(values)
}

func hashDigest(values []document.Value) []byte {
	tagged := EncodeOrderedPrefix(values)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], xxh3.Hash(tagged))
	return b[:]
}

// decodeOwnerSuffix extracts the owning document's ObjectId from the tail
// of an index key, the last 12 bytes of either key form.
func decodeOwnerSuffix(key []byte) (document.ObjectID, error) {
	if len(key) < 12 {
		return document.ObjectID{}, mdberr.New(mdberr.KindCorruption, "index key too short to carry an owner id")
	}
	return document.ObjectIDFromBytes(key[len(key)-12:])
}
