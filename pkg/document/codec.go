package document

import (
	"encoding/binary"
	"math"
	"time"
	"unicode/utf8"

	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/google/uuid"
)

// Wire tags, §4.1. JSCode has no tag in the spec's table (and none in the
// original Rust codec either — the JavaScript variant was defined but never
// wired into encode_value); 0x1B is the next unused slot after the
// EmptyDocument/0x1A canonical forms, so JSCode is encoded there as a
// length-prefixed string, the same shape as Regex's component strings.
const (
	tagNull        = 0x00
	tagBool        = 0x01
	tagI32         = 0x02
	tagI64         = 0x03
	tagI128        = 0x04
	tagF32         = 0x05
	tagF64         = 0x06
	tagDecimal     = 0x07
	tagString      = 0x08
	tagBinary      = 0x09
	tagObjectID    = 0x0A
	tagUUID        = 0x0B
	tagDateTime    = 0x0C
	tagTimestamp   = 0x0D
	tagArray       = 0x0E
	tagDocument    = 0x0F
	tagRegex       = 0x10
	tagTrue        = 0x11
	tagFalse       = 0x12
	tagI32Zero     = 0x13
	tagI32One      = 0x14
	tagI32NegOne   = 0x15
	tagI64Zero     = 0x16
	tagF64Zero     = 0x17
	tagEmptyString = 0x18
	tagEmptyArray  = 0x19
	tagEmptyDoc    = 0x1A
	tagJSCode      = 0x1B

	tagSmallStringBase = 0x20 // 0x20..0x2F: inline string length 0..15
	tagSmallIntBase    = 0x30 // 0x30..0x3F: inline non-negative I32 0..15
	tagSmallArrayBase  = 0x40 // 0x40..0x4F: inline array count 0..15
)

// Encode serializes a Value using the smallest applicable tag (§4.1).
func Encode(v Value) []byte {
	return appendValue(nil, v)
}

// EncodedLen reports len(Encode(v)) without allocating the full
// intermediate buffer's final return value twice; used by Document size
// validation (§3, §8.3 document wire-size invariant).
func EncodedLen(v Value) int {
	return len(Encode(v))
}

func appendValue(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindNull:
		return append(buf, tagNull)
	case KindBool:
		b, _ := v.AsBool()
		if b {
			return append(buf, tagTrue)
		}
		return append(buf, tagFalse)
	case KindI32:
		return appendI32(buf, v.Raw.(int32))
	case KindI64:
		return appendI64(buf, v.Raw.(int64))
	case KindI128:
		i := v.Raw.(Int128)
		buf = append(buf, tagI128)
		var b [16]byte
		binary.LittleEndian.PutUint64(b[0:8], i.Lo)
		binary.LittleEndian.PutUint64(b[8:16], i.Hi)
		return append(buf, b[:]...)
	case KindF32:
		buf = append(buf, tagF32)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v.Raw.(float32)))
		return append(buf, b[:]...)
	case KindF64:
		f := v.Raw.(float64)
		if f == 0.0 {
			return append(buf, tagF64Zero)
		}
		buf = append(buf, tagF64)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
		return append(buf, b[:]...)
	case KindDecimal:
		d := v.Raw.(Decimal128)
		buf = append(buf, tagDecimal)
		var b [16]byte
		binary.LittleEndian.PutUint64(b[0:8], uint64(d.Coefficient))
		binary.LittleEndian.PutUint32(b[8:12], uint32(d.Exponent))
		return append(buf, b[:]...)
	case KindString:
		return appendString(buf, v.Raw.(string))
	case KindBinary:
		b := v.Raw.([]byte)
		buf = append(buf, tagBinary)
		buf = appendVarint(buf, uint64(len(b)))
		return append(buf, b...)
	case KindObjectID:
		id := v.Raw.(ObjectID)
		buf = append(buf, tagObjectID)
		return append(buf, id[:]...)
	case KindUUID:
		u := v.Raw.(uuid.UUID)
		buf = append(buf, tagUUID)
		return append(buf, u[:]...)
	case KindDateTime:
		t := v.Raw.(time.Time)
		buf = append(buf, tagDateTime)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(t.UnixMilli()))
		return append(buf, b[:]...)
	case KindTimestamp:
		ts := v.Raw.(Timestamp)
		buf = append(buf, tagTimestamp)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(ts.Millis))
		return append(buf, b[:]...)
	case KindArray:
		return appendArray(buf, v.Raw.([]Value))
	case KindDocument:
		return appendDocument(buf, v.Raw.(*Document))
	case KindRegex:
		r := v.Raw.(Regex)
		buf = append(buf, tagRegex)
		buf = appendString(buf, r.Pattern)
		return appendString(buf, r.Options)
	case KindJSCode:
		buf = append(buf, tagJSCode)
		return appendString(buf, string(v.Raw.(JSCode)))
	default:
		return append(buf, tagNull)
	}
}

func appendI32(buf []byte, n int32) []byte {
	switch {
	case n == 0:
		return append(buf, tagI32Zero)
	case n == 1:
		return append(buf, tagI32One)
	case n == -1:
		return append(buf, tagI32NegOne)
	case n > 1 && n < 16:
		return append(buf, tagSmallIntBase+byte(n))
	default:
		buf = append(buf, tagI32)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(n))
		return append(buf, b[:]...)
	}
}

func appendI64(buf []byte, n int64) []byte {
	if n == 0 {
		return append(buf, tagI64Zero)
	}
	buf = append(buf, tagI64)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) []byte {
	n := len(s)
	switch {
	case n == 0:
		return append(buf, tagEmptyString)
	case n < 16:
		buf = append(buf, tagSmallStringBase+byte(n))
		return append(buf, s...)
	default:
		buf = append(buf, tagString)
		buf = appendVarint(buf, uint64(n))
		return append(buf, s...)
	}
}

func appendArray(buf []byte, arr []Value) []byte {
	n := len(arr)
	switch {
	case n == 0:
		return append(buf, tagEmptyArray)
	case n < 16:
		buf = append(buf, tagSmallArrayBase+byte(n))
	default:
		buf = append(buf, tagArray)
		buf = appendVarint(buf, uint64(n))
	}
	for _, e := range arr {
		buf = appendValue(buf, e)
	}
	return buf
}

func appendDocument(buf []byte, d *Document) []byte {
	if d.Len() == 0 {
		return append(buf, tagEmptyDoc)
	}
	buf = append(buf, tagDocument)
	buf = appendVarint(buf, uint64(d.Len()))
	d.Range(func(key string, v Value) bool {
		buf = appendString(buf, key)
		buf = appendValue(buf, v)
		return true
	})
	return buf
}

// Decode parses a single encoded Value starting at data[0] and returns the
// value plus the number of bytes consumed, so callers (e.g. Document
// decoding) can advance a cursor.
func Decode(data []byte) (Value, int, error) {
	return decodeAt(data, 0, 0)
}

func decodeAt(data []byte, off, depth int) (Value, int, error) {
	if depth > MaxNestingDepth {
		return Value{}, 0, mdberr.New(mdberr.KindNestingTooDeep, "nesting exceeds %d levels", MaxNestingDepth)
	}
	if off >= len(data) {
		return Value{}, 0, mdberr.New(mdberr.KindUnexpectedEOF, "expected tag byte at offset %d", off)
	}
	start := off
	tag := data[off]
	off++

	switch {
	case tag >= tagSmallStringBase && tag < tagSmallStringBase+16:
		n := int(tag - tagSmallStringBase)
		s, next, err := readRawString(data, off, n)
		if err != nil {
			return Value{}, 0, err
		}
		return String(s), next - start, nil
	case tag >= tagSmallIntBase && tag < tagSmallIntBase+16:
		n := int32(tag - tagSmallIntBase)
		return I32(n), off - start, nil
	case tag >= tagSmallArrayBase && tag < tagSmallArrayBase+16:
		n := int(tag - tagSmallArrayBase)
		return decodeArrayElements(data, off, n, depth, start)
	}

	switch tag {
	case tagNull:
		return Null(), off - start, nil
	case tagTrue:
		return Bool(true), off - start, nil
	case tagFalse:
		return Bool(false), off - start, nil
	case tagI32Zero:
		return I32(0), off - start, nil
	case tagI32One:
		return I32(1), off - start, nil
	case tagI32NegOne:
		return I32(-1), off - start, nil
	case tagI64Zero:
		return I64(0), off - start, nil
	case tagF64Zero:
		return F64(0.0), off - start, nil
	case tagEmptyString:
		return String(""), off - start, nil
	case tagEmptyArray:
		return Array(nil), off - start, nil
	case tagEmptyDoc:
		return DocumentValue(NewDocument()), off - start, nil
	case tagI32:
		b, err := take(data, off, 4)
		if err != nil {
			return Value{}, 0, err
		}
		return I32(int32(binary.LittleEndian.Uint32(b))), off + 4 - start, nil
	case tagI64:
		b, err := take(data, off, 8)
		if err != nil {
			return Value{}, 0, err
		}
		return I64(int64(binary.LittleEndian.Uint64(b))), off + 8 - start, nil
	case tagI128:
		b, err := take(data, off, 16)
		if err != nil {
			return Value{}, 0, err
		}
		lo := binary.LittleEndian.Uint64(b[0:8])
		hi := binary.LittleEndian.Uint64(b[8:16])
		return I128(Int128{Lo: lo, Hi: hi}), off + 16 - start, nil
	case tagF32:
		b, err := take(data, off, 4)
		if err != nil {
			return Value{}, 0, err
		}
		return F32(math.Float32frombits(binary.LittleEndian.Uint32(b))), off + 4 - start, nil
	case tagF64:
		b, err := take(data, off, 8)
		if err != nil {
			return Value{}, 0, err
		}
		return F64(math.Float64frombits(binary.LittleEndian.Uint64(b))), off + 8 - start, nil
	case tagDecimal:
		b, err := take(data, off, 16)
		if err != nil {
			return Value{}, 0, err
		}
		coeff := int64(binary.LittleEndian.Uint64(b[0:8]))
		exp := int32(binary.LittleEndian.Uint32(b[8:12]))
		return Decimal(Decimal128{Coefficient: coeff, Exponent: exp}), off + 16 - start, nil
	case tagString:
		n, used, err := readVarint(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		off += used
		s, next, err := readRawString(data, off, int(n))
		if err != nil {
			return Value{}, 0, err
		}
		return String(s), next - start, nil
	case tagBinary:
		n, used, err := readVarint(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		off += used
		b, err := take(data, off, int(n))
		if err != nil {
			return Value{}, 0, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return Binary(cp), off + int(n) - start, nil
	case tagObjectID:
		b, err := take(data, off, 12)
		if err != nil {
			return Value{}, 0, err
		}
		id, _ := ObjectIDFromBytes(b)
		return ObjectIDValue(id), off + 12 - start, nil
	case tagUUID:
		b, err := take(data, off, 16)
		if err != nil {
			return Value{}, 0, err
		}
		u, uerr := uuid.FromBytes(b)
		if uerr != nil {
			return Value{}, 0, mdberr.Wrap(mdberr.KindInvalidDocument, uerr, "invalid uuid bytes")
		}
		return UUID(u), off + 16 - start, nil
	case tagDateTime:
		b, err := take(data, off, 8)
		if err != nil {
			return Value{}, 0, err
		}
		ms := int64(binary.LittleEndian.Uint64(b))
		return DateTime(time.UnixMilli(ms)), off + 8 - start, nil
	case tagTimestamp:
		b, err := take(data, off, 8)
		if err != nil {
			return Value{}, 0, err
		}
		ms := int64(binary.LittleEndian.Uint64(b))
		return TimestampValue(Timestamp{Millis: ms}), off + 8 - start, nil
	case tagArray:
		n, used, err := readVarint(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		off += used
		return decodeArrayElements(data, off, int(n), depth, start)
	case tagDocument:
		n, used, err := readVarint(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		off += used
		return decodeDocumentFields(data, off, int(n), depth, start)
	case tagRegex:
		pattern, next, err := decodeString(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		off = next
		options, next2, err := decodeString(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		return RegexValue(Regex{Pattern: pattern, Options: options}), next2 - start, nil
	case tagJSCode:
		s, next, err := decodeString(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		return JSCodeValue(JSCode(s)), next - start, nil
	default:
		return Value{}, 0, mdberr.New(mdberr.KindInvalidTypeMarker, "unknown tag byte 0x%02X at offset %d", tag, start)
	}
}

// decodeString decodes a value known to be string-shaped (any of the
// string tags) and returns the new offset.
func decodeString(data []byte, off int) (string, int, error) {
	v, n, err := decodeAt(data, off, 0)
	if err != nil {
		return "", 0, err
	}
	s, ok := v.AsString()
	if !ok {
		return "", 0, mdberr.New(mdberr.KindInvalidDocument, "expected string tag at offset %d", off)
	}
	return s, off + n, nil
}

func decodeArrayElements(data []byte, off, count, depth, start int) (Value, int, error) {
	if count > MaxArrayLen {
		return Value{}, 0, mdberr.New(mdberr.KindInvalidDocument, "array of %d elements exceeds max %d", count, MaxArrayLen)
	}
	elems := make([]Value, 0, count)
	for i := 0; i < count; i++ {
		v, n, err := decodeAt(data, off, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		elems = append(elems, v)
		off += n
	}
	return Array(elems), off - start, nil
}

func decodeDocumentFields(data []byte, off, count, depth, start int) (Value, int, error) {
	doc := NewDocument()
	for i := 0; i < count; i++ {
		key, next, err := decodeString(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		off = next
		v, n, err := decodeAt(data, off, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		off += n
		doc.Set(key, v)
	}
	return DocumentValue(doc), off - start, nil
}

func take(data []byte, off, n int) ([]byte, error) {
	if off+n > len(data) || n < 0 {
		return nil, mdberr.New(mdberr.KindUnexpectedEOF, "need %d bytes at offset %d, have %d", n, off, len(data)-off)
	}
	return data[off : off+n], nil
}

func readRawString(data []byte, off, n int) (string, int, error) {
	b, err := take(data, off, n)
	if err != nil {
		return "", 0, err
	}
	if !utf8.Valid(b) {
		return "", 0, mdberr.New(mdberr.KindInvalidUtf8, "invalid utf-8 at offset %d", off)
	}
	return string(b), off + n, nil
}
