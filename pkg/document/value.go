// Package document implements MikuDB's document value model: a tree-shaped
// sum type (Null|Bool|I32|I64|I128|F32|F64|Decimal|String|Binary|ObjectID|
// Uuid|DateTime|Timestamp|Array|Document|Regex|JSCode), its compact binary
// codec, and lossless JSON/BSON peer conversions.
package document

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags the variant a Value holds. Kind + Value.Raw together form the
// sum type; there is no open-set subclassing.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindI32
	KindI64
	KindI128
	KindF32
	KindF64
	KindDecimal
	KindString
	KindBinary
	KindObjectID
	KindUUID
	KindDateTime
	KindTimestamp
	KindArray
	KindDocument
	KindRegex
	KindJSCode
)

func (k Kind) String() string {
	names := [...]string{
		"Null", "Bool", "I32", "I64", "I128", "F32", "F64", "Decimal",
		"String", "Binary", "ObjectID", "Uuid", "DateTime", "Timestamp",
		"Array", "Document", "Regex", "JSCode",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Int128 is a 128-bit two's-complement integer represented as two 64-bit
// little-endian words.
type Int128 struct {
	Lo uint64
	Hi uint64
}

func Int128FromInt64(v int64) Int128 {
	hi := uint64(0)
	if v < 0 {
		hi = ^uint64(0)
	}
	return Int128{Lo: uint64(v), Hi: hi}
}

// Decimal128 is MikuDB's internal decimal representation: a signed 64-bit
// coefficient and a base-10 exponent, packed into the spec's 16-byte
// payload (coefficient(8) || exponent(4) || reserved(4)).
type Decimal128 struct {
	Coefficient int64
	Exponent    int32
}

func (d Decimal128) String() string {
	return fmt.Sprintf("%de%d", d.Coefficient, d.Exponent)
}

// Regex holds a pattern and its option flags (e.g. "i", "m").
type Regex struct {
	Pattern string
	Options string
}

// JSCode is raw JavaScript source stored verbatim (no evaluation).
type JSCode string

// Timestamp is an internal replication-style timestamp, epoch milliseconds,
// distinct from DateTime so the two Kinds round-trip independently.
type Timestamp struct {
	Millis int64
}

// Value is the tagged union for every document field value and array
// element. Raw's dynamic type is determined entirely by Kind:
//
//	KindNull      nil
//	KindBool      bool
//	KindI32       int32
//	KindI64       int64
//	KindI128      Int128
//	KindF32       float32
//	KindF64       float64
//	KindDecimal   Decimal128
//	KindString    string
//	KindBinary    []byte
//	KindObjectID  ObjectID
//	KindUUID      uuid.UUID
//	KindDateTime  time.Time
//	KindTimestamp Timestamp
//	KindArray     []Value
//	KindDocument  *Document
//	KindRegex     Regex
//	KindJSCode    JSCode
type Value struct {
	Kind Kind
	Raw  interface{}
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Raw: b} }
func I32(v int32) Value           { return Value{Kind: KindI32, Raw: v} }
func I64(v int64) Value           { return Value{Kind: KindI64, Raw: v} }
func I128(v Int128) Value         { return Value{Kind: KindI128, Raw: v} }
func F32(v float32) Value         { return Value{Kind: KindF32, Raw: v} }
func F64(v float64) Value         { return Value{Kind: KindF64, Raw: v} }
func Decimal(v Decimal128) Value  { return Value{Kind: KindDecimal, Raw: v} }
func String(s string) Value       { return Value{Kind: KindString, Raw: s} }
func Binary(b []byte) Value       { return Value{Kind: KindBinary, Raw: b} }
func ObjectIDValue(id ObjectID) Value { return Value{Kind: KindObjectID, Raw: id} }
func UUID(u uuid.UUID) Value      { return Value{Kind: KindUUID, Raw: u} }
func DateTime(t time.Time) Value  { return Value{Kind: KindDateTime, Raw: t.UTC().Truncate(time.Millisecond)} }
func TimestampValue(t Timestamp) Value { return Value{Kind: KindTimestamp, Raw: t} }
func Array(vs []Value) Value      { return Value{Kind: KindArray, Raw: vs} }
func DocumentValue(d *Document) Value { return Value{Kind: KindDocument, Raw: d} }
func RegexValue(r Regex) Value    { return Value{Kind: KindRegex, Raw: r} }
func JSCodeValue(c JSCode) Value  { return Value{Kind: KindJSCode, Raw: c} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	b, ok := v.Raw.(bool)
	return b, ok
}

func (v Value) AsString() (string, bool) {
	s, ok := v.Raw.(string)
	return s, ok
}

func (v Value) AsDocument() (*Document, bool) {
	d, ok := v.Raw.(*Document)
	return d, ok
}

func (v Value) AsArray() ([]Value, bool) {
	a, ok := v.Raw.([]Value)
	return a, ok
}

func (v Value) AsObjectID() (ObjectID, bool) {
	id, ok := v.Raw.(ObjectID)
	return id, ok
}

// AsFloat64 coerces any numeric Kind to float64, the promotion rule used by
// sort ordering (§4.8) and the SUM/AVG accumulators (§4.8).
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindI32:
		return float64(v.Raw.(int32)), true
	case KindI64:
		return float64(v.Raw.(int64)), true
	case KindI128:
		i := v.Raw.(Int128)
		return float64(int64(i.Lo)), true
	case KindF32:
		return float64(v.Raw.(float32)), true
	case KindF64:
		return v.Raw.(float64), true
	case KindDecimal:
		d := v.Raw.(Decimal128)
		return float64(d.Coefficient) * pow10(d.Exponent), true
	default:
		return 0, false
	}
}

// AsInt64 coerces an integer Kind to int64, the promotion used by §4.8's
// "mixed I32/I64 to I64" arithmetic rule.
func (v Value) AsInt64() (int64, bool) {
	switch v.Kind {
	case KindI32:
		return int64(v.Raw.(int32)), true
	case KindI64:
		return v.Raw.(int64), true
	default:
		return 0, false
	}
}

func (v Value) IsNumeric() bool {
	switch v.Kind {
	case KindI32, KindI64, KindI128, KindF32, KindF64, KindDecimal:
		return true
	default:
		return false
	}
}

func pow10(exp int32) float64 {
	r := 1.0
	neg := exp < 0
	if neg {
		exp = -exp
	}
	for i := int32(0); i < exp; i++ {
		r *= 10
	}
	if neg {
		return 1 / r
	}
	return r
}

// Equal implements the codec round-trip equality law (§8.1 law 1):
// decode(encode(v)) must Equal v for any conforming v.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		// Cross-Kind numeric equality is NOT required by the round-trip
		// law; it only needs to hold within one Kind.
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindArray:
		aa, _ := a.AsArray()
		bb, _ := b.AsArray()
		if len(aa) != len(bb) {
			return false
		}
		for i := range aa {
			if !Equal(aa[i], bb[i]) {
				return false
			}
		}
		return true
	case KindDocument:
		ad, _ := a.AsDocument()
		bd, _ := b.AsDocument()
		return DocumentsEqual(ad, bd)
	case KindBinary:
		ab, _ := a.Raw.([]byte)
		bb, _ := b.Raw.([]byte)
		if len(ab) != len(bb) {
			return false
		}
		for i := range ab {
			if ab[i] != bb[i] {
				return false
			}
		}
		return true
	default:
		return a.Raw == b.Raw
	}
}

// DocumentsEqual compares two documents field-by-field, in order, the way
// Document's insertion order is observable per §3.
func DocumentsEqual(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Len() != b.Len() {
		return false
	}
	for i, f := range a.fields {
		g := b.fields[i]
		if f.Key != g.Key || !Equal(f.Value, g.Value) {
			return false
		}
	}
	return true
}
