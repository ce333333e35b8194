package document

import (
	"time"

	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToBSON renders v in the external BSON format (§4.1) via bson.Marshal,
// for peers that speak wire-compatible BSON rather than MikuDB's native
// frame codec. Int128 has no BSON peer and downgrades to Decimal128;
// JSCode maps to primitive.JavaScript.
func ToBSON(v Value) ([]byte, error) {
	doc, ok := v.AsDocument()
	if !ok {
		return nil, mdberr.New(mdberr.KindTypeError, "ToBSON requires a Document value, got %s", v.Kind)
	}
	m, err := toBSONDoc(doc)
	if err != nil {
		return nil, err
	}
	b, err := bson.Marshal(m)
	if err != nil {
		return nil, mdberr.Wrap(mdberr.KindInvalidDocument, err, "marshaling BSON")
	}
	return b, nil
}

func toBSONDoc(d *Document) (bson.D, error) {
	out := make(bson.D, 0, d.Len())
	var err error
	d.Range(func(key string, v Value) bool {
		var bv interface{}
		bv, err = toBSONValue(v)
		if err != nil {
			return false
		}
		out = append(out, bson.E{Key: key, Value: bv})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toBSONValue(v Value) (interface{}, error) {
	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		b, _ := v.AsBool()
		return b, nil
	case KindI32:
		return v.Raw.(int32), nil
	case KindI64:
		return v.Raw.(int64), nil
	case KindI128:
		i := v.Raw.(Int128)
		return primitive.Decimal128FromUint64(0, uint64(i.Lo)), nil
	case KindF32:
		return float64(v.Raw.(float32)), nil
	case KindF64:
		return v.Raw.(float64), nil
	case KindDecimal:
		dec := v.Raw.(Decimal128)
		return bsonDecimalFromInternal(dec), nil
	case KindString:
		s, _ := v.AsString()
		return s, nil
	case KindBinary:
		return primitive.Binary{Subtype: 0x00, Data: v.Raw.([]byte)}, nil
	case KindObjectID:
		id := v.Raw.(ObjectID)
		return primitive.ObjectID(id), nil
	case KindUUID:
		u := v.Raw.(uuid.UUID)
		return primitive.Binary{Subtype: 0x04, Data: u[:]}, nil
	case KindDateTime:
		t := v.Raw.(time.Time)
		return primitive.NewDateTimeFromTime(t), nil
	case KindTimestamp:
		ts := v.Raw.(Timestamp)
		return primitive.Timestamp{T: uint32(ts.Millis / 1000), I: uint32(ts.Millis % 1000)}, nil
	case KindRegex:
		r := v.Raw.(Regex)
		return primitive.Regex{Pattern: r.Pattern, Options: r.Options}, nil
	case KindJSCode:
		return primitive.JavaScript(v.Raw.(JSCode)), nil
	case KindArray:
		arr, _ := v.AsArray()
		out := make(bson.A, 0, len(arr))
		for _, e := range arr {
			ev, err := toBSONValue(e)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		return out, nil
	case KindDocument:
		sub, _ := v.AsDocument()
		return toBSONDoc(sub)
	default:
		return nil, mdberr.New(mdberr.KindTypeError, "unsupported kind %s for BSON", v.Kind)
	}
}

// FromBSON parses external BSON bytes into a Document Value.
func FromBSON(data []byte) (Value, error) {
	var raw bson.D
	if err := bson.Unmarshal(data, &raw); err != nil {
		return Value{}, mdberr.Wrap(mdberr.KindInvalidDocument, err, "unmarshaling BSON")
	}
	doc, err := fromBSOND(raw)
	if err != nil {
		return Value{}, err
	}
	return DocumentValue(doc), nil
}

func fromBSOND(raw bson.D) (*Document, error) {
	doc := NewDocument()
	for _, e := range raw {
		v, err := fromBSONValue(e.Value)
		if err != nil {
			return nil, err
		}
		doc.Set(e.Key, v)
	}
	return doc, nil
}

func fromBSONValue(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int32:
		return I32(t), nil
	case int64:
		return I64(t), nil
	case float64:
		return F64(t), nil
	case string:
		return String(t), nil
	case primitive.ObjectID:
		return ObjectIDValue(ObjectID(t)), nil
	case primitive.DateTime:
		return DateTime(t.Time()), nil
	case primitive.Timestamp:
		return TimestampValue(Timestamp{Millis: int64(t.T)*1000 + int64(t.I)}), nil
	case primitive.Regex:
		return RegexValue(Regex{Pattern: t.Pattern, Options: t.Options}), nil
	case primitive.JavaScript:
		return JSCodeValue(JSCode(t)), nil
	case primitive.Decimal128:
		return Decimal(bsonDecimalToInternal(t)), nil
	case primitive.Binary:
		if t.Subtype == 0x04 && len(t.Data) == 16 {
			u, err := uuid.FromBytes(t.Data)
			if err == nil {
				return UUID(u), nil
			}
		}
		return Binary(t.Data), nil
	case primitive.A:
		elems := make([]Value, 0, len(t))
		for _, e := range t {
			ev, err := fromBSONValue(e)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, ev)
		}
		return Array(elems), nil
	case bson.A:
		elems := make([]Value, 0, len(t))
		for _, e := range t {
			ev, err := fromBSONValue(e)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, ev)
		}
		return Array(elems), nil
	case bson.D:
		sub, err := fromBSOND(t)
		if err != nil {
			return Value{}, err
		}
		return DocumentValue(sub), nil
	case primitive.D:
		sub, err := fromBSOND(bson.D(t))
		if err != nil {
			return Value{}, err
		}
		return DocumentValue(sub), nil
	default:
		return Value{}, mdberr.New(mdberr.KindTypeError, "unsupported BSON type %T", raw)
	}
}

func bsonDecimalFromInternal(d Decimal128) primitive.Decimal128 {
	coeff := d.Coefficient
	neg := coeff < 0
	if neg {
		coeff = -coeff
	}
	dec, err := primitive.ParseDecimal128(Decimal128{Coefficient: coeff, Exponent: d.Exponent}.signedString(neg))
	if err != nil {
		return primitive.Decimal128{}
	}
	return dec
}

func (d Decimal128) signedString(neg bool) string {
	s := d.String()
	if neg {
		return "-" + s
	}
	return s
}

func bsonDecimalToInternal(d primitive.Decimal128) Decimal128 {
	// primitive.Decimal128 only exposes its string form; MikuDB's internal
	// representation is coefficient+exponent, so round-trip through
	// parseDecimalString's "<coeff>e<exp>" grammar where possible and fall
	// back to a zero-exponent coefficient otherwise.
	s := d.String()
	for i := 0; i < len(s); i++ {
		if s[i] == 'E' || s[i] == 'e' {
			return parseDecimalString(s[:i] + "e" + s[i+1:])
		}
	}
	return parseDecimalString(s + "e0")
}
