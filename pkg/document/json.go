package document

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/google/uuid"
)

// ToJSON renders v as MikuDB's extended JSON (§4.1): plain JSON for types
// with a direct JSON peer (Null, Bool, I32, I64, F32, F64, String, Array,
// Document), single-key wrapper objects for the rest (ObjectId, Uuid,
// DateTime, Timestamp, Binary, JSCode) and the spec-mandated wrappers for
// Int128 ($numberLong), Decimal ($numberDecimal) and Regex
// ($regex/$options). Document field order is preserved by writing bytes
// directly rather than going through encoding/json's map-keyed Marshal.
func ToJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		b, _ := v.AsBool()
		if b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindI32:
		fmt.Fprintf(buf, "%d", v.Raw.(int32))
	case KindI64:
		fmt.Fprintf(buf, "%d", v.Raw.(int64))
	case KindF32:
		writeJSONFloat(buf, float64(v.Raw.(float32)))
	case KindF64:
		writeJSONFloat(buf, v.Raw.(float64))
	case KindI128:
		i := v.Raw.(Int128)
		buf.WriteString(`{"$numberLong":"`)
		buf.WriteString(int128ToString(i))
		buf.WriteString(`"}`)
	case KindDecimal:
		d := v.Raw.(Decimal128)
		buf.WriteString(`{"$numberDecimal":"`)
		buf.WriteString(d.String())
		buf.WriteString(`"}`)
	case KindString:
		s, _ := v.AsString()
		writeJSONString(buf, s)
	case KindBinary:
		b := v.Raw.([]byte)
		buf.WriteString(`{"$binary":"`)
		buf.WriteString(base64.StdEncoding.EncodeToString(b))
		buf.WriteString(`"}`)
	case KindObjectID:
		id := v.Raw.(ObjectID)
		buf.WriteString(`{"$oid":"`)
		buf.WriteString(id.String())
		buf.WriteString(`"}`)
	case KindUUID:
		u := v.Raw.(uuid.UUID)
		buf.WriteString(`{"$uuid":"`)
		buf.WriteString(u.String())
		buf.WriteString(`"}`)
	case KindDateTime:
		t := v.Raw.(time.Time)
		buf.WriteString(`{"$date":"`)
		buf.WriteString(t.Format("2006-01-02T15:04:05.000Z"))
		buf.WriteString(`"}`)
	case KindTimestamp:
		ts := v.Raw.(Timestamp)
		fmt.Fprintf(buf, `{"$timestamp":%d}`, ts.Millis)
	case KindRegex:
		r := v.Raw.(Regex)
		buf.WriteString(`{"$regex":`)
		writeJSONString(buf, r.Pattern)
		buf.WriteString(`,"$options":`)
		writeJSONString(buf, r.Options)
		buf.WriteString(`}`)
	case KindJSCode:
		buf.WriteString(`{"$code":`)
		writeJSONString(buf, string(v.Raw.(JSCode)))
		buf.WriteString(`}`)
	case KindArray:
		arr, _ := v.AsArray()
		buf.WriteByte('[')
		for i, e := range arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindDocument:
		doc, _ := v.AsDocument()
		buf.WriteByte('{')
		first := true
		var err error
		doc.Range(func(key string, fv Value) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeJSONString(buf, key)
			buf.WriteByte(':')
			err = writeJSON(buf, fv)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	default:
		return mdberr.New(mdberr.KindTypeError, "unsupported kind %s for JSON", v.Kind)
	}
	return nil
}

func writeJSONFloat(buf *bytes.Buffer, f float64) {
	if math.IsNaN(f) {
		buf.WriteString(`{"$numberDouble":"NaN"}`)
		return
	}
	if math.IsInf(f, 1) {
		buf.WriteString(`{"$numberDouble":"Infinity"}`)
		return
	}
	if math.IsInf(f, -1) {
		buf.WriteString(`{"$numberDouble":"-Infinity"}`)
		return
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func int128ToString(i Int128) string {
	// Values within int64 range render as a signed decimal string; any
	// other value is written as its raw hi/lo words, which FromJSON does
	// not parse back.
	if (i.Hi == 0 && i.Lo <= math.MaxInt64) || (i.Hi == ^uint64(0) && i.Lo > math.MaxInt64) {
		return strconv.FormatInt(int64(i.Lo), 10)
	}
	return fmt.Sprintf("hi:%d,lo:%d", i.Hi, i.Lo)
}

// FromJSON parses MikuDB's extended JSON back into a Value, recognizing the
// wrapper objects written by ToJSON. Object key order from the source text
// is preserved via json.Decoder's token stream rather than Unmarshal into a
// map (which would discard it).
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec)
	if err != nil {
		return Value{}, mdberr.Wrap(mdberr.KindInvalidDocument, err, "parsing JSON")
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return jsonTokenToValue(dec, tok)
}

func jsonTokenToValue(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			if i >= math.MinInt32 && i <= math.MaxInt32 {
				return I32(int32(i)), nil
			}
			return I64(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return F64(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			return decodeJSONArray(dec)
		case '{':
			return decodeJSONObject(dec)
		}
	}
	return Value{}, mdberr.New(mdberr.KindInvalidDocument, "unexpected JSON token %v", tok)
}

func decodeJSONArray(dec *json.Decoder) (Value, error) {
	var elems []Value
	for dec.More() {
		v, err := decodeJSONValue(dec)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
	}
	if _, err := dec.Token(); err != nil { // consume ']'
		return Value{}, err
	}
	return Array(elems), nil
}

func decodeJSONObject(dec *json.Decoder) (Value, error) {
	doc := NewDocument()
	var keys []string
	vals := map[string]Value{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return Value{}, mdberr.New(mdberr.KindInvalidDocument, "expected object key")
		}
		v, err := decodeJSONValue(dec)
		if err != nil {
			return Value{}, err
		}
		keys = append(keys, key)
		vals[key] = v
		doc.Set(key, v)
	}
	if _, err := dec.Token(); err != nil { // consume '}'
		return Value{}, err
	}
	if wrapped, ok := unwrapExtendedJSON(keys, vals); ok {
		return wrapped, nil
	}
	return DocumentValue(doc), nil
}

func unwrapExtendedJSON(keys []string, vals map[string]Value) (Value, bool) {
	single := func(k string) (Value, bool) {
		if len(keys) == 1 && keys[0] == k {
			return vals[k], true
		}
		return Value{}, false
	}
	if v, ok := single("$numberLong"); ok {
		s, _ := v.AsString()
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return I128(Int128FromInt64(n)), true
		}
	}
	if v, ok := single("$numberDecimal"); ok {
		s, _ := v.AsString()
		return Decimal(parseDecimalString(s)), true
	}
	if v, ok := single("$numberDouble"); ok {
		s, _ := v.AsString()
		switch s {
		case "NaN":
			return F64(math.NaN()), true
		case "Infinity":
			return F64(math.Inf(1)), true
		case "-Infinity":
			return F64(math.Inf(-1)), true
		}
	}
	if v, ok := single("$oid"); ok {
		s, _ := v.AsString()
		id, err := ObjectIDFromHex(s)
		if err == nil {
			return ObjectIDValue(id), true
		}
	}
	if v, ok := single("$uuid"); ok {
		s, _ := v.AsString()
		u, err := uuid.Parse(s)
		if err == nil {
			return UUID(u), true
		}
	}
	if v, ok := single("$date"); ok {
		s, _ := v.AsString()
		t, err := time.Parse("2006-01-02T15:04:05.000Z", s)
		if err == nil {
			return DateTime(t), true
		}
	}
	if v, ok := single("$timestamp"); ok {
		ms, ok2 := v.AsInt64()
		if ok2 {
			return TimestampValue(Timestamp{Millis: ms}), true
		}
	}
	if v, ok := single("$binary"); ok {
		s, _ := v.AsString()
		b, err := base64.StdEncoding.DecodeString(s)
		if err == nil {
			return Binary(b), true
		}
	}
	if v, ok := single("$code"); ok {
		s, _ := v.AsString()
		return JSCodeValue(JSCode(s)), true
	}
	if len(keys) == 2 && ((keys[0] == "$regex" && keys[1] == "$options") || (keys[0] == "$options" && keys[1] == "$regex")) {
		p, _ := vals["$regex"].AsString()
		o, _ := vals["$options"].AsString()
		return RegexValue(Regex{Pattern: p, Options: o}), true
	}
	return Value{}, false
}

func parseDecimalString(s string) Decimal128 {
	// "<coefficient>e<exponent>", the format produced by Decimal128.String.
	for i := 0; i < len(s); i++ {
		if s[i] == 'e' {
			coeff, _ := strconv.ParseInt(s[:i], 10, 64)
			exp, _ := strconv.ParseInt(s[i+1:], 10, 32)
			return Decimal128{Coefficient: coeff, Exponent: int32(exp)}
		}
	}
	coeff, _ := strconv.ParseInt(s, 10, 64)
	return Decimal128{Coefficient: coeff}
}
