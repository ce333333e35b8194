package document

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEncodeEmptyDocumentTag(t *testing.T) {
	got := Encode(DocumentValue(NewDocument()))
	want := []byte{tagEmptyDoc}
	if string(got) != string(want) {
		t.Errorf("Encode(empty document) = %#v, want %#v", got, want)
	}
}

func TestEncodeI32ZeroTag(t *testing.T) {
	got := Encode(I32(0))
	want := []byte{tagI32Zero}
	if string(got) != string(want) {
		t.Errorf("Encode(I32(0)) = %#v, want %#v", got, want)
	}
}

func TestEncodeSmallStringBoundary(t *testing.T) {
	s15 := "abcdefghijklmno" // 15 bytes
	got15 := Encode(String(s15))
	want15 := append([]byte{tagSmallStringBase + 15}, s15...)
	if string(got15) != string(want15) {
		t.Errorf("Encode(15-char string) = %#v, want %#v", got15, want15)
	}

	s16 := "abcdefghijklmnop" // 16 bytes
	got16 := Encode(String(s16))
	want16 := append([]byte{tagString, 16}, s16...)
	if string(got16) != string(want16) {
		t.Errorf("Encode(16-char string) = %#v, want %#v", got16, want16)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	nested := NewDocument()
	nested.Set("inner", I64(42))

	doc := NewDocument()
	doc.Set("name", String("ada"))
	doc.Set("tags", Array([]Value{String("a"), String("b")}))
	doc.Set("nested", DocumentValue(nested))

	values := []Value{
		Null(),
		Bool(true),
		Bool(false),
		I32(0),
		I32(1),
		I32(-1),
		I32(12345),
		I64(0),
		I64(-9876543210),
		I128(Int128{Lo: 1, Hi: 2}),
		F32(3.5),
		F64(0.0),
		F64(2.71828),
		Decimal(Decimal128{Coefficient: 1234, Exponent: -2}),
		String(""),
		String("short"),
		String("abcdefghijklmnop"),
		Binary([]byte{0x01, 0x02, 0x03}),
		ObjectIDValue(NewObjectID()),
		UUID(uuid.New()),
		DateTime(time.Now().UTC()),
		TimestampValue(Timestamp{Millis: 1234567890}),
		Array(nil),
		Array([]Value{I32(1), String("x")}),
		DocumentValue(NewDocument()),
		DocumentValue(doc),
		RegexValue(Regex{Pattern: "^a.*z$", Options: "i"}),
		JSCodeValue(JSCode("function() { return 1; }")),
	}

	for _, v := range values {
		encoded := Encode(v)
		decoded, n, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(Encode(%v)) error = %v", v.Kind, err)
		}
		if n != len(encoded) {
			t.Errorf("Decode(Encode(%v)) consumed %d bytes, want %d", v.Kind, n, len(encoded))
		}
		if !Equal(v, decoded) {
			t.Errorf("Decode(Encode(%v)) = %#v, want %#v", v.Kind, decoded, v)
		}
	}
}

func TestDecodeUnknownTagFails(t *testing.T) {
	if _, _, err := Decode([]byte{0xFF}); err == nil {
		t.Error("Decode(unknown tag) want error, got nil")
	}
}

func TestDecodeTruncatedInputFails(t *testing.T) {
	encoded := Encode(I64(123456789))
	if _, _, err := Decode(encoded[:len(encoded)-1]); err == nil {
		t.Error("Decode(truncated i64) want error, got nil")
	}
}
