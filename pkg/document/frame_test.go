package document

import (
	"testing"

	"github.com/cuemby/mikudb/pkg/compress"
	"github.com/cuemby/mikudb/pkg/mdberr"
)

func TestFrameRoundTrip(t *testing.T) {
	InitCompression(compress.None)
	doc := NewDocument()
	doc.Set("name", String("sprocket"))
	doc.Set("count", I32(7))

	frame := EncodeDocumentFrame(doc)
	got, err := DecodeDocumentFrame(frame)
	if err != nil {
		t.Fatalf("DecodeDocumentFrame() error = %v", err)
	}
	if !DocumentsEqual(doc, got) {
		t.Errorf("DecodeDocumentFrame(EncodeDocumentFrame(doc)) = %v, want %v", got, doc)
	}
}

func TestFrameRoundTripWithCompression(t *testing.T) {
	t.Cleanup(func() { InitCompression(compress.None) })
	for _, codec := range []compress.Codec{compress.LZ4, compress.Zstd} {
		InitCompression(codec)
		doc := NewDocument()
		doc.Set("payload", String("mikudb frame compression round trip payload, repeated for a real ratio "+
			"mikudb frame compression round trip payload, repeated for a real ratio"))

		frame := EncodeDocumentFrame(doc)
		if frame[5] != byte(codec) {
			t.Errorf("frame codec byte = %d, want %d", frame[5], codec)
		}
		got, err := DecodeDocumentFrame(frame)
		if err != nil {
			t.Fatalf("DecodeDocumentFrame() error = %v", err)
		}
		if !DocumentsEqual(doc, got) {
			t.Errorf("codec %v: DecodeDocumentFrame(EncodeDocumentFrame(doc)) = %v, want %v", codec, got, doc)
		}
	}
}

func TestFrameTamperDetected(t *testing.T) {
	InitCompression(compress.None)
	doc := NewDocument()
	doc.Set("name", String("sprocket"))

	frame := EncodeDocumentFrame(doc)
	frame[len(frame)-1] ^= 0xFF // flip a checksum byte

	_, err := DecodeDocumentFrame(frame)
	if err == nil {
		t.Fatal("DecodeDocumentFrame(tampered frame): want error, got nil")
	}
	if mdberr.Of(err) != mdberr.KindInvalidDocument {
		t.Errorf("DecodeDocumentFrame(tampered frame) kind = %v, want %v", mdberr.Of(err), mdberr.KindInvalidDocument)
	}
}

func TestFrameBadMagicRejected(t *testing.T) {
	_, err := DecodeFrame([]byte{0x00, 0x00, 0x00, 0x00, FrameVersion, byte(compress.None), 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	if mdberr.Of(err) != mdberr.KindInvalidDocument {
		t.Errorf("DecodeFrame(bad magic) kind = %v, want %v", mdberr.Of(err), mdberr.KindInvalidDocument)
	}
}

func TestFrameTooShortRejected(t *testing.T) {
	_, err := DecodeFrame([]byte{0x42, 0x4F, 0x4D})
	if mdberr.Of(err) != mdberr.KindUnexpectedEOF {
		t.Errorf("DecodeFrame(too short) kind = %v, want %v", mdberr.Of(err), mdberr.KindUnexpectedEOF)
	}
}
