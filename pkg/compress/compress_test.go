package compress

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("mikudb compress round trip "), 64)
	for _, codec := range []Codec{None, LZ4, Zstd} {
		t.Run(codec.String(), func(t *testing.T) {
			enc, err := Encode(codec, payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			dec, err := Decode(codec, enc)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !bytes.Equal(dec, payload) {
				t.Errorf("Decode(Encode(payload)) = %q, want %q", dec, payload)
			}
		})
	}
}

func TestEncodeUnknownCodecFails(t *testing.T) {
	if _, err := Encode(Codec(99), []byte("x")); err == nil {
		t.Error("Encode() with unknown codec: want error, got nil")
	}
}

func TestDecodeCorruptLZ4Fails(t *testing.T) {
	enc, err := Encode(LZ4, []byte("hello world"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	enc[len(enc)-1] ^= 0xFF
	if _, err := Decode(LZ4, enc); err == nil {
		t.Error("Decode() of corrupted lz4 data: want error, got nil")
	}
}
