package index

import (
	"bytes"
	"testing"

	"github.com/cuemby/mikudb/pkg/document"
)

func TestEncodeOrderedKeyPreservesIntegerOrder(t *testing.T) {
	vals := []int64{-100, -1, 0, 1, 100}
	owner := document.NewObjectID()
	var encoded [][]byte
	for _, v := range vals {
		encoded = append(encoded, EncodeOrderedKey([]document.Value{document.I64(v)}, owner))
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Errorf("encoded key for %d does not sort before key for %d", vals[i-1], vals[i])
		}
	}
}

func TestEncodeOrderedKeyPreservesStringOrder(t *testing.T) {
	owner := document.NewObjectID()
	a := EncodeOrderedKey([]document.Value{document.String("alpha")}, owner)
	b := EncodeOrderedKey([]document.Value{document.String("beta")}, owner)
	if bytes.Compare(a, b) >= 0 {
		t.Errorf("\"alpha\" key did not sort before \"beta\" key")
	}
}

func TestEncodeHashKeyIsDeterministic(t *testing.T) {
	owner := document.NewObjectID()
	v := []document.Value{document.String("same"), document.I32(7)}
	a := EncodeHashKey(v, owner)
	b := EncodeHashKey(v, owner)
	if !bytes.Equal(a, b) {
		t.Error("EncodeHashKey is not deterministic for identical inputs")
	}
}

func TestDecodeOwnerSuffixRoundTrips(t *testing.T) {
	owner := document.NewObjectID()
	key := EncodeOrderedKey([]document.Value{document.String("x")}, owner)
	got, err := decodeOwnerSuffix(key)
	if err != nil {
		t.Fatalf("decodeOwnerSuffix() error = %v", err)
	}
	if got != owner {
		t.Errorf("decodeOwnerSuffix() = %v, want %v", got, owner)
	}
}

func TestFieldSeparatorPreventsFalsePrefixMatch(t *testing.T) {
	owner := document.NewObjectID()
	// "ab" split as ["a","b"] must not share an encoded prefix with the
	// single field "ab".
	twoFields := EncodeOrderedPrefix([]document.Value{document.String("a"), document.String("b")})
	oneField := EncodeOrderedPrefix([]document.Value{document.String("ab")})
	if bytes.Equal(twoFields, oneField) {
		t.Error("multi-field and single-field encodings collided")
	}
	_ = owner
}
