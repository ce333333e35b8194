package index

import (
	"encoding/binary"
	"time"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/mdberr"
)

// extractFieldValues resolves every field path in def against doc, treating
// a missing path as Null. skip reports whether a sparse index should omit
// this document entirely: sparse skips whenever any extracted value is
// Null (§4.5 insert_document).
func extractFieldValues(def *Definition, doc *document.Document) (values []document.Value, skip bool) {
	values = make([]document.Value, len(def.Fields))
	anyNull := false
	for i, fs := range def.Fields {
		v, ok := doc.GetPath(fs.Path)
		if !ok {
			v = document.Null()
		}
		if v.IsNull() {
			anyNull = true
		}
		values[i] = v
	}
	if def.Sparse && anyNull {
		return nil, true
	}
	return values, false
}

func ttlValue(def *Definition) []byte {
	if def.TTLSeconds <= 0 {
		return nil
	}
	var b [8]byte
	exp := time.Now().Unix() + def.TTLSeconds
	binary.LittleEndian.PutUint64(b[:], uint64(exp))
	return b[:]
}

// InsertDocument adds doc's entry (or entries, for a full-text index) to
// index name (§4.5 insert_document).
func (e *Engine) InsertDocument(name string, doc *document.Document, docID document.ObjectID) error {
	def, ok := e.Get(name)
	if !ok {
		return mdberr.New(mdberr.KindCollectionNotFound, "index %q not found", name)
	}
	if def.Type == TypeFullText {
		return e.insertFullText(def, doc, docID)
	}
	values, skip := extractFieldValues(def, doc)
	if skip {
		return nil
	}
	part, err := e.partition(def)
	if err != nil {
		return err
	}
	val := ttlValue(def)
	switch def.Type {
	case TypeHash:
		prefix := EncodeHashPrefix(values)
		if def.Unique {
			if dup, err := hasAnyWithPrefix(part, prefix); err != nil {
				return err
			} else if dup {
				return mdberr.New(mdberr.KindDocumentExists, "duplicate key for unique index %q", name)
			}
		}
		key := EncodeHashKey(values, docID)
		return part.Put(key, val)
	case TypeOrdered:
		prefix := EncodeOrderedPrefix(values)
		if def.Unique {
			if dup, err := hasAnyWithPrefix(part, prefix); err != nil {
				return err
			} else if dup {
				return mdberr.New(mdberr.KindDocumentExists, "duplicate key for unique index %q", name)
			}
		}
		key := EncodeOrderedKey(values, docID)
		return part.Put(key, val)
	default:
		return mdberr.New(mdberr.KindExecution, "unsupported index type for %q", name)
	}
}

// DeleteDocument removes doc's entry from index name, the symmetric
// counterpart of InsertDocument (§4.5 delete_document).
func (e *Engine) DeleteDocument(name string, doc *document.Document, docID document.ObjectID) error {
	def, ok := e.Get(name)
	if !ok {
		return mdberr.New(mdberr.KindCollectionNotFound, "index %q not found", name)
	}
	if def.Type == TypeFullText {
		return e.deleteFullText(def, doc, docID)
	}
	values, skip := extractFieldValues(def, doc)
	if skip {
		return nil
	}
	part, err := e.partition(def)
	if err != nil {
		return err
	}
	var key []byte
	switch def.Type {
	case TypeHash:
		key = EncodeHashKey(values, docID)
	case TypeOrdered:
		key = EncodeOrderedKey(values, docID)
	default:
		return mdberr.New(mdberr.KindExecution, "unsupported index type for %q", name)
	}
	return part.Delete(key)
}

func hasAnyWithPrefix(part interface {
	ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error
}, prefix []byte) (bool, error) {
	found := false
	err := part.ScanPrefix(prefix, func(key, value []byte) bool {
		found = true
		return false
	})
	return found, err
}

// Lookup returns the owning ObjectIds of every entry matching keyValues
// exactly (§4.5 lookup): an exact-digest match on a hash index, a
// field-value prefix scan on an ordered index.
func (e *Engine) Lookup(name string, keyValues []document.Value) ([]document.ObjectID, error) {
	def, ok := e.Get(name)
	if !ok {
		return nil, mdberr.New(mdberr.KindCollectionNotFound, "index %q not found", name)
	}
	part, err := e.partition(def)
	if err != nil {
		return nil, err
	}
	var ids []document.ObjectID
	var prefix []byte
	switch def.Type {
	case TypeHash:
		prefix = EncodeHashPrefix(keyValues)
	case TypeOrdered:
		prefix = EncodeOrderedPrefix(keyValues)
	default:
		return nil, mdberr.New(mdberr.KindInvalidOperator, "lookup is not supported on full-text index %q", name)
	}
	// Ordered encodings carry no terminator, so with every field given only
	// keys of exactly prefix+owner length match; longer ones merely extend it.
	exact := def.Type == TypeOrdered && len(keyValues) == len(def.Fields)
	scanErr := part.ScanPrefix(prefix, func(key, value []byte) bool {
		if exact && len(key) != len(prefix)+12 {
			return true
		}
		if id, err := decodeOwnerSuffix(key); err == nil {
			ids = append(ids, id)
		}
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}
	return ids, nil
}

// ffBound is a 13-byte all-0xFF sentinel suffix, strictly greater than any
// real 12-byte ObjectId suffix (even an all-0xFF one, by virtue of length),
// used to turn a field-value prefix into an inclusive upper bound.
var ffBound = func() []byte {
	b := make([]byte, 13)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}()

// RangeQuery scans an ordered index between two optional field-value bounds
// (§4.5 range_query); nil start/end leaves that side unbounded. Forbidden
// on hash and full-text indexes.
func (e *Engine) RangeQuery(name string, start, end []document.Value, inclusive bool) ([]document.ObjectID, error) {
	def, ok := e.Get(name)
	if !ok {
		return nil, mdberr.New(mdberr.KindCollectionNotFound, "index %q not found", name)
	}
	if def.Type != TypeOrdered {
		return nil, mdberr.New(mdberr.KindInvalidOperator, "range_query requires an ordered index, %q is %s", name, def.Type)
	}
	part, err := e.partition(def)
	if err != nil {
		return nil, err
	}

	var startBound []byte
	if start != nil {
		startBound = EncodeOrderedPrefix(start)
		if !inclusive {
			startBound = append(startBound, ffBound...)
		}
	}
	var endBound []byte
	if end != nil {
		endBound = EncodeOrderedPrefix(end)
		if inclusive {
			endBound = append(endBound, ffBound...)
		}
	}

	var ids []document.ObjectID
	scanErr := part.ScanRange(startBound, endBound, func(key, value []byte) bool {
		if id, err := decodeOwnerSuffix(key); err == nil {
			ids = append(ids, id)
		}
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}
	return ids, nil
}

// CleanupExpiredTTL scans every TTL-bearing index, batch-deleting entries
// whose stored expiration has passed, and returns how many were removed
// (§4.5 "TTL policy"). Owning documents are not touched here; the index is
// the source of truth and the application layer reaps documents separately.
func (e *Engine) CleanupExpiredTTL() (int, error) {
	now := uint64(time.Now().Unix())
	total := 0
	for _, name := range e.Names() {
		def, ok := e.Get(name)
		if !ok || def.TTLSeconds <= 0 {
			continue
		}
		part, err := e.partition(def)
		if err != nil {
			return total, err
		}
		var expired [][]byte
		if err := part.ForEach(func(key, value []byte) bool {
			if len(value) == 8 && binary.LittleEndian.Uint64(value) <= now {
				expired = append(expired, append([]byte(nil), key...))
			}
			return true
		}); err != nil {
			return total, err
		}
		n, err := part.DeleteBatch(expired)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
