package document

import "github.com/cuemby/mikudb/pkg/mdberr"

// MaxNestingDepth, MaxStringBytes, MaxArrayLen and MaxDocumentBytes are the
// §3 invariants' defaults; pkg/config can override them per engine instance
// (§6.4), these are only the package-level fallbacks used when no override
// is supplied to Validate.
const (
	MaxNestingDepth  = 100
	MaxStringBytes   = 16 * 1024 * 1024
	MaxArrayLen      = 1_000_000
	MaxDocumentBytes = 16 * 1024 * 1024
)

type kv struct {
	Key   string
	Value Value
}

// Document is an ordered mapping from string keys to Values. Insertion
// order is observable (§3): aggregation projections and JSON output depend
// on it. A Document never holds duplicate keys: Set on an existing key
// replaces its value in place, which keeps the "no duplicate keys"
// invariant while allowing updates.
type Document struct {
	fields []kv
	index  map[string]int
}

// NewDocument returns an empty, ready-to-use Document.
func NewDocument() *Document {
	return &Document{index: make(map[string]int)}
}

// Set inserts a new key or replaces the value of an existing one in place,
// preserving its original position.
func (d *Document) Set(key string, v Value) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[key]; ok {
		d.fields[i].Value = v
		return
	}
	d.index[key] = len(d.fields)
	d.fields = append(d.fields, kv{Key: key, Value: v})
}

// Get returns the value for key and whether it was present.
func (d *Document) Get(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	i, ok := d.index[key]
	if !ok {
		return Value{}, false
	}
	return d.fields[i].Value, true
}

// Delete removes key if present, preserving the order of remaining fields.
func (d *Document) Delete(key string) bool {
	i, ok := d.index[key]
	if !ok {
		return false
	}
	d.fields = append(d.fields[:i], d.fields[i+1:]...)
	delete(d.index, key)
	for k, idx := range d.index {
		if idx > i {
			d.index[k] = idx - 1
		}
	}
	return true
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Keys returns field names in insertion order.
func (d *Document) Keys() []string {
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.Key
	}
	return keys
}

// Range calls fn for each field in insertion order; fn returning false
// stops iteration early.
func (d *Document) Range(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for _, f := range d.fields {
		if !fn(f.Key, f.Value) {
			return
		}
	}
}

// Clone deep-copies d; documents are tree-shaped with no shared mutable
// aliasing (§3 Ownership), so update paths clone-on-write from this.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := NewDocument()
	for _, f := range d.fields {
		out.Set(f.Key, cloneValue(f.Value))
	}
	return out
}

func cloneValue(v Value) Value {
	switch v.Kind {
	case KindDocument:
		doc, _ := v.AsDocument()
		return DocumentValue(doc.Clone())
	case KindArray:
		arr, _ := v.AsArray()
		out := make([]Value, len(arr))
		for i, e := range arr {
			out[i] = cloneValue(e)
		}
		return Array(out)
	case KindBinary:
		b, _ := v.Raw.([]byte)
		cp := make([]byte, len(b))
		copy(cp, b)
		return Binary(cp)
	default:
		return v
	}
}

// GetPath resolves a dotted field path ("a.b.c") against nested documents,
// the lookup used by index field extraction (§4.5) and query field paths
// (§4.6).
func (d *Document) GetPath(path []string) (Value, bool) {
	if len(path) == 0 {
		return Value{}, false
	}
	v, ok := d.Get(path[0])
	if !ok {
		return Value{}, false
	}
	if len(path) == 1 {
		return v, true
	}
	sub, ok := v.AsDocument()
	if !ok {
		return Value{}, false
	}
	return sub.GetPath(path[1:])
}

// SetPath assigns v at a dotted field path, creating intermediate
// sub-documents as needed (§4.8 SET field = v).
func (d *Document) SetPath(path []string, v Value) error {
	if len(path) == 0 {
		return mdberr.New(mdberr.KindInvalidFieldPath, "empty field path")
	}
	if len(path) == 1 {
		d.Set(path[0], v)
		return nil
	}
	existing, ok := d.Get(path[0])
	var sub *Document
	if ok {
		sub, ok = existing.AsDocument()
		if !ok {
			return mdberr.New(mdberr.KindTypeError, "field %q is not a document", path[0])
		}
	} else {
		sub = NewDocument()
		d.Set(path[0], DocumentValue(sub))
	}
	return sub.SetPath(path[1:], v)
}

// ID returns the document's _id field as an ObjectID, if present and
// well-typed. §3 requires _id, when present, to be an ObjectID.
func (d *Document) ID() (ObjectID, bool) {
	v, ok := d.Get("_id")
	if !ok {
		return ObjectID{}, false
	}
	return v.AsObjectID()
}

// Validate checks the §3 structural invariants (nesting depth, array
// length, string/document size, _id typing, no duplicate keys — the last
// is structurally impossible via Set/Delete, so it is not re-checked here).
func (d *Document) Validate(maxDepth int, maxString, maxArray, maxDocBytes int) error {
	if id, ok := d.Get("_id"); ok {
		if _, ok := id.AsObjectID(); !ok && !id.IsNull() {
			return mdberr.New(mdberr.KindInvalidDocument, "_id must be an ObjectID")
		}
	}
	if err := validateValue(DocumentValue(d), 0, maxDepth, maxString, maxArray); err != nil {
		return err
	}
	if n := EncodedLen(DocumentValue(d)); n > maxDocBytes {
		return mdberr.New(mdberr.KindDocumentTooLarge, "document is %d bytes, max %d", n, maxDocBytes)
	}
	return nil
}

func validateValue(v Value, depth, maxDepth, maxString, maxArray int) error {
	if depth > maxDepth {
		return mdberr.New(mdberr.KindNestingTooDeep, "nesting exceeds %d levels", maxDepth)
	}
	switch v.Kind {
	case KindString:
		s, _ := v.AsString()
		if len(s) > maxString {
			return mdberr.New(mdberr.KindInvalidDocument, "string of %d bytes exceeds max %d", len(s), maxString)
		}
	case KindArray:
		arr, _ := v.AsArray()
		if len(arr) > maxArray {
			return mdberr.New(mdberr.KindInvalidDocument, "array of %d elements exceeds max %d", len(arr), maxArray)
		}
		for _, e := range arr {
			if err := validateValue(e, depth+1, maxDepth, maxString, maxArray); err != nil {
				return err
			}
		}
	case KindDocument:
		doc, _ := v.AsDocument()
		var err error
		doc.Range(func(_ string, fv Value) bool {
			err = validateValue(fv, depth+1, maxDepth, maxString, maxArray)
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
