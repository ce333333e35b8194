package storage

import (
	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/mdberr"
	bolt "go.etcd.io/bbolt"
)

// Collection is a handle onto one partition of the engine's bbolt file.
// It carries no state of its own beyond the name; all mutable state
// (bucket, counters) lives in the owning Engine.
type Collection struct {
	engine *Engine
	name   string
}

func docKey(id document.ObjectID) []byte {
	key := make([]byte, 1+len(id))
	key[0] = docPrefix
	copy(key[1:], id[:])
	return key
}

// Insert generates an ObjectId for doc if it has none, fails with
// DocumentExists if the id is already present, and bumps the approximate
// counter on success.
func (c *Collection) Insert(doc *document.Document) (document.ObjectID, error) {
	id, ok := doc.ID()
	if !ok {
		id = document.NewObjectID()
		doc.Set("_id", document.ObjectIDValue(id))
	}
	err := c.engine.db.Update(func(tx *bolt.Tx) error {
		b := c.bucket(tx)
		key := docKey(id)
		if b.Get(key) != nil {
			return mdberr.New(mdberr.KindDocumentExists, "document %s already exists in %q", id, c.name)
		}
		return b.Put(key, document.EncodeDocumentFrame(doc))
	})
	if err != nil {
		return document.ObjectID{}, err
	}
	c.engine.bumpCounter(c.name, 1)
	return id, nil
}

// InsertMany inserts every document in docs as a single atomic batch:
// either all succeed, or none are written.
func (c *Collection) InsertMany(docs []*document.Document) ([]document.ObjectID, error) {
	ids := make([]document.ObjectID, len(docs))
	err := c.engine.db.Update(func(tx *bolt.Tx) error {
		b := c.bucket(tx)
		for i, doc := range docs {
			id, ok := doc.ID()
			if !ok {
				id = document.NewObjectID()
				doc.Set("_id", document.ObjectIDValue(id))
			}
			key := docKey(id)
			if b.Get(key) != nil {
				return mdberr.New(mdberr.KindDocumentExists, "document %s already exists in %q", id, c.name)
			}
			if err := b.Put(key, document.EncodeDocumentFrame(doc)); err != nil {
				return err
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.engine.bumpCounter(c.name, uint64(len(docs)))
	return ids, nil
}

// Upsert puts doc, replacing any existing document with the same _id,
// and reports whether it replaced (true) or inserted (false) a document.
func (c *Collection) Upsert(doc *document.Document) (replaced bool, err error) {
	id, ok := doc.ID()
	if !ok {
		id = document.NewObjectID()
		doc.Set("_id", document.ObjectIDValue(id))
	}
	err = c.engine.db.Update(func(tx *bolt.Tx) error {
		b := c.bucket(tx)
		key := docKey(id)
		replaced = b.Get(key) != nil
		return b.Put(key, document.EncodeDocumentFrame(doc))
	})
	if err != nil {
		return false, err
	}
	if !replaced {
		c.engine.bumpCounter(c.name, 1)
	}
	return replaced, nil
}

// Get returns the document stored under id, checksum-verified on decode.
func (c *Collection) Get(id document.ObjectID) (*document.Document, bool, error) {
	var doc *document.Document
	err := c.engine.db.View(func(tx *bolt.Tx) error {
		b := c.bucket(tx)
		raw := b.Get(docKey(id))
		if raw == nil {
			return nil
		}
		d, err := document.DecodeDocumentFrame(raw)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return doc, doc != nil, nil
}

// Update replaces the document stored under id, failing with
// DocumentNotFound if it is absent.
func (c *Collection) Update(id document.ObjectID, doc *document.Document) error {
	doc.Set("_id", document.ObjectIDValue(id))
	return c.engine.db.Update(func(tx *bolt.Tx) error {
		b := c.bucket(tx)
		key := docKey(id)
		if b.Get(key) == nil {
			return mdberr.New(mdberr.KindDocumentNotFound, "document %s not found in %q", id, c.name)
		}
		return b.Put(key, document.EncodeDocumentFrame(doc))
	})
}

// Delete removes the document stored under id, reporting whether it was
// present.
func (c *Collection) Delete(id document.ObjectID) (bool, error) {
	var existed bool
	err := c.engine.db.Update(func(tx *bolt.Tx) error {
		b := c.bucket(tx)
		key := docKey(id)
		existed = b.Get(key) != nil
		if !existed {
			return nil
		}
		return b.Delete(key)
	})
	if err != nil {
		return false, err
	}
	if existed {
		c.engine.decrementCounter(c.name, 1)
	}
	return existed, nil
}

// DeleteMany removes every id present, as a single batch, and returns how
// many were actually deleted.
func (c *Collection) DeleteMany(ids []document.ObjectID) (int, error) {
	var deleted int
	err := c.engine.db.Update(func(tx *bolt.Tx) error {
		b := c.bucket(tx)
		for _, id := range ids {
			key := docKey(id)
			if b.Get(key) == nil {
				continue
			}
			if err := b.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.engine.decrementCounter(c.name, uint64(deleted))
	return deleted, nil
}

// FindAll decodes every document in the collection via a prefix scan over
// the 'd' discriminator byte.
func (c *Collection) FindAll() ([]*document.Document, error) {
	var docs []*document.Document
	err := c.Iter(func(d *document.Document) bool {
		docs = append(docs, d)
		return true
	})
	return docs, err
}

// Iter streams decoded documents to fn in key order, stopping early if fn
// returns false.
func (c *Collection) Iter(fn func(*document.Document) bool) error {
	return c.engine.db.View(func(tx *bolt.Tx) error {
		b := c.bucket(tx)
		cur := b.Cursor()
		prefix := []byte{docPrefix}
		for k, v := cur.Seek(prefix); k != nil && k[0] == docPrefix; k, v = cur.Next() {
			doc, err := document.DecodeDocumentFrame(v)
			if err != nil {
				return err
			}
			if !fn(doc) {
				break
			}
		}
		return nil
	})
}

// Count returns the engine's cached, approximate document count for this
// collection; CountScan performs an exact prefix scan.
func (c *Collection) Count() uint64 {
	c.engine.mu.RLock()
	defer c.engine.mu.RUnlock()
	return c.engine.counters[c.name]
}

func (c *Collection) CountScan() (uint64, error) {
	var n uint64
	err := c.Iter(func(*document.Document) bool {
		n++
		return true
	})
	return n, err
}

// Clear deletes every document in the collection as a single batch and
// returns how many were removed.
func (c *Collection) Clear() (int, error) {
	var cleared int
	err := c.engine.db.Update(func(tx *bolt.Tx) error {
		b := c.bucket(tx)
		cur := b.Cursor()
		var keys [][]byte
		for k, _ := cur.Seek([]byte{docPrefix}); k != nil && k[0] == docPrefix; k, _ = cur.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			cleared++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.engine.mu.Lock()
	c.engine.counters[c.name] = 0
	c.engine.mu.Unlock()
	return cleared, nil
}

// Name returns the collection's partition name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) bucket(tx *bolt.Tx) *bolt.Bucket {
	return tx.Bucket([]byte(c.name))
}

func (e *Engine) bumpCounter(name string, delta uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters[name] += delta
}

func (e *Engine) decrementCounter(name string, delta uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.counters[name] < delta {
		e.counters[name] = 0
		return
	}
	e.counters[name] -= delta
}
