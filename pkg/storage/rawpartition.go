package storage

import (
	"github.com/cuemby/mikudb/pkg/mdberr"
	bolt "go.etcd.io/bbolt"
)

// RawPartition is a low-level handle onto a bbolt bucket addressed directly
// by byte-string keys, bypassing the document-frame/ObjectId conventions
// Collection enforces. The index engine (§4.5) uses this to store encoded
// index keys in "idx_<name>" partitions and index definitions in
// "_index_meta", both of which are internal to the storage layer rather
// than user-visible collections. Reserved-name and leading-underscore
// validation does not apply here: callers are trusted internal subsystems,
// not end users.
type RawPartition struct {
	engine *Engine
	name   string
}

// RawPartition returns a handle onto name, creating its bucket if absent.
func (e *Engine) RawPartition(name string) (*RawPartition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	}); err != nil {
		return nil, mdberr.Wrap(mdberr.KindIO, err, "creating raw partition %q", name)
	}
	return &RawPartition{engine: e, name: name}, nil
}

// DropRawPartition deletes an entire raw partition, bucket and all. It is a
// no-op (not an error) if the partition does not exist, since dropping an
// index that was never built is harmless.
func (e *Engine) DropRawPartition(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(name))
	})
	if err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "dropping raw partition %q", name)
	}
	return nil
}

// Count returns the number of key/value pairs currently stored in the
// partition, read from bbolt's own bucket stats rather than a maintained
// counter. A missing bucket (never written to) counts as zero.
func (p *RawPartition) Count() (uint64, error) {
	var n uint64
	err := p.engine.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		n = uint64(b.Stats().KeyN)
		return nil
	})
	if err != nil {
		return 0, mdberr.Wrap(mdberr.KindIO, err, "counting raw partition %q", p.name)
	}
	return n, nil
}

// Put writes value at key, overwriting any existing entry.
func (p *RawPartition) Put(key, value []byte) error {
	err := p.engine.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			var err error
			b, err = tx.CreateBucket([]byte(p.name))
			if err != nil {
				return err
			}
		}
		return b.Put(key, value)
	})
	if err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "writing to partition %q", p.name)
	}
	return nil
}

// Get returns the value at key, if present.
func (p *RawPartition) Get(key []byte) (value []byte, found bool, err error) {
	err = p.engine.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, mdberr.Wrap(mdberr.KindIO, err, "reading partition %q", p.name)
	}
	return value, found, nil
}

// Delete removes key, if present.
func (p *RawPartition) Delete(key []byte) error {
	err := p.engine.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		return b.Delete(key)
	})
	if err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "deleting from partition %q", p.name)
	}
	return nil
}

// DeleteBatch removes many keys in one transaction, used by TTL reaping and
// index rebuilds where a single key/value round trip per entry would be
// wasteful.
func (p *RawPartition) DeleteBatch(keys [][]byte) (int, error) {
	n := 0
	err := p.engine.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		for _, k := range keys {
			if b.Get(k) == nil {
				continue
			}
			if err := b.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return n, mdberr.Wrap(mdberr.KindIO, err, "batch-deleting from partition %q", p.name)
	}
	return n, nil
}

// ScanPrefix visits every key/value pair whose key begins with prefix, in
// ascending key order, stopping early if fn returns false. Keys and values
// passed to fn are only valid for the duration of the call, per bbolt's
// cursor contract, so ScanPrefix copies before calling fn.
func (p *RawPartition) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	return p.engine.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if !fn(append([]byte(nil), k...), append([]byte(nil), v...)) {
				return nil
			}
		}
		return nil
	})
}

// ScanRange visits every key/value pair with start <= key < end, in
// ascending order, stopping early if fn returns false. A nil end scans to
// the end of the partition.
func (p *RawPartition) ScanRange(start, end []byte, fn func(key, value []byte) bool) error {
	return p.engine.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			if end != nil && compareBytes(k, end) >= 0 {
				break
			}
			if !fn(append([]byte(nil), k...), append([]byte(nil), v...)) {
				return nil
			}
		}
		return nil
	})
}

// ForEach visits every key/value pair in the partition in ascending key
// order, stopping early if fn returns false.
func (p *RawPartition) ForEach(fn func(key, value []byte) bool) error {
	return p.engine.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(p.name))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !fn(append([]byte(nil), k...), append([]byte(nil), v...)) {
				return nil
			}
		}
		return nil
	})
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	return compareBytes(k[:len(prefix)], prefix) == 0
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
