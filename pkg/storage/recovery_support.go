package storage

import (
	"github.com/cuemby/mikudb/pkg/document"
	bolt "go.etcd.io/bbolt"
)

// ReplayBatch applies a set of idempotent put/delete operations against
// possibly many collections inside a single bbolt transaction, the unit
// recovery (C4) uses to replay one committed transaction's write-set.
// Puts store the raw document frame bytes already produced by the
// write-ahead log under the document's key; both put and delete are safe
// to repeat.
type ReplayOp struct {
	Collection string
	ID         document.ObjectID
	Delete     bool
	Frame      []byte // encoded document frame; unused when Delete is true
}

// ReplayBatch commits ops atomically and returns how many were puts vs.
// deletes, so the caller can attribute them to the right recovery counter.
func (e *Engine) ReplayBatch(ops []ReplayOp) (puts, deletes int, err error) {
	err = e.db.Update(func(tx *bolt.Tx) error {
		for _, op := range ops {
			b, err := tx.CreateBucketIfNotExists([]byte(op.Collection))
			if err != nil {
				return err
			}
			key := docKey(op.ID)
			if op.Delete {
				if err := b.Delete(key); err != nil {
					return err
				}
				deletes++
				continue
			}
			if err := b.Put(key, op.Frame); err != nil {
				return err
			}
			puts++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	e.ResyncCounters()
	return puts, deletes, nil
}

// ResyncCounters recomputes every collection's approximate counter from
// bbolt's own bucket stats; recovery calls this after replay since
// ReplayBatch writes below the Collection API that normally maintains
// counters incrementally.
func (e *Engine) ResyncCounters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			n := string(name)
			if n == MetadataPartition || n == SystemPartition {
				return nil
			}
			e.counters[n] = uint64(b.Stats().KeyN)
			return nil
		})
	})
}
