package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/mikudb/pkg/mdberr"
	bolt "go.etcd.io/bbolt"
)

// MetadataPartition and SystemPartition are the engine's two reserved
// partitions (§4.3); user collection names may not collide with them and
// may not begin with an underscore.
const (
	MetadataPartition = "_metadata"
	SystemPartition   = "_system"
)

const dbFileName = "mikudb.db"

// docPrefix is the single discriminator byte that begins every document
// key within a collection partition (§4.3).
const docPrefix = 'd'

// Engine owns the on-disk bbolt file and every collection partition
// opened against it. Collections are lightweight handles obtained via
// Collection; the Engine itself is the only thing holding the *bolt.DB.
type Engine struct {
	db       *bolt.DB
	dataDir  string
	mu       sync.RWMutex
	counters map[string]uint64
}

// Open creates dataDir if absent, opens (or creates) the bbolt file
// inside it, ensures the reserved partitions exist, and discovers any
// collection partitions already present on disk, seeding their
// approximate counters from bbolt's own bucket stats (§4.3 "Engine
// lifecycle").
func Open(dataDir string) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, mdberr.Wrap(mdberr.KindIO, err, "creating data directory %s", dataDir)
	}
	db, err := bolt.Open(filepath.Join(dataDir, dbFileName), 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, mdberr.Wrap(mdberr.KindIO, err, "opening storage file")
	}
	e := &Engine{db: db, dataDir: dataDir, counters: map[string]uint64{}}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{MetadataPartition, SystemPartition} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, mdberr.Wrap(mdberr.KindIO, err, "creating reserved partitions")
	}
	if err := db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			n := string(name)
			if n == MetadataPartition || n == SystemPartition {
				return nil
			}
			e.counters[n] = uint64(b.Stats().KeyN)
			return nil
		})
	}); err != nil {
		db.Close()
		return nil, mdberr.Wrap(mdberr.KindIO, err, "scanning existing partitions")
	}
	return e, nil
}

// CreateCollection creates an empty partition for name. Reserved and
// leading-underscore names are rejected; an existing collection is
// CollectionExists.
func (e *Engine) CreateCollection(name string) error {
	if err := validateCollectionName(name); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.counters[name]; exists {
		return mdberr.New(mdberr.KindCollectionExists, "collection %q already exists", name)
	}
	err := e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket([]byte(name))
		return err
	})
	if err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "creating collection %q", name)
	}
	e.counters[name] = 0
	return nil
}

// DropCollection deletes name's partition and all documents in it.
func (e *Engine) DropCollection(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.counters[name]; !exists {
		return mdberr.New(mdberr.KindCollectionNotFound, "collection %q not found", name)
	}
	if err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte(name))
	}); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "dropping collection %q", name)
	}
	delete(e.counters, name)
	return nil
}

// Collections lists the user-visible collection names.
func (e *Engine) Collections() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.counters))
	for n := range e.counters {
		names = append(names, n)
	}
	return names
}

// HasCollection reports whether name is a known, non-reserved partition.
func (e *Engine) HasCollection(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.counters[name]
	return ok
}

// Collection returns a handle for name, auto-creating its partition on
// first use (§4.3: "Created explicitly or on first write").
func (e *Engine) Collection(name string) (*Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	e.mu.RLock()
	_, exists := e.counters[name]
	e.mu.RUnlock()
	if !exists {
		if err := e.CreateCollection(name); err != nil && mdberr.Of(err) != mdberr.KindCollectionExists {
			return nil, err
		}
	}
	return &Collection{engine: e, name: name}, nil
}

func validateCollectionName(name string) error {
	if name == "" {
		return mdberr.New(mdberr.KindInvalidDocument, "collection name must not be empty")
	}
	if strings.HasPrefix(name, "_") {
		return mdberr.New(mdberr.KindInvalidDocument, "collection name %q is reserved (leading underscore)", name)
	}
	return nil
}

// Compact rewrites the underlying bbolt file into a freshly packed copy
// and swaps it in, reclaiming space left by deleted keys. bbolt has no
// in-place compaction, so this follows the standard copy-the-whole-db
// pattern via Tx.WriteTo.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tmpPath := filepath.Join(e.dataDir, dbFileName+".compact")
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "creating compaction target")
	}
	if err := e.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(tmp)
		return err
	}); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return mdberr.Wrap(mdberr.KindIO, err, "writing compacted database")
	}
	if err := tmp.Close(); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "closing compacted database")
	}
	path := e.db.Path()
	if err := e.db.Close(); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "closing database before compaction swap")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "swapping in compacted database")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "reopening database after compaction")
	}
	e.db = db
	return nil
}

// Flush forces buffered writes to stable storage; bbolt fsyncs on every
// commit by default, so this is a best-effort extra sync for callers
// that opened the engine with NoSync-style batching elsewhere.
func (e *Engine) Flush() error {
	return e.db.Sync()
}

// Close flushes and closes the underlying database file.
func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "closing storage engine")
	}
	return nil
}

// DataDir returns the directory this engine was opened against, for
// callers that need to locate sibling files (the WAL, the bbolt file
// itself for a size check).
func (e *Engine) DataDir() string {
	return e.dataDir
}

// FilePath returns the path to the underlying bbolt file.
func (e *Engine) FilePath() string {
	return filepath.Join(e.dataDir, dbFileName)
}

// CollectionCounts returns each collection's approximate document count,
// for status reporting and metrics.
func (e *Engine) CollectionCounts() map[string]uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]uint64, len(e.counters))
	for name, n := range e.counters {
		out[name] = n
	}
	return out
}
