package index

import (
	"sync"

	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/storage"
)

// Engine owns every index definition and borrows its partitions from a
// storage.Engine (§4.5: indexes have no storage of their own). It is safe
// for concurrent use.
type Engine struct {
	store *storage.Engine
	mu    sync.RWMutex
	defs  map[string]*Definition
	meta  *storage.RawPartition
}

// Open attaches an index Engine to store and rebuilds its in-memory
// definition table from "_index_meta" (§4.5 load_indexes()).
func Open(store *storage.Engine) (*Engine, error) {
	meta, err := store.RawPartition(metaPartitionName)
	if err != nil {
		return nil, err
	}
	e := &Engine{store: store, defs: map[string]*Definition{}, meta: meta}
	if err := e.loadIndexes(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadIndexes() error {
	return e.meta.ForEach(func(key, value []byte) bool {
		def, err := unmarshalDefinition(value)
		if err != nil {
			// A corrupt definition entry should not block every other index
			// from loading; it is simply skipped.
			return true
		}
		e.defs[def.Name] = def
		return true
	})
}

// CreateIndex persists def and creates its backing partition. Fails if an
// index with the same name already exists (§4.5 create_index).
func (e *Engine) CreateIndex(def *Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.defs[def.Name]; exists {
		return mdberr.New(mdberr.KindCollectionExists, "index %q already exists", def.Name)
	}
	if _, err := e.store.RawPartition(def.partitionName()); err != nil {
		return err
	}
	b, err := marshalDefinition(def)
	if err != nil {
		return err
	}
	if err := e.meta.Put([]byte(def.Name), b); err != nil {
		return err
	}
	e.defs[def.Name] = def
	return nil
}

// DropIndex removes an index's metadata and its backing partition
// (§4.5 drop_index).
func (e *Engine) DropIndex(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.defs[name]
	if !ok {
		return mdberr.New(mdberr.KindCollectionNotFound, "index %q not found", name)
	}
	if err := e.store.DropRawPartition(def.partitionName()); err != nil {
		return err
	}
	if err := e.meta.Delete([]byte(name)); err != nil {
		return err
	}
	delete(e.defs, name)
	return nil
}

// Get returns an index's definition, if one exists by that name.
func (e *Engine) Get(name string) (*Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.defs[name]
	return d, ok
}

// Names lists every known index name.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.defs))
	for n := range e.defs {
		names = append(names, n)
	}
	return names
}

// ForCollection lists every index defined over a given collection, the set
// ops.go consults on every insert/update/delete to a document.
func (e *Engine) ForCollection(collection string) []*Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Definition
	for _, d := range e.defs {
		if d.Collection == collection {
			out = append(out, d)
		}
	}
	return out
}

func (e *Engine) partition(def *Definition) (*storage.RawPartition, error) {
	return e.store.RawPartition(def.partitionName())
}

// EntryCounts returns each index's approximate entry count, keyed by index
// name, for status reporting and metrics.
func (e *Engine) EntryCounts() map[string]uint64 {
	e.mu.RLock()
	defs := make([]*Definition, 0, len(e.defs))
	for _, d := range e.defs {
		defs = append(defs, d)
	}
	e.mu.RUnlock()

	out := make(map[string]uint64, len(defs))
	for _, def := range defs {
		p, err := e.partition(def)
		if err != nil {
			continue
		}
		n, err := p.Count()
		if err != nil {
			continue
		}
		out[def.Name] = n
	}
	return out
}
