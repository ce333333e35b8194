// Package cursor implements MikuDB's server-side result cursor manager
// (spec.md §5: "Cursor manager … periodically sweeps timed-out cursors"),
// supplemented from mikudb-core/src/cursor.rs since the distilled spec
// names the component but never gives it an operation list of its own.
// Cursors buffer a query result set and hand it out in batches, so a large
// FIND doesn't have to materialize its entire result before the first
// batch reaches the caller.
package cursor

import (
	"sync"
	"time"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/google/uuid"
)

// DefaultBatchSize is used when a cursor is opened without an explicit one.
const DefaultBatchSize = 100

// DefaultIdleTimeout is how long a cursor may sit unread before the sweep
// loop reaps it, unless it was opened with NoTimeout.
const DefaultIdleTimeout = 10 * time.Minute

// Cursor holds a materialized result set and hands it out in batches.
type Cursor struct {
	ID         string
	mu         sync.Mutex
	docs       []*document.Document
	pos        int
	batchSize  int
	lastAccess time.Time
	noTimeout  bool
}

// Next returns up to batchSize documents and whether the cursor is
// exhausted. It updates the last-access timestamp the sweep loop checks.
func (c *Cursor) Next() (batch []*document.Document, exhausted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAccess = time.Now()
	if c.pos >= len(c.docs) {
		return nil, true
	}
	end := c.pos + c.batchSize
	if end > len(c.docs) {
		end = len(c.docs)
	}
	batch = c.docs[c.pos:end]
	c.pos = end
	return batch, c.pos >= len(c.docs)
}

func (c *Cursor) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAccess
}

// Manager owns every open cursor, keyed by id, and sweeps timed-out ones.
type Manager struct {
	mu      sync.RWMutex
	cursors map[string]*Cursor
	timeout time.Duration
	stopCh  chan struct{}
	stopped bool
}

// NewManager returns a Manager with idleTimeout (DefaultIdleTimeout if <= 0).
func NewManager(idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{cursors: map[string]*Cursor{}, timeout: idleTimeout, stopCh: make(chan struct{})}
}

// Open wraps docs in a new Cursor with the given batch size (DefaultBatchSize
// if <= 0) and registers it under a fresh id.
func (m *Manager) Open(docs []*document.Document, batchSize int, noTimeout bool) *Cursor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	c := &Cursor{
		ID:         uuid.NewString(),
		docs:       docs,
		batchSize:  batchSize,
		lastAccess: time.Now(),
		noTimeout:  noTimeout,
	}
	m.mu.Lock()
	m.cursors[c.ID] = c
	m.mu.Unlock()
	return c
}

// Get returns the cursor registered under id, if any.
func (m *Manager) Get(id string) (*Cursor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cursors[id]
	return c, ok
}

// Close drops a cursor from the manager, freeing its buffered result set.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cursors[id]; !ok {
		return mdberr.New(mdberr.KindCollectionNotFound, "cursor %q not found", id)
	}
	delete(m.cursors, id)
	return nil
}

// Sweep drops every cursor idle past the manager's timeout, unless it was
// opened with noTimeout, and returns how many were reaped.
func (m *Manager) Sweep() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	reaped := 0
	for id, c := range m.cursors {
		if c.noTimeout {
			continue
		}
		if now.Sub(c.idleSince()) > m.timeout {
			delete(m.cursors, id)
			reaped++
		}
	}
	return reaped
}

// Run starts a background sweep loop at the given interval; it returns
// immediately and stops when Stop is called.
func (m *Manager) Run(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop ends the background sweep loop started by Run. Calls after the
// first do nothing.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
}

// Len reports how many cursors are currently open.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cursors)
}
