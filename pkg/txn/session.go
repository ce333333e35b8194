package txn

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/mikudb/pkg/index"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/mlog"
	"github.com/cuemby/mikudb/pkg/storage"
	"github.com/cuemby/mikudb/pkg/wal"
)

var sessionIDCounter atomic.Uint64

// DefaultIdleTimeout is how long a session may sit unused before the
// manager's sweep reaps it (§4.9).
const DefaultIdleTimeout = 30 * time.Minute

// Session owns at most one active transaction at a time and tracks its
// own idle time for the session manager's sweep.
type Session struct {
	id      uint64
	storage *storage.Engine
	index   *index.Engine
	wal     *wal.WAL
	timeout time.Duration

	mu         sync.Mutex
	current    *Transaction
	lastActive time.Time
}

func newSession(store *storage.Engine, idx *index.Engine, w *wal.WAL, timeout time.Duration) *Session {
	s := &Session{
		id:         sessionIDCounter.Add(1),
		storage:    store,
		index:      idx,
		wal:        w,
		timeout:    timeout,
		lastActive: time.Now(),
	}
	// Go has no deterministic destructors; a finalizer is the closest
	// best-effort analogue to the teacher's Drop-time auto-abort, backed
	// up by the session manager's periodic sweep for the common case
	// where the finalizer never runs before process exit.
	runtime.SetFinalizer(s, func(s *Session) {
		if s.hasActiveTransactionLocked() {
			mlog.WithSession(strconv.FormatUint(s.id, 10)).Warn().Msg("session finalized with active transaction, aborting")
			_ = s.AbortTransaction()
		}
	})
	return s
}

func (s *Session) ID() uint64 { return s.id }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// IsExpired reports whether the session has sat idle past its timeout.
func (s *Session) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive) > s.timeout
}

func (s *Session) hasActiveTransactionLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.IsActive()
}

// HasActiveTransaction reports whether the session currently holds a
// live transaction.
func (s *Session) HasActiveTransaction() bool {
	return s.hasActiveTransactionLocked()
}

// StartTransaction begins a new transaction with DefaultOptions.
func (s *Session) StartTransaction() (*Transaction, error) {
	return s.StartTransactionWithOptions(DefaultOptions())
}

// StartTransactionWithOptions begins a new transaction, rejecting the
// request if this session already holds an active one (§4.9: "rejects
// concurrent transactions on the same session").
func (s *Session) StartTransactionWithOptions(opts Options) (*Transaction, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.IsActive() {
		return nil, mdberr.New(mdberr.KindTransaction, "session %d already has an active transaction", s.id)
	}
	tx := newTransaction(s.id, s.storage, s.index, s.wal, opts)
	if err := tx.Start(); err != nil {
		return nil, err
	}
	s.current = tx
	return tx, nil
}

// CurrentTransaction returns the session's active transaction, if any.
func (s *Session) CurrentTransaction() (*Transaction, bool) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}

// CommitTransaction commits the session's current transaction and clears it.
func (s *Session) CommitTransaction() error {
	s.touch()
	s.mu.Lock()
	tx := s.current
	s.mu.Unlock()
	if tx == nil {
		return mdberr.New(mdberr.KindTransaction, "session %d has no active transaction", s.id)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return nil
}

// AbortTransaction aborts the session's current transaction and clears it.
func (s *Session) AbortTransaction() error {
	s.touch()
	s.mu.Lock()
	tx := s.current
	s.mu.Unlock()
	if tx == nil {
		return mdberr.New(mdberr.KindTransaction, "session %d has no active transaction", s.id)
	}
	if err := tx.Abort(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return nil
}

// WithTransaction runs f inside a fresh transaction: committing on
// success, aborting on any error returned from f (§4.9).
func (s *Session) WithTransaction(f func(*Transaction) error) error {
	tx, err := s.StartTransaction()
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		_ = s.AbortTransaction()
		return err
	}
	return s.CommitTransaction()
}

// WithTransactionRetry runs f inside a transaction, retrying up to
// maxRetries times if commit fails with a write conflict. Any other
// error aborts and propagates immediately (§4.9).
func (s *Session) WithTransactionRetry(maxRetries int, f func(*Transaction) error) error {
	attempts := 0
	for {
		tx, err := s.StartTransaction()
		if err != nil {
			return err
		}
		if err := f(tx); err != nil {
			_ = s.AbortTransaction()
			return err
		}
		err = s.CommitTransaction()
		if err == nil {
			return nil
		}
		if mdberr.Of(err) == mdberr.KindWriteConflict {
			attempts++
			if attempts > maxRetries {
				return mdberr.New(mdberr.KindTransaction, "transaction failed after %d retries", maxRetries)
			}
			continue
		}
		return err
	}
}

// Manager owns every live session, keyed by id, and sweeps expired ones
// (same reader-writer-map-plus-sweep-loop shape as pkg/cursor.Manager).
type Manager struct {
	storage *storage.Engine
	index   *index.Engine
	wal     *wal.WAL

	mu       sync.RWMutex
	sessions map[uint64]*Session
	timeout  time.Duration
	stopCh   chan struct{}
	stopped  bool
}

// NewManager returns a Manager with idleTimeout (DefaultIdleTimeout if <= 0).
// w may be nil, in which case transactions commit/abort without WAL
// durability (useful for tests exercising storage/index plumbing only).
func NewManager(store *storage.Engine, idx *index.Engine, w *wal.WAL, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		storage:  store,
		index:    idx,
		wal:      w,
		sessions: map[uint64]*Session{},
		timeout:  idleTimeout,
		stopCh:   make(chan struct{}),
	}
}

// CreateSession registers and returns a new session.
func (m *Manager) CreateSession() *Session {
	s := newSession(m.storage, m.index, m.wal, m.timeout)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// GetSession returns the session registered under id, if any, and
// touches its idle timer.
func (m *Manager) GetSession(id uint64) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// EndSession removes a session, aborting its active transaction first if
// it has one.
func (m *Manager) EndSession(id uint64) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if s.HasActiveTransaction() {
		return s.AbortTransaction()
	}
	return nil
}

// Sweep drops every session idle past the manager's timeout, aborting
// any active transaction each one holds, and returns how many were
// reaped.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	expired := make([]*Session, 0)
	for id, s := range m.sessions {
		if s.IsExpired() {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		if s.HasActiveTransaction() {
			_ = s.AbortTransaction()
		}
	}
	return len(expired)
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

// ActiveSessionCount reports how many sessions are currently registered.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ActiveTransactionCount reports how many registered sessions currently
// hold a live transaction.
func (m *Manager) ActiveTransactionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.HasActiveTransaction() {
			n++
		}
	}
	return n
}
