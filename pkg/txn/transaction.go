// Package txn implements MikuDB's transaction and session layer (§4.9):
// per-session transactions with a staged write-set, commit-time draining
// through the storage and index engines, and a session manager that
// sweeps idle sessions. Grounded on
// original_source/crates/mikudb-core/src/transaction.rs, adapted from
// parking_lot::RwLock/Mutex and tracing to sync.RWMutex/sync.Mutex and
// mlog, and on pkg/cursor's Manager (the same reader-writer
// map-plus-background-sweep shape) for the session manager.
package txn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/index"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/mlog"
	"github.com/cuemby/mikudb/pkg/storage"
	"github.com/cuemby/mikudb/pkg/wal"
)

var txnIDCounter atomic.Uint64

// DefaultTimeout is the wall-clock budget a transaction gets before
// commit treats it as timed out (§4.9).
const DefaultTimeout = 60 * time.Second

// State is one of the seven transaction lifecycle states named in §4.1/§4.9.
type State int

const (
	None State = iota
	Starting
	InProgress
	Committing
	Committed
	Aborting
	Aborted
)

func (s State) String() string {
	switch s {
	case None:
		return "None"
	case Starting:
		return "Starting"
	case InProgress:
		return "InProgress"
	case Committing:
		return "Committing"
	case Committed:
		return "Committed"
	case Aborting:
		return "Aborting"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

type writeOpKind int

const (
	writeInsert writeOpKind = iota
	writeUpdate
	writeDelete
)

type writeOp struct {
	collection string
	id         document.ObjectID
	kind       writeOpKind
	oldValue   *document.Document
	newValue   *document.Document
}

// Options controls a transaction started from a Session.
type Options struct {
	ReadOnly bool
	Timeout  time.Duration
}

// DefaultOptions is used when a session starts a transaction without
// explicit options.
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout}
}

// Transaction stages Insert/Update/Delete operations in a write-set and
// applies them to storage (and the index engine) atomically at commit,
// per §4.9's contract that only the commit path may write through the
// WAL.
type Transaction struct {
	id        uint64
	sessionID uint64
	opts      Options
	startTime time.Time
	storage   *storage.Engine
	index     *index.Engine
	wal       *wal.WAL

	mu       sync.Mutex
	state    State
	writeSet []writeOp
	readSet  map[string][]document.ObjectID
}

func newTransaction(sessionID uint64, store *storage.Engine, idx *index.Engine, w *wal.WAL, opts Options) *Transaction {
	return &Transaction{
		id:        txnIDCounter.Add(1),
		sessionID: sessionID,
		opts:      opts,
		startTime: time.Now(),
		storage:   store,
		index:     idx,
		wal:       w,
		state:     None,
		readSet:   map[string][]document.ObjectID{},
	}
}

// ID is this transaction's process-wide monotonic identifier. It also
// serves as the snapshot version (§4.9: "monotonically assigned,
// currently = tx id").
func (t *Transaction) ID() uint64 { return t.id }

// SnapshotVersion returns the snapshot marker reserved for a future MVCC
// implementation; today it is simply the transaction id.
func (t *Transaction) SnapshotVersion() uint64 { return t.id }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsActive reports whether the transaction can still accept operations.
func (t *Transaction) IsActive() bool {
	s := t.State()
	return s == Starting || s == InProgress
}

// IsTimedOut reports whether the transaction has exceeded its wall-clock
// budget.
func (t *Transaction) IsTimedOut() bool {
	return time.Since(t.startTime) > t.opts.Timeout
}

// Start transitions None -> InProgress. Legal only from None (§4.9).
func (t *Transaction) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != None {
		return mdberr.New(mdberr.KindTransaction, "transaction %d already started", t.id)
	}
	t.state = Starting
	if t.wal != nil {
		if _, err := t.wal.Append(wal.Record{Type: wal.RecordBeginTx, TxID: t.id}); err != nil {
			t.state = Aborted
			return mdberr.Wrap(mdberr.KindTransaction, err, "appending begin record for transaction %d", t.id)
		}
	}
	t.state = InProgress
	return nil
}

// AddInsert stages a new document for collection, keyed by id, to be
// written at commit.
func (t *Transaction) AddInsert(collection string, id document.ObjectID, doc *document.Document) error {
	return t.stage(writeOp{collection: collection, id: id, kind: writeInsert, newValue: doc})
}

// AddUpdate stages a document replacement. oldValue may be nil if the
// pre-image was not loaded.
func (t *Transaction) AddUpdate(collection string, id document.ObjectID, oldValue, newValue *document.Document) error {
	return t.stage(writeOp{collection: collection, id: id, kind: writeUpdate, oldValue: oldValue, newValue: newValue})
}

// AddDelete stages a document removal. oldValue may be nil if the
// pre-image was not loaded.
func (t *Transaction) AddDelete(collection string, id document.ObjectID, oldValue *document.Document) error {
	return t.stage(writeOp{collection: collection, id: id, kind: writeDelete, oldValue: oldValue})
}

func (t *Transaction) stage(op writeOp) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != InProgress && t.state != Starting {
		return mdberr.New(mdberr.KindTransaction, "transaction %d not in progress", t.id)
	}
	if t.opts.ReadOnly {
		return mdberr.New(mdberr.KindTransaction, "cannot write in read-only transaction %d", t.id)
	}
	t.writeSet = append(t.writeSet, op)
	return nil
}

// TrackRead records that a document was observed, for the read-set MVCC
// hook described in §4.9.
func (t *Transaction) TrackRead(collection string, id document.ObjectID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readSet[collection] = append(t.readSet[collection], id)
}

// Commit drains the write-set through the storage engine in write-set
// order, appending one WAL record per operation plus a trailing CommitTx
// record, then transitions to Committed. A transaction that has timed
// out is aborted instead, per §4.9.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	log := mlog.WithTx(t.id)
	if t.state != InProgress {
		return mdberr.New(mdberr.KindTransaction, "transaction %d not in progress", t.id)
	}
	if t.IsTimedOut() {
		t.state = Aborted
		t.writeSet = nil
		t.readSet = map[string][]document.ObjectID{}
		return mdberr.New(mdberr.KindTimeout, "transaction %d timed out", t.id)
	}
	t.state = Committing
	log.Debug().Int("ops", len(t.writeSet)).Msg("committing transaction")

	for _, op := range t.writeSet {
		if err := t.applyOp(op); err != nil {
			t.state = Aborted
			return mdberr.Wrap(mdberr.KindTransaction, err, "transaction %d commit failed", t.id)
		}
	}
	if t.wal != nil {
		if _, err := t.wal.Append(wal.Record{Type: wal.RecordCommitTx, TxID: t.id}); err != nil {
			t.state = Aborted
			return mdberr.Wrap(mdberr.KindTransaction, err, "appending commit record for transaction %d", t.id)
		}
	}
	t.state = Committed
	log.Info().Msg("transaction committed")
	return nil
}

func (t *Transaction) applyOp(op writeOp) error {
	col, err := t.storage.Collection(op.collection)
	if err != nil {
		return err
	}
	var defs []*index.Definition
	if t.index != nil {
		defs = t.index.ForCollection(op.collection)
	}
	switch op.kind {
	case writeInsert:
		if t.wal != nil {
			if _, err := t.wal.Append(wal.Record{Type: wal.RecordInsert, TxID: t.id, Collection: op.collection, Key: op.id[:], Value: document.EncodeDocumentFrame(op.newValue)}); err != nil {
				return err
			}
		}
		if _, err := col.Insert(op.newValue); err != nil {
			return err
		}
		for _, def := range defs {
			if err := t.index.InsertDocument(def.Name, op.newValue, op.id); err != nil {
				return err
			}
		}
	case writeUpdate:
		if t.wal != nil {
			if _, err := t.wal.Append(wal.Record{Type: wal.RecordUpdate, TxID: t.id, Collection: op.collection, Key: op.id[:], Value: document.EncodeDocumentFrame(op.newValue)}); err != nil {
				return err
			}
		}
		if err := col.Update(op.id, op.newValue); err != nil {
			return err
		}
		for _, def := range defs {
			if op.oldValue != nil {
				if err := t.index.DeleteDocument(def.Name, op.oldValue, op.id); err != nil {
					return err
				}
			}
			if err := t.index.InsertDocument(def.Name, op.newValue, op.id); err != nil {
				return err
			}
		}
	case writeDelete:
		if t.wal != nil {
			if _, err := t.wal.Append(wal.Record{Type: wal.RecordDelete, TxID: t.id, Collection: op.collection, Key: op.id[:]}); err != nil {
				return err
			}
		}
		if _, err := col.Delete(op.id); err != nil {
			return err
		}
		for _, def := range defs {
			if op.oldValue != nil {
				if err := t.index.DeleteDocument(def.Name, op.oldValue, op.id); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Abort discards the write-set and read-set and transitions to Aborted.
// Legal from InProgress or Starting (§4.9).
func (t *Transaction) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != InProgress && t.state != Starting {
		return mdberr.New(mdberr.KindTransaction, "transaction %d not in progress", t.id)
	}
	t.state = Aborting
	t.writeSet = nil
	t.readSet = map[string][]document.ObjectID{}
	if t.wal != nil {
		if _, err := t.wal.Append(wal.Record{Type: wal.RecordAbortTx, TxID: t.id}); err != nil {
			t.state = Aborted
			return mdberr.Wrap(mdberr.KindTransaction, err, "appending abort record for transaction %d", t.id)
		}
	}
	t.state = Aborted
	mlog.WithTx(t.id).Info().Msg("transaction aborted")
	return nil
}

// Rollback is an alias for Abort, matching the vocabulary of the
// ROLLBACK statement (§4.6).
func (t *Transaction) Rollback() error { return t.Abort() }
