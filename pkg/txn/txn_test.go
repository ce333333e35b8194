package txn

import (
	"testing"
	"time"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/index"
	"github.com/cuemby/mikudb/pkg/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.CreateCollection("widgets"); err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}
	idx, err := index.Open(st)
	if err != nil {
		t.Fatalf("index.Open() error = %v", err)
	}
	return NewManager(st, idx, nil, time.Minute)
}

func TestTransactionLifecycleCommit(t *testing.T) {
	mgr := newTestManager(t)
	sess := mgr.CreateSession()

	tx, err := sess.StartTransaction()
	if err != nil {
		t.Fatalf("StartTransaction() error = %v", err)
	}
	if !tx.IsActive() || tx.State() != InProgress {
		t.Fatalf("state = %v, want InProgress", tx.State())
	}

	doc := document.NewDocument()
	doc.Set("name", document.String("widget-1"))
	id := document.NewObjectID()
	doc.Set("_id", document.ObjectIDValue(id))
	if err := tx.AddInsert("widgets", id, doc); err != nil {
		t.Fatalf("AddInsert() error = %v", err)
	}

	if err := sess.CommitTransaction(); err != nil {
		t.Fatalf("CommitTransaction() error = %v", err)
	}
	if sess.HasActiveTransaction() {
		t.Errorf("session still reports an active transaction after commit")
	}

	col, err := mgr.storage.Collection("widgets")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	docs, err := col.FindAll()
	if err != nil {
		t.Fatalf("FindAll() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs = %d, want 1 (insert should be visible after commit)", len(docs))
	}
}

func TestTransactionAbortDiscardsWrites(t *testing.T) {
	mgr := newTestManager(t)
	sess := mgr.CreateSession()

	tx, err := sess.StartTransaction()
	if err != nil {
		t.Fatalf("StartTransaction() error = %v", err)
	}
	doc := document.NewDocument()
	id := document.NewObjectID()
	doc.Set("_id", document.ObjectIDValue(id))
	if err := tx.AddInsert("widgets", id, doc); err != nil {
		t.Fatalf("AddInsert() error = %v", err)
	}

	if err := sess.AbortTransaction(); err != nil {
		t.Fatalf("AbortTransaction() error = %v", err)
	}

	col, _ := mgr.storage.Collection("widgets")
	docs, _ := col.FindAll()
	if len(docs) != 0 {
		t.Errorf("docs = %d, want 0 (aborted insert must not be visible)", len(docs))
	}
}

func TestSessionRejectsConcurrentTransaction(t *testing.T) {
	mgr := newTestManager(t)
	sess := mgr.CreateSession()

	if _, err := sess.StartTransaction(); err != nil {
		t.Fatalf("first StartTransaction() error = %v", err)
	}
	if _, err := sess.StartTransaction(); err == nil {
		t.Errorf("expected an error starting a second transaction on the same session")
	}
}

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	mgr := newTestManager(t)
	sess := mgr.CreateSession()

	err := sess.WithTransaction(func(tx *Transaction) error {
		doc := document.NewDocument()
		id := document.NewObjectID()
		doc.Set("_id", document.ObjectIDValue(id))
		return tx.AddInsert("widgets", id, doc)
	})
	if err != nil {
		t.Fatalf("WithTransaction() error = %v", err)
	}
	if sess.HasActiveTransaction() {
		t.Errorf("session should have no active transaction after WithTransaction returns")
	}
}

func TestWithTransactionAbortsOnError(t *testing.T) {
	mgr := newTestManager(t)
	sess := mgr.CreateSession()

	boom := testError("boom")
	err := sess.WithTransaction(func(tx *Transaction) error {
		return boom
	})
	if err != boom {
		t.Fatalf("WithTransaction() error = %v, want boom", err)
	}
	if sess.HasActiveTransaction() {
		t.Errorf("session should have no active transaction after an aborted body")
	}
}

type testError string

func (e testError) Error() string { return string(e) }

func TestManagerSweepReapsExpiredSessions(t *testing.T) {
	st, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	defer st.Close()
	idx, err := index.Open(st)
	if err != nil {
		t.Fatalf("index.Open() error = %v", err)
	}
	mgr := NewManager(st, idx, nil, time.Millisecond)
	mgr.CreateSession()
	time.Sleep(5 * time.Millisecond)

	reaped := mgr.Sweep()
	if reaped != 1 {
		t.Fatalf("reaped = %d, want 1", reaped)
	}
	if mgr.ActiveSessionCount() != 0 {
		t.Errorf("ActiveSessionCount() = %d, want 0", mgr.ActiveSessionCount())
	}
}

func TestManagerEndSessionAbortsActiveTransaction(t *testing.T) {
	mgr := newTestManager(t)
	sess := mgr.CreateSession()
	if _, err := sess.StartTransaction(); err != nil {
		t.Fatalf("StartTransaction() error = %v", err)
	}
	if err := mgr.EndSession(sess.ID()); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if mgr.ActiveSessionCount() != 0 {
		t.Errorf("ActiveSessionCount() = %d, want 0", mgr.ActiveSessionCount())
	}
}
