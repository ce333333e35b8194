package engine

import (
	"testing"

	"github.com/cuemby/mikudb/pkg/config"
	"github.com/cuemby/mikudb/pkg/document"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default(t.TempDir())
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenCreatesEmptyEngine(t *testing.T) {
	e := newTestEngine(t)
	size, stats, err := e.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if size == 0 {
		t.Error("Status() size = 0, want nonzero bbolt file")
	}
	if len(stats) != 0 {
		t.Errorf("Status() stats = %v, want empty", stats)
	}
}

func TestOpenReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)

	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	col, err := e.Storage().Collection("widgets")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	d := document.NewDocument()
	d.Set("name", document.String("sprocket"))
	if _, err := col.Insert(d); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	e2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer e2.Close()
	_, stats, err := e2.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if stats["widgets"] != 1 {
		t.Errorf("stats[widgets] = %d, want 1", stats["widgets"])
	}
}

func TestMetricsSnapshotReflectsState(t *testing.T) {
	e := newTestEngine(t)
	sess := e.Sessions().CreateSession()
	if _, err := sess.StartTransaction(); err != nil {
		t.Fatalf("StartTransaction() error = %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.ActiveSessions != 1 {
		t.Errorf("ActiveSessions = %d, want 1", snap.ActiveSessions)
	}
	if snap.ActiveTransactions != 1 {
		t.Errorf("ActiveTransactions = %d, want 1", snap.ActiveTransactions)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
