package mmetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct{ snap Snapshot }

func (f fakeSource) MetricsSnapshot() Snapshot { return f.snap }

func TestCollectorWritesSnapshotIntoSeries(t *testing.T) {
	src := fakeSource{snap: Snapshot{
		DocumentsByCollection: map[string]uint64{"widgets": 7},
		WALLSN:                42,
		ActiveSessions:        2,
		ActiveTransactions:    1,
		CursorsOpen:           3,
	}}
	c := NewCollector(src)
	c.collect()

	if got := testutil.ToFloat64(DocumentsTotal.WithLabelValues("widgets")); got != 7 {
		t.Errorf("DocumentsTotal[widgets] = %v, want 7", got)
	}
	if got := testutil.ToFloat64(WALLSN); got != 42 {
		t.Errorf("WALLSN = %v, want 42", got)
	}
	if got := testutil.ToFloat64(ActiveSessions); got != 2 {
		t.Errorf("ActiveSessions = %v, want 2", got)
	}
}

func TestCollectorStartStopDoesNotPanic(t *testing.T) {
	c := NewCollector(fakeSource{})
	c.Start(time.Millisecond)
	time.Sleep(3 * time.Millisecond)
	c.Stop()
}
