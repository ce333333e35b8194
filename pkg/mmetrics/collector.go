package mmetrics

import "time"

// Snapshot is one point-in-time reading of engine state, gathered by
// whatever owns the storage/index/cursor/session components (pkg/engine).
// Collector only depends on this small struct, not on pkg/engine itself,
// to avoid an import cycle (pkg/engine is the thing that wires everything
// together, including mmetrics).
type Snapshot struct {
	DocumentsByCollection map[string]uint64
	WALLSN                uint64
	IndexEntriesByName    map[string]uint64
	ActiveSessions        int
	ActiveTransactions    int
	CursorsOpen           int
}

// Source supplies a Snapshot on demand; pkg/engine.Engine implements it.
type Source interface {
	MetricsSnapshot() Snapshot
}

// Collector periodically pulls a Snapshot from a Source and writes it
// into the package's registered series, following the teacher's
// pkg/metrics/collector.go ticker-driven Start/Stop/collect shape.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector returns a Collector reading from source.
func NewCollector(source Source) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

// Start begins collecting at interval, sampling once immediately. It
// returns right away; collection runs on a background goroutine until
// Stop is called.
func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the background collection loop started by Start.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	snap := c.source.MetricsSnapshot()
	for collection, n := range snap.DocumentsByCollection {
		DocumentsTotal.WithLabelValues(collection).Set(float64(n))
	}
	for name, n := range snap.IndexEntriesByName {
		IndexEntriesTotal.WithLabelValues(name).Set(float64(n))
	}
	WALLSN.Set(float64(snap.WALLSN))
	ActiveSessions.Set(float64(snap.ActiveSessions))
	ActiveTransactions.Set(float64(snap.ActiveTransactions))
	CursorsOpen.Set(float64(snap.CursorsOpen))
}
