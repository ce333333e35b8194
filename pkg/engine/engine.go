// Package engine wires together storage, the write-ahead log, indexing,
// cursors, sessions and the query executor into the single entry point a
// process embeds (§4 "Engine lifecycle"). Open performs crash recovery
// before the live WAL is ever appended to, mirroring the teacher's
// pattern of replaying the Raft log before a node serves traffic.
package engine

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/mikudb/pkg/config"
	"github.com/cuemby/mikudb/pkg/cursor"
	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/index"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/mlog"
	"github.com/cuemby/mikudb/pkg/mmetrics"
	"github.com/cuemby/mikudb/pkg/query/exec"
	"github.com/cuemby/mikudb/pkg/recovery"
	"github.com/cuemby/mikudb/pkg/storage"
	"github.com/cuemby/mikudb/pkg/txn"
	"github.com/cuemby/mikudb/pkg/wal"
)

const walFileName = "wal.log"

const (
	cursorIdleTimeout    = 10 * time.Minute
	sessionSweepInterval = 30 * time.Second
	cursorSweepInterval  = 30 * time.Second
)

// Engine is the embeddable MikuDB process: one storage file, one WAL, one
// index engine, and the cursor/session managers and executor built on top
// of them. All exported methods are safe for concurrent use.
type Engine struct {
	cfg      config.Config
	storage  *storage.Engine
	wal      *wal.WAL
	index    *index.Engine
	cursors  *cursor.Manager
	sessions *txn.Manager
	exec     *exec.Executor

	mu           sync.Mutex
	closed       bool
	recoveryStat recovery.Stats
}

// Open validates cfg, opens the storage engine, replays any committed
// transactions left in the WAL from an unclean shutdown, then opens the
// WAL for live writes and brings up indexing, cursors and sessions on
// top (§4.4 "recovery runs before the engine accepts writes").
func Open(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	document.InitCompression(cfg.Compression.Codec())
	st, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	walPath := filepath.Join(cfg.DataDir, walFileName)
	stats, err := recovery.Recover(st, walPath)
	if err != nil {
		st.Close()
		return nil, err
	}
	mmetrics.RecoveryTransactionsReplayed.Set(float64(stats.TransactionsRecovered))

	w, err := wal.Open(walPath, cfg.WAL.SyncOnWrite)
	if err != nil {
		st.Close()
		return nil, err
	}
	idx, err := index.Open(st)
	if err != nil {
		w.Close()
		st.Close()
		return nil, err
	}

	cursors := cursor.NewManager(cursorIdleTimeout)
	sessions := txn.NewManager(st, idx, w, txn.DefaultIdleTimeout)
	ex := exec.New(st, idx)

	cursors.Run(cursorSweepInterval)
	sessions.Run(sessionSweepInterval)

	mlog.Info("engine opened")

	return &Engine{
		cfg:          cfg,
		storage:      st,
		wal:          w,
		index:        idx,
		cursors:      cursors,
		sessions:     sessions,
		exec:         ex,
		recoveryStat: stats,
	}, nil
}

// Executor returns the query executor for running Find/Insert/Update/
// Delete/Aggregate statements.
func (e *Engine) Executor() *exec.Executor { return e.exec }

// Sessions returns the transaction/session manager.
func (e *Engine) Sessions() *txn.Manager { return e.sessions }

// Cursors returns the result-cursor manager.
func (e *Engine) Cursors() *cursor.Manager { return e.cursors }

// Storage returns the underlying storage engine, for callers that need
// direct collection access outside of a transaction or the executor.
func (e *Engine) Storage() *storage.Engine { return e.storage }

// RecoveryStats reports what the most recent Open's recovery pass did.
func (e *Engine) RecoveryStats() recovery.Stats { return e.recoveryStat }

// Close stops the background sweep loops and closes the WAL and storage
// file, in that order so no in-flight commit can append to a closed WAL.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.cursors.Stop()
	e.sessions.Stop()
	if err := e.wal.Close(); err != nil {
		return err
	}
	if err := e.storage.Close(); err != nil {
		return err
	}
	mlog.Info("engine closed")
	return nil
}

// Status reports the on-disk file size and per-collection document
// counts, for the dbStats-style administrative surface (§6.3).
func (e *Engine) Status() (uint64, map[string]uint64, error) {
	info, err := os.Stat(e.storage.FilePath())
	if err != nil {
		return 0, nil, mdberr.Wrap(mdberr.KindIO, err, "stat storage file")
	}
	return uint64(info.Size()), e.storage.CollectionCounts(), nil
}

// MetricsSnapshot implements mmetrics.Source, gathering a point-in-time
// read of engine state without holding any lock across the storage,
// index, cursor and session managers at once.
func (e *Engine) MetricsSnapshot() mmetrics.Snapshot {
	return mmetrics.Snapshot{
		DocumentsByCollection: e.storage.CollectionCounts(),
		WALLSN:                e.wal.LSN(),
		IndexEntriesByName:    e.index.EntryCounts(),
		ActiveSessions:        e.sessions.ActiveSessionCount(),
		ActiveTransactions:    e.sessions.ActiveTransactionCount(),
		CursorsOpen:           e.cursors.Len(),
	}
}
