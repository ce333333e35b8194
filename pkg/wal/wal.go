package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/mlog"
	"github.com/rs/zerolog"
)

// Magic and Version identify a WAL file on disk (§4.2): 4-byte magic
// "MWAL", 1-byte version, then a stream of length-prefixed framed records.
var Magic = [4]byte{0x4D, 0x57, 0x41, 0x4C}

const Version = 1

const headerSize = len(Magic) + 1

// DefaultRotateSize is the file-size threshold (§4.2 "Rotation") above
// which Append triggers a rotation after the current append completes.
const DefaultRotateSize = 64 * 1024 * 1024

// WAL is a single append-only log file plus its synchronization policy.
// Append calls are serialized through mu; LSNs are monotonically
// increasing for the lifetime of the process (they are not reset by
// rotation).
type WAL struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	lsn         uint64
	syncOnWrite bool
	rotateSize  int64
	log         zerolog.Logger
}

// Open opens path, creating it (and writing the header) if it does not
// exist. If the file already exists, Open performs the §4.2 "LSN recovery
// on open" pass: it scans the record-length prefixes to count records
// without parsing their payloads, and resumes LSN from that count.
func Open(path string, syncOnWrite bool) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, mdberr.Wrap(mdberr.KindIO, err, "opening wal file %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mdberr.Wrap(mdberr.KindIO, err, "stat wal file %s", path)
	}
	w := &WAL{path: path, file: f, syncOnWrite: syncOnWrite, rotateSize: DefaultRotateSize, log: mlog.WithComponent("wal")}
	if info.Size() == 0 {
		if err := w.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return w, nil
	}
	if err := w.verifyHeader(); err != nil {
		f.Close()
		return nil, err
	}
	count, truncateAt, err := scanRecordCount(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.lsn = count
	if truncateAt < info.Size() {
		w.log.Warn().Int64("offset", truncateAt).Int64("file_size", info.Size()).Msg("truncating torn wal tail")
		if err := f.Truncate(truncateAt); err != nil {
			f.Close()
			return nil, mdberr.Wrap(mdberr.KindIO, err, "truncating torn wal tail")
		}
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return nil, mdberr.Wrap(mdberr.KindIO, err, "seeking to end of wal file")
	}
	return w, nil
}

func (w *WAL) writeHeader() error {
	buf := make([]byte, headerSize)
	copy(buf, Magic[:])
	buf[len(Magic)] = Version
	if _, err := w.file.Write(buf); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "writing wal header")
	}
	return w.file.Sync()
}

func (w *WAL) verifyHeader() error {
	buf := make([]byte, headerSize)
	if _, err := w.file.ReadAt(buf, 0); err != nil {
		return mdberr.Wrap(mdberr.KindCorruption, err, "reading wal header")
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return mdberr.New(mdberr.KindCorruption, "bad wal magic in %s", w.path)
	}
	if buf[4] != Version {
		return mdberr.New(mdberr.KindCorruption, "unsupported wal version %d in %s", buf[4], w.path)
	}
	return nil
}

// scanRecordCount walks the length-prefixed record stream counting whole
// records, without decoding their bodies, stopping at the first length
// prefix that overruns EOF (a torn write from a crash mid-append).
func scanRecordCount(f *os.File) (count uint64, validEnd int64, err error) {
	off := int64(headerSize)
	info, statErr := f.Stat()
	if statErr != nil {
		return 0, 0, mdberr.Wrap(mdberr.KindIO, statErr, "stat wal file")
	}
	size := info.Size()
	lenBuf := make([]byte, 4)
	for {
		if off+4 > size {
			break
		}
		if _, err := f.ReadAt(lenBuf, off); err != nil {
			break
		}
		recLen := int64(binary.LittleEndian.Uint32(lenBuf))
		if off+4+recLen > size {
			break
		}
		off += 4 + recLen
		count++
	}
	return count, off, nil
}

// Append serializes rec, writes it to the log, and returns the LSN
// assigned to it. Durability follows syncOnWrite: true fsyncs before
// returning, false defers fsync to an explicit Sync or rotation.
func (w *WAL) Append(rec Record) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	framed := rec.encodeFramed()
	lenPrefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenPrefix, uint32(len(framed)))
	if _, err := w.file.Write(lenPrefix); err != nil {
		return 0, mdberr.Wrap(mdberr.KindIO, err, "writing wal record length")
	}
	if _, err := w.file.Write(framed); err != nil {
		return 0, mdberr.Wrap(mdberr.KindIO, err, "writing wal record")
	}
	w.lsn++
	lsn := w.lsn
	if w.syncOnWrite {
		if err := w.file.Sync(); err != nil {
			return 0, mdberr.Wrap(mdberr.KindIO, err, "fsyncing wal append")
		}
	}
	if info, err := w.file.Stat(); err == nil && info.Size() > w.rotateSize {
		if err := w.rotateLocked(); err != nil {
			return lsn, err
		}
	}
	return lsn, nil
}

// Sync flushes any buffered writes to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "fsyncing wal")
	}
	return nil
}

// LSN returns the most recently assigned log sequence number.
func (w *WAL) LSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lsn
}

// Rotate fsyncs and renames the current file with a millisecond-timestamp
// suffix, then opens a fresh file at the original path (§4.2 "Rotation").
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *WAL) rotateLocked() error {
	if err := w.file.Sync(); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "fsyncing wal before rotation")
	}
	if err := w.file.Close(); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "closing wal before rotation")
	}
	rotated := fmt.Sprintf("%s.%d", w.path, time.Now().UnixMilli())
	if err := os.Rename(w.path, rotated); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "renaming wal for rotation")
	}
	f, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "opening fresh wal after rotation")
	}
	w.file = f
	return w.writeHeader()
}

// Close syncs and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return mdberr.Wrap(mdberr.KindIO, err, "fsyncing wal on close")
	}
	if err := w.file.Close(); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "closing wal")
	}
	return nil
}

// Path returns the WAL's file path.
func (w *WAL) Path() string {
	return w.path
}

// Truncate discards every record in the log, keeping only the header
// (§4.4 step 5: "Truncate the WAL if any operations were replayed").
// The LSN sequence is not reset; new appends continue from where they
// left off so replayed records are never confused with fresh ones.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(int64(headerSize)); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "truncating wal")
	}
	if _, err := w.file.Seek(int64(headerSize), os.SEEK_SET); err != nil {
		return mdberr.Wrap(mdberr.KindIO, err, "seeking wal after truncate")
	}
	return w.file.Sync()
}
