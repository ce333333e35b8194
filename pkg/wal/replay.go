package wal

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cuemby/mikudb/pkg/mdberr"
)

// Reader streams records from a WAL file in commit-linearization order
// (§4.2 "Replay"). A record whose length prefix overruns EOF, or whose
// checksum fails, ends the stream without error: trailing torn writes are
// the canonical crash-safety boundary, not corruption.
type Reader struct {
	file *os.File
	off  int64
	size int64
}

// OpenReader opens path for sequential replay, positioned just past the
// file header.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mdberr.Wrap(mdberr.KindIO, err, "opening wal file for replay %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mdberr.Wrap(mdberr.KindIO, err, "stat wal file %s", path)
	}
	if info.Size() < int64(headerSize) {
		f.Close()
		return nil, mdberr.New(mdberr.KindCorruption, "wal file %s shorter than header", path)
	}
	header := make([]byte, headerSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, mdberr.Wrap(mdberr.KindCorruption, err, "reading wal header")
	}
	if header[0] != Magic[0] || header[1] != Magic[1] || header[2] != Magic[2] || header[3] != Magic[3] {
		f.Close()
		return nil, mdberr.New(mdberr.KindCorruption, "bad wal magic in %s", path)
	}
	if header[4] != Version {
		f.Close()
		return nil, mdberr.New(mdberr.KindCorruption, "unsupported wal version %d in %s", header[4], path)
	}
	return &Reader{file: f, off: int64(headerSize), size: info.Size()}, nil
}

// Next returns the next record, or io.EOF when the stream is exhausted
// (including at a torn tail, which Next treats identically to a clean
// end-of-file).
func (r *Reader) Next() (Record, error) {
	if r.off+4 > r.size {
		return Record{}, io.EOF
	}
	lenBuf := make([]byte, 4)
	if _, err := r.file.ReadAt(lenBuf, r.off); err != nil {
		return Record{}, io.EOF
	}
	recLen := int64(binary.LittleEndian.Uint32(lenBuf))
	if r.off+4+recLen > r.size {
		return Record{}, io.EOF
	}
	framed := make([]byte, recLen)
	if _, err := r.file.ReadAt(framed, r.off+4); err != nil {
		return Record{}, io.EOF
	}
	rec, err := decodeRecord(framed)
	if err != nil {
		return Record{}, io.EOF
	}
	r.off += 4 + recLen
	return rec, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReplayAll reads every record in path via a Reader and invokes fn for
// each, stopping at the first error fn returns or at end-of-log.
func ReplayAll(path string, fn func(Record) error) error {
	r, err := OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
