// Package wal implements MikuDB's write-ahead log (§4.2): an append-only,
// checksummed record stream that the transaction layer (pkg/txn) appends
// each write to before applying it to the storage engine (C3), and that
// recovery (C4) replays after a crash.
package wal

import (
	"encoding/binary"

	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/zeebo/xxh3"
)

// RecordType tags a WAL record's role in the commit protocol.
type RecordType byte

const (
	RecordBeginTx RecordType = iota + 1
	RecordCommitTx
	RecordAbortTx
	RecordInsert
	RecordUpdate
	RecordDelete
	RecordCheckpoint
)

func (t RecordType) String() string {
	switch t {
	case RecordBeginTx:
		return "BeginTx"
	case RecordCommitTx:
		return "CommitTx"
	case RecordAbortTx:
		return "AbortTx"
	case RecordInsert:
		return "Insert"
	case RecordUpdate:
		return "Update"
	case RecordDelete:
		return "Delete"
	case RecordCheckpoint:
		return "Checkpoint"
	default:
		return "Unknown"
	}
}

// Record is one WAL entry: `type | tx_id | collection | key | value`
// (§4.2). Collection, Key and Value are empty for transaction-boundary
// records (BeginTx/CommitTx/AbortTx/Checkpoint).
type Record struct {
	Type       RecordType
	TxID       uint64
	Collection string
	Key        []byte
	Value      []byte
}

// encode renders the record body (everything the checksum covers): no
// length prefix, no checksum trailer.
func (r Record) encode() []byte {
	collLen := len(r.Collection)
	keyLen := len(r.Key)
	valLen := len(r.Value)
	size := 1 + 8 + 2 + collLen + 4 + keyLen + 4 + valLen
	buf := make([]byte, size)
	off := 0
	buf[off] = byte(r.Type)
	off++
	binary.LittleEndian.PutUint64(buf[off:], r.TxID)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], uint16(collLen))
	off += 2
	copy(buf[off:], r.Collection)
	off += collLen
	binary.LittleEndian.PutUint32(buf[off:], uint32(keyLen))
	off += 4
	copy(buf[off:], r.Key)
	off += keyLen
	binary.LittleEndian.PutUint32(buf[off:], uint32(valLen))
	off += 4
	copy(buf[off:], r.Value)
	return buf
}

// encodeFramed returns the bytes written to disk for one record: body
// followed by the 8-byte xxHash3-64 checksum over the body.
func (r Record) encodeFramed() []byte {
	body := r.encode()
	sum := xxh3.Hash(body)
	var sumBytes [8]byte
	binary.LittleEndian.PutUint64(sumBytes[:], sum)
	return append(body, sumBytes[:]...)
}

// decodeRecord parses a framed record body (post length-prefix, including
// the trailing checksum) and verifies the checksum.
func decodeRecord(framed []byte) (Record, error) {
	if len(framed) < 8 {
		return Record{}, mdberr.New(mdberr.KindUnexpectedEOF, "wal record shorter than checksum trailer")
	}
	body := framed[:len(framed)-8]
	storedSum := binary.LittleEndian.Uint64(framed[len(framed)-8:])
	if xxh3.Hash(body) != storedSum {
		return Record{}, mdberr.New(mdberr.KindCorruption, "wal record checksum mismatch")
	}
	off := 0
	if len(body) < 1+8+2 {
		return Record{}, mdberr.New(mdberr.KindUnexpectedEOF, "wal record header truncated")
	}
	typ := RecordType(body[off])
	off++
	txID := binary.LittleEndian.Uint64(body[off:])
	off += 8
	collLen := int(binary.LittleEndian.Uint16(body[off:]))
	off += 2
	if len(body) < off+collLen+4 {
		return Record{}, mdberr.New(mdberr.KindUnexpectedEOF, "wal record collection field truncated")
	}
	collection := string(body[off : off+collLen])
	off += collLen
	keyLen := int(binary.LittleEndian.Uint32(body[off:]))
	off += 4
	if len(body) < off+keyLen+4 {
		return Record{}, mdberr.New(mdberr.KindUnexpectedEOF, "wal record key field truncated")
	}
	key := append([]byte(nil), body[off:off+keyLen]...)
	off += keyLen
	valLen := int(binary.LittleEndian.Uint32(body[off:]))
	off += 4
	if len(body) < off+valLen {
		return Record{}, mdberr.New(mdberr.KindUnexpectedEOF, "wal record value field truncated")
	}
	value := append([]byte(nil), body[off:off+valLen]...)
	return Record{Type: typ, TxID: txID, Collection: collection, Key: key, Value: value}, nil
}
