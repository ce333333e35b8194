package wal

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) (*WAL, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")
	w, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return w, path
}

func TestAppendAssignsMonotonicLSN(t *testing.T) {
	w, _ := openTemp(t)
	defer w.Close()

	recs := []Record{
		{Type: RecordBeginTx, TxID: 1},
		{Type: RecordInsert, TxID: 1, Collection: "users", Key: []byte("k1"), Value: []byte("v1")},
		{Type: RecordCommitTx, TxID: 1},
	}
	var lsns []uint64
	for _, r := range recs {
		lsn, err := w.Append(r)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		lsns = append(lsns, lsn)
	}
	for i := 1; i < len(lsns); i++ {
		if lsns[i] != lsns[i-1]+1 {
			t.Errorf("lsn[%d] = %d, want %d", i, lsns[i], lsns[i-1]+1)
		}
	}
}

func TestReplayRoundTrip(t *testing.T) {
	w, path := openTemp(t)
	recs := []Record{
		{Type: RecordBeginTx, TxID: 7},
		{Type: RecordInsert, TxID: 7, Collection: "orders", Key: []byte("o1"), Value: []byte{0x01, 0x02}},
		{Type: RecordUpdate, TxID: 7, Collection: "orders", Key: []byte("o1"), Value: []byte{0x03}},
		{Type: RecordCommitTx, TxID: 7},
	}
	for _, r := range recs {
		if _, err := w.Append(r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var got []Record
	if err := ReplayAll(path, func(r Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("ReplayAll() error = %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("replayed %d records, want %d", len(got), len(recs))
	}
	for i := range recs {
		if got[i].Type != recs[i].Type || got[i].TxID != recs[i].TxID || got[i].Collection != recs[i].Collection {
			t.Errorf("record[%d] = %+v, want %+v", i, got[i], recs[i])
		}
	}
}

func TestReplayTornTailStopsCleanly(t *testing.T) {
	w, path := openTemp(t)
	if _, err := w.Append(Record{Type: RecordBeginTx, TxID: 1}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	lsn, err := w.Append(Record{Type: RecordInsert, TxID: 1, Collection: "c", Key: []byte("k"), Value: []byte("longer-value")})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if err := os.Truncate(path, info.Size()-3); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}

	var got []Record
	if err := ReplayAll(path, func(r Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("ReplayAll() on torn file returned error = %v, want nil", err)
	}
	if len(got) != 1 {
		t.Fatalf("replayed %d records from torn file, want 1 (lsn up to %d intact)", len(got), lsn-1)
	}
}

func TestOpenRecoversLSNFromExistingFile(t *testing.T) {
	w, path := openTemp(t)
	for i := 0; i < 5; i++ {
		if _, err := w.Append(Record{Type: RecordInsert, TxID: uint64(i), Collection: "c", Key: []byte("k"), Value: []byte("v")}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reopened.Close()
	if reopened.LSN() != 5 {
		t.Errorf("LSN() = %d, want 5", reopened.LSN())
	}

	lsn, err := reopened.Append(Record{Type: RecordInsert, TxID: 9, Collection: "c", Key: []byte("k2"), Value: []byte("v2")})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if lsn != 6 {
		t.Errorf("Append() lsn = %d, want 6", lsn)
	}
}

func TestRecordChecksumMismatchEndsReplay(t *testing.T) {
	w, path := openTemp(t)
	if _, err := w.Append(Record{Type: RecordInsert, TxID: 1, Collection: "c", Key: []byte("k"), Value: []byte("v")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := w.Append(Record{Type: RecordInsert, TxID: 2, Collection: "c", Key: []byte("k2"), Value: []byte("v2")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	// Flip a byte inside the second record's body, after the first record
	// (4-byte length prefix + 22-byte body + 8-byte checksum) and the
	// second record's own length prefix, corrupting its checksum.
	if _, err := f.WriteAt([]byte{0xFF}, int64(headerSize)+34+4+2); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	f.Close()

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer r.Close()
	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		count++
	}
	if count > 2 {
		t.Errorf("replayed %d records past corruption, want <= 2", count)
	}
}
