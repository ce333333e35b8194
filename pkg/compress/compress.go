// Package compress wraps the two block-compression codecs MikuDB's
// configurable compression option (spec.md §6.4) can select between,
// keeping both libraries behind one small interface so document frames
// and, transitively, the WAL payloads that embed them can be compressed
// without either pkg/document or pkg/wal depending on pkg/config.
package compress

import (
	"bytes"
	"io"

	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a compression algorithm. It is encoded as a single
// byte in every document frame (§6.1), so frames stay self-describing
// even if the engine's configured codec changes between writes.
type Codec byte

const (
	None Codec = iota
	LZ4
	Zstd
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Encode compresses data with codec, returning data unchanged for None.
func Encode(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case None:
		return data, nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, mdberr.Wrap(mdberr.KindIO, err, "lz4 compressing frame")
		}
		if err := w.Close(); err != nil {
			return nil, mdberr.Wrap(mdberr.KindIO, err, "closing lz4 writer")
		}
		return buf.Bytes(), nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, mdberr.Wrap(mdberr.KindIO, err, "creating zstd encoder")
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, mdberr.New(mdberr.KindInvalidDocument, "unknown compression codec %d", codec)
	}
}

// Decode reverses Encode. codec must be the value the data was actually
// compressed with; callers read it back from the frame rather than
// trusting the engine's current configuration.
func Decode(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case None:
		return data, nil
	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, mdberr.Wrap(mdberr.KindCorruption, err, "lz4 decompressing frame")
		}
		return out, nil
	case Zstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, mdberr.Wrap(mdberr.KindIO, err, "creating zstd decoder")
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, mdberr.Wrap(mdberr.KindCorruption, err, "zstd decompressing frame")
		}
		return out, nil
	default:
		return nil, mdberr.New(mdberr.KindInvalidDocument, "unknown compression codec %d", codec)
	}
}
