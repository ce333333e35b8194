package document

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cuemby/mikudb/pkg/compress"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/zeebo/xxh3"
)

// FrameMagic and FrameVersion identify an on-disk document frame (§4.1,
// §6.1): magic "BOML", one version byte, one codec byte, the (possibly
// compressed) encoded value, and a trailing 8-byte xxHash3-64 checksum
// over (version || codec || payload).
var FrameMagic = [4]byte{0x42, 0x4F, 0x4D, 0x4C}

const FrameVersion = 1

// activeCodec is the compression codec new frames are written with,
// configured once at startup by InitCompression (§6.4 "compression"),
// the same process-wide Init-then-read shape pkg/mlog uses for its
// global Logger. Every frame already written records its own codec
// byte, so changing this mid-process never breaks reading older data.
var activeCodec atomic.Uint32

// InitCompression sets the codec EncodeFrame uses for new frames.
// Existing frames on disk carry their own codec byte and are read
// with whatever codec they were written with, regardless of this
// setting.
func InitCompression(codec compress.Codec) {
	activeCodec.Store(uint32(codec))
}

// EncodeFrame wraps v in the on-disk document frame, compressing the
// encoded value with the codec last set by InitCompression.
func EncodeFrame(v Value) []byte {
	codec := compress.Codec(activeCodec.Load())
	encoded := Encode(v)
	payload, err := compress.Encode(codec, encoded)
	if err != nil {
		// An unexpected encoder failure (out-of-memory, codec library
		// bug) should not corrupt the frame by falling back silently;
		// writing uncompressed is always a safe, self-describing choice.
		codec = compress.None
		payload = encoded
	}
	buf := make([]byte, 0, 4+1+1+len(payload)+8)
	buf = append(buf, FrameMagic[:]...)
	buf = append(buf, FrameVersion)
	buf = append(buf, byte(codec))
	buf = append(buf, payload...)
	checksum := xxh3.Hash(buf[4:])
	var sumBytes [8]byte
	binary.LittleEndian.PutUint64(sumBytes[:], checksum)
	return append(buf, sumBytes[:]...)
}

// DecodeFrame verifies magic, version, and checksum, decompresses the
// payload with the codec the frame itself records, then decodes the
// wrapped value; any mismatch is InvalidDocument (§4.1).
func DecodeFrame(data []byte) (Value, error) {
	if len(data) < 4+1+1+8 {
		return Value{}, mdberr.New(mdberr.KindUnexpectedEOF, "frame too short: %d bytes", len(data))
	}
	if data[0] != FrameMagic[0] || data[1] != FrameMagic[1] || data[2] != FrameMagic[2] || data[3] != FrameMagic[3] {
		return Value{}, mdberr.New(mdberr.KindInvalidDocument, "bad frame magic")
	}
	version := data[4]
	if version != FrameVersion {
		return Value{}, mdberr.New(mdberr.KindInvalidDocument, "unsupported frame version %d", version)
	}
	codec := compress.Codec(data[5])
	checksumOffset := len(data) - 8
	storedChecksum := binary.LittleEndian.Uint64(data[checksumOffset:])
	computed := xxh3.Hash(data[4:checksumOffset])
	if storedChecksum != computed {
		return Value{}, mdberr.New(mdberr.KindInvalidDocument, "checksum mismatch")
	}
	encoded, err := compress.Decode(codec, data[6:checksumOffset])
	if err != nil {
		return Value{}, mdberr.Wrap(mdberr.KindInvalidDocument, err, "decompressing framed value")
	}
	v, _, err := Decode(encoded)
	if err != nil {
		return Value{}, mdberr.Wrap(mdberr.KindInvalidDocument, err, "decoding framed value")
	}
	return v, nil
}

// EncodeDocumentFrame and DecodeDocumentFrame are the Document-typed
// convenience wrappers used by the storage engine (C3).
func EncodeDocumentFrame(d *Document) []byte {
	return EncodeFrame(DocumentValue(d))
}

func DecodeDocumentFrame(data []byte) (*Document, error) {
	v, err := DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	doc, ok := v.AsDocument()
	if !ok {
		return nil, mdberr.New(mdberr.KindInvalidDocument, "framed value is not a document")
	}
	return doc, nil
}
