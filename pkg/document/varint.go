package document

import "github.com/cuemby/mikudb/pkg/mdberr"

// appendVarint writes n using 7-bit little-endian continuation encoding
// (§4.1): the high bit of each byte signals "more bytes follow".
func appendVarint(buf []byte, n uint64) []byte {
	for n >= 0x80 {
		buf = append(buf, byte(n)|0x80)
		n >>= 7
	}
	return append(buf, byte(n))
}

// readVarint decodes a varint starting at data[off], returning the value,
// the number of bytes consumed, and an error if data runs out first.
func readVarint(data []byte, off int) (uint64, int, error) {
	var result uint64
	var shift uint
	start := off
	for {
		if off >= len(data) {
			return 0, 0, mdberr.New(mdberr.KindUnexpectedEOF, "varint truncated at offset %d", start)
		}
		b := data[off]
		off++
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, 0, mdberr.New(mdberr.KindInvalidDocument, "varint too long at offset %d", start)
		}
	}
	return result, off - start, nil
}
