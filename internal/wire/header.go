// Package wire implements the GorgZorg frame codec: the binary item
// header, the ASCII control-reply tokens, and the end-of-transfer
// sentinel shared by the sender and receiver sessions.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EndSentinel is the literal logical path that marks the end of a
// transfer session. Receipt of a header whose Path equals this value
// terminates the session on both sides.
const EndSentinel = "<[--Finis_tr@nslationi$--]>"

// DirTagPrefix tags a header's Path as announcing a directory rather
// than a file. The receiver strips it before materializing the path.
const DirTagPrefix = "<^dir$>:"

// Header is the on-wire envelope of one item: two big-endian int64
// sizes, a length-prefixed UTF-8 path, and a single-byte transfer flag.
type Header struct {
	TotalLen       int64
	HeaderLen      int64
	Path           string
	SingleTransfer bool
}

// IsEnd reports whether this header is the end-of-transfer sentinel.
func (h Header) IsEnd() bool {
	return h.Path == EndSentinel
}

// BodyLen returns the number of body bytes that follow this header on
// the wire, derived from TotalLen and HeaderLen rather than stored
// separately.
func (h Header) BodyLen() int64 {
	return h.TotalLen - h.HeaderLen
}

// EndHeader builds the zero-size, single-transfer sentinel header.
func EndHeader() Header {
	h := Header{Path: EndSentinel, SingleTransfer: true}
	return h
}

// encodeWithPlaceholderSizes lays out the header fields with TotalLen and
// HeaderLen both zero, mirroring the sender's first pass over the wire:
// write a placeholder, measure the real size, then patch it in place.
func encodeWithPlaceholderSizes(path string, singleTransfer bool) []byte {
	pathBytes := []byte(path)
	buf := make([]byte, 8+8+4+len(pathBytes)+1)
	// buf[0:8] and buf[8:16] stay zero — the placeholders.
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(pathBytes)))
	copy(buf[20:], pathBytes)
	if singleTransfer {
		buf[len(buf)-1] = 0x01
	} else {
		buf[len(buf)-1] = 0x00
	}
	return buf
}

// Encode produces the byte-identical wire representation of h given the
// number of body bytes that will follow. It writes the placeholder sizes
// first and then rewrites the first sixteen bytes in place, exactly as
// spec.md describes the sender's two-pass header write.
func Encode(path string, singleTransfer bool, bodyLen int64) []byte {
	raw := encodeWithPlaceholderSizes(path, singleTransfer)
	headerLen := int64(len(raw))
	totalLen := headerLen + bodyLen
	binary.BigEndian.PutUint64(raw[0:8], uint64(totalLen))
	binary.BigEndian.PutUint64(raw[8:16], uint64(headerLen))
	return raw
}

// WriteHeader encodes and writes a header frame in one call, returning
// the fully-resolved Header (with TotalLen/HeaderLen filled in) so the
// caller can log or assert against it.
func WriteHeader(w io.Writer, path string, singleTransfer bool, bodyLen int64) (Header, error) {
	raw := Encode(path, singleTransfer, bodyLen)
	if _, err := w.Write(raw); err != nil {
		return Header{}, fmt.Errorf("write header frame: %w", err)
	}
	return Header{
		TotalLen:       int64(binary.BigEndian.Uint64(raw[0:8])),
		HeaderLen:      int64(binary.BigEndian.Uint64(raw[8:16])),
		Path:           path,
		SingleTransfer: singleTransfer,
	}, nil
}

// maxPathLen guards against a corrupt or hostile peer claiming an
// absurd path length and forcing an oversized allocation.
const maxPathLen = 1 << 20

// ReadHeader parses one header frame from r: the two int64 sizes, the
// length-prefixed path string, then the single_transfer byte.
func ReadHeader(r io.Reader) (Header, error) {
	var totalLen, headerLen int64
	if err := binary.Read(r, binary.BigEndian, &totalLen); err != nil {
		return Header{}, fmt.Errorf("read total_len: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return Header{}, fmt.Errorf("read header_len: %w", err)
	}

	var pathLen uint32
	if err := binary.Read(r, binary.BigEndian, &pathLen); err != nil {
		return Header{}, fmt.Errorf("read path length: %w", err)
	}
	if pathLen > maxPathLen {
		return Header{}, fmt.Errorf("path length %d exceeds maximum %d", pathLen, maxPathLen)
	}

	pathBytes := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return Header{}, fmt.Errorf("read path: %w", err)
	}

	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return Header{}, fmt.Errorf("read single_transfer flag: %w", err)
	}

	return Header{
		TotalLen:       totalLen,
		HeaderLen:      headerLen,
		Path:           string(pathBytes),
		SingleTransfer: flag[0] == 0x01,
	}, nil
}
