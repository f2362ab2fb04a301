package amf

import (
	"encoding/binary"
	"fmt"
	"io"

	amferrors "github.com/riverline/rtmp-publish/internal/errors"
)

// markerString is the AMF0 type marker for String (0x02).
// markerLongString is the AMF0 type marker for LongString (0x0C), used when
// the UTF-8 byte length exceeds the 16-bit short-string limit.
const (
	markerString     = 0x02
	markerLongString = 0x0C
)

// EncodeString writes an AMF0 String to w.
// Wire format: 0x02 | 2-byte big-endian length | UTF-8 bytes.
// Strings whose UTF-8 byte length exceeds 65535 are transparently promoted to
// LongString (0x0C | 4-byte big-endian length | UTF-8 bytes) per the AMF0 spec;
// callers never need to choose the encoding themselves.
func EncodeString(w io.Writer, s string) error {
	b := []byte(s)
	if len(b) > 0xFFFF {
		return EncodeLongString(w, s)
	}
	var hdr [1 + 2]byte
	hdr[0] = markerString
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.string.write.header", err)
	}
	if len(b) == 0 { // empty string done.
		return nil
	}
	if _, err := w.Write(b); err != nil {
		return amferrors.NewAMFError("encode.string.write.body", err)
	}
	return nil
}

// EncodeLongString writes an AMF0 LongString (marker 0x0C + 4-byte BE length + bytes).
func EncodeLongString(w io.Writer, s string) error {
	b := []byte(s)
	var hdr [1 + 4]byte
	hdr[0] = markerLongString
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.longstring.write.header", err)
	}
	if len(b) == 0 {
		return nil
	}
	if _, err := w.Write(b); err != nil {
		return amferrors.NewAMFError("encode.longstring.write.body", err)
	}
	return nil
}

// DecodeString reads an AMF0 String from r.
// Error cases:
//   - Marker mismatch -> decode.string.marker
//   - Short reads -> decode.string.marker.read / decode.string.length.read / decode.string.read
func DecodeString(r io.Reader) (string, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return "", amferrors.NewAMFError("decode.string.marker.read", err)
	}
	if m[0] != markerString {
		return "", amferrors.NewAMFError("decode.string.marker", fmt.Errorf("expected 0x%02x got 0x%02x", markerString, m[0]))
	}
	var ln [2]byte
	if _, err := io.ReadFull(r, ln[:]); err != nil {
		return "", amferrors.NewAMFError("decode.string.length.read", err)
	}
	l := binary.BigEndian.Uint16(ln[:])
	if l == 0 { // empty string
		return "", nil
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", amferrors.NewAMFError("decode.string.read", err)
	}
	return string(buf), nil
}

// DecodeLongString reads an AMF0 LongString (marker 0x0C) from r.
func DecodeLongString(r io.Reader) (string, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return "", amferrors.NewAMFError("decode.longstring.marker.read", err)
	}
	if m[0] != markerLongString {
		return "", amferrors.NewAMFError("decode.longstring.marker", fmt.Errorf("expected 0x%02x got 0x%02x", markerLongString, m[0]))
	}
	var ln [4]byte
	if _, err := io.ReadFull(r, ln[:]); err != nil {
		return "", amferrors.NewAMFError("decode.longstring.length.read", err)
	}
	l := binary.BigEndian.Uint32(ln[:])
	if l == 0 {
		return "", nil
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", amferrors.NewAMFError("decode.longstring.read", err)
	}
	return string(buf), nil
}
