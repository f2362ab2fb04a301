package amf

import (
	"encoding/binary"
	"fmt"
	"io"

	amferrors "github.com/riverline/rtmp-publish/internal/errors"
)

// ReadNumber reads a tagged AMF0 Number. Alias of DecodeNumber kept under the
// Read* naming used by callers walking a command payload primitive-by-primitive.
func ReadNumber(r io.Reader) (float64, error) { return DecodeNumber(r) }

// ReadBoolean reads a tagged AMF0 Boolean.
func ReadBoolean(r io.Reader) (bool, error) { return DecodeBoolean(r) }

// ReadString reads a tagged AMF0 String or LongString, dispatching on marker.
func ReadString(r io.Reader) (string, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return "", amferrors.NewAMFError("read.string.marker.read", err)
	}
	switch marker[0] {
	case markerString:
		var ln [2]byte
		if _, err := io.ReadFull(r, ln[:]); err != nil {
			return "", amferrors.NewAMFError("read.string.length.read", err)
		}
		l := binary.BigEndian.Uint16(ln[:])
		if l == 0 {
			return "", nil
		}
		buf := make([]byte, l)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", amferrors.NewAMFError("read.string.read", err)
		}
		return string(buf), nil
	case markerLongString:
		var ln [4]byte
		if _, err := io.ReadFull(r, ln[:]); err != nil {
			return "", amferrors.NewAMFError("read.longstring.length.read", err)
		}
		l := binary.BigEndian.Uint32(ln[:])
		if l == 0 {
			return "", nil
		}
		buf := make([]byte, l)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", amferrors.NewAMFError("read.longstring.read", err)
		}
		return string(buf), nil
	default:
		return "", amferrors.NewAMFError("read.string.marker", fmt.Errorf("expected 0x%02x or 0x%02x got 0x%02x", markerString, markerLongString, marker[0]))
	}
}

// ReadKey reads a bare AMF0 object property key: a 2-byte BE length followed
// by UTF-8 bytes, with no leading type tag. Used while walking an Object or
// ECMA Array body one property at a time.
func ReadKey(r io.Reader) (string, error) {
	var ln [2]byte
	if _, err := io.ReadFull(r, ln[:]); err != nil {
		return "", amferrors.NewAMFError("read.key.length.read", err)
	}
	l := binary.BigEndian.Uint16(ln[:])
	if l == 0 {
		return "", nil
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", amferrors.NewAMFError("read.key.read", err)
	}
	return string(buf), nil
}

// ReadNull reads a tagged AMF0 Null.
func ReadNull(r io.Reader) error {
	_, err := DecodeNull(r)
	return err
}

// ReadObjectStart consumes the Object marker (0x03) only, leaving the reader
// positioned at the first (key, value) pair.
func ReadObjectStart(r io.Reader) error {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return amferrors.NewAMFError("read.objectstart.read", err)
	}
	if marker[0] != markerObject {
		return amferrors.NewAMFError("read.objectstart.marker", fmt.Errorf("expected 0x%02x got 0x%02x", markerObject, marker[0]))
	}
	return nil
}

// ReadObjectEnd consumes the Object/ECMA Array terminator: an empty key
// (0x00 0x00) followed by the end marker byte 0x09. Call this after ReadKey
// returns an empty string to confirm it was really the terminator and not a
// property whose name happens to be empty (AMF0 has no way to distinguish the
// two other than position — callers check for a zero-length key first).
func ReadObjectEnd(r io.Reader) error {
	var end [1]byte
	if _, err := io.ReadFull(r, end[:]); err != nil {
		return amferrors.NewAMFError("read.objectend.read", err)
	}
	if end[0] != markerObjectEnd {
		return amferrors.NewAMFError("read.objectend.marker", fmt.Errorf("expected 0x%02x got 0x%02x", markerObjectEnd, end[0]))
	}
	return nil
}

// SkipValue consumes and discards one AMF0 value from r based on its marker.
// Only primitive types (Number, Boolean, String, LongString, Null) can be
// skipped without full parsing; composite types (Object, ECMA Array, Strict
// Array) return *errors.UnsupportedError since skipping them correctly
// requires recursively walking their contents — the caller must drain those
// explicitly with DecodeObject/DecodeECMAArray/DecodeStrictArray instead.
func SkipValue(r io.Reader) error {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return amferrors.NewAMFError("skip.marker.read", err)
	}
	switch marker[0] {
	case markerNumber:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return amferrors.NewAMFError("skip.number.read", err)
		}
		return nil
	case markerBoolean:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return amferrors.NewAMFError("skip.boolean.read", err)
		}
		return nil
	case markerString:
		var ln [2]byte
		if _, err := io.ReadFull(r, ln[:]); err != nil {
			return amferrors.NewAMFError("skip.string.length.read", err)
		}
		l := binary.BigEndian.Uint16(ln[:])
		if l > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(l)); err != nil {
				return amferrors.NewAMFError("skip.string.read", err)
			}
		}
		return nil
	case markerLongString:
		var ln [4]byte
		if _, err := io.ReadFull(r, ln[:]); err != nil {
			return amferrors.NewAMFError("skip.longstring.length.read", err)
		}
		l := binary.BigEndian.Uint32(ln[:])
		if l > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(l)); err != nil {
				return amferrors.NewAMFError("skip.longstring.read", err)
			}
		}
		return nil
	case markerNull:
		return nil
	case markerObject, markerECMAArray, markerStrictArray:
		return amferrors.NewUnsupportedError("skip.composite", fmt.Errorf("cannot skip composite marker 0x%02x without full parsing", marker[0]))
	default:
		return amferrors.NewUnsupportedError("skip.unknown", fmt.Errorf("unsupported marker 0x%02x", marker[0]))
	}
}
