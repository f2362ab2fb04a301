package amf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	amferrors "github.com/riverline/rtmp-publish/internal/errors"
)

// markerECMAArray is the AMF0 type marker for ECMA Array (0x08). Unlike Strict
// Array, an ECMA array carries named properties (same key/value layout as
// Object) plus an element-count hint that is purely informational: readers
// must still rely on the 0x00 0x00 0x09 terminator, not the count, to know
// where the array ends.
const markerECMAArray = 0x08

// ECMAArray is a distinct Go type so the generic encoder can tell an ECMA
// array apart from a plain Object even though both carry map[string]interface{}
// data — `onMetaData` payloads are always encoded as ECMA arrays, never Objects.
type ECMAArray map[string]interface{}

// EncodeECMAArray encodes v (marker 0x08) using the same key/value wire layout
// as EncodeObject, prefixed by a 4-byte BE count of top-level properties.
// Keys are emitted in lexicographic order for deterministic output.
func EncodeECMAArray(w io.Writer, v ECMAArray) error {
	var hdr [1 + 4]byte
	hdr[0] = markerECMAArray
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(v)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.ecmaarray.header.write", err)
	}
	if err := encodeObjectBody(w, map[string]interface{}(v)); err != nil {
		return amferrors.NewAMFError("encode.ecmaarray.body", err)
	}
	return nil
}

// DecodeECMAArray decodes an ECMA array from r, expecting marker 0x08.
func DecodeECMAArray(r io.Reader) (ECMAArray, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.ecmaarray.marker.read", err)
	}
	if marker[0] != markerECMAArray {
		return nil, amferrors.NewAMFError("decode.ecmaarray.marker", fmt.Errorf("expected 0x%02x got 0x%02x", markerECMAArray, marker[0]))
	}
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.ecmaarray.count.read", err)
	}
	body, err := decodeObjectBody(r)
	if err != nil {
		return nil, amferrors.NewAMFError("decode.ecmaarray.body", err)
	}
	return ECMAArray(body), nil
}

// decodeECMAArrayValue mirrors decodeArrayValue for dispatch from an
// already-consumed marker byte.
func decodeECMAArrayValue(r io.Reader) (ECMAArray, error) {
	return DecodeECMAArray(io.MultiReader(bytes.NewReader([]byte{markerECMAArray}), r))
}
