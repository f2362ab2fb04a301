package amf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	amferrors "github.com/riverline/rtmp-publish/internal/errors"
)

// markerObject is the AMF0 type marker for Object (0x03). The object end marker is 0x00 0x00 0x09.
const (
	markerObject    = 0x03
	markerObjectEnd = 0x09 // after 0x00 0x00 key length sentinel
)

// EncodeObject encodes an AMF0 Object value (map[string]interface{}).
// Wire format:
//
//	0x03 | repeated { 2-byte key length | UTF-8 key bytes | AMF0 value } | 0x00 0x00 0x09
//
// Keys are emitted in lexicographic order for deterministic output (required for golden tests).
// Supported value Go types (recursively):
//   - nil -> Null
//   - float64 -> Number
//   - bool -> Boolean
//   - string -> String
//   - map[string]interface{} -> Object
//   - ECMAArray -> ECMA Array
//   - []interface{} -> Strict Array
//
// Unsupported types result in an *errors.AMFError.
func EncodeObject(w io.Writer, m map[string]interface{}) error {
	if _, err := w.Write([]byte{markerObject}); err != nil {
		return amferrors.NewAMFError("encode.object.marker.write", err)
	}
	if err := encodeObjectBody(w, m); err != nil {
		return amferrors.NewAMFError("encode.object.body", err)
	}
	return nil
}

// encodeObjectBody writes the (key,value)* pairs plus the 0x00 0x00 0x09
// terminator shared by Object and ECMA Array, which differ only in their
// leading marker byte and (for ECMA Array) a count prefix.
func encodeObjectBody(w io.Writer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var hdr [2]byte
	for _, k := range keys {
		kb := []byte(k)
		if len(kb) > 0xFFFF {
			return fmt.Errorf("key '%s' length %d exceeds 65535", k, len(kb))
		}
		binary.BigEndian.PutUint16(hdr[:], uint16(len(kb)))
		if _, err := w.Write(hdr[:]); err != nil {
			return fmt.Errorf("key length write: %w", err)
		}
		if len(kb) > 0 {
			if _, err := w.Write(kb); err != nil {
				return fmt.Errorf("key write: %w", err)
			}
		}
		if err := encodeAny(w, m[k]); err != nil {
			return fmt.Errorf("key '%s': %w", k, err)
		}
	}

	if _, err := w.Write([]byte{0x00, 0x00, markerObjectEnd}); err != nil {
		return fmt.Errorf("end marker write: %w", err)
	}
	return nil
}

// encodeAny is the generic dispatcher used by Object/ECMA Array/Strict Array
// bodies and by EncodeValue. Supported Go types: nil, float64, bool, string,
// map[string]interface{}, ECMAArray, []interface{}.
func encodeAny(w io.Writer, v interface{}) error {
	switch vv := v.(type) {
	case nil:
		return EncodeNull(w)
	case float64:
		return EncodeNumber(w, vv)
	case bool:
		return EncodeBoolean(w, vv)
	case string:
		return EncodeString(w, vv)
	case map[string]interface{}:
		return EncodeObject(w, vv)
	case ECMAArray:
		return EncodeECMAArray(w, vv)
	case []interface{}:
		return EncodeStrictArray(w, vv)
	default:
		return fmt.Errorf("unsupported AMF0 value type %T", v)
	}
}

// DecodeObject decodes an AMF0 Object into a map[string]interface{}.
// It expects the marker 0x03 at the current reader position.
func DecodeObject(r io.Reader) (map[string]interface{}, error) {
	var mMarker [1]byte
	if _, err := io.ReadFull(r, mMarker[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.object.marker.read", err)
	}
	if mMarker[0] != markerObject {
		return nil, amferrors.NewAMFError("decode.object.marker", fmt.Errorf("expected 0x%02x got 0x%02x", markerObject, mMarker[0]))
	}
	out, err := decodeObjectBody(r)
	if err != nil {
		return nil, amferrors.NewAMFError("decode.object.body", err)
	}
	return out, nil
}

// decodeObjectBody reads (key,value)* pairs until the 0x00 0x00 0x09
// terminator, shared by Object and ECMA Array decoding.
func decodeObjectBody(r io.Reader) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	for {
		var klenBuf [2]byte
		if _, err := io.ReadFull(r, klenBuf[:]); err != nil {
			return nil, fmt.Errorf("key length read: %w", err)
		}
		klen := binary.BigEndian.Uint16(klenBuf[:])
		if klen == 0 { // Potential end marker.
			var end [1]byte
			if _, err := io.ReadFull(r, end[:]); err != nil {
				return nil, fmt.Errorf("end read: %w", err)
			}
			if end[0] != markerObjectEnd {
				return nil, fmt.Errorf("expected end marker 0x%02x got 0x%02x", markerObjectEnd, end[0])
			}
			break
		}
		keyBytes := make([]byte, klen)
		if _, err := io.ReadFull(r, keyBytes); err != nil {
			return nil, fmt.Errorf("key read: %w", err)
		}
		key := string(keyBytes)

		var valMarker [1]byte
		if _, err := io.ReadFull(r, valMarker[:]); err != nil {
			return nil, fmt.Errorf("value marker read for key '%s': %w", key, err)
		}

		val, err := decodeValueWithMarker(valMarker[0], r)
		if err != nil {
			return nil, fmt.Errorf("key '%s': %w", key, err)
		}
		out[key] = val
	}
	return out, nil
}

// decodeValueWithMarker dispatches based on an already-consumed marker byte. It consumes the
// remaining payload from r appropriate to the marker.
func decodeValueWithMarker(marker byte, r io.Reader) (interface{}, error) {
	switch marker {
	case markerNumber:
		return DecodeNumber(io.MultiReader(bytes.NewReader([]byte{marker}), r))
	case markerBoolean:
		return DecodeBoolean(io.MultiReader(bytes.NewReader([]byte{marker}), r))
	case markerString:
		return DecodeString(io.MultiReader(bytes.NewReader([]byte{marker}), r))
	case markerLongString:
		return DecodeLongString(io.MultiReader(bytes.NewReader([]byte{marker}), r))
	case markerNull:
		v, err := DecodeNull(io.MultiReader(bytes.NewReader([]byte{marker}), r))
		return v, err
	case markerObject:
		return DecodeObject(io.MultiReader(bytes.NewReader([]byte{marker}), r))
	case markerECMAArray:
		return DecodeECMAArray(io.MultiReader(bytes.NewReader([]byte{marker}), r))
	case markerStrictArray:
		return DecodeStrictArray(io.MultiReader(bytes.NewReader([]byte{marker}), r))
	default:
		return nil, fmt.Errorf("unsupported marker 0x%02x", marker)
	}
}
