package amf

import (
	"encoding/binary"
	"fmt"
	"io"

	amferrors "github.com/riverline/rtmp-publish/internal/errors"
)

// frameKind distinguishes an object body from an ECMA array body while
// walking a format string; only object frames alternate key/value.
type frameKind int

const (
	frameObject frameKind = iota
	frameArray
)

type formatFrame struct {
	kind        frameKind
	keyRequired bool // object frames only: next %s must be a bare key
}

// EncodeFormat builds an AMF0 value sequence from a compact format string,
// consuming one element of args per value token:
//
//	%f  float64 -> Number
//	%u  bool    -> Boolean (encoded in the low 8 bits of the tag byte)
//	%s  string  -> String, or a bare property key when positioned where an
//	              object body expects a key
//	{   }       object start/end
//	[%d ]       ECMA array start (next arg is the element count, as int or
//	            float64) / end
//	0           Null literal (consumes no argument)
//
// The characters `, : \t \n` are purely cosmetic and are skipped. Any other
// rune, an unbalanced `{`/`}` or `[`/`]` pair, or a non-%s token where an
// object key is expected, fails with *errors.MalformedError ("MalformedFormat").
func EncodeFormat(w io.Writer, format string, args ...interface{}) error {
	argi := 0
	nextArg := func() (interface{}, error) {
		if argi >= len(args) {
			return nil, fmt.Errorf("format string expects more arguments than the %d provided", len(args))
		}
		v := args[argi]
		argi++
		return v, nil
	}

	var stack []formatFrame
	runes := []rune(format)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch c {
		case ',', ':', ' ', '\t', '\n':
			i++
			continue
		case '{':
			if len(stack) > 0 && stack[len(stack)-1].kind == frameObject && stack[len(stack)-1].keyRequired {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("expected %%s key, got '{' at offset %d", i))
			}
			if _, err := w.Write([]byte{markerObject}); err != nil {
				return amferrors.NewAMFError("encode.format.object.marker", err)
			}
			stack = append(stack, formatFrame{kind: frameObject, keyRequired: true})
			i++
		case '}':
			if len(stack) == 0 || stack[len(stack)-1].kind != frameObject {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("unbalanced '}' at offset %d", i))
			}
			if !stack[len(stack)-1].keyRequired {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("'}' while a value was still expected at offset %d", i))
			}
			stack = stack[:len(stack)-1]
			if _, err := w.Write([]byte{0x00, 0x00, markerObjectEnd}); err != nil {
				return amferrors.NewAMFError("encode.format.object.end", err)
			}
			i++
			if err := afterValue(stack); err != nil {
				return err
			}
		case '[':
			if i+2 >= len(runes) || runes[i+1] != '%' || runes[i+2] != 'd' {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("expected '[%%d' at offset %d", i))
			}
			if len(stack) > 0 && stack[len(stack)-1].kind == frameObject && stack[len(stack)-1].keyRequired {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("expected %%s key, got '[%%d' at offset %d", i))
			}
			countArg, err := nextArg()
			if err != nil {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", err)
			}
			count, err := toUint32(countArg)
			if err != nil {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("'[%%d' count: %w", err))
			}
			var hdr [1 + 4]byte
			hdr[0] = markerECMAArray
			binary.BigEndian.PutUint32(hdr[1:], count)
			if _, err := w.Write(hdr[:]); err != nil {
				return amferrors.NewAMFError("encode.format.array.header", err)
			}
			stack = append(stack, formatFrame{kind: frameArray})
			i += 3
		case ']':
			if len(stack) == 0 || stack[len(stack)-1].kind != frameArray {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("unbalanced ']' at offset %d", i))
			}
			stack = stack[:len(stack)-1]
			if _, err := w.Write([]byte{0x00, 0x00, markerObjectEnd}); err != nil {
				return amferrors.NewAMFError("encode.format.array.end", err)
			}
			i++
			if err := afterValue(stack); err != nil {
				return err
			}
		case '0':
			if len(stack) > 0 && stack[len(stack)-1].kind == frameObject && stack[len(stack)-1].keyRequired {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("expected %%s key, got '0' at offset %d", i))
			}
			if err := EncodeNull(w); err != nil {
				return err
			}
			i++
			if err := afterValue(stack); err != nil {
				return err
			}
		case '%':
			if i+1 >= len(runes) {
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("dangling '%%' at offset %d", i))
			}
			tok := runes[i+1]
			switch tok {
			case 'f':
				if len(stack) > 0 && stack[len(stack)-1].kind == frameObject && stack[len(stack)-1].keyRequired {
					return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("expected %%s key, got '%%f' at offset %d", i))
				}
				v, err := nextArg()
				if err != nil {
					return amferrors.NewMalformedError("amf.format.MalformedFormat", err)
				}
				f, ok := v.(float64)
				if !ok {
					return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("'%%f' expects float64, got %T", v))
				}
				if err := EncodeNumber(w, f); err != nil {
					return err
				}
			case 'u':
				if len(stack) > 0 && stack[len(stack)-1].kind == frameObject && stack[len(stack)-1].keyRequired {
					return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("expected %%s key, got '%%u' at offset %d", i))
				}
				v, err := nextArg()
				if err != nil {
					return amferrors.NewMalformedError("amf.format.MalformedFormat", err)
				}
				b, ok := v.(bool)
				if !ok {
					return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("'%%u' expects bool, got %T", v))
				}
				if err := EncodeBoolean(w, b); err != nil {
					return err
				}
			case 's':
				v, err := nextArg()
				if err != nil {
					return amferrors.NewMalformedError("amf.format.MalformedFormat", err)
				}
				s, ok := v.(string)
				if !ok {
					return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("'%%s' expects string, got %T", v))
				}
				if len(stack) > 0 && stack[len(stack)-1].kind == frameObject && stack[len(stack)-1].keyRequired {
					if err := writeBareKey(w, s); err != nil {
						return err
					}
					stack[len(stack)-1].keyRequired = false
					i += 2
					continue
				}
				if err := EncodeString(w, s); err != nil {
					return err
				}
			default:
				return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("unknown token '%%%c' at offset %d", tok, i))
			}
			i += 2
			if err := afterValue(stack); err != nil {
				return err
			}
		default:
			return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("unexpected rune %q at offset %d", c, i))
		}
	}
	if len(stack) != 0 {
		return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("unbalanced braces/brackets: %d still open", len(stack)))
	}
	return nil
}

// afterValue flips an object frame's key-required bit back on after a value
// has just been written, so the next %s is again treated as a bare key.
func afterValue(stack []formatFrame) error {
	if len(stack) == 0 {
		return nil
	}
	top := &stack[len(stack)-1]
	if top.kind == frameObject {
		top.keyRequired = true
	}
	return nil
}

func writeBareKey(w io.Writer, key string) error {
	kb := []byte(key)
	if len(kb) > 0xFFFF {
		return amferrors.NewMalformedError("amf.format.MalformedFormat", fmt.Errorf("key '%s' length %d exceeds 65535", key, len(kb)))
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(kb)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.format.key.length", err)
	}
	if len(kb) > 0 {
		if _, err := w.Write(kb); err != nil {
			return amferrors.NewAMFError("encode.format.key.write", err)
		}
	}
	return nil
}

func toUint32(v interface{}) (uint32, error) {
	switch n := v.(type) {
	case int:
		return uint32(n), nil
	case float64:
		return uint32(n), nil
	default:
		return 0, fmt.Errorf("expects int or float64, got %T", v)
	}
}
