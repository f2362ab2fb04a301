package amf

import "bytes"

// Buffer is the growable byte vector with a read cursor that encoders and
// decoders operate over: EncodeValue and friends append at the current
// length (bytes.Buffer.Write), while DecodeValue and the Read* primitives
// advance the read cursor (bytes.Buffer.Read). A command message payload is
// built by writing a sequence of AMF0 values into one Buffer and is parsed by
// reading that same sequence back out of it.
type Buffer struct {
	bytes.Buffer
}

// NewBuffer wraps an existing byte slice for decoding (the cursor starts at 0).
func NewBuffer(data []byte) *Buffer {
	b := &Buffer{}
	b.Write(data)
	return b
}

// Remaining reports how many unread bytes are left in the buffer.
func (b *Buffer) Remaining() int { return b.Len() }
