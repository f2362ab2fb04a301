package chunk

// Chunk header encoding and the outbound message fragmenter.
//
// Header encoding mirrors the parser in header.go (same field layout, same
// little-endian MessageStreamID quirk real RTMP servers expect). The writer
// fragments a complete message into a header-bearing first chunk and FMT3
// continuation chunks, choosing the smallest legal header type for the first
// chunk per the per-CSID TxChannelState.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/riverline/rtmp-publish/internal/bufpool"
)

const (
	fmt0 = 0
	fmt1 = 1
	fmt2 = 2
	fmt3 = 3
)

// encodeBasicHeader encodes the Basic Header (1-3 bytes) into dst and returns resulting slice.
func encodeBasicHeader(dst []byte, fmtVal uint8, csid uint32) ([]byte, error) {
	if fmtVal > 3 {
		return nil, fmt.Errorf("invalid fmt %d", fmtVal)
	}
	if csid < 2 { // 0 & 1 reserved in RTMP spec
		return nil, fmt.Errorf("invalid csid %d (must be >=2)", csid)
	}
	switch {
	case csid >= 2 && csid <= 63:
		b := byte(fmtVal<<6) | byte(csid)
		dst = append(dst, b)
	case csid >= 64 && csid <= 319:
		b0 := byte(fmtVal<<6) | 0 // marker for 2-byte form
		b1 := byte(csid - 64)
		dst = append(dst, b0, b1)
	case csid >= 320 && csid <= 65599:
		val := csid - 64
		b0 := byte(fmtVal<<6) | 1 // marker for 3-byte form
		b1 := byte(val & 0xFF)
		b2 := byte(val >> 8)
		dst = append(dst, b0, b1, b2)
	default:
		return nil, fmt.Errorf("csid %d out of range", csid)
	}
	return dst, nil
}

// writeUint24 writes a 24-bit big-endian integer into the 3-byte slice.
func writeUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// EncodeChunkHeader serializes a ChunkHeader (only header bytes, no payload) and returns the header slice.
// prev provides context for FMT3 and extended timestamp reuse semantics.
func EncodeChunkHeader(h *ChunkHeader, prev *ChunkHeader) ([]byte, error) {
	if h == nil {
		return nil, errors.New("nil header")
	}
	var (
		needExtended bool
		tsField      uint32 // value to emit (absolute or delta depending on FMT)
	)
	switch h.FMT {
	case fmt0:
		tsField = h.Timestamp
		needExtended = h.Timestamp >= extendedTimestampMarker
	case fmt1, fmt2:
		tsField = h.Timestamp // contains delta per parser contract
		needExtended = h.Timestamp >= extendedTimestampMarker
	case fmt3:
		if prev == nil || prev.CSID != h.CSID {
			return nil, fmt.Errorf("FMT3 requires previous header for CSID %d", h.CSID)
		}
		needExtended = prev.HasExtendedTimestamp
		tsField = prev.Timestamp
	default:
		return nil, fmt.Errorf("unsupported fmt %d", h.FMT)
	}

	buf := make([]byte, 0, 1+11+4) // worst-case
	var err error
	buf, err = encodeBasicHeader(buf, h.FMT, h.CSID)
	if err != nil {
		return nil, err
	}

	switch h.FMT {
	case fmt0:
		mh := make([]byte, 11)
		if needExtended {
			writeUint24(mh[0:3], extendedTimestampMarker)
		} else {
			writeUint24(mh[0:3], tsField)
		}
		writeUint24(mh[3:6], h.MessageLength)
		mh[6] = h.MessageTypeID
		binary.LittleEndian.PutUint32(mh[7:11], h.MessageStreamID)
		buf = append(buf, mh...)
	case fmt1:
		mh := make([]byte, 7)
		if needExtended {
			writeUint24(mh[0:3], extendedTimestampMarker)
		} else {
			writeUint24(mh[0:3], tsField) // delta
		}
		writeUint24(mh[3:6], h.MessageLength)
		mh[6] = h.MessageTypeID
		buf = append(buf, mh...)
	case fmt2:
		mh := make([]byte, 3)
		if needExtended {
			writeUint24(mh[0:3], extendedTimestampMarker)
		} else {
			writeUint24(mh[0:3], tsField)
		}
		buf = append(buf, mh...)
	case fmt3:
		// no message header bytes
	}

	if needExtended {
		var ext [4]byte
		binary.BigEndian.PutUint32(ext[:], tsField)
		buf = append(buf, ext[:]...)
	}
	return buf, nil
}

// TxChannelState holds the per-CSID bookkeeping the header-type-selection
// algorithm needs: the previous message's mtid/msid/length/absolute timestamp
// and the delta that produced it, plus whether any message has been sent yet
// on this channel.
type TxChannelState struct {
	CSID          uint32
	First         bool // true once at least one message has been sent
	PrevMTID      uint8
	PrevMSID      uint32
	PrevLength    uint32
	PrevTimestamp uint32 // absolute
	PrevDelta     uint32
}

// chooseHeaderType implements the header-type-selection rules: evaluate in
// order, falling back to the always-legal Type 0 when no compressed form is
// provably correct for the combination at hand (conservative policy — see
// spec's header-encoding rationale).
func chooseHeaderType(state *TxChannelState, mtid uint8, msid uint32, timestamp uint32, length uint32) (fmtVal uint8, delta uint32) {
	if !state.First {
		return fmt0, 0
	}
	if mtid != state.PrevMTID || msid != state.PrevMSID {
		return fmt0, 0
	}
	if timestamp < state.PrevTimestamp {
		return fmt0, 0
	}
	if timestamp == 0 {
		if length != state.PrevLength {
			return fmt1, 0
		}
		return fmt2, 0
	}
	d := timestamp - state.PrevTimestamp
	if length == state.PrevLength && d == state.PrevDelta {
		return fmt3, d
	}
	return fmt1, d
}

// apply records this message as the new "previous" state for the channel,
// per the "after emission, store prev_*" rule (Type 0 resets prev_delta to 0).
func (s *TxChannelState) apply(fmtVal uint8, mtid uint8, msid uint32, timestamp uint32, length uint32, delta uint32) {
	s.CSID = s.CSID // no-op, kept for clarity
	s.First = true
	s.PrevMTID = mtid
	s.PrevMSID = msid
	s.PrevLength = length
	s.PrevTimestamp = timestamp
	if fmtVal == fmt0 {
		s.PrevDelta = 0
	} else {
		s.PrevDelta = delta
	}
}

// Writer emits RTMP chunks for outbound messages. Not concurrency-safe; expected
// usage is a single write goroutine per connection (see internal/rtmp/publisher).
type Writer struct {
	w           io.Writer
	chunkSize   uint32 // outbound chunk size (default 128 if zero)
	channels    map[uint32]*TxChannelState
	lastHeaders map[uint32]*ChunkHeader // raw headers, used to satisfy EncodeChunkHeader's FMT3 contract
}

// NewWriter creates a new chunk Writer.
func NewWriter(w io.Writer, chunkSize uint32) *Writer {
	if chunkSize == 0 {
		chunkSize = 128
	}
	return &Writer{
		w:           w,
		chunkSize:   chunkSize,
		channels:    make(map[uint32]*TxChannelState),
		lastHeaders: make(map[uint32]*ChunkHeader),
	}
}

// SetChunkSize updates the outbound chunk size (validated to sane bounds).
// Per spec this must take effect only between messages, never mid-chunk;
// WriteMessage never interleaves so this is always safe to call between calls.
func (w *Writer) SetChunkSize(size uint32) {
	if size >= 1 && size <= 65536 {
		w.chunkSize = size
	}
}

// WriteMessage fragments and writes a complete RTMP message (data_header +
// payload already concatenated by the caller) as one or more chunks, selecting
// the smallest legal header type for the first chunk and FMT3 for every
// continuation chunk on the same CSID.
func (w *Writer) WriteMessage(msg *Message) error {
	if w == nil || w.w == nil {
		return errors.New("writer: nil underlying writer")
	}
	if msg == nil {
		return errors.New("writer: nil message")
	}
	if msg.MessageLength == 0 {
		msg.MessageLength = uint32(len(msg.Payload))
	}
	if int(msg.MessageLength) != len(msg.Payload) {
		return fmt.Errorf("writer: payload length %d != declared %d", len(msg.Payload), msg.MessageLength)
	}
	cs := w.chunkSize
	if cs == 0 {
		cs = 128
	}

	state := w.channels[msg.CSID]
	if state == nil {
		state = &TxChannelState{CSID: msg.CSID}
		w.channels[msg.CSID] = state
	}

	selectedFmt, delta := chooseHeaderType(state, msg.TypeID, msg.MessageStreamID, msg.Timestamp, msg.MessageLength)

	tsField := msg.Timestamp
	if selectedFmt == fmt1 || selectedFmt == fmt2 {
		tsField = delta
	}
	first := &ChunkHeader{
		FMT:             selectedFmt,
		CSID:            msg.CSID,
		Timestamp:       tsField,
		MessageLength:   msg.MessageLength,
		MessageTypeID:   msg.TypeID,
		MessageStreamID: msg.MessageStreamID,
	}
	if tsField >= extendedTimestampMarker {
		first.HasExtendedTimestamp = true
	}

	prevHeader := w.lastHeaders[msg.CSID]
	hdr, err := EncodeChunkHeader(first, prevHeader)
	if err != nil {
		return fmt.Errorf("writer: encode first header: %w", err)
	}
	toSend := msg.Payload
	if uint32(len(toSend)) > cs {
		toSend = toSend[:cs]
	}
	if err := writeChunk(w.w, hdr, toSend); err != nil {
		return err
	}
	written := uint32(len(toSend))

	state.apply(selectedFmt, msg.TypeID, msg.MessageStreamID, msg.Timestamp, msg.MessageLength, delta)
	w.lastHeaders[msg.CSID] = &ChunkHeader{
		FMT:                  selectedFmt,
		CSID:                 msg.CSID,
		Timestamp:            msg.Timestamp,
		MessageLength:        msg.MessageLength,
		MessageTypeID:        msg.TypeID,
		MessageStreamID:      msg.MessageStreamID,
		HasExtendedTimestamp: first.HasExtendedTimestamp,
	}

	// Continuation chunks (FMT3): same csid, no header field changes.
	for written < msg.MessageLength {
		remain := msg.MessageLength - written
		sz := remain
		if sz > cs {
			sz = cs
		}
		cont := &ChunkHeader{FMT: fmt3, CSID: msg.CSID}
		hdr3, err := EncodeChunkHeader(cont, w.lastHeaders[msg.CSID])
		if err != nil {
			return fmt.Errorf("writer: encode continuation header: %w", err)
		}
		start := written
		end := written + sz
		if end > uint32(len(msg.Payload)) {
			return fmt.Errorf("writer: bounds (end=%d > len=%d)", end, len(msg.Payload))
		}
		if err := writeChunk(w.w, hdr3, msg.Payload[start:end]); err != nil {
			return err
		}
		written = end
	}
	return nil
}

// writeChunk builds a single buffer header+payload and writes it once (atomic
// chunk emission). The scratch buffer is borrowed from bufpool since its
// lifetime never escapes this call.
func writeChunk(w io.Writer, header []byte, payload []byte) error {
	n := len(header) + len(payload)
	buf := bufpool.Get(n)
	defer bufpool.Put(buf)
	buf = append(buf[:0], header...)
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}
