package media

import "testing"

func _tVidFatalf(t *testing.T, format string, args ...interface{}) {
	t.Helper()
	t.Fatalf(format, args...)
}

func TestBuildVideoAVCC(t *testing.T) {
	avcC := []byte{0x01, 0x42, 0x00, 0x1f, 0xff}
	msg, err := BuildVideoAVCC(avcC, 0)
	if err != nil {
		_tVidFatalf(t, "unexpected error: %v", err)
	}
	if msg.CSID != VideoCSID || msg.TypeID != VideoMTID {
		_tVidFatalf(t, "unexpected envelope: %+v", msg)
	}
	if msg.Payload[0] != 0x17 || msg.Payload[1] != 0x00 {
		_tVidFatalf(t, "unexpected data_header: % X", msg.Payload[:2])
	}
	if len(msg.Payload) != 5+len(avcC) {
		_tVidFatalf(t, "unexpected payload length: %d", len(msg.Payload))
	}
}

func TestBuildVideoAVCC_EmptyRejected(t *testing.T) {
	if _, err := BuildVideoAVCC(nil, 0); err == nil {
		_tVidFatalf(t, "expected error for empty avcC")
	}
}

func TestBuildVideoFrame_Keyframe(t *testing.T) {
	nal := []byte{0x65, 0xAA, 0xBB} // nal_type 5 (IDR)
	avcc := avccFrame(nal)

	msg, err := BuildVideoFrame(avcc, 1000)
	if err != nil {
		_tVidFatalf(t, "unexpected error: %v", err)
	}
	if msg.Payload[0] != 0x17 {
		_tVidFatalf(t, "expected keyframe header byte 0x17, got 0x%02X", msg.Payload[0])
	}
	if msg.Payload[1] != 0x01 {
		_tVidFatalf(t, "expected NALU packet type 0x01, got 0x%02X", msg.Payload[1])
	}
	if msg.Timestamp != 1000 {
		_tVidFatalf(t, "unexpected timestamp: %d", msg.Timestamp)
	}
}

func TestBuildVideoFrame_Interframe(t *testing.T) {
	nal := []byte{0x61, 0xCC} // nal_type 1 (non-IDR slice)
	avcc := avccFrame(nal)

	msg, err := BuildVideoFrame(avcc, 1033)
	if err != nil {
		_tVidFatalf(t, "unexpected error: %v", err)
	}
	if msg.Payload[0] != 0x27 {
		_tVidFatalf(t, "expected inter-frame header byte 0x27, got 0x%02X", msg.Payload[0])
	}
}

func TestBuildVideoFrame_MultiNALKeyframeDetection(t *testing.T) {
	avcc := append(avccFrame([]byte{0x06, 0x01}), avccFrame([]byte{0x65, 0x02})...)
	msg, err := BuildVideoFrame(avcc, 0)
	if err != nil {
		_tVidFatalf(t, "unexpected error: %v", err)
	}
	if msg.Payload[0] != 0x17 {
		_tVidFatalf(t, "expected keyframe detected among multiple NALs, got 0x%02X", msg.Payload[0])
	}
}

func TestBuildVideoFrame_EmptyRejected(t *testing.T) {
	if _, err := BuildVideoFrame(nil, 0); err == nil {
		_tVidFatalf(t, "expected error for empty payload")
	}
}

// avccFrame wraps nal with a 4-byte big-endian length prefix, as produced by
// an AVCC (length-prefixed) demuxer.
func avccFrame(nal []byte) []byte {
	n := len(nal)
	out := []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	return append(out, nal...)
}
