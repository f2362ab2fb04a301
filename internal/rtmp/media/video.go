package media

import (
	"fmt"

	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

// Video message csid/type id (spec.md §6.4).
const (
	VideoCSID  = 4
	VideoMTID  = 0x09
	nalTypeIDR = 5
)

// AVC frame type / codec id nibbles (FLV VideoTagHeader, ISO/IEC 14496-15).
const (
	frameTypeKey   = 0x1
	frameTypeInter = 0x2
	codecIDAVC     = 0x7

	avcPacketTypeSequenceHeader = 0x00
	avcPacketTypeNALU           = 0x01
)

// BuildVideoAVCC builds the AVC sequence header (decoder configuration
// record) message sent once at the start of a publish, before any video
// frame (spec.md §6.4 send_video_avcc): data_header 5 bytes
// {0x17, 0x00, 0, 0, 0} followed by the caller-supplied avcC payload.
func BuildVideoAVCC(avcC []byte, timestamp uint32) (*chunk.Message, error) {
	if len(avcC) == 0 {
		return nil, fmt.Errorf("video.avcc: empty avcC payload")
	}
	header := []byte{
		frameTypeKey<<4 | codecIDAVC,
		avcPacketTypeSequenceHeader,
		0, 0, 0, // composition time, always zero for a sequence header
	}
	payload := append(header, avcC...)
	return &chunk.Message{
		CSID:          VideoCSID,
		TypeID:        VideoMTID,
		Timestamp:     timestamp,
		Payload:       payload,
		MessageLength: uint32(len(payload)),
	}, nil
}

// BuildVideoFrame builds an AVCC-framed video frame message. The keyframe
// bit in the data_header is determined by scanning the AVCC payload for a
// NAL of type 5 (IDR) — spec.md §6.4: "Keyframe detection scans the payload
// as AVCC (4-byte BE NAL length + NAL); sets keyframe if any NAL has
// nal_type == 5."
func BuildVideoFrame(avcc []byte, timestamp uint32) (*chunk.Message, error) {
	if len(avcc) == 0 {
		return nil, fmt.Errorf("video.frame: empty payload")
	}
	frameType := uint8(frameTypeInter)
	if containsIDR(avcc) {
		frameType = frameTypeKey
	}
	header := []byte{
		frameType<<4 | codecIDAVC,
		avcPacketTypeNALU,
		0, 0, 0, // composition time offset; not modeled by this client
	}
	payload := append(header, avcc...)
	return &chunk.Message{
		CSID:            VideoCSID,
		TypeID:          VideoMTID,
		Timestamp:       timestamp,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// containsIDR scans an AVCC byte stream (4-byte big-endian NAL length
// prefix followed by the NAL unit) for any NAL whose type field is 5
// (coded slice of an IDR picture).
func containsIDR(avcc []byte) bool {
	off := 0
	for off+4 <= len(avcc) {
		nalLen := uint32(avcc[off])<<24 | uint32(avcc[off+1])<<16 | uint32(avcc[off+2])<<8 | uint32(avcc[off+3])
		off += 4
		if nalLen == 0 || off+int(nalLen) > len(avcc) {
			return false
		}
		nalType := avcc[off] & 0x1F
		if nalType == nalTypeIDR {
			return true
		}
		off += int(nalLen)
	}
	return false
}
