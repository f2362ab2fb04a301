package media

import (
	"fmt"

	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

// Audio message csid/type id. The earlier revision of the original tool
// targeted csid 4; the later revision (and this client) targets csid 3 —
// see DESIGN.md's Open Questions section (spec.md §9).
const (
	AudioCSID = 3
	AudioMTID = 0x08

	audioConfigPacket = 0x00
	audioRawPacket    = 0x01

	soundFormatHEAAC = 0xA0 // bits 7-4 of the data_header setting byte
)

// AudioEncoder derives the RTMP audio setting byte from the first AAC
// AudioSpecificConfig it sees and reuses it for every subsequent frame
// (spec.md §6.4: "the first audio call scans the AAC ASC to determine an
// audio setting byte ... subsequent audio calls reuse the same setting").
type AudioEncoder struct {
	setting byte
	ready   bool
}

// SendAudioSpecificConfig builds the AAC sequence header message (the ASC
// itself, framed with the derived setting byte and a config packet marker)
// and records the setting byte for subsequent SendAudioData calls.
func (e *AudioEncoder) SendAudioSpecificConfig(asc []byte, timestamp uint32) (*chunk.Message, error) {
	if len(asc) < 2 {
		return nil, fmt.Errorf("audio.asc: need at least 2 bytes, got %d", len(asc))
	}
	e.setting = audioSettingFromASC(asc)
	e.ready = true
	return e.build(asc, audioConfigPacket, timestamp)
}

// SendAudioData builds an AAC raw-data message using the setting byte
// derived by the prior SendAudioSpecificConfig call.
func (e *AudioEncoder) SendAudioData(payload []byte, timestamp uint32) (*chunk.Message, error) {
	if !e.ready {
		return nil, fmt.Errorf("audio.data: no audio specific config sent yet")
	}
	return e.build(payload, audioRawPacket, timestamp)
}

func (e *AudioEncoder) build(payload []byte, packetType byte, timestamp uint32) (*chunk.Message, error) {
	header := []byte{e.setting, packetType}
	full := append(header, payload...)
	return &chunk.Message{
		CSID:          AudioCSID,
		TypeID:        AudioMTID,
		Timestamp:     timestamp,
		Payload:       full,
		MessageLength: uint32(len(full)),
	}, nil
}

// audioSettingFromASC derives the RTMP AudioTagHeader setting byte from an
// AAC AudioSpecificConfig (ISO/IEC 14496-3 §1.6.2): format is fixed to
// HE-AAC (0xA0), sample-size-bit (0x2) is always set per the 16-bit-sample
// convention used by AAC publishers, the sample-rate bits are derived from
// the ASC's 4-bit sampling frequency index, and the channel bit reflects
// the ASC's 4-bit channel configuration (mono vs stereo/multichannel).
func audioSettingFromASC(asc []byte) byte {
	freqIdx := ((asc[0] & 0x07) << 1) | (asc[1] >> 7)
	channelCfg := (asc[1] >> 3) & 0x0F

	var setting byte = soundFormatHEAAC | 0x02 // format | sample-size-bit

	// Sound rate bits (2 bits): approximate mapping of the ASC sampling
	// frequency index onto the coarse SoundRate field (5.5/11/22/44 kHz).
	switch {
	case freqIdx <= 3: // 96000/88200/64000/48000 Hz and above
		setting |= 0x0C
	case freqIdx <= 5: // 32000/24000 Hz
		setting |= 0x08
	case freqIdx <= 7: // 22050/16000 Hz
		setting |= 0x04
	default:
		setting |= 0x00
	}

	if channelCfg >= 2 {
		setting |= 0x01 // stereo/multichannel
	}

	return setting
}
