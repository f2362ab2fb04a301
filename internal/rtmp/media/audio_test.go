package media

import "testing"

// Helper to mark failures while keeping test body concise.
func _tFatalf(t *testing.T, format string, args ...interface{}) {
	t.Helper()
	t.Fatalf(format, args...)
}

// stereo44100ASC is a standard AAC-LC AudioSpecificConfig: object type 2
// (AAC-LC), sampling frequency index 4 (44100 Hz), channel config 2 (stereo).
var stereo44100ASC = []byte{0x12, 0x10}

func TestAudioEncoder_SendAudioSpecificConfig(t *testing.T) {
	var enc AudioEncoder
	msg, err := enc.SendAudioSpecificConfig(stereo44100ASC, 0)
	if err != nil {
		_tFatalf(t, "unexpected error: %v", err)
	}
	if msg.CSID != AudioCSID || msg.TypeID != AudioMTID {
		_tFatalf(t, "unexpected envelope: %+v", msg)
	}
	if msg.Payload[1] != audioConfigPacket {
		_tFatalf(t, "expected config packet type, got 0x%02X", msg.Payload[1])
	}
	if msg.Payload[0]&0xF0 != soundFormatHEAAC {
		_tFatalf(t, "expected HE-AAC format nibble, got 0x%02X", msg.Payload[0])
	}
	if msg.Payload[0]&0x01 != 0x01 {
		_tFatalf(t, "expected stereo channel bit set, got 0x%02X", msg.Payload[0])
	}
}

func TestAudioEncoder_SendAudioData_ReusesSetting(t *testing.T) {
	var enc AudioEncoder
	cfgMsg, err := enc.SendAudioSpecificConfig(stereo44100ASC, 0)
	if err != nil {
		_tFatalf(t, "config: %v", err)
	}

	dataMsg, err := enc.SendAudioData([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 23)
	if err != nil {
		_tFatalf(t, "data: %v", err)
	}
	if dataMsg.Payload[0] != cfgMsg.Payload[0] {
		_tFatalf(t, "expected setting byte reused: cfg=0x%02X data=0x%02X", cfgMsg.Payload[0], dataMsg.Payload[0])
	}
	if dataMsg.Payload[1] != audioRawPacket {
		_tFatalf(t, "expected raw packet type, got 0x%02X", dataMsg.Payload[1])
	}
	if dataMsg.Timestamp != 23 {
		_tFatalf(t, "unexpected timestamp: %d", dataMsg.Timestamp)
	}
}

func TestAudioEncoder_SendAudioData_BeforeConfigRejected(t *testing.T) {
	var enc AudioEncoder
	if _, err := enc.SendAudioData([]byte{0x01}, 0); err == nil {
		_tFatalf(t, "expected error when no config sent yet")
	}
}

func TestAudioEncoder_SendAudioSpecificConfig_TooShort(t *testing.T) {
	var enc AudioEncoder
	if _, err := enc.SendAudioSpecificConfig([]byte{0x12}, 0); err == nil {
		_tFatalf(t, "expected error for truncated ASC")
	}
}

func TestAudioSettingFromASC_MonoLowRate(t *testing.T) {
	// object type 2, sampling freq index 11 (8000 Hz), channel config 1 (mono).
	asc := []byte{0x15, 0x88}
	setting := audioSettingFromASC(asc)
	if setting&0x01 != 0 {
		_tFatalf(t, "expected mono channel bit clear, got 0x%02X", setting)
	}
}
