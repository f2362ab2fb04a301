package media

import (
	"fmt"

	"github.com/riverline/rtmp-publish/internal/rtmp/amf"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

// Metadata csid/mtid (spec.md §6.4): mtid=0x12 (Data Message, AMF0),
// csid=4, timestamp=0.
const (
	MetadataCSID = 4
	MetadataMTID = 0x12

	defaultFramerate = 29.97
	defaultAspect    = 1.0
)

// Metadata carries the fields of an onMetaData data frame. Duration/Width/
// Height/Framerate/AudioSampleRate/AudioSampleSize describe the published
// stream; Framerate defaults to 29.97 when zero, per spec.md §6.4.
type Metadata struct {
	Duration        float64
	Width           float64
	Height          float64
	Framerate       float64
	AudioSampleRate float64
	AudioSampleSize float64
}

// BuildMetadata builds the send_metadata message: data_header is the AMF0
// encoding of the literal string "@setDataFrame"; the payload is an AMF0
// onMetaData ECMA array (spec.md §6.4).
func BuildMetadata(m Metadata) (*chunk.Message, error) {
	framerate := m.Framerate
	if framerate == 0 {
		framerate = defaultFramerate
	}

	onMeta := amf.ECMAArray{
		"duration":        m.Duration,
		"width":           m.Width,
		"height":          m.Height,
		"framerate":       framerate,
		"videocodecid":    7.0, // H.264
		"audiosamplerate": m.AudioSampleRate,
		"audiosamplesize": m.AudioSampleSize,
		"stereo":          true,
		"audiocodecid":    10.0, // AAC
		"AspectRatioX":    defaultAspect,
		"AspectRatioY":    defaultAspect,
	}

	var buf []byte
	setDataFrame, err := amf.EncodeAll("@setDataFrame")
	if err != nil {
		return nil, fmt.Errorf("metadata.build: encode @setDataFrame: %w", err)
	}
	buf = append(buf, setDataFrame...)

	onMetaDataName, err := amf.EncodeAll("onMetaData")
	if err != nil {
		return nil, fmt.Errorf("metadata.build: encode onMetaData name: %w", err)
	}
	buf = append(buf, onMetaDataName...)

	ecma, err := amf.Marshal(onMeta)
	if err != nil {
		return nil, fmt.Errorf("metadata.build: encode onMetaData body: %w", err)
	}
	buf = append(buf, ecma...)

	return &chunk.Message{
		CSID:          MetadataCSID,
		TypeID:        MetadataMTID,
		Timestamp:     0,
		Payload:       buf,
		MessageLength: uint32(len(buf)),
	}, nil
}
