package rpc

import (
	"fmt"

	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/rtmp/amf"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

// PublishCSID is the chunk stream publish() is sent on, distinct from the
// connection-level command dialogue (spec.md §4.4: "send publish(key,\"live\")
// on csid 4").
const PublishCSID = 4

// BuildPublish builds the "publish" command sent once createStream's
// _result has been received: ["publish", 0, null, key, "live"]. The
// transaction ID is conventionally 0 since publish never receives a direct
// _result (status arrives as an onStatus event instead).
func BuildPublish(streamMessageStreamID uint32, key string) (*chunk.Message, error) {
	payload, err := amf.EncodeAll("publish", 0.0, nil, key, "live")
	if err != nil {
		return nil, errors.NewProtocolError("publish.build.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		CSID:            PublishCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: streamMessageStreamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// BuildDeleteStream builds the "deleteStream" command sent on disconnect:
// ["deleteStream", 0, null, streamID].
func BuildDeleteStream(streamMessageStreamID uint32, streamID uint32) (*chunk.Message, error) {
	payload, err := amf.EncodeAll("deleteStream", 0.0, nil, float64(streamID))
	if err != nil {
		return nil, errors.NewProtocolError("deletestream.build.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		CSID:            CommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: streamMessageStreamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// OnStatus captures a parsed "onStatus" event: ["onStatus", 0, null,
// info:Object]. Info typically carries level/code/description fields.
type OnStatus struct {
	Level       string
	Code        string
	Description string
	Info        map[string]interface{}
}

// ParseOnStatus parses an onStatus command message.
func ParseOnStatus(msg *chunk.Message) (*OnStatus, error) {
	if msg == nil {
		return nil, errors.NewProtocolError("onstatus.parse", fmt.Errorf("nil message"))
	}
	if msg.TypeID != commandMessageAMF0TypeID {
		return nil, errors.NewProtocolError("onstatus.parse", fmt.Errorf("unexpected message type %d", msg.TypeID))
	}
	vals, err := amf.DecodeAll(msg.Payload)
	if err != nil {
		return nil, errors.NewProtocolError("onstatus.parse.decode", err)
	}
	if len(vals) < 4 {
		return nil, errors.NewProtocolError("onstatus.parse", fmt.Errorf("expected >=4 AMF values, got %d", len(vals)))
	}
	name, ok := vals[0].(string)
	if !ok || name != "onStatus" {
		return nil, errors.NewProtocolError("onstatus.parse", fmt.Errorf("first value must be string 'onStatus'"))
	}
	info, ok := vals[3].(map[string]interface{})
	if !ok {
		return nil, errors.NewProtocolError("onstatus.parse", fmt.Errorf("fourth value must be object info"))
	}
	os := &OnStatus{Info: info}
	if v, ok := info["level"].(string); ok {
		os.Level = v
	}
	if v, ok := info["code"].(string); ok {
		os.Code = v
	}
	if v, ok := info["description"].(string); ok {
		os.Description = v
	}
	return os, nil
}

// CommandError captures a parsed "_error" response: ["_error",
// transactionID, null, info:Object].
type CommandError struct {
	TransactionID float64
	Code          string
	Description   string
	Info          map[string]interface{}
}

// ParseCommandError parses an _error response to a command.
func ParseCommandError(msg *chunk.Message) (*CommandError, error) {
	if msg == nil {
		return nil, errors.NewProtocolError("error.parse", fmt.Errorf("nil message"))
	}
	if msg.TypeID != commandMessageAMF0TypeID {
		return nil, errors.NewProtocolError("error.parse", fmt.Errorf("unexpected message type %d", msg.TypeID))
	}
	vals, err := amf.DecodeAll(msg.Payload)
	if err != nil {
		return nil, errors.NewProtocolError("error.parse.decode", err)
	}
	if len(vals) < 2 {
		return nil, errors.NewProtocolError("error.parse", fmt.Errorf("expected >=2 AMF values, got %d", len(vals)))
	}
	name, ok := vals[0].(string)
	if !ok || name != "_error" {
		return nil, errors.NewProtocolError("error.parse", fmt.Errorf("first value must be string '_error'"))
	}
	trx, ok := vals[1].(float64)
	if !ok {
		return nil, errors.NewProtocolError("error.parse", fmt.Errorf("second value must be number transaction ID"))
	}
	ce := &CommandError{TransactionID: trx}
	if len(vals) >= 4 {
		if info, ok := vals[3].(map[string]interface{}); ok {
			ce.Info = info
			if v, ok := info["code"].(string); ok {
				ce.Code = v
			}
			if v, ok := info["description"].(string); ok {
				ce.Description = v
			}
		}
	}
	return ce, nil
}
