package rpc

import (
	"fmt"

	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/rtmp/amf"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

// BuildCreateStream builds the "createStream" command: ["createStream",
// transactionID, null]. Sent alongside releaseStream/FCPublish on entering
// WaitFms; its _result carries the message stream id publish() is sent on.
func BuildCreateStream(transactionID float64) (*chunk.Message, error) {
	payload, err := amf.EncodeAll("createStream", transactionID, nil)
	if err != nil {
		return nil, errors.NewProtocolError("createstream.build.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		CSID:            CommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// CreateStreamResult captures a parsed "_result" response to createStream:
// ["_result", transactionID, null, streamID].
type CreateStreamResult struct {
	TransactionID float64
	StreamID      uint32
}

// ParseCreateStreamResult parses the createStream _result response and
// extracts the message stream id the server assigned.
func ParseCreateStreamResult(msg *chunk.Message) (*CreateStreamResult, error) {
	if msg == nil {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("nil message"))
	}
	if msg.TypeID != commandMessageAMF0TypeID {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("unexpected message type %d", msg.TypeID))
	}
	vals, err := amf.DecodeAll(msg.Payload)
	if err != nil {
		return nil, errors.NewProtocolError("createstream.result.parse.decode", err)
	}
	if len(vals) < 4 {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("expected >=4 AMF values, got %d", len(vals)))
	}
	name, ok := vals[0].(string)
	if !ok || name != "_result" {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("first value must be string '_result'"))
	}
	trx, ok := vals[1].(float64)
	if !ok {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("second value must be number transaction ID"))
	}
	streamID, ok := vals[3].(float64)
	if !ok {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("fourth value must be number stream ID"))
	}
	return &CreateStreamResult{TransactionID: trx, StreamID: uint32(streamID)}, nil
}
