package rpc

import (
	"fmt"

	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/rtmp/amf"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

// RTMP message type ID for AMF0 command messages.
const commandMessageAMF0TypeID = 20

// CommandCSID is the chunk stream the command dialogue is sent on
// (spec.md §4.4 WaitS2: connect is sent on csid 3).
const CommandCSID = 3

// BuildConnect builds the outgoing "connect" command sent once the handshake
// completes:
//
//	["connect", transactionID, {app, type:"nonprivate",
//	 flashVer:"FMLE/3.0 (compatible; librtmp)", tcUrl}]
func BuildConnect(transactionID float64, app, tcURL string) (*chunk.Message, error) {
	cmdObj := map[string]interface{}{
		"app":      app,
		"type":     "nonprivate",
		"flashVer": "FMLE/3.0 (compatible; librtmp)",
		"tcUrl":    tcURL,
	}
	payload, err := amf.EncodeAll("connect", transactionID, cmdObj)
	if err != nil {
		return nil, errors.NewProtocolError("connect.build.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		CSID:            CommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// BuildReleaseStream builds the "releaseStream" command sent on entering
// WaitFms, immediately after the connect _result is received:
// ["releaseStream", transactionID, null, key].
func BuildReleaseStream(transactionID float64, key string) (*chunk.Message, error) {
	payload, err := amf.EncodeAll("releaseStream", transactionID, nil, key)
	if err != nil {
		return nil, errors.NewProtocolError("releasestream.build.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		CSID:            CommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// BuildFCPublish builds the "FCPublish" command: ["FCPublish",
// transactionID, null, key]. Flash Media Server lineage servers expect it
// alongside releaseStream/createStream; servers that don't recognise it
// simply ignore it.
func BuildFCPublish(transactionID float64, key string) (*chunk.Message, error) {
	payload, err := amf.EncodeAll("FCPublish", transactionID, nil, key)
	if err != nil {
		return nil, errors.NewProtocolError("fcpublish.build.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		CSID:            CommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// BuildCheckBW builds the "_checkbw" command sent in reply to the server's
// "onBWDone" notification: ["_checkbw", transactionID, null].
func BuildCheckBW(transactionID float64) (*chunk.Message, error) {
	payload, err := amf.EncodeAll("_checkbw", transactionID, nil)
	if err != nil {
		return nil, errors.NewProtocolError("checkbw.build.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		CSID:            CommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// ConnectResult captures the fields of a parsed "_result" response to the
// connect command.
type ConnectResult struct {
	TransactionID float64
	Properties    map[string]interface{}
	Information   map[string]interface{}
}

// ParseConnectResult parses a "_result" response to the connect command:
// ["_result", transactionID, properties:Object, information:Object].
func ParseConnectResult(msg *chunk.Message) (*ConnectResult, error) {
	if msg == nil {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("nil message"))
	}
	if msg.TypeID != commandMessageAMF0TypeID {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("unexpected message type %d", msg.TypeID))
	}
	vals, err := amf.DecodeAll(msg.Payload)
	if err != nil {
		return nil, errors.NewProtocolError("connect.result.parse.decode", err)
	}
	if len(vals) < 2 {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("expected >=2 AMF values, got %d", len(vals)))
	}
	name, ok := vals[0].(string)
	if !ok || name != "_result" {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("first value must be string '_result'"))
	}
	trx, ok := vals[1].(float64)
	if !ok {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("second value must be number transaction ID"))
	}
	res := &ConnectResult{TransactionID: trx}
	if len(vals) >= 3 {
		res.Properties, _ = vals[2].(map[string]interface{})
	}
	if len(vals) >= 4 {
		res.Information, _ = vals[3].(map[string]interface{})
	}
	return res, nil
}
