package rpc

// Dispatcher routes inbound AMF0 command messages during the publish
// dialogue (spec.md §4.4 WaitFms/Ready). Unlike a server, this client only
// ever receives "_result", "_error" and "onStatus" replies to the handful of
// commands it sent; routing a "_result" to the right caller requires
// matching its transaction id against the ids the dispatcher remembers
// having sent for "connect" and "createStream" ("The state machine records
// connect_id and create_stream_id to route _result messages").
//
// Any handler that decides to tear the connection down must not do so
// synchronously from within Dispatch — the caller is expected to defer that
// decision (e.g. via an idle callback) so the chunk reader can finish
// unwinding its current read before the framer is torn down.

import (
	"fmt"
	"log/slog"

	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/logger"
	"github.com/riverline/rtmp-publish/internal/rtmp/amf"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

type (
	ConnectResultHandler      func(*ConnectResult) error
	CreateStreamResultHandler func(*CreateStreamResult) error
	ErrorHandler              func(*CommandError) error
	StatusHandler             func(*OnStatus) error
	BWDoneHandler             func() error
)

// Dispatcher routes AMF0 command messages received from the server.
type Dispatcher struct {
	ConnectID      float64
	CreateStreamID float64

	OnConnectResult      ConnectResultHandler
	OnCreateStreamResult CreateStreamResultHandler
	OnError              ErrorHandler
	OnStatus             StatusHandler
	// OnBWDone fires when the server sends "onBWDone"; the handler is
	// expected to reply with "_checkbw".
	OnBWDone BWDoneHandler

	log *slog.Logger
}

// NewDispatcher creates a dispatcher. ConnectID/CreateStreamID should be set
// to the transaction ids used when building the corresponding commands so
// Dispatch can route their "_result" responses.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{log: logger.Logger().With("component", "rpc.dispatcher")}
}

// Dispatch examines msg (expected TypeID=20) and routes it to the
// appropriate handler based on command name and, for "_result", transaction
// id.
func (d *Dispatcher) Dispatch(msg *chunk.Message) error {
	if msg == nil {
		return errors.NewProtocolError("dispatch", fmt.Errorf("nil message"))
	}
	if msg.TypeID != commandMessageAMF0TypeID {
		return errors.NewProtocolError("dispatch", fmt.Errorf("unexpected message type %d", msg.TypeID))
	}

	vals, err := amf.DecodeAll(msg.Payload)
	if err != nil {
		return errors.NewProtocolError("dispatch.decode", err)
	}
	if len(vals) == 0 {
		return errors.NewProtocolError("dispatch", fmt.Errorf("empty AMF payload"))
	}
	name, ok := vals[0].(string)
	if !ok {
		return errors.NewProtocolError("dispatch", fmt.Errorf("first AMF value not a string (command name)"))
	}

	switch name {
	case "_result":
		return d.dispatchResult(msg, vals)
	case "_error":
		if d.OnError == nil {
			d.log.Warn("no handler for _error", "payload_len", len(msg.Payload))
			return nil
		}
		ce, err := ParseCommandError(msg)
		if err != nil {
			return err
		}
		return d.OnError(ce)
	case "onStatus":
		if d.OnStatus == nil {
			d.log.Warn("no handler for onStatus")
			return nil
		}
		os, err := ParseOnStatus(msg)
		if err != nil {
			return err
		}
		return d.OnStatus(os)
	case "onBWDone":
		if d.OnBWDone == nil {
			d.log.Warn("no handler for onBWDone")
			return nil
		}
		return d.OnBWDone()
	default:
		d.log.Debug("unrecognised command from server", "name", name)
		return nil
	}
}

func (d *Dispatcher) dispatchResult(msg *chunk.Message, vals []interface{}) error {
	if len(vals) < 2 {
		return errors.NewProtocolError("dispatch.result", fmt.Errorf("expected >=2 AMF values, got %d", len(vals)))
	}
	trx, ok := vals[1].(float64)
	if !ok {
		return errors.NewProtocolError("dispatch.result", fmt.Errorf("second value must be number transaction ID"))
	}

	switch trx {
	case d.ConnectID:
		if d.OnConnectResult == nil {
			return nil
		}
		cr, err := ParseConnectResult(msg)
		if err != nil {
			return err
		}
		return d.OnConnectResult(cr)
	case d.CreateStreamID:
		if d.OnCreateStreamResult == nil {
			return nil
		}
		sr, err := ParseCreateStreamResult(msg)
		if err != nil {
			return err
		}
		return d.OnCreateStreamResult(sr)
	default:
		d.log.Debug("_result for unknown transaction id", "transaction_id", trx)
		return nil
	}
}
