package control

// Control message dispatch: consumes already reassembled RTMP control
// messages (types 1-6) and mutates caller-supplied state. Kept decoupled
// from the connection package to avoid an import cycle — the connection
// read loop builds a Context backed by its own fields and calls Handle/
// IngestBytes as chunks and raw bytes arrive.
//
// Design goals:
//   * Pure functions over explicit state (easy to test)
//   * No hidden global vars
//   * Wire format parsing delegated to decoder.go, emission to encoder.go

import (
	"fmt"
	"log/slog"

	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

// Peer bandwidth limit-type lattice. BandwidthUnknown is this client's
// initial state before any Set Peer Bandwidth has been accepted; the wire
// values 0/1/2 (Hard/Soft/Dynamic) are as decoded by decoder.go.
const (
	BandwidthHard    uint8 = 0
	BandwidthSoft    uint8 = 1
	BandwidthDynamic uint8 = 2
	BandwidthUnknown uint8 = 0xFF
)

// Context carries mutable control-related state for a single RTMP
// connection. Required pointer fields are validated at the top of Handle;
// a nil one is a programmer error, not a runtime condition to tolerate.
type Context struct {
	ReadChunkSize *uint32
	WindowAckSize *uint32
	Bandwidth     *uint32
	BandwidthType *uint8 // one of the Bandwidth* constants above
	LastPeerAck   *uint32

	TotalBytesReceived   *uint64 // cumulative bytes received off the wire
	RcvBytesSinceLastAck *uint32 // reset each time an Ack is emitted

	Log  *slog.Logger
	Send func(*chunk.Message) error // emits Ping Response / Ack

	// AbortChannel, if set, is invoked when a peer Abort Message names a
	// csid other than the control channel itself; the connection wires
	// this to drop the named channel's in-progress rx state.
	AbortChannel func(csid uint32)
	// BandwidthChanged, if set, is invoked whenever the bandwidth policy
	// accepts a new value (the peer_bw_changed callback).
	BandwidthChanged func(bandwidth uint32, limitType uint8)
}

func (c *Context) valid() error {
	if c == nil || c.ReadChunkSize == nil || c.WindowAckSize == nil || c.Bandwidth == nil ||
		c.BandwidthType == nil || c.TotalBytesReceived == nil || c.RcvBytesSinceLastAck == nil || c.Send == nil {
		return fmt.Errorf("control handler: invalid context (nil field)")
	}
	return nil
}

// Handle processes a single control *chunk.Message* (types 1-6). It decodes
// the payload, mutates context state, and may emit response control
// messages (Ping Response, Ack).
func Handle(ctx *Context, msg *chunk.Message) error {
	if err := ctx.valid(); err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("control handler: nil message")
	}
	decoded, err := Decode(msg.TypeID, msg.Payload)
	if err != nil {
		return fmt.Errorf("control handler decode: %w", err)
	}

	switch v := decoded.(type) {
	case *SetChunkSize:
		old := *ctx.ReadChunkSize
		*ctx.ReadChunkSize = v.Size
		if ctx.Log != nil {
			ctx.Log.Debug("set chunk size received", "old", old, "new", v.Size)
		}
	case *Acknowledgement:
		if ctx.LastPeerAck != nil {
			*ctx.LastPeerAck = v.SequenceNumber
		}
		if ctx.Log != nil {
			ctx.Log.Debug("acknowledgement received", "seq", v.SequenceNumber)
		}
	case *UserControl:
		switch v.EventType {
		case UCStreamBegin:
			if ctx.Log != nil {
				ctx.Log.Info("user control: stream begin", "stream_id", v.StreamID)
			}
		case UCPingRequest:
			if ctx.Log != nil {
				ctx.Log.Debug("ping request received", "ts", v.Timestamp)
			}
			if err := ctx.Send(EncodeUserControlPingResponse(v.Timestamp)); err != nil {
				return fmt.Errorf("control handler: send ping response: %w", err)
			}
		case UCPingResponse:
			if ctx.Log != nil {
				ctx.Log.Debug("ping response received", "ts", v.Timestamp)
			}
		default:
			if ctx.Log != nil {
				ctx.Log.Debug("user control: unhandled event", "event_type", v.EventType)
			}
		}
	case *WindowAcknowledgementSize:
		old := *ctx.WindowAckSize
		*ctx.WindowAckSize = v.Size
		if ctx.Log != nil {
			ctx.Log.Debug("window ack size received", "old", old, "new", v.Size)
		}
		return maybeSendAck(ctx)
	case *SetPeerBandwidth:
		applyBandwidthPolicy(ctx, v.Bandwidth, v.LimitType)
	case *AbortMessage:
		if v.CSID != msg.CSID && ctx.AbortChannel != nil {
			ctx.AbortChannel(v.CSID)
		}
		if ctx.Log != nil {
			ctx.Log.Debug("abort message received", "csid", v.CSID)
		}
	default:
		return fmt.Errorf("control handler: unexpected decoded type %T", v)
	}
	return nil
}

// applyBandwidthPolicy implements the four-state bandwidth lattice
// (Unknown/Hard/Soft/Dynamic): accept Hard unconditionally from Unknown, any
// Hard message, or a Dynamic message while currently Hard; accept Soft only
// when its value improves (is smaller than) the currently stored bandwidth;
// ignore everything else silently.
func applyBandwidthPolicy(ctx *Context, bandwidth uint32, limitType uint8) {
	cur := *ctx.BandwidthType
	accept := false
	switch {
	case cur == BandwidthUnknown:
		accept = true
	case limitType == BandwidthHard:
		accept = true
	case limitType == BandwidthDynamic && cur == BandwidthHard:
		accept = true
	case limitType == BandwidthSoft:
		accept = bandwidth < *ctx.Bandwidth
	}
	if !accept {
		if ctx.Log != nil {
			ctx.Log.Debug("set peer bandwidth ignored", "bandwidth", bandwidth, "limit_type", limitType, "current_type", cur)
		}
		return
	}
	*ctx.Bandwidth = bandwidth
	*ctx.BandwidthType = limitType
	if ctx.Log != nil {
		ctx.Log.Debug("set peer bandwidth accepted", "bandwidth", bandwidth, "limit_type", limitType)
	}
	if ctx.BandwidthChanged != nil {
		ctx.BandwidthChanged(bandwidth, limitType)
	}
}

// IngestBytes records n raw bytes received off the wire and emits an Ack
// once rcv_bytes_since_last_ack reaches at least half of window_ack_size.
func IngestBytes(ctx *Context, n int) error {
	if err := ctx.valid(); err != nil {
		return err
	}
	*ctx.TotalBytesReceived += uint64(n)
	*ctx.RcvBytesSinceLastAck += uint32(n)
	return maybeSendAck(ctx)
}

func maybeSendAck(ctx *Context) error {
	w := *ctx.WindowAckSize
	if w == 0 {
		return nil
	}
	if *ctx.RcvBytesSinceLastAck < w/2 {
		return nil
	}
	seq := uint32(*ctx.TotalBytesReceived)
	if err := ctx.Send(EncodeAcknowledgement(seq)); err != nil {
		return fmt.Errorf("control handler: send ack: %w", err)
	}
	*ctx.RcvBytesSinceLastAck = 0
	if ctx.Log != nil {
		ctx.Log.Debug("acknowledgement sent", "total_bytes", *ctx.TotalBytesReceived)
	}
	return nil
}
