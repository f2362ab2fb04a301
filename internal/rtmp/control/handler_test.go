package control

import (
	"log/slog"
	"testing"

	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

// simple in-memory sender capture for tests
type captureSender struct {
	msgs []*chunk.Message
	err  error
}

func (c *captureSender) send(m *chunk.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func newTestContext(cs *captureSender) (*Context, *uint32, *uint32, *uint32, *uint8) {
	readChunkSize := uint32(128)
	windowAckSize := uint32(0)
	bandwidth := uint32(0)
	bandwidthType := BandwidthUnknown
	lastAck := uint32(0)
	total := uint64(0)
	sinceAck := uint32(0)
	ctx := &Context{
		ReadChunkSize:        &readChunkSize,
		WindowAckSize:        &windowAckSize,
		Bandwidth:            &bandwidth,
		BandwidthType:        &bandwidthType,
		LastPeerAck:          &lastAck,
		TotalBytesReceived:   &total,
		RcvBytesSinceLastAck: &sinceAck,
		Log:                  slog.Default(),
		Send:                 cs.send,
	}
	return ctx, &readChunkSize, &windowAckSize, &bandwidth, &bandwidthType
}

func TestHandle_ControlMessages_StateUpdates(t *testing.T) {
	cs := &captureSender{}
	ctx, readChunkSize, windowAckSize, bandwidth, bandwidthType := newTestContext(cs)

	if err := Handle(ctx, EncodeSetChunkSize(4096)); err != nil {
		t.Fatalf("handle set chunk size: %v", err)
	}
	if *readChunkSize != 4096 {
		t.Fatalf("readChunkSize not updated got=%d", *readChunkSize)
	}

	if err := Handle(ctx, EncodeWindowAcknowledgementSize(2_500_000)); err != nil {
		t.Fatalf("handle window ack size: %v", err)
	}
	if *windowAckSize != 2_500_000 {
		t.Fatalf("windowAckSize not updated got=%d", *windowAckSize)
	}

	if err := Handle(ctx, EncodeSetPeerBandwidth(2_500_000, BandwidthDynamic)); err != nil {
		t.Fatalf("handle set peer bandwidth: %v", err)
	}
	if *bandwidth != 2_500_000 || *bandwidthType != BandwidthDynamic {
		t.Fatalf("peer bandwidth fields mismatch bw=%d lt=%d", *bandwidth, *bandwidthType)
	}

	lastAck := ctx.LastPeerAck
	if err := Handle(ctx, EncodeAcknowledgement(1_000_000)); err != nil {
		t.Fatalf("handle acknowledgement: %v", err)
	}
	if *lastAck != 1_000_000 {
		t.Fatalf("lastAck mismatch got=%d", *lastAck)
	}
}

func TestHandle_UserControl_PingRequestResponse(t *testing.T) {
	cs := &captureSender{}
	ctx, _, _, _, _ := newTestContext(cs)

	const ts = 123456
	if err := Handle(ctx, EncodeUserControlPingRequest(ts)); err != nil {
		t.Fatalf("handle ping request: %v", err)
	}
	if len(cs.msgs) != 1 {
		t.Fatalf("expected 1 outbound message got=%d", len(cs.msgs))
	}
	resp := cs.msgs[0]
	if resp.TypeID != TypeUserControl || len(resp.Payload) != 6 || resp.Payload[1] != byte(UCPingResponse) {
		t.Fatalf("unexpected ping response payload: % X", resp.Payload)
	}
	if ts != uint32(resp.Payload[2])<<24|uint32(resp.Payload[3])<<16|uint32(resp.Payload[4])<<8|uint32(resp.Payload[5]) {
		t.Fatalf("timestamp not echoed in ping response: % X", resp.Payload[2:])
	}
}

func TestHandle_Errors(t *testing.T) {
	if err := Handle(nil, &chunk.Message{}); err == nil {
		t.Fatalf("expected error for nil context")
	}
	ctx := &Context{}
	if err := Handle(ctx, &chunk.Message{}); err == nil {
		t.Fatalf("expected error for invalid context")
	}
}

func TestBandwidthLattice_FirstMessageAlwaysAccepted(t *testing.T) {
	cs := &captureSender{}
	ctx, _, _, bandwidth, bandwidthType := newTestContext(cs)
	if err := Handle(ctx, EncodeSetPeerBandwidth(1000, BandwidthSoft)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if *bandwidth != 1000 || *bandwidthType != BandwidthSoft {
		t.Fatalf("expected first message accepted unconditionally, got bw=%d type=%d", *bandwidth, *bandwidthType)
	}
}

func TestBandwidthLattice_HardAlwaysWins(t *testing.T) {
	cs := &captureSender{}
	ctx, _, _, bandwidth, bandwidthType := newTestContext(cs)
	_ = Handle(ctx, EncodeSetPeerBandwidth(500, BandwidthSoft))
	if err := Handle(ctx, EncodeSetPeerBandwidth(9000, BandwidthHard)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if *bandwidth != 9000 || *bandwidthType != BandwidthHard {
		t.Fatalf("expected hard message to win, got bw=%d type=%d", *bandwidth, *bandwidthType)
	}
}

func TestBandwidthLattice_DynamicOnlyWinsOverHard(t *testing.T) {
	cs := &captureSender{}
	ctx, _, _, bandwidth, bandwidthType := newTestContext(cs)
	_ = Handle(ctx, EncodeSetPeerBandwidth(500, BandwidthSoft))
	if err := Handle(ctx, EncodeSetPeerBandwidth(9000, BandwidthDynamic)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if *bandwidth != 500 || *bandwidthType != BandwidthSoft {
		t.Fatalf("expected dynamic message to be ignored over soft current, got bw=%d type=%d", *bandwidth, *bandwidthType)
	}

	_ = Handle(ctx, EncodeSetPeerBandwidth(9000, BandwidthHard))
	if err := Handle(ctx, EncodeSetPeerBandwidth(1234, BandwidthDynamic)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if *bandwidth != 1234 || *bandwidthType != BandwidthDynamic {
		t.Fatalf("expected dynamic to win over hard current, got bw=%d type=%d", *bandwidth, *bandwidthType)
	}
}

func TestBandwidthLattice_SoftOnlyWinsWhenSmaller(t *testing.T) {
	cs := &captureSender{}
	ctx, _, _, bandwidth, bandwidthType := newTestContext(cs)
	_ = Handle(ctx, EncodeSetPeerBandwidth(9000, BandwidthHard))
	if err := Handle(ctx, EncodeSetPeerBandwidth(20000, BandwidthSoft)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if *bandwidth != 9000 || *bandwidthType != BandwidthHard {
		t.Fatalf("expected larger soft value to be ignored, got bw=%d type=%d", *bandwidth, *bandwidthType)
	}
	if err := Handle(ctx, EncodeSetPeerBandwidth(500, BandwidthSoft)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if *bandwidth != 500 || *bandwidthType != BandwidthSoft {
		t.Fatalf("expected smaller soft value to win, got bw=%d type=%d", *bandwidth, *bandwidthType)
	}
}

func TestAbortMessage_InvokesCallbackExceptSelf(t *testing.T) {
	cs := &captureSender{}
	ctx, _, _, _, _ := newTestContext(cs)
	var aborted []uint32
	ctx.AbortChannel = func(csid uint32) { aborted = append(aborted, csid) }

	if err := Handle(ctx, EncodeAbortMessage(6)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(aborted) != 1 || aborted[0] != 6 {
		t.Fatalf("expected abort callback for csid 6, got %v", aborted)
	}

	if err := Handle(ctx, EncodeAbortMessage(2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(aborted) != 1 {
		t.Fatalf("self-abort on control channel should not invoke callback, got %v", aborted)
	}
}

func TestIngestBytes_AcksAtHalfWindow(t *testing.T) {
	cs := &captureSender{}
	ctx, _, windowAckSize, _, _ := newTestContext(cs)
	*windowAckSize = 1000

	if err := IngestBytes(ctx, 400); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(cs.msgs) != 0 {
		t.Fatalf("expected no ack yet, got %d", len(cs.msgs))
	}
	if err := IngestBytes(ctx, 200); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(cs.msgs) != 1 {
		t.Fatalf("expected ack at >= half window, got %d", len(cs.msgs))
	}
	if cs.msgs[0].TypeID != TypeAcknowledgement {
		t.Fatalf("expected acknowledgement message, got type %d", cs.msgs[0].TypeID)
	}
	if *ctx.RcvBytesSinceLastAck != 0 {
		t.Fatalf("expected counter reset after ack, got %d", *ctx.RcvBytesSinceLastAck)
	}
}

func TestWindowAckSize_SendsOverdueAckImmediately(t *testing.T) {
	cs := &captureSender{}
	ctx, _, _, _, _ := newTestContext(cs)
	if err := IngestBytes(ctx, 5000); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(cs.msgs) != 0 {
		t.Fatalf("no window set yet, should not ack")
	}
	if err := Handle(ctx, EncodeWindowAcknowledgementSize(1000)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(cs.msgs) != 1 {
		t.Fatalf("expected immediate overdue ack once window is known, got %d", len(cs.msgs))
	}
}
