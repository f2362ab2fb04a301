package client

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/rtmp/amf"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
	"github.com/riverline/rtmp-publish/internal/rtmp/media"
)

const handshakePacketSize = 1536
const handshakeRandomOffset = 8

// mockServer plays the server side of the handshake and connect dialogue,
// driving a single accepted connection through
// connect/releaseStream/FCPublish/createStream/publish.
type mockServer struct {
	ln net.Listener
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &mockServer{ln: ln}
}

func (s *mockServer) addr() string { return s.ln.Addr().String() }

func (s *mockServer) close() { _ = s.ln.Close() }

// serveConnectAndPublish accepts one connection, completes the handshake,
// answers connect/createStream, and reports NetStream.Publish.Start.
func (s *mockServer) serveConnectAndPublish(t *testing.T, streamID uint32) {
	t.Helper()
	conn, err := s.ln.Accept()
	if err != nil {
		t.Errorf("accept: %v", err)
		return
	}
	defer conn.Close()

	if err := serverHandshake(conn); err != nil {
		t.Errorf("server handshake: %v", err)
		return
	}

	r := chunk.NewReader(conn, initialChunkSize)
	w := chunk.NewWriter(conn, initialChunkSize)

	// connect
	msg, err := r.ReadMessage()
	if err != nil {
		t.Errorf("read connect: %v", err)
		return
	}
	args, err := amf.DecodeAll(msg.Payload)
	if err != nil || len(args) < 2 || args[0] != "connect" {
		t.Errorf("unexpected connect payload: %+v err=%v", args, err)
		return
	}
	connectID := args[1].(float64)
	sendResult(t, w, connectID, nil)

	// onBWDone: the client is expected to answer with _checkbw.
	onBWDone, err := amf.EncodeAll("onBWDone", float64(0))
	if err != nil {
		t.Errorf("encode onBWDone: %v", err)
		return
	}
	if err := w.WriteMessage(&chunk.Message{CSID: 3, TypeID: 20, Payload: onBWDone, MessageLength: uint32(len(onBWDone))}); err != nil {
		t.Errorf("write onBWDone: %v", err)
		return
	}

	// SetChunkSize(256) follows connect on the wire.
	if _, err := r.ReadMessage(); err != nil {
		t.Errorf("read set chunk size: %v", err)
		return
	}

	// releaseStream, FCPublish, createStream (ignore the first two results).
	for i := 0; i < 2; i++ {
		if _, err := r.ReadMessage(); err != nil {
			t.Errorf("read release/fcpublish: %v", err)
			return
		}
	}
	msg, err = r.ReadMessage()
	if err != nil {
		t.Errorf("read createStream: %v", err)
		return
	}
	args, err = amf.DecodeAll(msg.Payload)
	if err != nil || len(args) < 2 || args[0] != "createStream" {
		t.Errorf("unexpected createStream payload: %+v err=%v", args, err)
		return
	}
	createID := args[1].(float64)

	// _checkbw: the client's reply to onBWDone.
	msg, err = r.ReadMessage()
	if err != nil {
		t.Errorf("read _checkbw: %v", err)
		return
	}
	args, err = amf.DecodeAll(msg.Payload)
	if err != nil || len(args) < 1 || args[0] != "_checkbw" {
		t.Errorf("expected _checkbw reply to onBWDone, got %+v err=%v", args, err)
		return
	}

	sendResult(t, w, createID, float64(streamID))

	// publish
	if _, err := r.ReadMessage(); err != nil {
		t.Errorf("read publish: %v", err)
		return
	}
	onStatus, err := amf.EncodeAll("onStatus", float64(0), nil, map[string]interface{}{
		"level": "status",
		"code":  "NetStream.Publish.Start",
	})
	if err != nil {
		t.Errorf("encode onStatus: %v", err)
		return
	}
	if err := w.WriteMessage(&chunk.Message{CSID: 3, TypeID: 20, Payload: onStatus, MessageLength: uint32(len(onStatus))}); err != nil {
		t.Errorf("write onStatus: %v", err)
		return
	}

	// Drain whatever the client sends afterwards until the connection closes.
	for {
		if _, err := r.ReadMessage(); err != nil {
			return
		}
	}
}

func sendResult(t *testing.T, w *chunk.Writer, trx float64, streamID interface{}) {
	t.Helper()
	var payload []byte
	var err error
	if streamID != nil {
		payload, err = amf.EncodeAll("_result", trx, nil, streamID)
	} else {
		payload, err = amf.EncodeAll("_result", trx, nil)
	}
	if err != nil {
		t.Errorf("encode _result: %v", err)
		return
	}
	if err := w.WriteMessage(&chunk.Message{CSID: 3, TypeID: 20, Payload: payload, MessageLength: uint32(len(payload))}); err != nil {
		t.Errorf("write _result: %v", err)
	}
}

func serverHandshake(conn net.Conn) error {
	c0c1 := make([]byte, 1+handshakePacketSize)
	if _, err := io.ReadFull(conn, c0c1); err != nil {
		return err
	}
	c1 := c0c1[1:]

	var s1 [handshakePacketSize]byte
	if _, err := rand.Read(s1[handshakeRandomOffset:]); err != nil {
		return err
	}
	out := make([]byte, 1+handshakePacketSize+handshakePacketSize)
	out[0] = 3
	copy(out[1:1+handshakePacketSize], s1[:])
	copy(out[1+handshakePacketSize:], c1)
	if _, err := conn.Write(out); err != nil {
		return err
	}

	c2 := make([]byte, handshakePacketSize)
	_, err := io.ReadFull(conn, c2)
	return err
}

func TestConnect_ReachesConnectedOnPublishStart(t *testing.T) {
	srv := newMockServer(t)
	defer srv.close()
	go srv.serveConnectAndPublish(t, 1)

	c, err := New(fmt.Sprintf("rtmp://%s/app/key", srv.addr()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != Connected {
		t.Fatalf("expected Connected, got %v", c.State())
	}
	if c.StreamID() != 1 {
		t.Fatalf("expected stream id 1, got %d", c.StreamID())
	}
	c.Disconnect(errors.DisconnectionClientRequest)
}

func TestConnect_PublishDeniedMapsToAlreadyInUse(t *testing.T) {
	srv := newMockServer(t)
	defer srv.close()
	go func() {
		conn, err := srv.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if err := serverHandshake(conn); err != nil {
			return
		}
		r := chunk.NewReader(conn, initialChunkSize)
		w := chunk.NewWriter(conn, initialChunkSize)

		msg, err := r.ReadMessage()
		if err != nil {
			return
		}
		args, _ := amf.DecodeAll(msg.Payload)
		connectID := args[1].(float64)
		sendResult(t, w, connectID, nil)

		onStatus, _ := amf.EncodeAll("onStatus", float64(0), nil, map[string]interface{}{
			"level":       "error",
			"code":        "NetStream.Publish.Denied",
			"description": "Stream name is already in use",
		})
		_ = w.WriteMessage(&chunk.Message{CSID: 3, TypeID: 20, Payload: onStatus, MessageLength: uint32(len(onStatus))})
	}()

	c, err := New(fmt.Sprintf("rtmp://%s/app/key", srv.addr()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var gotReason errors.DisconnectionReason
	c.callbacks.ConnectionState = func(_ ConnState, reason errors.DisconnectionReason) {
		gotReason = reason
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatalf("expected connect error")
	}
	if gotReason != errors.DisconnectionAlreadyInUse {
		t.Fatalf("expected AlreadyInUse, got %v", gotReason)
	}
}

func TestSendVideoAndAudio_AfterConnect(t *testing.T) {
	srv := newMockServer(t)
	defer srv.close()
	go srv.serveConnectAndPublish(t, 1)

	c, err := New(fmt.Sprintf("rtmp://%s/app/key", srv.addr()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, err := c.SendMetadata(media.Metadata{Width: 1920, Height: 1080}); err != nil {
		t.Fatalf("SendMetadata: %v", err)
	}
	if _, err := c.SendVideoAVCC([]byte{0x01, 0x42, 0x00, 0x1f}, 0); err != nil {
		t.Fatalf("SendVideoAVCC: %v", err)
	}
	if _, err := c.SendAudioSpecificConfig([]byte{0x12, 0x10}, 0); err != nil {
		t.Fatalf("SendAudioSpecificConfig: %v", err)
	}
	c.Disconnect(errors.DisconnectionClientRequest)
}

func TestSendVideoFrame_BeforeConnectRejected(t *testing.T) {
	c, err := New("rtmp://127.0.0.1:1/app/key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.SendVideoFrame([]byte{0, 0, 0, 1, 0x65}, 0); err == nil {
		t.Fatalf("expected error when sending before Connected")
	}
}

func TestSendVideoFrame_DepthAheadReflectsQueueDepth(t *testing.T) {
	srv := newMockServer(t)
	defer srv.close()
	go srv.serveConnectAndPublish(t, 1)

	c, err := New(fmt.Sprintf("rtmp://%s/app/key", srv.addr()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect(errors.DisconnectionClientRequest)

	depth, err := c.SendVideoFrame([]byte{0, 0, 0, 1, 0x65}, 0)
	if err != nil {
		t.Fatalf("SendVideoFrame: %v", err)
	}
	if depth < 0 {
		t.Fatalf("expected a non-negative depth-ahead count, got %d", depth)
	}
}

func TestFlush_WaitsForQueuedWrites(t *testing.T) {
	srv := newMockServer(t)
	defer srv.close()
	go srv.serveConnectAndPublish(t, 1)

	c, err := New(fmt.Sprintf("rtmp://%s/app/key", srv.addr()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect(errors.DisconnectionClientRequest)

	if _, err := c.SendVideoFrame([]byte{0, 0, 0, 1, 0x65}, 0); err != nil {
		t.Fatalf("SendVideoFrame: %v", err)
	}
	flushCtx, flushCancel := context.WithTimeout(context.Background(), time.Second)
	defer flushCancel()
	if err := c.Flush(flushCtx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
