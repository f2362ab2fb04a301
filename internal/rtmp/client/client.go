// Package client implements the RTMP publishing client: it dials a
// server, performs the handshake and connect/createStream/publish
// dialogue (spec.md §4.4), then exposes send_metadata/send_video_*/
// send_audio_* calls that frame media onto the wire.
//
// The wire protocol is described as a single-threaded, callback-driven
// event loop. This package keeps that same ownership model — one
// goroutine reads, one goroutine writes, nothing else touches the
// socket — but expresses it the idiomatic Go way: a read loop and a
// write loop goroutine communicating over per-channel admission
// queues, coordinated by a context.Context instead of an external
// event loop the caller drives by hand.
package client

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/logger"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
	"github.com/riverline/rtmp-publish/internal/rtmp/control"
	"github.com/riverline/rtmp-publish/internal/rtmp/media"
	"github.com/riverline/rtmp-publish/internal/rtmp/rpc"
	"github.com/riverline/rtmp-publish/internal/rtmp/uri"
)

// DialTimeout bounds the TCP dial (the WaitDns/WaitTcp sub-states).
const DialTimeout = 5 * time.Second

// DefaultSocketWatchdog is the default idle duration before the socket
// watchdog disconnects with DisconnectionTimeout (spec.md §4.4.1).
const DefaultSocketWatchdog = 10 * time.Second

const initialChunkSize = 128
const announcedChunkSize = 256

// outboundQueueCapacity bounds each per-channel tx admission queue; the 11th
// concurrently-queued send on a given channel fails with QueueFull.
const outboundQueueCapacity = 10

// Callbacks are the caller-supplied hooks (spec.md §6.2). ConnectionState
// is mandatory; the rest are optional and may be left nil.
type Callbacks struct {
	SocketCB        func(conn net.Conn)
	ConnectionState func(state ConnState, reason errors.DisconnectionReason)
	PeerBWChanged   func(bandwidth uint32, limitType uint8)
	DataUnref       func(payload []byte)
}

// Option configures a Client at construction.
type Option func(*Client)

// WithCallbacks installs the caller's callback set.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Client) { c.callbacks = cb }
}

// WithSocketWatchdog overrides the default 10s socket watchdog duration.
func WithSocketWatchdog(d time.Duration) Option {
	return func(c *Client) { c.socketWatchdog = d }
}

// Client is a single RTMP publishing connection. The zero value is not
// usable; construct with New.
type Client struct {
	target *uri.URI

	callbacks      Callbacks
	socketWatchdog time.Duration

	log *slog.Logger

	mu    sync.Mutex
	st    step
	conn  net.Conn
	write *chunk.Writer
	read  *chunk.Reader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	chanMu    sync.Mutex
	channels  map[uint32]*txQueue
	chanOrder []uint32
	wakeCh    chan struct{}

	dispatcher *rpc.Dispatcher
	audioEnc   media.AudioEncoder

	trxMu          sync.Mutex
	trxID          float64
	connectID      float64
	createStreamID float64
	streamID       uint32

	readChunkSize        uint32
	windowAckSize        uint32
	bandwidth            uint32
	bandwidthType        uint8
	lastPeerAck          uint32
	totalBytesReceived   uint64
	rcvBytesSinceLastAck uint32

	watchdogReset chan struct{}

	teardownOnce sync.Once
	readyCh      chan error // receives the Connect outcome exactly once: nil on Ready, non-nil on failure
}

// New parses rawURL (rtmp[s]://host[:port]/app/key) and constructs a
// Client, not yet connected.
func New(rawURL string, opts ...Option) (*Client, error) {
	target, err := uri.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		target:         target,
		socketWatchdog: DefaultSocketWatchdog,
		st:             stepIdle,
		log:            logger.Logger().With("component", "rtmp.client"),
		bandwidthType:  control.BandwidthUnknown,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the public connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.public()
}

// StreamID returns the message stream id allocated by createStream, or 0
// before it has been assigned.
func (c *Client) StreamID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamID
}

func (c *Client) setStep(s step) {
	c.mu.Lock()
	c.st = s
	c.mu.Unlock()
}

func (c *Client) notifyState(reason errors.DisconnectionReason) {
	if c.callbacks.ConnectionState != nil {
		c.callbacks.ConnectionState(c.State(), reason)
	}
}

func (c *Client) nextTrx() float64 {
	c.trxMu.Lock()
	defer c.trxMu.Unlock()
	c.trxID++
	return c.trxID
}

// resetWatchdog re-arms the socket watchdog; called from every read and
// write event while not Idle (spec.md §4.4.1).
func (c *Client) resetWatchdog() {
	select {
	case c.watchdogReset <- struct{}{}:
	default:
	}
}
