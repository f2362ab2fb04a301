package client

import (
	"context"
	"fmt"
	"net"

	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
	"github.com/riverline/rtmp-publish/internal/rtmp/control"
	"github.com/riverline/rtmp-publish/internal/rtmp/handshake"
	"github.com/riverline/rtmp-publish/internal/rtmp/rpc"
)

// Connect dials the target, performs the handshake, and drives the
// connect/releaseStream/FCPublish/createStream/publish dialogue
// (spec.md §4.4) through to the Ready state. It blocks until the stream
// is ready to publish, the server reports an error, or ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() != Disconnected {
		return errors.NewProtocolError("client.connect", fmt.Errorf("connect called while not disconnected"))
	}

	c.setStep(stepWaitDNS)
	c.notifyState(errors.DisconnectionUnknown)

	dialCtx, cancelDial := context.WithTimeout(ctx, DialTimeout)
	defer cancelDial()

	c.setStep(stepWaitTCP)
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", c.target.Host, c.target.Port))
	if err != nil {
		c.setStep(stepIdle)
		reason := errors.DisconnectionNetworkError
		if dialCtx.Err() == context.DeadlineExceeded {
			reason = errors.DisconnectionTimeout
		}
		c.notifyState(reason)
		return errors.NewNetworkError("client.connect: dial", err)
	}
	c.conn = conn
	if c.callbacks.SocketCB != nil {
		c.callbacks.SocketCB(conn)
	}

	c.setStep(stepWaitS0)
	c.watchdogReset = make(chan struct{}, 1)
	c.readyCh = make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)
	c.ctx = runCtx
	c.cancel = cancel

	// The watchdog has to be live before the handshake starts, not after,
	// so a dead peer during WaitS0..WaitS2 is bounded by socketWatchdog
	// instead of an untunable handshake-local timeout.
	c.wg.Add(1)
	go c.watchdogLoop()

	if err := handshake.ClientHandshake(conn, c.socketWatchdog, c.resetWatchdog); err != nil {
		c.teardown(err, classifyTransportErr(err))
		c.wg.Wait()
		return err
	}
	c.setStep(stepWaitS2)

	c.write = chunk.NewWriter(conn, initialChunkSize)
	c.read = chunk.NewReader(conn, initialChunkSize)
	c.readChunkSize = initialChunkSize
	c.windowAckSize = 0
	c.channels = make(map[uint32]*txQueue)
	c.wakeCh = make(chan struct{}, 1)
	c.dispatcher = rpc.NewDispatcher()
	c.wireDispatcher()

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()

	if err := c.sendConnectDialogue(); err != nil {
		c.teardown(err, errors.DisconnectionInternalError)
		return err
	}
	c.setStep(stepWaitFMS)

	select {
	case err := <-c.readyCh:
		return err
	case <-ctx.Done():
		c.Disconnect(errors.DisconnectionClientRequest)
		return ctx.Err()
	}
}

// classifyTransportErr maps a handshake/transport failure to a disconnection
// reason for the connection_state callback.
func classifyTransportErr(err error) errors.DisconnectionReason {
	var to *errors.TimeoutError
	if asTimeout(err, &to) {
		return errors.DisconnectionTimeout
	}
	return errors.DisconnectionNetworkError
}

func asTimeout(err error, target **errors.TimeoutError) bool {
	t, ok := err.(*errors.TimeoutError)
	if ok {
		*target = t
	}
	return ok
}

// sendConnectDialogue sends the connect command and the chunk-size
// announcement that immediately follows it on the wire. The writer's own
// chunk size only changes once writeLoop has actually put the announcement
// on the wire, which is why it rides along as the message's after-write
// callback rather than being applied here.
func (c *Client) sendConnectDialogue() error {
	id := c.nextTrx()
	c.connectID = id
	c.dispatcher.ConnectID = id

	msg, err := rpc.BuildConnect(id, c.target.App, c.target.TcURL())
	if err != nil {
		return err
	}
	if _, err := c.send(msg, nil); err != nil {
		return errors.NewNetworkError("client.connect: write connect", err)
	}

	_, err = c.sendWithCallback(control.EncodeSetChunkSize(announcedChunkSize), nil, func() {
		c.write.SetChunkSize(announcedChunkSize)
	})
	return err
}

func (c *Client) wireDispatcher() {
	d := c.dispatcher
	d.OnConnectResult = func(*rpc.ConnectResult) error {
		return c.onConnectResult()
	}
	d.OnCreateStreamResult = func(res *rpc.CreateStreamResult) error {
		return c.onCreateStreamResult(res)
	}
	d.OnStatus = func(status *rpc.OnStatus) error {
		return c.onStatus(status)
	}
	d.OnError = func(cmdErr *rpc.CommandError) error {
		reason := errors.ClassifyServerError(cmdErr.Code, cmdErr.Description)
		c.finishConnect(errors.NewProtocolError("client.connect", fmt.Errorf("%s: %s", cmdErr.Code, cmdErr.Description)), reason)
		return nil
	}
	d.OnBWDone = func() error {
		msg, err := rpc.BuildCheckBW(c.nextTrx())
		if err != nil {
			return err
		}
		_, err = c.send(msg, nil)
		return err
	}
}

// onConnectResult fires once the server answers the connect command:
// release/publish the stream key and create the media stream.
func (c *Client) onConnectResult() error {
	releaseID := c.nextTrx()
	if msg, err := rpc.BuildReleaseStream(releaseID, c.target.Key); err == nil {
		_, _ = c.send(msg, nil)
	}
	fcPublishID := c.nextTrx()
	if msg, err := rpc.BuildFCPublish(fcPublishID, c.target.Key); err == nil {
		_, _ = c.send(msg, nil)
	}

	createID := c.nextTrx()
	c.createStreamID = createID
	c.dispatcher.CreateStreamID = createID
	msg, err := rpc.BuildCreateStream(createID)
	if err != nil {
		return err
	}
	_, err = c.send(msg, nil)
	return err
}

// onCreateStreamResult fires once the server allocates the message stream
// id: stash it and send the publish command.
func (c *Client) onCreateStreamResult(res *rpc.CreateStreamResult) error {
	c.mu.Lock()
	c.streamID = res.StreamID
	c.mu.Unlock()

	msg, err := rpc.BuildPublish(res.StreamID, c.target.Key)
	if err != nil {
		return err
	}
	_, err = c.send(msg, nil)
	return err
}

func (c *Client) onStatus(status *rpc.OnStatus) error {
	if status.Level == "error" {
		reason := errors.ClassifyServerError(status.Code, status.Description)
		c.finishConnect(errors.NewProtocolError("client.connect", fmt.Errorf("%s: %s", status.Code, status.Description)), reason)
		return nil
	}
	if status.Code == "NetStream.Publish.Start" {
		c.setStep(stepReady)
		c.finishConnect(nil, errors.DisconnectionUnknown)
	}
	return nil
}

// finishConnect delivers the outcome of Connect: a failure tears the
// connection down (and reports it via connection_state) before Connect
// returns; success just reports the Connected transition. A late
// onStatus/on_error arriving after the outcome already fired is handled
// by teardown's own idempotence.
func (c *Client) finishConnect(err error, reason errors.DisconnectionReason) {
	if err != nil {
		c.teardown(err, reason)
		return
	}
	c.notifyState(errors.DisconnectionUnknown)
	select {
	case c.readyCh <- nil:
	default:
	}
}
