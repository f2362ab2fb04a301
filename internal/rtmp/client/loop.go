package client

import (
	"errors"
	"io"
	"time"

	rerrors "github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
	"github.com/riverline/rtmp-publish/internal/rtmp/control"
	"github.com/riverline/rtmp-publish/internal/rtmp/rpc"
)

// readLoop owns the socket's read side: it reassembles chunks into
// messages, applies protocol control messages (spec.md §4.3), and hands
// command messages to the AMF0 dispatcher. Any decision that would
// disconnect the client is deferred onto teardown so this loop can
// return cleanly first (spec.md §4.4's read-callback-to-idle-task rule).
func (c *Client) readLoop() {
	defer c.wg.Done()

	ctrl := c.controlContext()
	for {
		msg, err := c.read.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			reason := rerrors.DisconnectionNetworkError
			if errors.Is(err, io.EOF) {
				reason = rerrors.DisconnectionServerRequest
			}
			c.teardown(err, reason)
			return
		}
		c.resetWatchdog()

		switch {
		case msg.TypeID >= 1 && msg.TypeID <= 6:
			if err := control.Handle(ctrl, msg); err != nil {
				c.log.Warn("control message handling failed", "error", err)
			}
		case msg.TypeID == 20: // command message, AMF0
			if err := c.dispatcher.Dispatch(msg); err != nil {
				c.log.Warn("command dispatch failed", "error", err)
			}
		default:
			c.log.Debug("ignoring message", "type_id", msg.TypeID)
		}
	}
}

func (c *Client) controlContext() *control.Context {
	return &control.Context{
		ReadChunkSize:        &c.readChunkSize,
		WindowAckSize:        &c.windowAckSize,
		Bandwidth:            &c.bandwidth,
		BandwidthType:        &c.bandwidthType,
		LastPeerAck:          &c.lastPeerAck,
		TotalBytesReceived:   &c.totalBytesReceived,
		RcvBytesSinceLastAck: &c.rcvBytesSinceLastAck,
		Log:                  c.log,
		Send: func(m *chunk.Message) error {
			_, err := c.send(m, nil)
			return err
		},
		BandwidthChanged: func(bandwidth uint32, limitType uint8) {
			if c.callbacks.PeerBWChanged != nil {
				c.callbacks.PeerBWChanged(bandwidth, limitType)
			}
		},
	}
}

// writeLoop owns the socket's write side: it is the only goroutine that
// ever touches c.write, round-robining one pending item off each channel's
// admission queue per pass so a burst on one channel can't starve another,
// while preserving FIFO order within a channel.
func (c *Client) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		if c.drainChannelsOnce() {
			continue
		}
		select {
		case <-c.wakeCh:
		case <-c.ctx.Done():
			return
		}
	}
}

// drainChannelsOnce writes at most one queued item from each active channel
// and reports whether it wrote anything. A flush marker is closed rather
// than written, once everything queued ahead of it on its channel is gone.
func (c *Client) drainChannelsOnce() (wrote bool) {
	for _, csid := range c.channelOrder() {
		item, ok := c.queueFor(csid).dequeue()
		if !ok {
			continue
		}
		wrote = true
		if item.done != nil {
			close(item.done)
			continue
		}
		err := c.write.WriteMessage(item.msg)
		if item.payload != nil && c.callbacks.DataUnref != nil {
			c.callbacks.DataUnref(item.payload)
		}
		if err != nil {
			c.teardown(err, rerrors.DisconnectionNetworkError)
			return wrote
		}
		if item.after != nil {
			item.after()
		}
		c.resetWatchdog()
	}
	return wrote
}

// watchdogLoop disconnects with Timeout if the socket stays idle for
// longer than socketWatchdog while the client is not Idle (spec.md §4.4.1).
func (c *Client) watchdogLoop() {
	timer := time.NewTimer(c.socketWatchdog)
	defer timer.Stop()
	for {
		select {
		case <-c.watchdogReset:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.socketWatchdog)
		case <-timer.C:
			c.teardown(rerrors.NewTimeoutError("client.watchdog", c.socketWatchdog, nil), rerrors.DisconnectionTimeout)
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// teardown closes the socket, stops the loops, and transitions to Idle.
// It runs at most once regardless of which goroutine (read loop, write
// loop, watchdog, or a public Disconnect call) observes the failure first.
// If Connect is still blocked waiting for the dialogue to finish, err is
// delivered to it as the Connect outcome.
func (c *Client) teardown(err error, reason rerrors.DisconnectionReason) {
	c.teardownOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.setStep(stepIdle)
		c.notifyState(reason)
		select {
		case c.readyCh <- err:
		default:
		}
	})
}

// Disconnect tears down the connection synchronously, as required by a
// public-API caller: it queues deleteStream when a stream id has been
// allocated, then closes the socket.
func (c *Client) Disconnect(reason rerrors.DisconnectionReason) {
	if c.State() == Disconnected {
		return
	}
	if id := c.StreamID(); id != 0 {
		if msg, err := rpc.BuildDeleteStream(id, id); err == nil {
			_, _ = c.send(msg, nil)
		}
	}
	c.teardown(nil, reason)
}
