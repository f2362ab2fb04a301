package client

// Per-channel outbound admission queues: each chunk stream id gets its own
// bounded ring of capacity outboundQueueCapacity, so a burst on one channel
// (e.g. video) cannot starve or reject traffic on another (e.g.
// audio/command) sharing the connection. The send methods report how many
// messages were already waiting ahead of the one just enqueued, for the
// caller to use as a backpressure signal.

import (
	"fmt"
	"sync"

	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/rtmp/chunk"
)

// outboundItem is either a queued write (msg != nil) or a flush marker
// (done != nil, msg == nil) that writeLoop closes once every item enqueued
// ahead of it on this channel has been written. after, if set, runs on the
// write goroutine immediately after the write succeeds — the only safe way
// to mutate writer state (e.g. announce a new chunk size) that must take
// effect exactly at this point in the wire stream.
type outboundItem struct {
	msg     *chunk.Message
	payload []byte
	after   func()
	done    chan struct{}
}

// txQueue is a small FIFO ring buffer bounded to a fixed capacity.
type txQueue struct {
	mu    sync.Mutex
	items []outboundItem
}

// enqueue appends item unless the queue is at capacity. It returns the
// number of items already waiting ahead of this one (0 = queue was empty).
func (q *txQueue) enqueue(item outboundItem, capacity int) (depthAhead int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= capacity {
		return len(q.items), false
	}
	depthAhead = len(q.items)
	q.items = append(q.items, item)
	return depthAhead, true
}

// dequeue pops the oldest item, if any.
func (q *txQueue) dequeue() (outboundItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return outboundItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// queueFor returns the per-CSID queue, creating it (and recording insertion
// order, for writeLoop's round-robin fairness) on first use.
func (c *Client) queueFor(csid uint32) *txQueue {
	c.chanMu.Lock()
	defer c.chanMu.Unlock()
	q, ok := c.channels[csid]
	if !ok {
		q = &txQueue{}
		c.channels[csid] = q
		c.chanOrder = append(c.chanOrder, csid)
	}
	return q
}

func (c *Client) channelOrder() []uint32 {
	c.chanMu.Lock()
	defer c.chanMu.Unlock()
	return append([]uint32(nil), c.chanOrder...)
}

// wake nudges writeLoop; it's a no-op if a wake is already pending.
func (c *Client) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// send enqueues msg (with its optional caller-owned payload) onto its
// channel's admission queue and returns the depth-ahead count for
// backpressure, or *errors.QueueFullError if the channel's ring is
// saturated.
func (c *Client) send(msg *chunk.Message, payload []byte) (int, error) {
	return c.sendWithCallback(msg, payload, nil)
}

// sendWithCallback is send, plus an after-write hook run on the write
// goroutine once the write succeeds.
func (c *Client) sendWithCallback(msg *chunk.Message, payload []byte, after func()) (int, error) {
	q := c.queueFor(msg.CSID)
	depth, ok := q.enqueue(outboundItem{msg: msg, payload: payload, after: after}, outboundQueueCapacity)
	if !ok {
		return depth, errors.NewQueueFullError(fmt.Sprintf("client.send:csid=%d,mtid=%d", msg.CSID, msg.TypeID), depth, outboundQueueCapacity)
	}
	c.wake()
	return depth, nil
}
