package client

import (
	"context"

	"github.com/riverline/rtmp-publish/internal/errors"
	"github.com/riverline/rtmp-publish/internal/rtmp/media"
)

// SendMetadata enqueues the onMetaData data frame. It returns the number of
// messages already queued ahead of it on the metadata/publish channel.
func (c *Client) SendMetadata(m media.Metadata) (int, error) {
	if c.State() != Connected {
		return 0, errors.NewProtocolError("client.send_metadata", errNotReady)
	}
	msg, err := media.BuildMetadata(m)
	if err != nil {
		return 0, err
	}
	msg.MessageStreamID = c.StreamID()
	return c.send(msg, nil)
}

// SendVideoAVCC enqueues the AVC sequence header. avcC is borrowed until
// the matching data_unref callback fires. It returns the number of messages
// already queued ahead of it on the video channel.
func (c *Client) SendVideoAVCC(avcC []byte, timestamp uint32) (int, error) {
	if c.State() != Connected {
		return 0, errors.NewProtocolError("client.send_video_avcc", errNotReady)
	}
	msg, err := media.BuildVideoAVCC(avcC, timestamp)
	if err != nil {
		return 0, err
	}
	msg.MessageStreamID = c.StreamID()
	return c.send(msg, avcC)
}

// SendVideoFrame enqueues one AVCC-framed video access unit. avcc is
// borrowed until the matching data_unref callback fires. It returns the
// number of messages already queued ahead of it on the video channel.
func (c *Client) SendVideoFrame(avcc []byte, timestamp uint32) (int, error) {
	if c.State() != Connected {
		return 0, errors.NewProtocolError("client.send_video_frame", errNotReady)
	}
	msg, err := media.BuildVideoFrame(avcc, timestamp)
	if err != nil {
		return 0, err
	}
	msg.MessageStreamID = c.StreamID()
	return c.send(msg, avcc)
}

// SendAudioSpecificConfig enqueues the AAC AudioSpecificConfig; it also
// fixes the audio setting byte reused by every subsequent SendAudioData
// call. It returns the number of messages already queued ahead of it on the
// audio channel.
func (c *Client) SendAudioSpecificConfig(asc []byte, timestamp uint32) (int, error) {
	if c.State() != Connected {
		return 0, errors.NewProtocolError("client.send_audio_specific_config", errNotReady)
	}
	msg, err := c.audioEnc.SendAudioSpecificConfig(asc, timestamp)
	if err != nil {
		return 0, err
	}
	msg.MessageStreamID = c.StreamID()
	return c.send(msg, asc)
}

// SendAudioData enqueues one raw AAC access unit. It returns the number of
// messages already queued ahead of it on the audio channel.
func (c *Client) SendAudioData(payload []byte, timestamp uint32) (int, error) {
	if c.State() != Connected {
		return 0, errors.NewProtocolError("client.send_audio_data", errNotReady)
	}
	msg, err := c.audioEnc.SendAudioData(payload, timestamp)
	if err != nil {
		return 0, err
	}
	msg.MessageStreamID = c.StreamID()
	return c.send(msg, payload)
}

// Flush blocks until every message queued ahead of this call on every
// active channel has been written to the socket. It enqueues a marker on
// each channel and waits for writeLoop to close it in turn, so it does not
// jump ahead of traffic already waiting.
func (c *Client) Flush(ctx context.Context) error {
	markers := make([]chan struct{}, 0, 4)
	for _, csid := range c.channelOrder() {
		done := make(chan struct{})
		q := c.queueFor(csid)
		if _, ok := q.enqueue(outboundItem{done: done}, outboundQueueCapacity+1); !ok {
			return errors.NewQueueFullError("client.flush", outboundQueueCapacity, outboundQueueCapacity)
		}
		markers = append(markers, done)
	}
	c.wake()

	for _, done := range markers {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return errors.NewProtocolError("client.flush", c.ctx.Err())
		}
	}
	return nil
}

var errNotReady = notReadyErr{}

type notReadyErr struct{}

func (notReadyErr) Error() string { return "client is not in the Connected state" }
