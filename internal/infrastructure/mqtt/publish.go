package mqtt

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// maxPayloadSize caps outbound messages at 1MB.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker's acknowledgement.
//
// It fails immediately with ErrNotConnected while disconnected; nothing is
// queued for later delivery. The wait is bounded by the configured publish
// timeout and by ctx, whichever ends first.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)

	timer := time.NewTimer(c.publishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w: no acknowledgement after %v", ErrPublishFailed, c.publishTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}
