package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxPayloadSize caps a single message. Events are small JSON documents;
// anything near this size is a bug upstream.
const maxPayloadSize = 256 << 10

// Publish sends payload to topic and waits for the broker to acknowledge
// it (for QoS 1 and 2).
//
// Parameters:
//   - topic: A concrete topic; wildcards are rejected
//   - payload: Message body, at most 256 KiB
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPayloadTooLarge,
//     ErrNotConnected or ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.client.Publish(topic, qos, retained, payload)); err != nil {
		c.failed.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	c.published.Add(1)
	return nil
}

// PublishEvent publishes v as JSON on dpmcore/events/{kind} with the
// configured QoS. Events are never retained.
func (c *Client) PublishEvent(kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s event: %w", ErrPublishFailed, kind, err)
	}
	return c.Publish(Topics{}.Event(kind), payload, byte(c.cfg.QoS), false)
}
