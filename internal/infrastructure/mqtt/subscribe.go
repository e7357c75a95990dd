package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler handles one received message. Paho calls it from its own
// goroutine; a returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Subscribe registers handler for filter. The subscription is remembered
// and re-sent after every reconnect.
//
// Parameters:
//   - filter: Topic filter; "+" and "#" must occupy a whole level and "#"
//     must be last
//   - qos: Maximum QoS for delivered messages
//   - handler: Called for every matching message
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or
//     ErrSubscribeFailed
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := validateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.client.Subscribe(filter, qos, c.wrapHandler(handler))); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}

	c.mu.Lock()
	c.subscriptions[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// HasSubscription reports whether filter is subscribed. It compares the
// filter string, not what it matches.
func (c *Client) HasSubscription(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[filter]
	return ok
}

// validateFilter checks the wildcard rules of an MQTT topic filter.
func validateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty filter", ErrInvalidTopic)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q: # must be the last level", ErrInvalidTopic, filter)
		case level != "+" && level != "#" && strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: %q: wildcards must occupy a whole level", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// restoreSubscriptions re-sends every remembered subscription. Paho starts
// a clean session on reconnect, so the broker has forgotten them.
func (c *Client) restoreSubscriptions() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subscriptions))
	for f, s := range c.subscriptions {
		subs[f] = s
	}
	c.mu.Unlock()

	for filter, sub := range subs {
		if err := await(c.client.Subscribe(filter, sub.qos, c.wrapHandler(sub.handler))); err != nil {
			c.log().Warn("failed to restore MQTT subscription", "filter", filter, "error", err)
		}
	}
}

// wrapHandler adapts handler to paho, logging its errors and recovering
// from its panics so one bad command cannot kill the client's router.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
