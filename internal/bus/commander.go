package bus

import (
	"context"
	"fmt"

	"github.com/nerrad567/lumina-bridge/internal/infrastructure/mqtt"
)

// Command payloads understood by devices.
const (
	PayloadOn  = "on"
	PayloadOff = "off"
)

// Commander sends on/off commands to devices.
//
// PublishCommand is idempotent from the caller's view: the payload is the
// desired state, not a toggle, so sending it twice has the same effect as
// sending it once. Success means the broker accepted the message, not that
// the device switched.
type Commander interface {
	PublishCommand(ctx context.Context, deviceID string, on bool) error
	Connected() bool
}

// Publisher is the subset of the MQTT client used to send commands.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MQTTCommander publishes commands to {prefix}/{device_id}/set.
type MQTTCommander struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
}

// NewMQTTCommander creates a commander on pub.
func NewMQTTCommander(pub Publisher, topics mqtt.Topics, qos byte) *MQTTCommander {
	return &MQTTCommander{pub: pub, topics: topics, qos: qos}
}

// PublishCommand implements Commander. Commands are not retained: a device
// that reconnects later must not act on a stale instruction.
func (c *MQTTCommander) PublishCommand(ctx context.Context, deviceID string, on bool) error {
	payload := PayloadOff
	if on {
		payload = PayloadOn
	}

	if err := c.pub.Publish(ctx, c.topics.Command(deviceID), []byte(payload), c.qos, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, deviceID, err)
	}
	return nil
}

// Connected implements Commander.
func (c *MQTTCommander) Connected() bool {
	return c.pub.IsConnected()
}

// NoopCommander is selected when the bus is disabled. Every command fails
// with ErrTransport so execute results report hardError instead of a
// success that never reached a device.
type NoopCommander struct{}

// PublishCommand implements Commander.
func (NoopCommander) PublishCommand(_ context.Context, deviceID string, _ bool) error {
	return fmt.Errorf("%w: %s: bus disabled", ErrTransport, deviceID)
}

// Connected implements Commander.
func (NoopCommander) Connected() bool { return false }
