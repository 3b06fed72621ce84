package mqtt

import "errors"

// Sentinel errors for MQTT operations. Check with errors.Is.
var (
	// ErrNotConnected is returned when operating on a disconnected client.
	// Publishes fail immediately rather than queueing.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when the broker rejects or does not
	// acknowledge a publish in time.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned for a QoS other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic or a wildcard in a publish topic.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
