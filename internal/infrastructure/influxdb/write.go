package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementDeviceState = "device_state"
	measurementCommand     = "device_command"
)

// RecordStateChange queues an applied state change. The point carries the
// write's own timestamp, so history reflects device time rather than arrival.
func (c *Client) RecordStateChange(deviceID string, on, online bool, source string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(StatePoint(deviceID, on, online, source, at))
}

// RecordCommand queues the outcome of a command publish.
func (c *Client) RecordCommand(deviceID string, on bool, outcome string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(CommandPoint(deviceID, on, outcome, at))
}

// StatePoint builds a device_state point.
func StatePoint(deviceID string, on, online bool, source string, at time.Time) *write.Point {
	return write.NewPoint(
		measurementDeviceState,
		map[string]string{
			"device_id": deviceID,
			"source":    source,
		},
		map[string]interface{}{
			"on":     on,
			"online": online,
		},
		at,
	)
}

// CommandPoint builds a device_command point.
func CommandPoint(deviceID string, on bool, outcome string, at time.Time) *write.Point {
	return write.NewPoint(
		measurementCommand,
		map[string]string{
			"device_id": deviceID,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"on": on,
		},
		at,
	)
}
