package mqtt

import "strings"

const (
	commandSuffix = "set"
	stateSuffix   = "state"
	statusTopic   = "_bridge/status"
)

// Topics builds the per-device topic scheme under a configurable prefix:
//
//	{prefix}/{device_id}/set     commands, payload "on" or "off"
//	{prefix}/{device_id}/state   telemetry reported by the device
//
//	topics := mqtt.Topics{Prefix: "lumina/devices"}
//	topics.Command("SW-1") // "lumina/devices/SW-1/set"
type Topics struct {
	Prefix string
}

// Command returns the topic a device listens on for commands.
func (t Topics) Command(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/" + commandSuffix
}

// State returns the topic a device reports its state on.
func (t Topics) State(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/" + stateSuffix
}

// AllStates returns the wildcard matching every device's state topic.
func (t Topics) AllStates() string {
	return t.Prefix + "/+/" + stateSuffix
}

// BridgeStatus returns the retained topic carrying the bridge's own
// online/offline status (and its last will).
func (t Topics) BridgeStatus() string {
	return t.Prefix + "/" + statusTopic
}

// DeviceFromState extracts the device ID from a state topic. It returns false
// for topics outside the scheme.
func (t Topics) DeviceFromState(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/"+stateSuffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
