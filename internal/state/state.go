package state

import "time"

// State is the last known condition of one device.
type State struct {
	Online bool `json:"online"`
	On     bool `json:"on"`
	// UpdatedAt is the timestamp carried by the write that produced this
	// state. Zero for a device that has never been written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Default is reported for devices with no recorded state.
func Default() State {
	return State{Online: true, On: false}
}

// Source names the writer of a state update.
type Source string

const (
	// SourceCommand is an optimistic write made after publishing a command.
	SourceCommand Source = "command"
	// SourceTelemetry is a device-reported state from the bus.
	SourceTelemetry Source = "telemetry"
	// SourceRestore is state loaded from the store at startup.
	SourceRestore Source = "restore"
)

// Change describes an applied write. It is delivered to listeners
// registered with Cache.OnChange.
type Change struct {
	DeviceID string
	State    State
	Previous State
	Source   Source
}
