// Package bus connects the bridge to the device message bus.
//
// Commands go out through a Commander: MQTTCommander publishes "on" or "off"
// to {prefix}/{device_id}/set, and NoopCommander fails every command when
// the bus is disabled. Device reports come in through a Consumer subscribed
// to {prefix}/+/state, which decodes each payload and writes it to the
// state cache as a telemetry update.
//
// Accepted telemetry payloads:
//
//	{"on": true}       structured
//	{"power": false}   structured
//	ON / off           text, case-insensitive, surrounding space ignored
//
// Anything else is counted as unparseable and dropped.
package bus
