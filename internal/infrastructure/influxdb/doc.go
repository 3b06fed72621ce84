// Package influxdb records device state history in InfluxDB 2.x.
//
// Every state change the cache applies, and every command the bridge
// publishes, becomes one point. History is optional: when the influxdb
// section is disabled the bridge runs with a nil *Client, whose methods are
// no-ops.
package influxdb
