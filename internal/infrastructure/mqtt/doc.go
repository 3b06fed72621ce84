// Package mqtt wraps the Eclipse Paho client for the bridge's broker link.
//
// One Client is shared by the command publisher and the telemetry consumer.
// It reconnects automatically with capped exponential backoff, replays its
// subscriptions after each reconnect, and publishes a retained bridge status
// (with a matching last will) under the configured topic prefix.
//
// Publish never queues: while the link is down it returns ErrNotConnected so
// a command is never applied late against a device that has since changed.
package mqtt
