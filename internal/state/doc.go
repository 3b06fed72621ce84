// Package state holds the last known on/off and online state of every
// device the bridge has seen.
//
// Two writers feed the cache concurrently: the execute path writes
// optimistically after publishing a command, and the telemetry consumer
// writes what devices report. Both go through Cache.Put, which orders writes
// by the timestamp they carry rather than by arrival, so a late optimistic
// write never hides a newer device report.
package state
