// Package fulfilment routes the voice-assistant platform's intent envelopes
// (SYNC, QUERY, EXECUTE, DISCONNECT) to the device registry, the state cache
// and the command bus.
//
// Every outcome is expressed inside the response envelope. Failures are
// scoped as narrowly as possible: a device not owned by the caller or a
// failed publish affects only that device's result, an unsupported command
// only its device group. Only a registry or cache failure for the whole
// request, or an expired deadline, turns the envelope into internalError.
//
// EXECUTE reports SUCCESS once the broker accepts the command. The state
// returned is read back from the cache after the optimistic write, so a
// newer device report wins over the requested value.
package fulfilment
