// Package usage counts conversions and processed bytes per day.
//
// A Tracker is injected into the handlers rather than kept as package state.
// Counters are keyed by the local day, so they reset at midnight without a
// background job. The in-memory store serves a single instance; the redis
// store shares counters across instances using HINCRBY, which is atomic on
// the server.
package usage
