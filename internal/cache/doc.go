// Package cache keeps converted outputs in a pebble store so that repeating
// a conversion with the same input and parameters skips the engine.
//
// Each entry is two keys: "m/<digest>" holds JSON metadata with the expiry
// and "d/<digest>" holds the raw output. Both are written in one batch.
// Expired entries are dropped on read and by a periodic cleanup.
package cache
