// Package cache stores generated content (synthesized audio, generated
// exercises and analyses) under content-derived keys, per owner.
//
// Backends (MemoryStore, SQLStore) report every storage error. Store wraps a
// backend and fails open: lookups that cannot be served are misses, access
// bookkeeping runs detached from the caller, and write failures are logged
// instead of propagated as fatal. Maintenance evicts entries that have not
// been accessed within the retention horizon.
package cache
