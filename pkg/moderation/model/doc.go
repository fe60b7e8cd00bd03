// Package model provides the trained-classifier side of the moderation core:
// the opaque classifier contract, a hashed n-gram linear classifier family,
// versioned on-disk model artifacts, and the per-profile model cache.
//
// The cache holds at most one live classifier per profile, bounded by an LRU
// capacity at profile granularity. Entries are replaced atomically; readers
// always observe either the old or the new entry in full. Staleness against
// the persisted artifact version triggers a background reload, never a
// blocking load on the evaluation path.
package model
