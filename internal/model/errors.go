// Package model implements the shared producer/consumer data model:
// Broadcast, Track, Group, Frame and the prefix-scoped Origin directory
// (spec §3/§4.2/§4.3). The core primitive is a single-writer,
// multi-reader queue; Track additionally bounds itself to at most two
// live groups via TwoSlot, replacing the older one atomically and
// signaling its consumers with ErrOld.
package model

import "errors"

var (
	// ErrOld is observed by a group consumer whose group was evicted by
	// a newer one before (or while) it was being read.
	ErrOld = errors.New("model: superseded by a newer group")
	// ErrCancelled is observed when a consumer-side cancellation (all
	// consumers gone, or an explicit unsubscribe) tore down a producer.
	ErrCancelled = errors.New("model: cancelled")
	// ErrNotFound is returned when a lookup (track, broadcast) misses.
	ErrNotFound = errors.New("model: not found")
	// ErrDuplicate is returned when a broadcast is announced twice under
	// the same path.
	ErrDuplicate = errors.New("model: duplicate")
)
