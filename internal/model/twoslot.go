package model

// TwoSlot implements the "at most two concurrent items, newest sequence
// always served" replacement algorithm described in spec §4.2 (the
// Track live-window bound) and reused verbatim by the publisher's
// per-subscription group scheduler (§4.5) — both apply the identical
// old/new slot algorithm to different kinds of items (live groups vs.
// group-serving tasks), so it's written once here and instantiated by
// both Track and the session package's scheduler.
//
// When the old slot is empty, the new slot's sequence is used as the
// effective drop bound instead of skipping the check — this is what
// makes the documented "fed [3, 1], drop 1" scenario hold: without it,
// a group older than an empty old slot would be accepted into old
// instead of being dropped as stale.
type TwoSlot[T any] struct {
	hasOld, hasNew bool
	oldSeq, newSeq uint64
	old, new       T
	cancel         func(T)
}

// NewTwoSlot returns an empty scheduler. cancel is invoked (synchronously,
// from within Offer) whenever an item is evicted from the old slot.
func NewTwoSlot[T any](cancel func(T)) *TwoSlot[T] {
	return &TwoSlot[T]{cancel: cancel}
}

// Offer applies the scheduling algorithm to an item at the given
// sequence. It returns false if the item was dropped entirely for being
// older than the effective old bound.
func (s *TwoSlot[T]) Offer(sequence uint64, item T) bool {
	switch {
	case s.hasOld:
		if sequence < s.oldSeq {
			return false
		}
	case s.hasNew:
		if sequence < s.newSeq {
			return false
		}
	}

	var latest uint64
	if s.hasNew {
		latest = s.newSeq
	}

	if s.hasOld && s.cancel != nil {
		s.cancel(s.old)
	}

	if sequence >= latest {
		s.old, s.oldSeq, s.hasOld = s.new, s.newSeq, s.hasNew
		s.new, s.newSeq, s.hasNew = item, sequence, true
	} else {
		s.old, s.oldSeq, s.hasOld = item, sequence, true
	}
	return true
}

// Old returns the current old-slot item, if any.
func (s *TwoSlot[T]) Old() (T, bool) {
	return s.old, s.hasOld
}

// New returns the current new-slot item, if any.
func (s *TwoSlot[T]) New() (T, bool) {
	return s.new, s.hasNew
}
