package model

import (
	"context"
	"io"
	"sync"
)

// Track is identified by {name, priority} within a broadcast and
// produces an ordered-by-sequence stream of Groups (spec §3). Each
// subscribing consumer maintains its own two-group live window (at most
// the current and previous group, §4.2): offering a third sequence
// replaces the oldest and aborts it with ErrOld. Because this is the
// same algorithm the publisher's per-subscription scheduler would
// otherwise reimplement (spec §4.5 describes it again, verbatim, for
// stream-task scheduling), the publisher does not keep a second copy —
// it drives group-serving goroutines directly off TrackConsumer.NextGroup
// and relies on the group's own abort signal for cancellation. See
// DESIGN.md.
type Track struct {
	Name     string
	Priority byte

	mu          sync.Mutex
	consumers   map[*TrackConsumer]struct{}
	closed      bool
	hadConsumer bool
	unusedN     *notifier
}

// NewTrack returns an empty track with the given name and priority.
func NewTrack(name string, priority byte) *Track {
	return &Track{
		Name:      name,
		Priority:  priority,
		consumers: make(map[*TrackConsumer]struct{}),
		unusedN:   newNotifier(),
	}
}

// Unused resolves once the track has had at least one consumer and
// they have all released (spec §4.6: the subscriber side watches this
// to decide when to send Unsubscribe for a pulled track).
func (t *Track) Unused(ctx context.Context) {
	for {
		t.mu.Lock()
		done := t.hadConsumer && len(t.consumers) == 0
		t.mu.Unlock()
		if done {
			return
		}
		select {
		case <-t.unusedN.wait():
		case <-ctx.Done():
			return
		}
	}
}

// Producer returns the track's single producer handle.
func (t *Track) Producer() *TrackProducer { return &TrackProducer{t: t} }

// Consumer returns a new, independent subscribing consumer handle.
func (t *Track) Consumer() *TrackConsumer {
	c := &TrackConsumer{
		t:        t,
		sched:    NewTwoSlot[*groupState](func(g *groupState) { g.Producer().Abort(ErrOld) }),
		notifyCh: make(chan struct{}),
	}
	t.mu.Lock()
	t.consumers[c] = struct{}{}
	t.hadConsumer = true
	t.mu.Unlock()
	return c
}

func (g *groupState) Producer() GroupProducer { return GroupProducer{s: g} }

func (t *Track) removeConsumer(c *TrackConsumer) {
	t.mu.Lock()
	delete(t.consumers, c)
	empty := t.hadConsumer && len(t.consumers) == 0
	t.mu.Unlock()
	if empty {
		t.unusedN.signal()
	}
}

// TrackProducer is the single writer of a track's groups.
type TrackProducer struct {
	t *Track
}

// CreateGroup starts a new group at sequence, fanning it out to every
// currently-subscribed consumer. Each consumer applies its own
// two-group window independently, so a slow subscriber's drops never
// affect a fast one.
func (p *TrackProducer) CreateGroup(sequence uint64) GroupProducer {
	gs := newGroupState(sequence)

	p.t.mu.Lock()
	for c := range p.t.consumers {
		c.offer(gs)
	}
	p.t.mu.Unlock()

	return GroupProducer{s: gs}
}

// Close tears down the track: no further groups will be created and
// every consumer observes end-of-stream after draining what's pending.
func (p *TrackProducer) Close() {
	p.t.mu.Lock()
	p.t.closed = true
	cs := make([]*TrackConsumer, 0, len(p.t.consumers))
	for c := range p.t.consumers {
		cs = append(cs, c)
	}
	p.t.mu.Unlock()

	for _, c := range cs {
		c.closeConsumer()
	}
}

// TrackConsumer is a read handle over one subscriber's view of a track.
type TrackConsumer struct {
	t *Track

	mu       sync.Mutex
	sched    *TwoSlot[*groupState]
	pending  []*groupState
	closed   bool
	notifyCh chan struct{}
}

func (c *TrackConsumer) offer(gs *groupState) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	accepted := c.sched.Offer(gs.sequence, gs)
	if accepted {
		c.pending = append(c.pending, gs)
	}
	ch := c.notifyCh
	c.notifyCh = make(chan struct{})
	c.mu.Unlock()
	close(ch)
}

func (c *TrackConsumer) closeConsumer() {
	c.mu.Lock()
	c.closed = true
	ch := c.notifyCh
	c.notifyCh = make(chan struct{})
	c.mu.Unlock()
	close(ch)
}

// NextGroup blocks until the next group is available (io.EOF once the
// producer has closed and nothing remains pending).
func (c *TrackConsumer) NextGroup(ctx context.Context) (*GroupConsumer, error) {
	for {
		c.mu.Lock()
		if len(c.pending) > 0 {
			gs := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()
			return newGroupConsumer(gs), nil
		}
		if c.closed {
			c.mu.Unlock()
			return nil, io.EOF
		}
		ch := c.notifyCh
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Name returns the name of the underlying track.
func (c *TrackConsumer) Name() string { return c.t.Name }

// Priority returns the static priority of the underlying track, the
// input to DerivePriority.
func (c *TrackConsumer) Priority() byte { return c.t.Priority }

// Release unsubscribes this consumer from the track.
func (c *TrackConsumer) Release() {
	c.t.removeConsumer(c)
	c.closeConsumer()
}
