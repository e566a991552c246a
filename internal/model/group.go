package model

import (
	"context"
	"io"
	"sync"
)

type groupState struct {
	mu       sync.Mutex
	sequence uint64
	frames   []*frameState
	closed   bool
	err      error
	notify   *notifier

	refs    int
	hadRef  bool
	unusedN *notifier
}

func newGroupState(sequence uint64) *groupState {
	return &groupState{
		sequence: sequence,
		notify:   newNotifier(),
		unusedN:  newNotifier(),
	}
}

func (g *groupState) addRef() {
	g.mu.Lock()
	g.refs++
	g.hadRef = true
	g.mu.Unlock()
}

func (g *groupState) release() {
	g.mu.Lock()
	g.refs--
	zero := g.refs <= 0
	g.mu.Unlock()
	if zero {
		g.unusedN.signal()
	}
}

// GroupProducer is the single writer of one group's frames.
type GroupProducer struct {
	s *groupState
}

// Sequence returns the group's monotonically increasing sequence number.
func (p GroupProducer) Sequence() uint64 { return p.s.sequence }

// CreateFrame starts a new frame within the group, appended after any
// previously created frame.
func (p GroupProducer) CreateFrame(info FrameInfo) FrameProducer {
	fs := newFrameState(info)
	p.s.mu.Lock()
	p.s.frames = append(p.s.frames, fs)
	p.s.mu.Unlock()
	p.s.notify.signal()
	return FrameProducer{s: fs}
}

// Close marks the group complete: its decode prefix is whole and no
// more frames will be added.
func (p GroupProducer) Close() {
	p.s.mu.Lock()
	p.s.closed = true
	p.s.mu.Unlock()
	p.s.notify.signal()
}

// Abort marks the group as failed with err (e.g. ErrOld when superseded
// by the two-group window, or a transport error).
func (p GroupProducer) Abort(err error) {
	p.s.mu.Lock()
	if !p.s.closed {
		p.s.closed = true
		p.s.err = err
	}
	p.s.mu.Unlock()
	p.s.notify.signal()
}

// Unused resolves once every consumer of this group has been released.
func (p GroupProducer) Unused(ctx context.Context) {
	for {
		p.s.mu.Lock()
		done := p.s.hadRef && p.s.refs <= 0
		p.s.mu.Unlock()
		if done {
			return
		}
		select {
		case <-p.s.unusedN.wait():
		case <-ctx.Done():
			return
		}
	}
}

// GroupConsumer is a read handle over one group's frames, in order.
type GroupConsumer struct {
	s   *groupState
	pos int
}

func newGroupConsumer(s *groupState) *GroupConsumer {
	s.addRef()
	return &GroupConsumer{s: s}
}

// Sequence returns the group's sequence number.
func (c *GroupConsumer) Sequence() uint64 { return c.s.sequence }

// Release drops this handle; once every consumer handle for a group is
// released, the producer's Unused resolves.
func (c *GroupConsumer) Release() {
	c.s.release()
}

// NextFrame blocks until the next frame is available, the group closes
// (io.EOF), or aborts (the abort error, which may be ErrOld).
func (c *GroupConsumer) NextFrame(ctx context.Context) (*FrameConsumer, error) {
	for {
		c.s.mu.Lock()
		if c.pos < len(c.s.frames) {
			fs := c.s.frames[c.pos]
			c.pos++
			c.s.mu.Unlock()
			return &FrameConsumer{s: fs}, nil
		}
		if c.s.closed {
			err := c.s.err
			c.s.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		wait := c.s.notify.wait()
		c.s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
