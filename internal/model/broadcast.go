package model

import (
	"context"
	"sync"
)

// Broadcast is a named container of tracks discovered on demand (spec
// §3). It has one producer handle (InsertTrack/RequestedTrack/Close)
// and any number of consumer handles (SubscribeTrack).
type Broadcast struct {
	mu       sync.Mutex
	tracks   map[string]*Track
	waiters  map[string][]chan *Track
	pending  []string
	closed   bool
	notify   *notifier
}

// NewBroadcast returns an empty broadcast.
func NewBroadcast() *Broadcast {
	return &Broadcast{
		tracks:  make(map[string]*Track),
		waiters: make(map[string][]chan *Track),
		notify:  newNotifier(),
	}
}

// Producer returns the broadcast's single producer handle.
func (b *Broadcast) Producer() *BroadcastProducer { return &BroadcastProducer{b: b} }

// Consumer returns a new consumer handle over the broadcast.
func (b *Broadcast) Consumer() *BroadcastConsumer { return &BroadcastConsumer{b: b} }

// BroadcastProducer is the single mutator of a broadcast's track set.
type BroadcastProducer struct {
	b *Broadcast
}

// InsertTrack publishes t under its own name, resolving any pending
// RequestedTrack/SubscribeTrack callers waiting on that name.
func (p *BroadcastProducer) InsertTrack(t *Track) {
	p.b.mu.Lock()
	p.b.tracks[t.Name] = t
	waiters := p.b.waiters[t.Name]
	delete(p.b.waiters, t.Name)
	p.b.mu.Unlock()

	for _, w := range waiters {
		w <- t
	}
}

// RequestedTrack blocks until a subscriber asks for a track that has
// not yet been inserted, returning its name, or returns ok=false once
// the broadcast closes or ctx is done.
func (p *BroadcastProducer) RequestedTrack(ctx context.Context) (name string, ok bool) {
	for {
		p.b.mu.Lock()
		if len(p.b.pending) > 0 {
			name = p.b.pending[0]
			p.b.pending = p.b.pending[1:]
			p.b.mu.Unlock()
			return name, true
		}
		if p.b.closed {
			p.b.mu.Unlock()
			return "", false
		}
		wait := p.b.notify.wait()
		p.b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return "", false
		}
	}
}

// Close tears down the broadcast, waking any pending requesters.
func (p *BroadcastProducer) Close() {
	p.b.mu.Lock()
	p.b.closed = true
	waiters := p.b.waiters
	p.b.waiters = make(map[string][]chan *Track)
	p.b.mu.Unlock()

	for _, ws := range waiters {
		for _, w := range ws {
			close(w)
		}
	}
	p.b.notify.signal()
}

// BroadcastConsumer is a read handle over a broadcast's track set.
type BroadcastConsumer struct {
	b *Broadcast
}

// SubscribeTrack resolves name to a TrackConsumer, waiting for the
// producer to InsertTrack it if it isn't present yet.
func (c *BroadcastConsumer) SubscribeTrack(ctx context.Context, name string) (*TrackConsumer, error) {
	c.b.mu.Lock()
	if t, ok := c.b.tracks[name]; ok {
		c.b.mu.Unlock()
		return t.Consumer(), nil
	}
	if c.b.closed {
		c.b.mu.Unlock()
		return nil, ErrNotFound
	}

	ch := make(chan *Track, 1)
	c.b.waiters[name] = append(c.b.waiters[name], ch)
	c.b.pending = append(c.b.pending, name)
	c.b.mu.Unlock()
	c.b.notify.signal()

	select {
	case t, ok := <-ch:
		if !ok || t == nil {
			return nil, ErrNotFound
		}
		return t.Consumer(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
