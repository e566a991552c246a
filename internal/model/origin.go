package model

import (
	"context"
	"strings"
	"sync"
)

// Announcement is one entry of an Origin's announce feed: a broadcast
// appearing (Consumer != nil) or disappearing (Consumer == nil, an
// unannounce) under Suffix.
type Announcement struct {
	Suffix   string
	Consumer *BroadcastConsumer
}

// Origin is a {prefix_path, broadcast_directory} pair: a concurrent map
// from path suffix to BroadcastConsumer with a subscribable announce
// feed (spec §4.3).
type Origin struct {
	prefix string
	dir    *originDir
}

// originDir is the shared, mutex-guarded directory state. Scoped views
// of the same Origin point at the same originDir so a publish through
// one view is visible to every other view over the same underlying
// directory.
type originDir struct {
	mu         sync.Mutex
	broadcasts map[string]*Broadcast
	listeners  []*originListener
}

type originListener struct {
	mu      sync.Mutex
	pending []Announcement
	notify  *notifier
}

// NewOrigin returns an empty, unscoped origin (prefix "").
func NewOrigin() *Origin {
	return &Origin{dir: &originDir{broadcasts: make(map[string]*Broadcast)}}
}

// Absolute returns prefix + p, per spec §4.3's scoped-origin contract.
func (o *Origin) Absolute(p string) string {
	return o.prefix + p
}

// Scoped returns a view of the same directory whose Absolute(p) is
// prefix + p; publish/consume calls on the scoped view still operate on
// suffixes relative to the new prefix, composed by concatenation.
func (o *Origin) Scoped(prefix string) *Origin {
	return &Origin{prefix: o.prefix + prefix, dir: o.dir}
}

// PublishBroadcast inserts consumer into the directory under suffix,
// rejecting a duplicate announce under the same suffix, and fans the
// announcement out to every listener.
func (o *Origin) PublishBroadcast(suffix string, b *Broadcast) error {
	o.dir.mu.Lock()
	if _, dup := o.dir.broadcasts[suffix]; dup {
		o.dir.mu.Unlock()
		return ErrDuplicate
	}
	o.dir.broadcasts[suffix] = b
	listeners := append([]*originListener(nil), o.dir.listeners...)
	o.dir.mu.Unlock()

	ann := Announcement{Suffix: suffix, Consumer: b.Consumer()}
	for _, l := range listeners {
		l.push(ann)
	}
	return nil
}

// UnpublishBroadcast removes suffix from the directory and emits a
// (suffix, nil) unannounce to every listener.
func (o *Origin) UnpublishBroadcast(suffix string) {
	o.dir.mu.Lock()
	delete(o.dir.broadcasts, suffix)
	listeners := append([]*originListener(nil), o.dir.listeners...)
	o.dir.mu.Unlock()

	ann := Announcement{Suffix: suffix, Consumer: nil}
	for _, l := range listeners {
		l.push(ann)
	}
}

// ConsumeBroadcast looks up suffix directly, without waiting.
func (o *Origin) ConsumeBroadcast(suffix string) (*BroadcastConsumer, bool) {
	o.dir.mu.Lock()
	defer o.dir.mu.Unlock()
	b, ok := o.dir.broadcasts[suffix]
	if !ok {
		return nil, false
	}
	return b.Consumer(), true
}

// ConsumeByPrefix looks up a broadcast whose suffix matches the given
// namespace path joined with "/", used by the session layer to resolve
// an incoming Subscribe's track_namespace against announced broadcasts.
func (o *Origin) ConsumeByPrefix(namespace []string) (*BroadcastConsumer, bool) {
	return o.ConsumeBroadcast(strings.Join(namespace, "/"))
}

// Announced returns a feed of every currently-live broadcast (a
// catch-up burst) followed by live announce/unannounce updates.
func (o *Origin) Announced(ctx context.Context) <-chan Announcement {
	l := &originListener{notify: newNotifier()}

	o.dir.mu.Lock()
	for suffix, b := range o.dir.broadcasts {
		l.pending = append(l.pending, Announcement{Suffix: suffix, Consumer: b.Consumer()})
	}
	o.dir.listeners = append(o.dir.listeners, l)
	o.dir.mu.Unlock()

	out := make(chan Announcement)
	go func() {
		defer close(out)
		for {
			l.mu.Lock()
			if len(l.pending) > 0 {
				ann := l.pending[0]
				l.pending = l.pending[1:]
				l.mu.Unlock()
				select {
				case out <- ann:
				case <-ctx.Done():
					return
				}
				continue
			}
			wait := l.notify.wait()
			l.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (l *originListener) push(a Announcement) {
	l.mu.Lock()
	l.pending = append(l.pending, a)
	l.mu.Unlock()
	l.notify.signal()
}
