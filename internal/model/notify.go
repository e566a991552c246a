package model

import "sync"

// notifier is a broadcast wakeup primitive: any number of goroutines can
// select on the channel returned by wait() and will all be woken the
// next time signal() is called, mirroring a sync.Cond but usable inside
// a select (needed so every suspension point can race against a
// separate cancellation signal, per spec §5/§9).
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

func (n *notifier) signal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}
