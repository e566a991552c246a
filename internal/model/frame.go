package model

import (
	"context"
	"sync"
)

// FrameInfo describes a frame's metadata, known up front on the wire
// even though its payload may arrive in several chunks (spec §3).
type FrameInfo struct {
	Timestamp int64 // microseconds since track start
	Keyframe  bool
	Size      uint64
}

type frameState struct {
	mu     sync.Mutex
	info   FrameInfo
	chunks [][]byte
	closed bool
	err    error
	notify *notifier
}

func newFrameState(info FrameInfo) *frameState {
	return &frameState{info: info, notify: newNotifier()}
}

// FrameProducer is the single writer of one frame's payload.
type FrameProducer struct {
	s *frameState
}

// Info returns the frame's declared metadata.
func (p FrameProducer) Info() FrameInfo { return p.s.info }

// WriteChunk appends a chunk of the frame's payload.
func (p FrameProducer) WriteChunk(b []byte) {
	p.s.mu.Lock()
	if !p.s.closed {
		p.s.chunks = append(p.s.chunks, b)
	}
	p.s.mu.Unlock()
	p.s.notify.signal()
}

// Close marks the frame complete.
func (p FrameProducer) Close() {
	p.s.mu.Lock()
	p.s.closed = true
	p.s.mu.Unlock()
	p.s.notify.signal()
}

// Abort marks the frame as having failed with err.
func (p FrameProducer) Abort(err error) {
	p.s.mu.Lock()
	if !p.s.closed {
		p.s.closed = true
		p.s.err = err
	}
	p.s.mu.Unlock()
	p.s.notify.signal()
}

// FrameConsumer is a read handle over one frame's payload.
type FrameConsumer struct {
	s   *frameState
	pos int
}

// Info returns the frame's declared metadata.
func (c *FrameConsumer) Info() FrameInfo { return c.s.info }

// NextChunk blocks until the next payload chunk is available, the frame
// closes (ok=false, err=nil), or it is aborted (err set). It also
// returns early if ctx is cancelled.
func (c *FrameConsumer) NextChunk(ctx context.Context) (chunk []byte, ok bool, err error) {
	for {
		c.s.mu.Lock()
		if c.pos < len(c.s.chunks) {
			chunk = c.s.chunks[c.pos]
			c.pos++
			c.s.mu.Unlock()
			return chunk, true, nil
		}
		if c.s.closed {
			err = c.s.err
			c.s.mu.Unlock()
			return nil, false, err
		}
		wait := c.s.notify.wait()
		c.s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// ReadAll waits for the frame to fully close (or abort) and returns its
// concatenated payload.
func (c *FrameConsumer) ReadAll(ctx context.Context) ([]byte, error) {
	var out []byte
	for {
		chunk, ok, err := c.NextChunk(ctx)
		if !ok {
			return out, err
		}
		out = append(out, chunk...)
	}
}
