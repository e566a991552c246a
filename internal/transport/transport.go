// Package transport abstracts the QUIC/WebTransport session interface
// the session engine runs over (spec §6): open/accept unidirectional
// and bidirectional streams, per-stream priority, and stream/session
// level cancellation. The concrete implementation is WebTransport via
// github.com/quic-go/webtransport-go; tests exercise the engine against
// an in-memory fake satisfying the same interfaces.
package transport

import (
	"context"
	"io"
)

// SendStream is a one-way byte stream the local side writes.
type SendStream interface {
	io.Writer
	// SetPriority sets the QUIC send priority; higher values are sent
	// first when the connection is congested (spec §4.5).
	SetPriority(priority int)
	// CancelWrite aborts the stream with an application error code,
	// signaling a reset to the peer (spec §4.5's cancellation contract).
	CancelWrite(code uint64)
	Close() error
}

// RecvStream is a one-way byte stream the local side reads.
type RecvStream interface {
	io.Reader
	// CancelRead stops reading and signals STOP_SENDING with code.
	CancelRead(code uint64)
}

// Stream is a bidirectional stream, used only for the control channel.
type Stream interface {
	SendStream
	RecvStream
}

// Session is one peer connection (spec §6's "abstract session").
type Session interface {
	// OpenUni opens a new unidirectional send stream, used once per
	// served group (spec §4.5).
	OpenUni(ctx context.Context) (SendStream, error)
	// AcceptUni accepts the next incoming unidirectional stream, used
	// by the subscriber loop (spec §4.6).
	AcceptUni(ctx context.Context) (RecvStream, error)
	// OpenBi opens the single bidirectional control stream, client side.
	OpenBi(ctx context.Context) (Stream, error)
	// AcceptBi accepts the bidirectional control stream, server side.
	AcceptBi(ctx context.Context) (Stream, error)
	// CloseWithError closes the whole session with a protocol-level
	// error code and human-readable reason (spec §7).
	CloseWithError(code uint64, reason string) error
	// Context is done when the session closes, locally or remotely.
	Context() context.Context
}
