// Package session implements the session protocol engine: the
// control-message state machine multiplexed on one bidirectional
// stream, plus the per-group unidirectional data streams (spec §4.4,
// §5). One Session runs four concurrent tasks — control reader,
// control writer, publisher announce/serve loop, subscriber
// accept/pull loop — and terminates the session when any of them
// returns.
package session

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/hang/internal/ietf"
	"github.com/zsiec/hang/internal/model"
	"github.com/zsiec/hang/internal/transport"
	"github.com/zsiec/hang/internal/wire"
)

// Role distinguishes which side of the handshake a Session plays;
// it also picks the request-id parity (spec §4.4.2).
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// initialMaxRequestID is announced to the peer as soon as Run starts
// (spec §12): the full 32-bit range, since this implementation has no
// reason to cap the peer's request-id quota below it.
const initialMaxRequestID uint64 = 0xffffffff

// subscribeOut is a track this session is pulling from the peer: we
// sent Subscribe and are feeding the result into a local track.
type subscribeOut struct {
	requestID uint64
	track     *model.Track
	producer  *model.TrackProducer
	done      chan struct{} // closed once SubscribeOk/SubscribeError/PublishDone resolves it
}

// subscribeIn is a track this session is serving to the peer: the
// peer sent Subscribe and we're streaming groups from a local
// TrackConsumer.
type subscribeIn struct {
	requestID uint64
	cancel    context.CancelFunc
}

// Config holds the parameters for creating a Session.
type Config struct {
	ID     string
	Role   Role
	Conn   transport.Session
	Ctrl   transport.Stream
	Origin *model.Origin // broadcasts this session serves to the peer
	Log    *slog.Logger
}

// Session manages one peer connection: handshake, control dispatch,
// and the publisher/subscriber data-plane loops.
type Session struct {
	id   string
	role Role
	log  *slog.Logger

	conn transport.Session
	ctrl transport.Stream

	ctrlReader *bufio.Reader
	ctrlMu     sync.Mutex

	writeCh chan controlMsg

	reqIDs *requestIDs
	origin *model.Origin

	mu          sync.Mutex
	in          map[uint64]*subscribeIn             // request id -> subscription we serve
	out         map[uint64]*subscribeOut            // request id -> subscription we pulled
	outByAlias  map[uint64]*subscribeOut            // track_alias -> subscribeOut (subscriber side, §9)
	announcedIn map[string]*model.BroadcastProducer // suffix -> local mirror of a peer's PublishNamespace
}

type controlMsg struct {
	msgType uint64
	payload []byte
}

// New creates a Session from an already-upgraded transport connection
// and control stream. Callers must call Handshake before Run.
func New(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id:          cfg.ID,
		role:        cfg.Role,
		log:         log.With("session", cfg.ID),
		conn:        cfg.Conn,
		ctrl:        cfg.Ctrl,
		ctrlReader:  bufio.NewReader(cfg.Ctrl),
		writeCh:     make(chan controlMsg, 64),
		reqIDs:      newRequestIDs(cfg.Role == RoleServer),
		origin:      cfg.Origin,
		in:          make(map[uint64]*subscribeIn),
		out:         make(map[uint64]*subscribeOut),
		outByAlias:  make(map[uint64]*subscribeOut),
		announcedIn: make(map[string]*model.BroadcastProducer),
	}
}

// send enqueues a control message for the writer task (spec §4.4.3:
// "the writer is fed by an unbounded queue per session").
func (s *Session) send(msgType uint64, payload []byte) {
	s.writeCh <- controlMsg{msgType: msgType, payload: payload}
}

// Handshake performs the ClientSetup/ServerSetup exchange (spec
// §4.4.1). Must be called before Run, which sends the initial
// MaxRequestID announcement as soon as it starts (spec §12).
func (s *Session) Handshake(ctx context.Context) error {
	if s.role == RoleServer {
		return s.handshakeServer()
	}
	return s.handshakeClient()
}

func (s *Session) handshakeClient() error {
	cs := ietf.ClientSetup{Versions: []uint64{ietf.Version}}
	if err := wire.WriteControlFrame(s.ctrl, ietf.MsgClientSetup, cs.Encode()); err != nil {
		return fmt.Errorf("session: write CLIENT_SETUP: %w", err)
	}

	msgType, payload, err := wire.ReadControlFrame(s.ctrlReader)
	if err != nil {
		return fmt.Errorf("session: read SERVER_SETUP: %w", err)
	}
	if msgType != ietf.MsgServerSetup {
		return fmt.Errorf("session: expected SERVER_SETUP, got 0x%x", msgType)
	}
	ss, err := ietf.DecodeServerSetup(payload)
	if err != nil {
		return fmt.Errorf("session: parse SERVER_SETUP: %w", err)
	}
	if ss.Version != ietf.Version {
		return fmt.Errorf("%w (server selected %#x)", ErrVersionMismatch, ss.Version)
	}
	return nil
}

func (s *Session) handshakeServer() error {
	msgType, payload, err := wire.ReadControlFrame(s.ctrlReader)
	if err != nil {
		return fmt.Errorf("session: read CLIENT_SETUP: %w", err)
	}
	if msgType != ietf.MsgClientSetup {
		return fmt.Errorf("session: expected CLIENT_SETUP, got 0x%x", msgType)
	}
	cs, err := ietf.DecodeClientSetup(payload)
	if err != nil {
		return fmt.Errorf("session: parse CLIENT_SETUP: %w", err)
	}

	ok := false
	for _, v := range cs.Versions {
		if v == ietf.Version {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w (client offered %v)", ErrVersionMismatch, cs.Versions)
	}

	ss := ietf.ServerSetup{Version: ietf.Version}
	if err := wire.WriteControlFrame(s.ctrl, ietf.MsgServerSetup, ss.Encode()); err != nil {
		return fmt.Errorf("session: write SERVER_SETUP: %w", err)
	}
	return nil
}

// Run starts the four concurrent tasks and blocks until the session
// ends, locally or remotely (spec §2, §5).
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.send(ietf.MsgMaxRequestID, ietf.MaxRequestID{Value: initialMaxRequestID}.Encode())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readControlLoop(ctx) })
	g.Go(func() error { return s.writeControlLoop(ctx) })
	g.Go(func() error { return s.publisherLoop(ctx) })
	g.Go(func() error { return s.subscriberLoop(ctx) })

	err := g.Wait()
	s.teardown()
	return err
}

// teardown cancels every subscription this session was serving or
// pulling, run once when Run returns.
func (s *Session) teardown() {
	s.mu.Lock()
	ins := make([]*subscribeIn, 0, len(s.in))
	for _, in := range s.in {
		ins = append(ins, in)
	}
	s.in = make(map[uint64]*subscribeIn)
	outs := make([]*subscribeOut, 0, len(s.out))
	for _, out := range s.out {
		outs = append(outs, out)
	}
	s.out = make(map[uint64]*subscribeOut)
	s.mu.Unlock()

	for _, in := range ins {
		in.cancel()
	}
	for _, out := range outs {
		out.producer.Close()
	}
}

func (s *Session) writeControlLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-s.writeCh:
			s.ctrlMu.Lock()
			err := wire.WriteControlFrame(s.ctrl, msg.msgType, msg.payload)
			s.ctrlMu.Unlock()
			if err != nil {
				return fmt.Errorf("session: write control message: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

