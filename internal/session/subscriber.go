package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/hang/internal/ietf"
	"github.com/zsiec/hang/internal/model"
	"github.com/zsiec/hang/internal/transport"
)

// subscriberLoop accepts incoming unidirectional data streams and
// reassembles each into a group on the locally-pulled track it
// belongs to (spec §4.6).
func (s *Session) subscriberLoop(ctx context.Context) error {
	for {
		stream, err := s.conn.AcceptUni(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("session: accept uni stream: %w", err)
		}
		go s.handleGroupStream(stream)
	}
}

func (s *Session) handleGroupStream(stream transport.RecvStream) {
	r := bufio.NewReader(stream)

	streamType, err := quicvarint.Read(r)
	if err != nil {
		stream.CancelRead(1)
		return
	}

	if streamType == ietf.StreamTypeFetchHeader {
		stream.CancelRead(2)
		return
	}

	header, err := ietf.DecodeGroupHeaderFrom(streamType, r)
	if err != nil {
		stream.CancelRead(3)
		return
	}

	s.mu.Lock()
	out, ok := s.outByAlias[header.TrackAlias]
	s.mu.Unlock()
	if !ok {
		stream.CancelRead(4)
		return
	}

	group := out.producer.CreateGroup(header.GroupID)
	s.readGroupObjects(r, header, group, stream)
}

// readGroupObjects reassembles frames from the object entries on a
// group data stream until the stream ends or is reset (spec §4.4.4).
// Each object's payload is read in full before the frame is closed:
// this implementation does not stream partial chunks to the consumer
// side, unlike the model's general multi-chunk FrameProducer API.
func (s *Session) readGroupObjects(r *bufio.Reader, header ietf.GroupHeader, group model.GroupProducer, stream transport.RecvStream) {
	defer group.Close()

	for {
		size, err := ietf.ReadObjectHeader(r, header.Flags.HasExtensions)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			group.Abort(fmt.Errorf("session: read object: %w", err))
			stream.CancelRead(5)
			return
		}

		if size == 0 {
			status, err := ietf.ReadObjectStatus(r)
			if err != nil {
				group.Abort(fmt.Errorf("session: read object status: %w", err))
				stream.CancelRead(5)
				return
			}
			if status == ietf.ObjectStatusEndGroup {
				return
			}
			frame := group.CreateFrame(model.FrameInfo{Size: 0})
			frame.Close()
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			group.Abort(fmt.Errorf("session: read frame payload: %w", err))
			stream.CancelRead(5)
			return
		}
		frame := group.CreateFrame(model.FrameInfo{Size: size})
		frame.WriteChunk(payload)
		frame.Close()
	}
}

func (s *Session) handleSubscribeOk(m ietf.SubscribeOk) {
	s.mu.Lock()
	out, ok := s.out[m.RequestID]
	if ok {
		s.outByAlias[m.TrackAlias] = out
	}
	s.mu.Unlock()
	if ok {
		close(out.done)
	}
}

func (s *Session) handleSubscribeError(m ietf.SubscribeError) {
	s.mu.Lock()
	out, ok := s.out[m.RequestID]
	delete(s.out, m.RequestID)
	s.mu.Unlock()
	if ok {
		out.producer.Close()
		close(out.done)
	}
}

func (s *Session) handlePublishDone(m ietf.PublishDone) {
	s.mu.Lock()
	out, ok := s.out[m.RequestID]
	delete(s.out, m.RequestID)
	if ok {
		for alias, o := range s.outByAlias {
			if o == out {
				delete(s.outByAlias, alias)
			}
		}
	}
	s.mu.Unlock()
	if ok {
		out.producer.Close()
	}
}

// handlePublishNamespace mirrors a peer's announce as a local
// broadcast, published to our own Origin so the rest of this process
// (or anything it relays to) can discover it, then drives its pending
// track requests by subscribing to the peer (spec §3, §4.4.3, §4.5's
// "subscriber side" handler, §12). A second announce under the same
// namespace before the first is withdrawn is a hard session error.
func (s *Session) handlePublishNamespace(ctx context.Context, m ietf.PublishNamespace) error {
	if s.origin == nil {
		s.send(ietf.MsgPublishNamespaceError, ietf.PublishNamespaceError{
			RequestID:    m.RequestID,
			ErrorCode:    404,
			ReasonPhrase: "publish only",
		}.Encode())
		return nil
	}

	suffix := strings.Join(m.TrackNamespace, "/")

	s.mu.Lock()
	if _, dup := s.announcedIn[suffix]; dup {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateAnnounce, suffix)
	}
	broadcast := model.NewBroadcast()
	producer := broadcast.Producer()
	s.announcedIn[suffix] = producer
	s.mu.Unlock()

	if err := s.origin.PublishBroadcast(suffix, broadcast); err != nil {
		s.mu.Lock()
		delete(s.announcedIn, suffix)
		s.mu.Unlock()
		return fmt.Errorf("session: publish %q: %w", suffix, err)
	}

	s.send(ietf.MsgPublishNamespaceOk, ietf.PublishNamespaceOk{RequestID: m.RequestID}.Encode())
	go s.PullBroadcast(ctx, m.TrackNamespace, producer)
	return nil
}

// handlePublishNamespaceDone withdraws a previously-mirrored
// broadcast: it leaves our Origin directory and its local producer is
// closed, so every subscriber of it (and PullBroadcast's own loop)
// sees the end (spec §3's "a subscriber seeing None must close its
// local broadcast producer").
func (s *Session) handlePublishNamespaceDone(m ietf.PublishNamespaceDone) {
	suffix := strings.Join(m.TrackNamespace, "/")

	s.mu.Lock()
	producer, ok := s.announcedIn[suffix]
	delete(s.announcedIn, suffix)
	s.mu.Unlock()
	if !ok {
		return
	}

	if s.origin != nil {
		s.origin.UnpublishBroadcast(suffix)
	}
	producer.Close()
}

// handlePublishNamespaceCancel aborts a mirrored broadcast the same
// way handlePublishNamespaceDone does: the peer is telling us the
// announce it hadn't yet completed (or is withdrawing outright) will
// never resolve further, which this session treats the same as a
// clean withdrawal.
func (s *Session) handlePublishNamespaceCancel(m ietf.PublishNamespaceCancel) {
	s.handlePublishNamespaceDone(ietf.PublishNamespaceDone{TrackNamespace: m.TrackNamespace})
}

// PullBroadcast drives a locally-produced broadcast's pending track
// requests by subscribing to the matching track on this session's
// peer (spec §4.6's "to initiate"). It returns when producer closes
// or ctx is cancelled.
func (s *Session) PullBroadcast(ctx context.Context, namespace []string, producer *model.BroadcastProducer) error {
	for {
		name, ok := producer.RequestedTrack(ctx)
		if !ok {
			return ctx.Err()
		}
		go s.pullTrack(ctx, namespace, name, producer)
	}
}

func (s *Session) pullTrack(ctx context.Context, namespace []string, name string, producer *model.BroadcastProducer) {
	track := model.NewTrack(name, 128)
	producer.InsertTrack(track)
	trackProducer := track.Producer()

	reqID := s.reqIDs.Next()
	out := &subscribeOut{requestID: reqID, track: track, producer: trackProducer, done: make(chan struct{})}

	s.mu.Lock()
	s.out[reqID] = out
	s.mu.Unlock()

	sub := ietf.Subscribe{
		RequestID:      reqID,
		TrackNamespace: namespace,
		TrackName:      name,
		Priority:       128,
		GroupOrder:     ietf.GroupOrderDescending,
		FilterType:     ietf.FilterLatestObject,
	}
	s.send(ietf.MsgSubscribe, sub.Encode())

	select {
	case <-out.done:
	case <-ctx.Done():
		return
	}

	track.Unused(ctx)

	s.mu.Lock()
	delete(s.out, reqID)
	for alias, o := range s.outByAlias {
		if o == out {
			delete(s.outByAlias, alias)
		}
	}
	s.mu.Unlock()

	if ctx.Err() == nil {
		s.send(ietf.MsgUnsubscribe, ietf.Unsubscribe{RequestID: reqID}.Encode())
	}
	trackProducer.Close()
}
