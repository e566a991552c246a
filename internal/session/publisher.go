package session

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/zsiec/hang/internal/ietf"
	"github.com/zsiec/hang/internal/model"
)

// publisherLoop announces every broadcast live on the local origin and
// serves incoming Subscribes against it (spec §4.5). It returns only
// when ctx is cancelled or the announce feed ends.
func (s *Session) publisherLoop(ctx context.Context) error {
	if s.origin == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	reqIDs := s.reqIDs
	for ann := range s.origin.Announced(ctx) {
		namespace := strings.Split(ann.Suffix, "/")
		if ann.Consumer != nil {
			reqID := reqIDs.Next()
			s.send(ietf.MsgPublishNamespace, ietf.PublishNamespace{
				RequestID:      reqID,
				TrackNamespace: namespace,
			}.Encode())
		} else {
			s.send(ietf.MsgPublishNamespaceDone, ietf.PublishNamespaceDone{
				TrackNamespace: namespace,
			}.Encode())
		}
	}
	return ctx.Err()
}

// handleSubscribe serves an incoming Subscribe by locating the
// broadcast under the requested namespace and spawning a task that
// streams the requested track's groups (spec §4.5).
func (s *Session) handleSubscribe(ctx context.Context, sub ietf.Subscribe) {
	suffix := strings.Join(sub.TrackNamespace, "/")

	bc, ok := s.origin.ConsumeBroadcast(suffix)
	if !ok {
		s.sendSubscribeError(sub.RequestID, 404, ErrUnknownNamespace.Error())
		return
	}

	if sub.FilterType != ietf.FilterNextGroupStart && sub.FilterType != ietf.FilterLatestObject &&
		sub.FilterType != ietf.FilterAbsoluteStart && sub.FilterType != ietf.FilterAbsoluteRange {
		s.sendSubscribeError(sub.RequestID, 400, ErrUnsupportedFilter.Error())
		return
	}

	track, err := bc.SubscribeTrack(ctx, sub.TrackName)
	if err != nil {
		s.sendSubscribeError(sub.RequestID, 404, ErrUnknownTrack.Error())
		return
	}

	subCtx, cancel := context.WithCancel(ctx)

	// Track aliasing: the simplest, and our, policy is track_alias ==
	// request_id (spec §9).
	alias := sub.RequestID

	s.mu.Lock()
	s.in[sub.RequestID] = &subscribeIn{requestID: sub.RequestID, cancel: cancel}
	s.mu.Unlock()

	s.sendSubscribeOK(sub.RequestID, alias)

	go s.serveTrack(subCtx, sub.RequestID, alias, track)
}

func (s *Session) sendSubscribeOK(requestID, trackAlias uint64) {
	ok := ietf.SubscribeOk{
		RequestID:     requestID,
		TrackAlias:    trackAlias,
		GroupOrder:    ietf.GroupOrderDescending,
		ContentExists: false,
	}
	s.send(ietf.MsgSubscribeOk, ok.Encode())
}

func (s *Session) sendSubscribeError(requestID, errorCode uint64, reason string) {
	se := ietf.SubscribeError{RequestID: requestID, ErrorCode: errorCode, ReasonPhrase: reason}
	s.send(ietf.MsgSubscribeError, se.Encode())
}

// serveTrack streams groups from track to the peer, one unidirectional
// stream per group. It relies on TrackConsumer.NextGroup to already
// apply the two-group window (model.TwoSlot): a superseded group
// surfaces model.ErrOld to its stream-serving goroutine, which resets
// the stream, so this loop never needs a second scheduler copy (see
// DESIGN.md).
func (s *Session) serveTrack(ctx context.Context, requestID, alias uint64, track *model.TrackConsumer) {
	defer func() {
		s.mu.Lock()
		delete(s.in, requestID)
		s.mu.Unlock()
		track.Release()
	}()

	for {
		group, err := track.NextGroup(ctx)
		if err != nil {
			s.sendPublishDone(requestID, 200, "track ended")
			return
		}
		go s.serveGroup(ctx, alias, track.Priority(), group)
	}
}

func (s *Session) serveGroup(ctx context.Context, alias uint64, trackPriority byte, group *model.GroupConsumer) {
	defer group.Release()

	stream, err := s.conn.OpenUni(ctx)
	if err != nil {
		s.log.Debug("open group stream failed", "error", err)
		return
	}
	defer stream.Close()

	stream.SetPriority(int(DerivePriority(trackPriority, group.Sequence())))

	header := ietf.GroupHeader{
		Flags:             ietf.DefaultGroupFlags(),
		TrackAlias:        alias,
		GroupID:           group.Sequence(),
		PublisherPriority: trackPriority,
	}
	if _, err := stream.Write(header.Encode()); err != nil {
		stream.CancelWrite(1)
		return
	}

	for {
		frame, err := group.NextFrame(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				// Clean end: emit the explicit end-of-group marker.
				_ = ietf.WriteObjectHeader(stream, false, 0)
				_ = ietf.WriteObjectStatus(stream, ietf.ObjectStatusEndGroup)
			case ctx.Err() != nil:
				stream.CancelWrite(1)
			default:
				// model.ErrOld: the two-group window evicted this
				// group; reset the stream rather than finishing it.
				stream.CancelWrite(1)
			}
			return
		}
		if err := writeFrame(ctx, stream, frame); err != nil {
			stream.CancelWrite(2)
			return
		}
	}
}

// writeFrame copies one frame's payload chunks onto stream, preceded
// by its object header (spec §4.5's "frame serialization").
func writeFrame(ctx context.Context, stream io.Writer, frame *model.FrameConsumer) error {
	info := frame.Info()
	if info.Size == 0 {
		if err := ietf.WriteObjectHeader(stream, false, 0); err != nil {
			return err
		}
		return ietf.WriteObjectStatus(stream, ietf.ObjectStatusEmpty)
	}
	if err := ietf.WriteObjectHeader(stream, false, info.Size); err != nil {
		return err
	}
	for {
		chunk, ok, err := frame.NextChunk(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := stream.Write(chunk); err != nil {
			return err
		}
	}
}

func (s *Session) sendPublishDone(requestID, status uint64, reason string) {
	pd := ietf.PublishDone{RequestID: requestID, StatusCode: status, ReasonPhrase: reason}
	s.send(ietf.MsgPublishDone, pd.Encode())
}

// handleUnsubscribe cancels a subscription we were serving.
func (s *Session) handleUnsubscribe(m ietf.Unsubscribe) {
	s.mu.Lock()
	in, ok := s.in[m.RequestID]
	delete(s.in, m.RequestID)
	s.mu.Unlock()
	if ok {
		in.cancel()
	}
}
