package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/zsiec/hang/internal/ietf"
	"github.com/zsiec/hang/internal/model"
)

func newTestSession() *Session {
	return &Session{
		log:         slog.Default(),
		writeCh:     make(chan controlMsg, 64),
		reqIDs:      newRequestIDs(false),
		in:          make(map[uint64]*subscribeIn),
		out:         make(map[uint64]*subscribeOut),
		outByAlias:  make(map[uint64]*subscribeOut),
		announcedIn: make(map[string]*model.BroadcastProducer),
	}
}

func (s *Session) popSent(t *testing.T) controlMsg {
	t.Helper()
	select {
	case m := <-s.writeCh:
		return m
	case <-time.After(time.Second):
		t.Fatal("no control message sent")
		return controlMsg{}
	}
}

func TestHandleSubscribeHappyPath(t *testing.T) {
	t.Parallel()

	origin := model.NewOrigin()
	bc := model.NewBroadcast()
	track := model.NewTrack("video0", 128)
	bc.Producer().InsertTrack(track)
	if err := origin.PublishBroadcast("room/alice", bc); err != nil {
		t.Fatal(err)
	}

	s := newTestSession()
	s.origin = origin

	sub := ietf.Subscribe{
		RequestID:      2,
		TrackNamespace: []string{"room", "alice"},
		TrackName:      "video0",
		FilterType:     ietf.FilterLatestObject,
		GroupOrder:     ietf.GroupOrderDescending,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.handleSubscribe(ctx, sub)

	msg := s.popSent(t)
	if msg.msgType != ietf.MsgSubscribeOk {
		t.Fatalf("msgType = %#x, want SUBSCRIBE_OK", msg.msgType)
	}
	ok, err := ietf.DecodeSubscribeOk(msg.payload)
	if err != nil {
		t.Fatal(err)
	}
	if ok.RequestID != 2 {
		t.Fatalf("RequestID = %d, want 2", ok.RequestID)
	}
	if ok.TrackAlias != 2 {
		t.Fatalf("TrackAlias = %d, want 2 (track_alias == request_id)", ok.TrackAlias)
	}

	s.mu.Lock()
	_, registered := s.in[2]
	s.mu.Unlock()
	if !registered {
		t.Fatal("subscription not registered in s.in")
	}
}

func TestHandleSubscribeUnknownNamespace(t *testing.T) {
	t.Parallel()

	s := newTestSession()
	s.origin = model.NewOrigin()

	sub := ietf.Subscribe{
		RequestID:      1,
		TrackNamespace: []string{"no", "such", "room"},
		TrackName:      "video0",
		FilterType:     ietf.FilterLatestObject,
	}
	s.handleSubscribe(context.Background(), sub)

	msg := s.popSent(t)
	if msg.msgType != ietf.MsgSubscribeError {
		t.Fatalf("msgType = %#x, want SUBSCRIBE_ERROR", msg.msgType)
	}
	se, err := ietf.DecodeSubscribeError(msg.payload)
	if err != nil {
		t.Fatal(err)
	}
	if se.ErrorCode != 404 {
		t.Fatalf("ErrorCode = %d, want 404", se.ErrorCode)
	}
}

func TestHandleSubscribeUnsupportedFilter(t *testing.T) {
	t.Parallel()

	origin := model.NewOrigin()
	bc := model.NewBroadcast()
	if err := origin.PublishBroadcast("room/alice", bc); err != nil {
		t.Fatal(err)
	}

	s := newTestSession()
	s.origin = origin

	sub := ietf.Subscribe{
		RequestID:      3,
		TrackNamespace: []string{"room", "alice"},
		TrackName:      "video0",
		FilterType:     99,
	}
	s.handleSubscribe(context.Background(), sub)

	msg := s.popSent(t)
	if msg.msgType != ietf.MsgSubscribeError {
		t.Fatalf("msgType = %#x, want SUBSCRIBE_ERROR", msg.msgType)
	}
	se, err := ietf.DecodeSubscribeError(msg.payload)
	if err != nil {
		t.Fatal(err)
	}
	if se.ErrorCode != 400 {
		t.Fatalf("ErrorCode = %d, want 400", se.ErrorCode)
	}
}

func TestHandleSubscribeUnknownTrack(t *testing.T) {
	t.Parallel()

	origin := model.NewOrigin()
	bc := model.NewBroadcast()
	bc.Producer().Close() // closed with no tracks: SubscribeTrack resolves immediately as not-found
	if err := origin.PublishBroadcast("room/alice", bc); err != nil {
		t.Fatal(err)
	}

	s := newTestSession()
	s.origin = origin

	sub := ietf.Subscribe{
		RequestID:      4,
		TrackNamespace: []string{"room", "alice"},
		TrackName:      "nonexistent",
		FilterType:     ietf.FilterLatestObject,
	}
	s.handleSubscribe(context.Background(), sub)

	msg := s.popSent(t)
	if msg.msgType != ietf.MsgSubscribeError {
		t.Fatalf("msgType = %#x, want SUBSCRIBE_ERROR", msg.msgType)
	}
	se, err := ietf.DecodeSubscribeError(msg.payload)
	if err != nil {
		t.Fatal(err)
	}
	if se.ErrorCode != 404 {
		t.Fatalf("ErrorCode = %d, want 404", se.ErrorCode)
	}
}

func TestHandleUnsubscribeCancelsServing(t *testing.T) {
	t.Parallel()

	origin := model.NewOrigin()
	bc := model.NewBroadcast()
	track := model.NewTrack("video0", 128)
	bc.Producer().InsertTrack(track)
	if err := origin.PublishBroadcast("room/alice", bc); err != nil {
		t.Fatal(err)
	}

	s := newTestSession()
	s.origin = origin

	sub := ietf.Subscribe{
		RequestID:      5,
		TrackNamespace: []string{"room", "alice"},
		TrackName:      "video0",
		FilterType:     ietf.FilterLatestObject,
	}
	s.handleSubscribe(context.Background(), sub)
	s.popSent(t) // drain SUBSCRIBE_OK

	s.mu.Lock()
	_, ok := s.in[5]
	s.mu.Unlock()
	if !ok {
		t.Fatal("subscription not registered")
	}

	s.handleUnsubscribe(ietf.Unsubscribe{RequestID: 5})

	s.mu.Lock()
	_, stillThere := s.in[5]
	s.mu.Unlock()
	if stillThere {
		t.Fatal("subscription should be removed after unsubscribe")
	}
}
