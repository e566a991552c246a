package ietf

import (
	"reflect"
	"testing"

	"github.com/zsiec/hang/internal/wire"
)

func TestSubscribeRoundTrip(t *testing.T) {
	t.Parallel()

	want := Subscribe{
		RequestID:      7,
		TrackNamespace: []string{"room", "alice"},
		TrackName:      "video0",
		Priority:       128,
		GroupOrder:     GroupOrderDescending,
		FilterType:     FilterLatestObject,
		Params:         wire.Parameters{},
	}
	enc := want.Encode()
	got, err := DecodeSubscribe(enc)
	if err != nil {
		t.Fatalf("DecodeSubscribe: %v", err)
	}
	got.Params = wire.Parameters{}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DecodeSubscribe: got %+v, want %+v", got, want)
	}
	if len(enc) != len(want.Encode()) {
		t.Fatalf("encoder size law violated")
	}
}

func TestSubscribeOkRoundTrip(t *testing.T) {
	t.Parallel()

	want := SubscribeOk{
		RequestID:     2,
		TrackAlias:    2,
		Expires:       0,
		GroupOrder:    GroupOrderDescending,
		ContentExists: true,
		LargestGroup:  5,
		LargestObject: 0,
	}
	got, err := DecodeSubscribeOk(want.Encode())
	if err != nil {
		t.Fatalf("DecodeSubscribeOk: %v", err)
	}
	if got != want {
		t.Fatalf("DecodeSubscribeOk: got %+v, want %+v", got, want)
	}
}

func TestSubscribeErrorRoundTripNonASCII(t *testing.T) {
	t.Parallel()

	want := SubscribeError{RequestID: 9, ErrorCode: 404, ReasonPhrase: "não encontrado"}
	got, err := DecodeSubscribeError(want.Encode())
	if err != nil {
		t.Fatalf("DecodeSubscribeError: %v", err)
	}
	if got != want {
		t.Fatalf("DecodeSubscribeError: got %+v, want %+v", got, want)
	}
}

func TestPublishNamespaceRoundTrip(t *testing.T) {
	t.Parallel()

	want := PublishNamespace{RequestID: 1, TrackNamespace: []string{"room", "alice"}}
	got, err := DecodePublishNamespace(want.Encode())
	if err != nil {
		t.Fatalf("DecodePublishNamespace: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DecodePublishNamespace: got %+v, want %+v", got, want)
	}
}

func TestPublishNamespaceRejectsParameters(t *testing.T) {
	t.Parallel()

	w := wire.NewWriter()
	w.WriteVarint(1)
	w.WritePath([]string{"room"})
	w.WriteVarint(1) // num_params = 1, the strict rejection case
	w.WriteVarint(0x01)
	w.WriteBytes([]byte("x"))

	if _, err := DecodePublishNamespace(w.Bytes()); err == nil {
		t.Fatal("DecodePublishNamespace: expected rejection of any parameters")
	}
}

func TestPublishNamespaceDoneRoundTrip(t *testing.T) {
	t.Parallel()

	want := PublishNamespaceDone{TrackNamespace: []string{"room", "alice"}}
	got, err := DecodePublishNamespaceDone(want.Encode())
	if err != nil {
		t.Fatalf("DecodePublishNamespaceDone: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DecodePublishNamespaceDone: got %+v, want %+v", got, want)
	}
}

func TestPublishNamespaceCancelRoundTrip(t *testing.T) {
	t.Parallel()

	want := PublishNamespaceCancel{TrackNamespace: []string{"room"}, ErrorCode: 1, ReasonPhrase: "cancel"}
	got, err := DecodePublishNamespaceCancel(want.Encode())
	if err != nil {
		t.Fatalf("DecodePublishNamespaceCancel: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DecodePublishNamespaceCancel: got %+v, want %+v", got, want)
	}
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	t.Parallel()

	want := Unsubscribe{RequestID: 42}
	got, err := DecodeUnsubscribe(want.Encode())
	if err != nil {
		t.Fatalf("DecodeUnsubscribe: %v", err)
	}
	if got != want {
		t.Fatalf("DecodeUnsubscribe: got %+v, want %+v", got, want)
	}
}

func TestGroupFlagsRejectMutualExclusion(t *testing.T) {
	t.Parallel()

	streamType := streamTypeGroupStart | FlagHasSubgroup | FlagFirstObjSubgroup
	if _, err := DecodeStreamType(streamType); err == nil {
		t.Fatal("DecodeStreamType: expected rejection of has_subgroup && has_subgroup_object")
	}
}

func TestStreamTypeOutOfRange(t *testing.T) {
	t.Parallel()

	if _, err := DecodeStreamType(0x1e); err == nil {
		t.Fatal("DecodeStreamType(0x1e): expected InvalidValue")
	}
	if _, err := DecodeStreamType(0x0f); err == nil {
		t.Fatal("DecodeStreamType(0x0f): expected InvalidValue")
	}
}

func TestGroupHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := GroupHeader{
		Flags:             DefaultGroupFlags(),
		TrackAlias:        3,
		GroupID:           9,
		PublisherPriority: 200,
	}
	enc := h.Encode()
	r := wire.NewReader(enc)
	streamType, err := r.ReadVarint()
	if err != nil {
		t.Fatalf("read stream type: %v", err)
	}
	got, err := DecodeGroupHeader(streamType, r)
	if err != nil {
		t.Fatalf("DecodeGroupHeader: %v", err)
	}
	if got != h {
		t.Fatalf("DecodeGroupHeader: got %+v, want %+v", got, h)
	}
}
