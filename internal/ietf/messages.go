// Package ietf implements the typed control message catalog (spec
// §4.4.3) and the group/object wire types used on unidirectional data
// streams (spec §4.4.4). Message type ids below follow the IETF
// moq-transport control-type family selected by this implementation
// (spec §9: "an implementation may pick one [control-type family] and
// reject the other").
package ietf

import (
	"fmt"

	"github.com/zsiec/hang/internal/wire"
)

// Control message type ids.
const (
	MsgSubscribeUpdate         uint64 = 0x02
	MsgSubscribe               uint64 = 0x03
	MsgSubscribeOk             uint64 = 0x04
	MsgSubscribeError          uint64 = 0x05
	MsgPublishNamespace        uint64 = 0x06
	MsgPublishNamespaceOk      uint64 = 0x07
	MsgPublishNamespaceError   uint64 = 0x08
	MsgPublishNamespaceDone    uint64 = 0x09
	MsgUnsubscribe             uint64 = 0x0a
	MsgPublishDone             uint64 = 0x0b
	MsgPublishNamespaceCancel  uint64 = 0x0c
	MsgTrackStatusRequest      uint64 = 0x0d
	MsgTrackStatus             uint64 = 0x0e
	MsgGoAway                  uint64 = 0x10
	MsgSubscribeNamespace      uint64 = 0x11
	MsgSubscribeNamespaceOk    uint64 = 0x12
	MsgSubscribeNamespaceError uint64 = 0x13
	MsgUnsubscribeNamespace    uint64 = 0x14
	MsgMaxRequestID            uint64 = 0x15
	MsgFetch                   uint64 = 0x16
	MsgFetchCancel             uint64 = 0x17
	MsgFetchOk                 uint64 = 0x18
	MsgFetchError              uint64 = 0x19
	MsgRequestsBlocked         uint64 = 0x1a
	MsgClientSetup             uint64 = 0x20
	MsgServerSetup             uint64 = 0x21
)

// Version is the single version this implementation advertises and
// accepts.
const Version uint64 = 0xff00000f

// Setup parameter keys.
const (
	ParamPath         uint64 = 0x01
	ParamMaxRequestID uint64 = 0x02
)

// Subscribe filter types.
const (
	FilterNextGroupStart uint64 = 0x01
	FilterLatestObject   uint64 = 0x02
	FilterAbsoluteStart  uint64 = 0x03
	FilterAbsoluteRange  uint64 = 0x04
)

// Group order values.
const (
	GroupOrderDefault    byte = 0x00
	GroupOrderAscending  byte = 0x01
	GroupOrderDescending byte = 0x02
)

// ClientSetup is the first message sent by a client on the control stream.
type ClientSetup struct {
	Versions []uint64
	Params   wire.Parameters
}

func (m ClientSetup) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(uint64(len(m.Versions)))
	for _, v := range m.Versions {
		w.WriteVarint(v)
	}
	w.WriteParameters(m.Params)
	return w.Bytes()
}

func DecodeClientSetup(data []byte) (ClientSetup, error) {
	r := wire.NewReader(data)
	var m ClientSetup

	n, err := r.ReadVarint()
	if err != nil {
		return m, &wire.DecodeError{Field: "num_versions", Err: err}
	}
	m.Versions = make([]uint64, n)
	for i := range m.Versions {
		v, err := r.ReadVarint()
		if err != nil {
			return m, &wire.DecodeError{Field: "version", Err: err}
		}
		m.Versions[i] = v
	}

	m.Params, err = r.ReadParameters()
	if err != nil {
		return m, &wire.DecodeError{Field: "params", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

// ServerSetup is the server's reply to ClientSetup.
type ServerSetup struct {
	Version uint64
	Params  wire.Parameters
}

func (m ServerSetup) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.Version)
	w.WriteParameters(m.Params)
	return w.Bytes()
}

func DecodeServerSetup(data []byte) (ServerSetup, error) {
	r := wire.NewReader(data)
	var m ServerSetup
	var err error

	m.Version, err = r.ReadVarint()
	if err != nil {
		return m, &wire.DecodeError{Field: "version", Err: err}
	}
	m.Params, err = r.ReadParameters()
	if err != nil {
		return m, &wire.DecodeError{Field: "params", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

// Subscribe requests delivery of a track.
type Subscribe struct {
	RequestID      uint64
	TrackNamespace []string
	TrackName      string
	Priority       byte
	GroupOrder     byte
	FilterType     uint64
	StartGroup     uint64
	StartObject    uint64
	EndGroup       uint64
	Params         wire.Parameters
}

func (m Subscribe) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.RequestID)
	w.WritePath(m.TrackNamespace)
	w.WriteString(m.TrackName)
	w.WriteByte(m.Priority)
	w.WriteByte(m.GroupOrder)
	w.WriteVarint(m.FilterType)
	switch m.FilterType {
	case FilterAbsoluteStart:
		w.WriteVarint(m.StartGroup)
		w.WriteVarint(m.StartObject)
	case FilterAbsoluteRange:
		w.WriteVarint(m.StartGroup)
		w.WriteVarint(m.StartObject)
		w.WriteVarint(m.EndGroup)
	}
	w.WriteParameters(m.Params)
	return w.Bytes()
}

func DecodeSubscribe(data []byte) (Subscribe, error) {
	r := wire.NewReader(data)
	var m Subscribe
	var err error

	m.RequestID, err = r.ReadVarint()
	if err != nil {
		return m, &wire.DecodeError{Field: "request_id", Err: err}
	}
	m.TrackNamespace, err = r.ReadPath()
	if err != nil {
		return m, &wire.DecodeError{Field: "track_namespace", Err: err}
	}
	m.TrackName, err = r.ReadString()
	if err != nil {
		return m, &wire.DecodeError{Field: "track_name", Err: err}
	}
	m.Priority, err = r.ReadByte()
	if err != nil {
		return m, &wire.DecodeError{Field: "priority", Err: err}
	}
	m.GroupOrder, err = r.ReadByte()
	if err != nil {
		return m, &wire.DecodeError{Field: "group_order", Err: err}
	}
	m.FilterType, err = r.ReadVarint()
	if err != nil {
		return m, &wire.DecodeError{Field: "filter_type", Err: err}
	}
	switch m.FilterType {
	case FilterAbsoluteStart:
		if m.StartGroup, err = r.ReadVarint(); err != nil {
			return m, &wire.DecodeError{Field: "start_group", Err: err}
		}
		if m.StartObject, err = r.ReadVarint(); err != nil {
			return m, &wire.DecodeError{Field: "start_object", Err: err}
		}
	case FilterAbsoluteRange:
		if m.StartGroup, err = r.ReadVarint(); err != nil {
			return m, &wire.DecodeError{Field: "start_group", Err: err}
		}
		if m.StartObject, err = r.ReadVarint(); err != nil {
			return m, &wire.DecodeError{Field: "start_object", Err: err}
		}
		if m.EndGroup, err = r.ReadVarint(); err != nil {
			return m, &wire.DecodeError{Field: "end_group", Err: err}
		}
	}
	// Parameters are always accepted and ignored on Subscribe (spec §8).
	m.Params, err = r.ReadParameters()
	if err != nil {
		return m, &wire.DecodeError{Field: "params", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

// SubscribeOk confirms a subscription.
type SubscribeOk struct {
	RequestID     uint64
	TrackAlias    uint64
	Expires       uint64
	GroupOrder    byte
	ContentExists bool
	LargestGroup  uint64
	LargestObject uint64
}

func (m SubscribeOk) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.RequestID)
	w.WriteVarint(m.TrackAlias)
	w.WriteVarint(m.Expires)
	w.WriteByte(m.GroupOrder)
	w.WriteBool(m.ContentExists)
	if m.ContentExists {
		w.WriteVarint(m.LargestGroup)
		w.WriteVarint(m.LargestObject)
	}
	w.WriteVarint(0) // num_params
	return w.Bytes()
}

func DecodeSubscribeOk(data []byte) (SubscribeOk, error) {
	r := wire.NewReader(data)
	var m SubscribeOk
	var err error

	if m.RequestID, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "request_id", Err: err}
	}
	if m.TrackAlias, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "track_alias", Err: err}
	}
	if m.Expires, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "expires", Err: err}
	}
	if m.GroupOrder, err = r.ReadByte(); err != nil {
		return m, &wire.DecodeError{Field: "group_order", Err: err}
	}
	if m.ContentExists, err = r.ReadBool(); err != nil {
		return m, &wire.DecodeError{Field: "content_exists", Err: err}
	}
	if m.ContentExists {
		if m.LargestGroup, err = r.ReadVarint(); err != nil {
			return m, &wire.DecodeError{Field: "largest_group", Err: err}
		}
		if m.LargestObject, err = r.ReadVarint(); err != nil {
			return m, &wire.DecodeError{Field: "largest_object", Err: err}
		}
	}
	if _, err := r.ReadParameters(); err != nil {
		return m, &wire.DecodeError{Field: "params", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

// SubscribeError rejects a subscription.
type SubscribeError struct {
	RequestID    uint64
	ErrorCode    uint64
	ReasonPhrase string
}

func (m SubscribeError) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.RequestID)
	w.WriteVarint(m.ErrorCode)
	w.WriteString(m.ReasonPhrase)
	return w.Bytes()
}

func DecodeSubscribeError(data []byte) (SubscribeError, error) {
	r := wire.NewReader(data)
	var m SubscribeError
	var err error

	if m.RequestID, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "request_id", Err: err}
	}
	if m.ErrorCode, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "error_code", Err: err}
	}
	if m.ReasonPhrase, err = r.ReadString(); err != nil {
		return m, &wire.DecodeError{Field: "reason_phrase", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

// Unsubscribe cancels a subscription.
type Unsubscribe struct {
	RequestID uint64
}

func (m Unsubscribe) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.RequestID)
	return w.Bytes()
}

func DecodeUnsubscribe(data []byte) (Unsubscribe, error) {
	r := wire.NewReader(data)
	reqID, err := r.ReadVarint()
	if err != nil {
		return Unsubscribe{}, &wire.DecodeError{Field: "request_id", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return Unsubscribe{}, err
	}
	return Unsubscribe{RequestID: reqID}, nil
}

// PublishNamespace announces a broadcast. Per spec §8, any parameters
// present cause this message to be rejected — unlike Subscribe, this
// implementation is strict here.
type PublishNamespace struct {
	RequestID      uint64
	TrackNamespace []string
}

func (m PublishNamespace) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.RequestID)
	w.WritePath(m.TrackNamespace)
	w.WriteVarint(0) // num_params
	return w.Bytes()
}

func DecodePublishNamespace(data []byte) (PublishNamespace, error) {
	r := wire.NewReader(data)
	var m PublishNamespace
	var err error

	if m.RequestID, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "request_id", Err: err}
	}
	if m.TrackNamespace, err = r.ReadPath(); err != nil {
		return m, &wire.DecodeError{Field: "track_namespace", Err: err}
	}
	params, err := r.ReadParameters()
	if err != nil {
		return m, &wire.DecodeError{Field: "params", Err: err}
	}
	if len(params) > 0 {
		return m, fmt.Errorf("ietf: publish_namespace: %w", wire.ErrInvalidValue)
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

// PublishNamespaceOk acknowledges a PublishNamespace.
type PublishNamespaceOk struct {
	RequestID uint64
}

func (m PublishNamespaceOk) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.RequestID)
	return w.Bytes()
}

func DecodePublishNamespaceOk(data []byte) (PublishNamespaceOk, error) {
	r := wire.NewReader(data)
	reqID, err := r.ReadVarint()
	if err != nil {
		return PublishNamespaceOk{}, &wire.DecodeError{Field: "request_id", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return PublishNamespaceOk{}, err
	}
	return PublishNamespaceOk{RequestID: reqID}, nil
}

// PublishNamespaceError rejects a PublishNamespace (e.g. publish-only peer, 404).
type PublishNamespaceError struct {
	RequestID    uint64
	ErrorCode    uint64
	ReasonPhrase string
}

func (m PublishNamespaceError) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.RequestID)
	w.WriteVarint(m.ErrorCode)
	w.WriteString(m.ReasonPhrase)
	return w.Bytes()
}

func DecodePublishNamespaceError(data []byte) (PublishNamespaceError, error) {
	r := wire.NewReader(data)
	var m PublishNamespaceError
	var err error
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "request_id", Err: err}
	}
	if m.ErrorCode, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "error_code", Err: err}
	}
	if m.ReasonPhrase, err = r.ReadString(); err != nil {
		return m, &wire.DecodeError{Field: "reason_phrase", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

// PublishNamespaceDone withdraws a previously-announced broadcast.
type PublishNamespaceDone struct {
	TrackNamespace []string
}

func (m PublishNamespaceDone) Encode() []byte {
	w := wire.NewWriter()
	w.WritePath(m.TrackNamespace)
	return w.Bytes()
}

func DecodePublishNamespaceDone(data []byte) (PublishNamespaceDone, error) {
	r := wire.NewReader(data)
	ns, err := r.ReadPath()
	if err != nil {
		return PublishNamespaceDone{}, &wire.DecodeError{Field: "track_namespace", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return PublishNamespaceDone{}, err
	}
	return PublishNamespaceDone{TrackNamespace: ns}, nil
}

// PublishNamespaceCancel aborts an in-flight PublishNamespace.
type PublishNamespaceCancel struct {
	TrackNamespace []string
	ErrorCode      uint64
	ReasonPhrase   string
}

func (m PublishNamespaceCancel) Encode() []byte {
	w := wire.NewWriter()
	w.WritePath(m.TrackNamespace)
	w.WriteVarint(m.ErrorCode)
	w.WriteString(m.ReasonPhrase)
	return w.Bytes()
}

func DecodePublishNamespaceCancel(data []byte) (PublishNamespaceCancel, error) {
	r := wire.NewReader(data)
	var m PublishNamespaceCancel
	var err error
	if m.TrackNamespace, err = r.ReadPath(); err != nil {
		return m, &wire.DecodeError{Field: "track_namespace", Err: err}
	}
	if m.ErrorCode, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "error_code", Err: err}
	}
	if m.ReasonPhrase, err = r.ReadString(); err != nil {
		return m, &wire.DecodeError{Field: "reason_phrase", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

// PublishDone reports that a publisher has finished serving a track.
type PublishDone struct {
	RequestID    uint64
	StatusCode   uint64
	ReasonPhrase string
}

func (m PublishDone) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.RequestID)
	w.WriteVarint(m.StatusCode)
	w.WriteString(m.ReasonPhrase)
	return w.Bytes()
}

func DecodePublishDone(data []byte) (PublishDone, error) {
	r := wire.NewReader(data)
	var m PublishDone
	var err error
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "request_id", Err: err}
	}
	if m.StatusCode, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "status_code", Err: err}
	}
	if m.ReasonPhrase, err = r.ReadString(); err != nil {
		return m, &wire.DecodeError{Field: "reason_phrase", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

// GoAway signals a graceful session shutdown.
type GoAway struct {
	NewSessionURI string
}

func (m GoAway) Encode() []byte {
	w := wire.NewWriter()
	w.WriteString(m.NewSessionURI)
	return w.Bytes()
}

func DecodeGoAway(data []byte) (GoAway, error) {
	r := wire.NewReader(data)
	uri, err := r.ReadString()
	if err != nil {
		return GoAway{}, &wire.DecodeError{Field: "new_session_uri", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return GoAway{}, err
	}
	return GoAway{NewSessionURI: uri}, nil
}

// MaxRequestID updates the peer's request-id quota.
type MaxRequestID struct {
	Value uint64
}

func (m MaxRequestID) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.Value)
	return w.Bytes()
}

func DecodeMaxRequestID(data []byte) (MaxRequestID, error) {
	r := wire.NewReader(data)
	v, err := r.ReadVarint()
	if err != nil {
		return MaxRequestID{}, &wire.DecodeError{Field: "value", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return MaxRequestID{}, err
	}
	return MaxRequestID{Value: v}, nil
}

// RequestsBlocked tells the peer we are blocked on our own request-id quota.
type RequestsBlocked struct {
	MaximumRequestID uint64
}

func (m RequestsBlocked) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.MaximumRequestID)
	return w.Bytes()
}

func DecodeRequestsBlocked(data []byte) (RequestsBlocked, error) {
	r := wire.NewReader(data)
	v, err := r.ReadVarint()
	if err != nil {
		return RequestsBlocked{}, &wire.DecodeError{Field: "maximum_request_id", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return RequestsBlocked{}, err
	}
	return RequestsBlocked{MaximumRequestID: v}, nil
}

// SubscribeNamespace/UnsubscribeNamespace are decoded only far enough to
// acknowledge or ignore them (spec §4.4.3: "ignored; we always advertise
// all").
type SubscribeNamespace struct {
	RequestID       uint64
	NamespacePrefix []string
}

func DecodeSubscribeNamespace(data []byte) (SubscribeNamespace, error) {
	r := wire.NewReader(data)
	var m SubscribeNamespace
	var err error
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return m, &wire.DecodeError{Field: "request_id", Err: err}
	}
	if m.NamespacePrefix, err = r.ReadPath(); err != nil {
		return m, &wire.DecodeError{Field: "namespace_prefix", Err: err}
	}
	if _, err := r.ReadParameters(); err != nil {
		return m, &wire.DecodeError{Field: "params", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return m, err
	}
	return m, nil
}

type SubscribeNamespaceOk struct {
	RequestID uint64
}

func (m SubscribeNamespaceOk) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(m.RequestID)
	return w.Bytes()
}

type UnsubscribeNamespace struct {
	NamespacePrefix []string
}

func DecodeUnsubscribeNamespace(data []byte) (UnsubscribeNamespace, error) {
	r := wire.NewReader(data)
	ns, err := r.ReadPath()
	if err != nil {
		return UnsubscribeNamespace{}, &wire.DecodeError{Field: "namespace_prefix", Err: err}
	}
	if err := r.ExpectEnd(); err != nil {
		return UnsubscribeNamespace{}, err
	}
	return UnsubscribeNamespace{NamespacePrefix: ns}, nil
}
