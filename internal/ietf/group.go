package ietf

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/hang/internal/wire"
)

// Group/object stream type ids (spec §4.4.4). 0x10-0x1D is the group
// frame range; low bits are flags. 0x05 is the (unsupported) fetch
// header.
const (
	StreamTypeFetchHeader uint64 = 0x05
	streamTypeGroupStart  uint64 = 0x10
	streamTypeGroupEnd    uint64 = 0x1d
)

// Group flag bits within the low nibble of the stream type id.
const (
	FlagHasExtensions    uint64 = 0x01
	FlagHasSubgroup      uint64 = 0x02
	FlagFirstObjSubgroup uint64 = 0x04
	FlagHasEnd           uint64 = 0x08
)

// GroupFlags decodes the flag bits of a group stream type id.
type GroupFlags struct {
	HasExtensions     bool
	HasSubgroup       bool
	HasSubgroupObject bool
	HasEnd            bool
}

// DecodeStreamType validates a stream type id is in the group range and
// splits it into its flags. has_subgroup and has_subgroup_object are
// mutually exclusive per the wire format.
func DecodeStreamType(streamType uint64) (GroupFlags, error) {
	if streamType < streamTypeGroupStart || streamType > streamTypeGroupEnd {
		return GroupFlags{}, wire.ErrInvalidValue
	}
	bits := streamType - streamTypeGroupStart
	f := GroupFlags{
		HasExtensions:     bits&FlagHasExtensions != 0,
		HasSubgroup:       bits&FlagHasSubgroup != 0,
		HasSubgroupObject: bits&FlagFirstObjSubgroup != 0,
		HasEnd:            bits&FlagHasEnd != 0,
	}
	if f.HasSubgroup && f.HasSubgroupObject {
		return GroupFlags{}, wire.ErrInvalidValue
	}
	return f, nil
}

// EncodeStreamType packs flags into a stream type id in [0x10, 0x1D].
// Panics if both HasSubgroup and HasSubgroupObject are set, mirroring
// the source's debug assertion — callers build flags internally and
// never set both.
func EncodeStreamType(f GroupFlags) uint64 {
	if f.HasSubgroup && f.HasSubgroupObject {
		panic("ietf: has_subgroup and has_subgroup_object are mutually exclusive")
	}
	var bits uint64
	if f.HasExtensions {
		bits |= FlagHasExtensions
	}
	if f.HasSubgroup {
		bits |= FlagHasSubgroup
	}
	if f.HasSubgroupObject {
		bits |= FlagFirstObjSubgroup
	}
	if f.HasEnd {
		bits |= FlagHasEnd
	}
	return streamTypeGroupStart + bits
}

// DefaultGroupFlags matches the encoder's default: an explicit end
// marker, no extensions, no explicit subgroup id (spec §4.5: "The
// encoder sets 0x08").
func DefaultGroupFlags() GroupFlags {
	return GroupFlags{HasEnd: true}
}

// subgroupIDSentinel is written when no explicit subgroup id is present.
const subgroupIDSentinel = 0

// GroupHeader is the per-stream header preceding a group's objects.
type GroupHeader struct {
	Flags             GroupFlags
	TrackAlias        uint64
	GroupID           uint64
	SubgroupID        byte // only meaningful if Flags.HasSubgroup
	PublisherPriority byte
}

// Encode serializes the stream type id followed by the group header
// fields (spec §4.4.4: "flags || track_alias || group_id ||
// [subgroup_id] || publisher_priority").
func (h GroupHeader) Encode() []byte {
	w := wire.NewWriter()
	w.WriteVarint(EncodeStreamType(h.Flags))
	w.WriteVarint(h.TrackAlias)
	w.WriteVarint(h.GroupID)
	if h.Flags.HasSubgroup {
		w.WriteByte(h.SubgroupID)
	}
	w.WriteByte(h.PublisherPriority)
	return w.Bytes()
}

// DecodeGroupHeaderFrom reads the group header fields directly off a
// live data stream, following a stream type id the caller has already
// read as streamType. Unlike DecodeGroupHeader (which decodes from an
// in-memory buffer, used by round-trip tests), this reads incrementally
// since a group stream's total length isn't known up front.
func DecodeGroupHeaderFrom(streamType uint64, r io.ByteReader) (GroupHeader, error) {
	flags, err := DecodeStreamType(streamType)
	if err != nil {
		return GroupHeader{}, err
	}
	var h GroupHeader
	h.Flags = flags
	if h.TrackAlias, err = quicvarint.Read(r); err != nil {
		return h, &wire.DecodeError{Field: "track_alias", Err: err}
	}
	if h.GroupID, err = quicvarint.Read(r); err != nil {
		return h, &wire.DecodeError{Field: "group_id", Err: err}
	}
	if flags.HasSubgroup {
		if h.SubgroupID, err = r.ReadByte(); err != nil {
			return h, &wire.DecodeError{Field: "subgroup_id", Err: err}
		}
	} else {
		h.SubgroupID = subgroupIDSentinel
	}
	if h.PublisherPriority, err = r.ReadByte(); err != nil {
		return h, &wire.DecodeError{Field: "publisher_priority", Err: err}
	}
	return h, nil
}

// DecodeGroupHeader reads a stream type id (already consumed by the
// caller as streamType) and the remaining header fields from r.
func DecodeGroupHeader(streamType uint64, r *wire.Reader) (GroupHeader, error) {
	flags, err := DecodeStreamType(streamType)
	if err != nil {
		return GroupHeader{}, err
	}
	var h GroupHeader
	h.Flags = flags
	if h.TrackAlias, err = r.ReadVarint(); err != nil {
		return h, &wire.DecodeError{Field: "track_alias", Err: err}
	}
	if h.GroupID, err = r.ReadVarint(); err != nil {
		return h, &wire.DecodeError{Field: "group_id", Err: err}
	}
	if flags.HasSubgroup {
		if h.SubgroupID, err = r.ReadByte(); err != nil {
			return h, &wire.DecodeError{Field: "subgroup_id", Err: err}
		}
	} else {
		h.SubgroupID = subgroupIDSentinel
	}
	if h.PublisherPriority, err = r.ReadByte(); err != nil {
		return h, &wire.DecodeError{Field: "publisher_priority", Err: err}
	}
	return h, nil
}

// Object status codes for zero-sized objects.
const (
	ObjectStatusEmpty    uint64 = 0
	ObjectStatusEndGroup uint64 = 3
)
