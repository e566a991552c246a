package ietf

import (
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// ObjectStatus is set on a zero-sized object to distinguish an empty
// frame from an end-of-group marker (spec §4.4.4).
type ObjectStatus = uint64

// WriteObjectHeader writes one object (frame) entry's prefix: id_delta
// (always 0, gaps are unsupported) and, if extensions were declared in
// the group header, a zero-length extensions block, followed by size.
// Callers write the payload themselves (or the status byte, if size is
// 0) immediately after.
func WriteObjectHeader(w io.Writer, hasExtensions bool, size uint64) error {
	buf := quicvarint.Append(nil, 0) // id_delta
	if hasExtensions {
		buf = quicvarint.Append(buf, 0) // extension length
	}
	buf = quicvarint.Append(buf, size)
	_, err := w.Write(buf)
	return err
}

// WriteObjectStatus writes the status varint following a zero-sized
// object (spec §4.4.4: 0 = empty frame, 3 = end-of-group).
func WriteObjectStatus(w io.Writer, status uint64) error {
	_, err := w.Write(quicvarint.Append(nil, status))
	return err
}

// ReadObjectHeader reads one object entry's prefix from a group data
// stream. id_delta must be 0; any other value is a protocol error since
// this implementation does not support gaps.
func ReadObjectHeader(r io.ByteReader, hasExtensions bool) (size uint64, err error) {
	idDelta, err := quicvarint.Read(r)
	if err != nil {
		return 0, fmt.Errorf("ietf: read id_delta: %w", err)
	}
	if idDelta != 0 {
		return 0, fmt.Errorf("ietf: non-zero id_delta %d unsupported", idDelta)
	}
	if hasExtensions {
		extLen, err := quicvarint.Read(r)
		if err != nil {
			return 0, fmt.Errorf("ietf: read extension length: %w", err)
		}
		for i := uint64(0); i < extLen; i++ {
			if _, err := r.ReadByte(); err != nil {
				return 0, fmt.Errorf("ietf: read extensions: %w", err)
			}
		}
	}
	size, err = quicvarint.Read(r)
	if err != nil {
		return 0, fmt.Errorf("ietf: read size: %w", err)
	}
	return size, nil
}

// ReadObjectStatus reads the status varint following a zero-sized object.
func ReadObjectStatus(r io.ByteReader) (uint64, error) {
	status, err := quicvarint.Read(r)
	if err != nil {
		return 0, fmt.Errorf("ietf: read object status: %w", err)
	}
	return status, nil
}
