package wire

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// Reader wraps a byte slice for sequential varint/byte/string reading
// against an in-memory control message payload.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len reports the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// ReadVarint reads one QUIC-style variable-length integer.
func (r *Reader) ReadVarint() (uint64, error) {
	if r.pos >= len(r.data) {
		return 0, ErrShort
	}
	val, n, err := quicvarint.Parse(r.data[r.pos:])
	if err != nil {
		return 0, ErrShort
	}
	r.pos += n
	return val, nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrShort
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

// ReadBool reads a single byte and rejects any value other than 0 or 1.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidValue
	}
}

// ReadBytes reads a varint length followed by that many raw bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	length, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	end := r.pos + int(length)
	if length > uint64(len(r.data)) || end > len(r.data) || end < r.pos {
		return nil, ErrShort
	}
	val := r.data[r.pos:end]
	r.pos = end
	return val, nil
}

// ReadString reads a varint length followed by that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadPath reads a Path tuple: varint segment_count || (varint length || bytes)*.
func (r *Reader) ReadPath() ([]string, error) {
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	segs := make([]string, count)
	for i := range segs {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		segs[i] = s
	}
	return segs, nil
}

// MaxParameters bounds the number of entries accepted in a Parameters map.
const MaxParameters = 64

// ReadParameters reads a Parameters map: varint count || (varint key ||
// varint length || bytes)*. Rejects more than MaxParameters entries or
// duplicate keys.
func (r *Reader) ReadParameters() (Parameters, error) {
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if count > MaxParameters {
		return nil, ErrTooMany
	}
	params := make(Parameters, count)
	for i := uint64(0); i < count; i++ {
		key, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		if _, dup := params[key]; dup {
			return nil, ErrDuplicate
		}
		val, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		params[key] = val
	}
	return params, nil
}

// ExpectEnd fails with ErrExpectedEnd if any bytes remain unread.
func (r *Reader) ExpectEnd() error {
	if r.pos != len(r.data) {
		return ErrExpectedEnd
	}
	return nil
}

// ReadFull reads exactly len(buf) bytes, wrapping io.ErrUnexpectedEOF.
func ReadFull(rd io.Reader, buf []byte) error {
	_, err := io.ReadFull(rd, buf)
	return err
}
