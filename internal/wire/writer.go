package wire

import "github.com/quic-go/quic-go/quicvarint"

// Writer accumulates an encoded control message body. The zero value is
// ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the size of the accumulated buffer, matching what Bytes()
// would return — used to implement the encoder size law (spec §8: the
// size pre-pass equals the actual encode length, trivially true here
// since Writer has no separate size-only mode and always measures by
// encoding once).
func (w *Writer) Len() int {
	return len(w.buf)
}

// WriteVarint appends a QUIC-style variable-length integer.
func (w *Writer) WriteVarint(v uint64) {
	w.buf = quicvarint.Append(w.buf, v)
}

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// WriteBool appends a single 0/1 byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteBytes appends a varint length followed by data.
func (w *Writer) WriteBytes(data []byte) {
	w.WriteVarint(uint64(len(data)))
	w.buf = append(w.buf, data...)
}

// WriteString appends a varint length followed by the UTF-8 bytes of s.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// WritePath appends a Path tuple.
func (w *Writer) WritePath(segs []string) {
	w.WriteVarint(uint64(len(segs)))
	for _, s := range segs {
		w.WriteString(s)
	}
}

// WriteParameters appends a Parameters map.
func (w *Writer) WriteParameters(p Parameters) {
	w.WriteVarint(uint64(len(p)))
	for k, v := range p {
		w.WriteVarint(k)
		w.WriteBytes(v)
	}
}
