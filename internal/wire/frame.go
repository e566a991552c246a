package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// ReadControlFrame reads one control message from the control stream.
// Wire format (spec §4.1): varint type || u16 length (big-endian) ||
// payload. Decoders must consume exactly the declared length; callers
// are expected to pass the returned payload to a typed parser and then
// call (*Reader).ExpectEnd to enforce the wrong-size check.
func ReadControlFrame(r io.Reader) (uint64, []byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		buffered := bufio.NewReader(r)
		br = buffered
		r = buffered
	}

	msgType, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("read message type: %w", err)
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("read message length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf[:])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read message payload: %w", err)
		}
	}

	return msgType, payload, nil
}

// WriteControlFrame writes one control message as a single atomic Write
// call, so no external synchronization is needed around concurrent
// writers sharing one stream.
func WriteControlFrame(w io.Writer, msgType uint64, payload []byte) error {
	if len(payload) > 0xFFFF {
		return fmt.Errorf("wire: control payload too large (%d bytes)", len(payload))
	}

	buf := quicvarint.Append(nil, msgType)

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}
