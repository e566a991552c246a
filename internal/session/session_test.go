package session

import (
	"bufio"
	"bytes"
	"context"
	"testing"

	"github.com/zsiec/hang/internal/ietf"
	"github.com/zsiec/hang/internal/transport"
	"github.com/zsiec/hang/internal/wire"
)

// mockControlStream implements transport.Stream over separate
// in-memory buffers, so the two sides of a handshake can be driven
// independently in a single goroutine.
type mockControlStream struct {
	Reader *bytes.Buffer
	Writer *bytes.Buffer
}

var _ transport.Stream = (*mockControlStream)(nil)

func (m *mockControlStream) Read(p []byte) (int, error)  { return m.Reader.Read(p) }
func (m *mockControlStream) Write(p []byte) (int, error) { return m.Writer.Write(p) }
func (m *mockControlStream) Close() error                { return nil }
func (m *mockControlStream) CancelRead(uint64)           {}
func (m *mockControlStream) CancelWrite(uint64)          {}
func (m *mockControlStream) SetPriority(int)             {}

func TestHandshakeServerHappyPath(t *testing.T) {
	t.Parallel()

	cs := ietf.ClientSetup{Versions: []uint64{ietf.Version}}
	var in bytes.Buffer
	if err := wire.WriteControlFrame(&in, ietf.MsgClientSetup, cs.Encode()); err != nil {
		t.Fatal(err)
	}

	out := &bytes.Buffer{}
	ctrl := &mockControlStream{Reader: &in, Writer: out}

	s := &Session{role: RoleServer, ctrl: ctrl, ctrlReader: bufio.NewReader(ctrl)}
	if err := s.Handshake(context.Background()); err != nil {
		t.Fatal(err)
	}

	msgType, payload, err := wire.ReadControlFrame(out)
	if err != nil {
		t.Fatal(err)
	}
	if msgType != ietf.MsgServerSetup {
		t.Fatalf("msgType = %#x, want SERVER_SETUP", msgType)
	}
	ss, err := ietf.DecodeServerSetup(payload)
	if err != nil {
		t.Fatal(err)
	}
	if ss.Version != ietf.Version {
		t.Fatalf("Version = %#x, want %#x", ss.Version, ietf.Version)
	}
}

func TestHandshakeServerVersionMismatch(t *testing.T) {
	t.Parallel()

	cs := ietf.ClientSetup{Versions: []uint64{0xff000001}}
	var in bytes.Buffer
	if err := wire.WriteControlFrame(&in, ietf.MsgClientSetup, cs.Encode()); err != nil {
		t.Fatal(err)
	}

	ctrl := &mockControlStream{Reader: &in, Writer: &bytes.Buffer{}}
	s := &Session{role: RoleServer, ctrl: ctrl, ctrlReader: bufio.NewReader(ctrl)}
	if err := s.Handshake(context.Background()); err == nil {
		t.Fatal("expected error for incompatible version")
	}
}

func TestHandshakeClientHappyPath(t *testing.T) {
	t.Parallel()

	ss := ietf.ServerSetup{Version: ietf.Version}
	var in bytes.Buffer
	if err := wire.WriteControlFrame(&in, ietf.MsgServerSetup, ss.Encode()); err != nil {
		t.Fatal(err)
	}

	out := &bytes.Buffer{}
	ctrl := &mockControlStream{Reader: &in, Writer: out}

	s := &Session{role: RoleClient, ctrl: ctrl, ctrlReader: bufio.NewReader(ctrl)}
	if err := s.Handshake(context.Background()); err != nil {
		t.Fatal(err)
	}

	msgType, payload, err := wire.ReadControlFrame(out)
	if err != nil {
		t.Fatal(err)
	}
	if msgType != ietf.MsgClientSetup {
		t.Fatalf("msgType = %#x, want CLIENT_SETUP", msgType)
	}
	cs, err := ietf.DecodeClientSetup(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs.Versions) != 1 || cs.Versions[0] != ietf.Version {
		t.Fatalf("Versions = %v, want [%#x]", cs.Versions, ietf.Version)
	}
}

func TestHandshakeClientVersionMismatch(t *testing.T) {
	t.Parallel()

	ss := ietf.ServerSetup{Version: 0xff000001}
	var in bytes.Buffer
	if err := wire.WriteControlFrame(&in, ietf.MsgServerSetup, ss.Encode()); err != nil {
		t.Fatal(err)
	}

	ctrl := &mockControlStream{Reader: &in, Writer: &bytes.Buffer{}}
	s := &Session{role: RoleClient, ctrl: ctrl, ctrlReader: bufio.NewReader(ctrl)}
	if err := s.Handshake(context.Background()); err == nil {
		t.Fatal("expected error for incompatible version")
	}
}
