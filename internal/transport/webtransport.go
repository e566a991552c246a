package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/zsiec/hang/certs"
)

// wtSession adapts *webtransport.Session to Session.
type wtSession struct {
	s *webtransport.Session
}

func wrapSession(s *webtransport.Session) Session { return &wtSession{s: s} }

func (w *wtSession) OpenUni(ctx context.Context) (SendStream, error) {
	st, err := w.s.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (w *wtSession) AcceptUni(ctx context.Context) (RecvStream, error) {
	st, err := w.s.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (w *wtSession) OpenBi(ctx context.Context) (Stream, error) {
	st, err := w.s.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (w *wtSession) AcceptBi(ctx context.Context) (Stream, error) {
	st, err := w.s.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (w *wtSession) CloseWithError(code uint64, reason string) error {
	return w.s.CloseWithError(webtransport.SessionErrorCode(code), reason)
}

func (w *wtSession) Context() context.Context { return w.s.Context() }

// Server accepts incoming WebTransport sessions on one address, the
// server-side counterpart of the CLI's --url dial (spec §6).
type Server struct {
	Addr string
	Cert *certs.CertInfo

	wt *webtransport.Server
}

// Handler is invoked once per upgraded session; ctrl is the server's
// accepted bidirectional control stream per spec §4.4.1.
type Handler func(ctx context.Context, sess Session, ctrl Stream, r *http.Request)

// ListenAndServe starts the HTTP/3 WebTransport listener on path,
// dispatching every upgraded session to handle. It blocks until ctx is
// done or a fatal error occurs, mirroring the teacher's Server.Start.
func (s *Server) ListenAndServe(ctx context.Context, path string, handle Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		sess, ctrl, err := s.upgrade(w, r)
		if err != nil {
			return
		}
		handle(sess.Context(), sess, ctrl, r)
	})

	s.wt = &webtransport.Server{
		H3: http3.Server{
			Addr:      s.Addr,
			Handler:   mux,
			TLSConfig: &tls.Config{Certificates: []tls.Certificate{s.Cert.TLSCert}},
			QUICConfig: &quic.Config{
				MaxIdleTimeout: 30 * time.Second,
			},
		},
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	stop := context.AfterFunc(ctx, func() { s.wt.Close() })
	defer stop()

	err := s.wt.ListenAndServe()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (Session, Stream, error) {
	session, err := s.wt.Upgrade(w, r)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: upgrade: %w", err)
	}

	ctrl, err := session.AcceptStream(r.Context())
	if err != nil {
		session.CloseWithError(2, "control stream error")
		return nil, nil, fmt.Errorf("transport: accept control stream: %w", err)
	}

	return wrapSession(session), ctrl, nil
}

// Dial connects to a WebTransport endpoint and opens the bidirectional
// control stream, the client-side counterpart of Server.ListenAndServe
// (spec §4.4.1's handshake happens over the returned Stream).
func Dial(ctx context.Context, url string) (Session, Stream, error) {
	d := webtransport.Dialer{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec — self-signed dev certs by default
		QUICConfig:      &quic.Config{},
	}

	_, sess, err := d.Dial(ctx, url, http.Header{})
	if err != nil {
		return nil, nil, fmt.Errorf("transport: dial: %w", err)
	}

	ctrl, err := sess.OpenStreamSync(ctx)
	if err != nil {
		sess.CloseWithError(0, "failed to open control stream")
		return nil, nil, fmt.Errorf("transport: open control stream: %w", err)
	}

	return wrapSession(sess), ctrl, nil
}
