package session

import (
	"context"
	"fmt"

	"github.com/zsiec/hang/internal/ietf"
	"github.com/zsiec/hang/internal/wire"
)

// readControlLoop decodes and dispatches control messages in the
// order received (spec §4.4.3, §5: "processed strictly in the order
// received"). An unknown type id or a decode error on this stream
// closes the session.
func (s *Session) readControlLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msgType, payload, err := wire.ReadControlFrame(s.ctrlReader)
		if err != nil {
			return fmt.Errorf("session: read control frame: %w", err)
		}

		if err := s.dispatch(ctx, msgType, payload); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(ctx context.Context, msgType uint64, payload []byte) error {
	switch msgType {
	case ietf.MsgSubscribe:
		m, err := ietf.DecodeSubscribe(payload)
		if err != nil {
			s.log.Warn("bad SUBSCRIBE", "error", err)
			return nil
		}
		s.handleSubscribe(ctx, m)

	case ietf.MsgUnsubscribe:
		m, err := ietf.DecodeUnsubscribe(payload)
		if err != nil {
			s.log.Warn("bad UNSUBSCRIBE", "error", err)
			return nil
		}
		s.handleUnsubscribe(m)

	case ietf.MsgSubscribeOk:
		m, err := ietf.DecodeSubscribeOk(payload)
		if err != nil {
			s.log.Warn("bad SUBSCRIBE_OK", "error", err)
			return nil
		}
		s.handleSubscribeOk(m)

	case ietf.MsgSubscribeError:
		m, err := ietf.DecodeSubscribeError(payload)
		if err != nil {
			s.log.Warn("bad SUBSCRIBE_ERROR", "error", err)
			return nil
		}
		s.handleSubscribeError(m)

	case ietf.MsgPublishDone:
		m, err := ietf.DecodePublishDone(payload)
		if err != nil {
			s.log.Warn("bad PUBLISH_DONE", "error", err)
			return nil
		}
		s.handlePublishDone(m)

	case ietf.MsgPublishNamespace:
		m, err := ietf.DecodePublishNamespace(payload)
		if err != nil {
			s.log.Warn("bad PUBLISH_NAMESPACE", "error", err)
			return nil
		}
		return s.handlePublishNamespace(ctx, m)

	case ietf.MsgPublishNamespaceOk:
		if _, err := ietf.DecodePublishNamespaceOk(payload); err != nil {
			s.log.Warn("bad PUBLISH_NAMESPACE_OK", "error", err)
		}

	case ietf.MsgPublishNamespaceError:
		m, err := ietf.DecodePublishNamespaceError(payload)
		if err != nil {
			s.log.Warn("bad PUBLISH_NAMESPACE_ERROR", "error", err)
			return nil
		}
		s.log.Warn("peer rejected PUBLISH_NAMESPACE", "code", m.ErrorCode, "reason", m.ReasonPhrase)

	case ietf.MsgPublishNamespaceDone:
		m, err := ietf.DecodePublishNamespaceDone(payload)
		if err != nil {
			s.log.Warn("bad PUBLISH_NAMESPACE_DONE", "error", err)
			return nil
		}
		s.handlePublishNamespaceDone(m)

	case ietf.MsgPublishNamespaceCancel:
		m, err := ietf.DecodePublishNamespaceCancel(payload)
		if err != nil {
			s.log.Warn("bad PUBLISH_NAMESPACE_CANCEL", "error", err)
			return nil
		}
		s.handlePublishNamespaceCancel(m)

	case ietf.MsgSubscribeNamespace:
		m, err := ietf.DecodeSubscribeNamespace(payload)
		if err != nil {
			s.log.Warn("bad SUBSCRIBE_NAMESPACE", "error", err)
			return nil
		}
		// Ignored: we always advertise the full origin (spec §4.4.3).
		s.send(ietf.MsgSubscribeNamespaceOk, ietf.SubscribeNamespaceOk{RequestID: m.RequestID}.Encode())

	case ietf.MsgUnsubscribeNamespace:
		if _, err := ietf.DecodeUnsubscribeNamespace(payload); err != nil {
			s.log.Warn("bad UNSUBSCRIBE_NAMESPACE", "error", err)
		}

	case ietf.MsgMaxRequestID:
		if _, err := ietf.DecodeMaxRequestID(payload); err != nil {
			s.log.Warn("bad MAX_REQUEST_ID", "error", err)
			return nil
		}
		s.log.Debug("MAX_REQUEST_ID from peer")

	case ietf.MsgRequestsBlocked:
		if _, err := ietf.DecodeRequestsBlocked(payload); err != nil {
			s.log.Warn("bad REQUESTS_BLOCKED", "error", err)
		}

	case ietf.MsgGoAway:
		if _, err := ietf.DecodeGoAway(payload); err != nil {
			s.log.Warn("bad GOAWAY", "error", err)
		}
		return fmt.Errorf("session: peer sent GOAWAY")

	case ietf.MsgFetch, ietf.MsgFetchCancel, ietf.MsgFetchOk, ietf.MsgFetchError,
		ietf.MsgTrackStatusRequest, ietf.MsgTrackStatus:
		return fmt.Errorf("%w: fetch/track-status family", ErrUnsupported)

	default:
		return fmt.Errorf("session: unknown control message type 0x%x", msgType)
	}
	return nil
}
