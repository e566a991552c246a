package session

import "errors"

// Protocol-level sentinels (spec §7's "Protocol" and "NotFound/Old/
// Duplicate" error kinds).
var (
	ErrVersionMismatch   = errors.New("session: no common version")
	ErrUnknownNamespace  = errors.New("session: unknown namespace")
	ErrUnknownTrack      = errors.New("session: unknown track")
	ErrUnsupportedFilter = errors.New("session: unsupported filter type")
	ErrUnsupported       = errors.New("session: unsupported message")
	ErrDuplicateAnnounce = errors.New("session: duplicate PUBLISH_NAMESPACE")
)
