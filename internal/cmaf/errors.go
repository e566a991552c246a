package cmaf

import (
	"errors"
	"fmt"
)

// Sentinel errors returned while demuxing an fMP4 stream. Wrap with
// fmt.Errorf("%w: ...") at the call site when more context helps; callers
// should still be able to errors.Is against these.
var (
	ErrMissingBox       = errors.New("cmaf: missing box")
	ErrDuplicateBox     = errors.New("cmaf: duplicate box")
	ErrInvalidOffset    = errors.New("cmaf: invalid trun data offset")
	ErrUnknownTrack     = errors.New("cmaf: traf references a track not present in moov")
	ErrUnsupportedTrack = errors.New("cmaf: unsupported track handler")
	ErrMissingCodec     = errors.New("cmaf: sample description has no codec")
	ErrMultipleCodecs   = errors.New("cmaf: sample description has multiple codecs")
	ErrUnsupportedCodec = errors.New("cmaf: unsupported codec")
	ErrTrailingData     = errors.New("cmaf: trailing bytes after final box")
)

func missingBox(name string) error   { return fmt.Errorf("%w: %s", ErrMissingBox, name) }
func duplicateBox(name string) error { return fmt.Errorf("%w: %s", ErrDuplicateBox, name) }
