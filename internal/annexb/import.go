// Package annexb ingests a raw Annex-B H.264 elementary stream — NAL
// units delimited by start codes, no container framing at all — into a
// broadcast carrying a single video track. This is the alternate
// ingest path the CLI's --format flag offers alongside CMAF; it has no
// codec-config box, no per-sample timing, and no audio, so there is
// much less here than in internal/cmaf.
package annexb

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/zsiec/hang/internal/catalog"
	"github.com/zsiec/hang/internal/model"
)

// NAL unit types (ITU-T H.264 Table 7-1), the only ones this importer
// looks at.
const (
	nalTypeSlice = 1
	nalTypeIDR   = 5
	nalTypeSEI   = 6
	nalTypeSPS   = 7
	nalTypePPS   = 8
)

var startCode = []byte{0, 0, 1}

// Import incrementally demuxes a raw Annex-B byte stream, fed via
// successive calls to Write.
type Import struct {
	log   *slog.Logger
	start time.Time

	cat       *catalog.Catalog
	catTrack  *model.TrackProducer
	catGroup  model.GroupProducer
	catOpened bool
	published bool

	track   *model.TrackProducer
	group   model.GroupProducer
	opened  bool
	nextSeq uint64

	buf []byte

	sps, pps []byte
	pending  [][]byte // non-VCL NALs (SPS/PPS/SEI) waiting for the slice that starts their access unit
}

// NewImport starts an import against broadcast, immediately inserting
// the catalog.json and video tracks — the catalog's content isn't
// published until the first SPS/PPS pair arrives, but subscribers can
// subscribe and block on it from the start.
func NewImport(log *slog.Logger, broadcast *model.BroadcastProducer) *Import {
	catTrack := model.NewTrack("catalog.json", 0)
	broadcast.InsertTrack(catTrack)

	videoTrack := model.NewTrack("video", 2)
	broadcast.InsertTrack(videoTrack)

	return &Import{
		log:      log,
		start:    time.Now(),
		cat:      catalog.NewCatalog(),
		catTrack: catTrack.Producer(),
		track:    videoTrack.Producer(),
	}
}

// Write feeds more bytes of the input stream, extracting and handling
// as many complete NAL units as are buffered.
func (im *Import) Write(data []byte) (int, error) {
	im.buf = append(im.buf, data...)
	for {
		nal, rest, ok := splitNAL(im.buf)
		if !ok {
			break
		}
		im.buf = rest
		if len(nal) > 0 {
			im.handleNAL(nal)
		}
	}
	return len(data), nil
}

// Finish flushes the final NAL unit, if the stream didn't end on a
// start code, and closes whatever group is open.
func (im *Import) Finish() error {
	if nal := trimTrailingZeros(im.buf); len(nal) > 0 {
		im.handleNAL(nal)
	}
	im.buf = nil
	if im.opened {
		im.group.Close()
	}
	return nil
}

// splitNAL extracts the first complete NAL unit from buf: it searches
// for a leading start code (skipping any bytes before it — garbage
// before the first NAL, or none at all once Write is past its first
// call) and a following one marking the unit's end. ok is false until
// both are present, since the unit's end can't be known yet.
func splitNAL(buf []byte) (nal []byte, rest []byte, ok bool) {
	first := bytes.Index(buf, startCode)
	if first < 0 {
		return nil, buf, false
	}
	start := first + len(startCode)
	next := bytes.Index(buf[start:], startCode)
	if next < 0 {
		return nil, buf, false
	}
	return trimTrailingZeros(buf[start : start+next]), buf[start+next:], true
}

// trimTrailingZeros drops the zero bytes a NAL unit's raw byte stream
// may end in — the leading byte of a 4-byte start code that follows it
// would otherwise read as part of the unit's payload.
func trimTrailingZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

func (im *Import) handleNAL(nal []byte) {
	nalType := nal[0] & 0x1f

	switch nalType {
	case nalTypeSPS:
		im.sps = append([]byte(nil), nal...)
		im.maybePublishCatalog()
		return
	case nalTypePPS:
		im.pps = append([]byte(nil), nal...)
		im.maybePublishCatalog()
		return
	case nalTypeSEI:
		im.pending = append(im.pending, nal)
		return
	}

	var payload []byte
	for _, p := range im.pending {
		payload = append(payload, prependStartCode(p)...)
	}
	im.pending = im.pending[:0]
	payload = append(payload, prependStartCode(nal)...)

	im.emit(model.FrameInfo{
		Timestamp: time.Since(im.start).Microseconds(),
		Keyframe:  nalType == nalTypeIDR,
		Size:      uint64(len(payload)),
	}, payload)
}

func prependStartCode(nal []byte) []byte {
	out := make([]byte, 0, len(nal)+4)
	out = append(out, 0, 0, 0, 1)
	return append(out, nal...)
}

// maybePublishCatalog builds and emits the catalog once both an SPS
// and a PPS have been seen — in-band parameter sets, carried in the
// catalog description the same way an avc3 (as opposed to avc1) sample
// entry would.
func (im *Import) maybePublishCatalog() {
	if im.published || im.sps == nil || im.pps == nil {
		return
	}
	im.published = true

	var desc []byte
	desc = append(desc, prependStartCode(im.sps)...)
	desc = append(desc, prependStartCode(im.pps)...)

	im.cat.AddVideo("video", catalog.VideoConfig{
		Codec:          "avc3",
		DescriptionB64: base64.StdEncoding.EncodeToString(desc),
	})

	data, err := im.cat.Marshal()
	if err != nil {
		im.log.Error("marshaling catalog", "error", err)
		return
	}

	im.catGroup = im.catTrack.CreateGroup(0)
	im.catOpened = true
	f := im.catGroup.CreateFrame(model.FrameInfo{Keyframe: true, Size: uint64(len(data))})
	f.WriteChunk(data)
	f.Close()
}

// emit writes a frame into the video track, cutting a new group on
// every IDR (or before the very first frame).
func (im *Import) emit(info model.FrameInfo, payload []byte) {
	if info.Keyframe || !im.opened {
		if im.opened {
			im.group.Close()
		}
		im.group = im.track.CreateGroup(im.nextSeq)
		im.nextSeq++
		im.opened = true
	}
	f := im.group.CreateFrame(info)
	f.WriteChunk(payload)
	f.Close()
}

// Close ends both tracks Import created.
func (im *Import) Close() {
	if im.catOpened {
		im.catGroup.Close()
	}
	im.catTrack.Close()
	if im.opened {
		im.group.Close()
	}
	im.track.Close()
}
