// Package cmaf ingests a fragmented MP4 (CMAF) byte stream — the
// `ftyp`/`styp`, `moov`, then repeating `moof`/`mdat` fragments produced
// by typical live encoders — and turns it into a broadcast: one track
// per `trak`, a catalog.json track describing them, and a Frame per
// sample with groups cut at keyframes (spec §4.7).
package cmaf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/zsiec/hang/internal/catalog"
	"github.com/zsiec/hang/internal/model"
)

// Standard ISO/IEC 14496-12 box-flag bits used by tfhd and trun. These
// are part of the container format itself, not any particular decoding
// library's API, so they're safe to hardcode.
const (
	tfhdBaseDataOffsetPresent        = 0x000001
	tfhdDefaultSampleDurationPresent = 0x000008
	tfhdDefaultSampleSizePresent     = 0x000010
	tfhdDefaultSampleFlagsPresent    = 0x000020

	trunDataOffsetPresent                  = 0x000001
	trunFirstSampleFlagsPresent            = 0x000004
	trunSampleDurationPresent              = 0x000100
	trunSampleSizePresent                  = 0x000200
	trunSampleFlagsPresent                 = 0x000400
	trunSampleCompositionTimeOffsetPresent = 0x000800
)

// forcedAudioKeyframeGap is the maximum span without an audio keyframe
// before one is forced (spec §4.7).
const forcedAudioKeyframeGapUs = 10_000_000

// trackState is the per-trak bookkeeping Import keeps between the moov
// and every following fragment.
type trackState struct {
	producer  *model.TrackProducer
	video     bool
	timescale uint64

	group   model.GroupProducer
	opened  bool
	nextSeq uint64
}

// Import incrementally demuxes an fMP4 byte stream into broadcast,
// fed via successive calls to Write.
type Import struct {
	log *slog.Logger

	broadcast *model.BroadcastProducer
	cat       *catalog.Catalog
	catTrack  *trackState

	buf []byte

	tracks map[uint32]*trackState

	moov     *mp4.MoovBox
	moof     *mp4.MoofBox
	moofSize int

	lastKeyframe map[uint32]int64
}

// NewImport starts an import against broadcast, immediately inserting
// the catalog.json track so subscribers can discover it before any
// media has arrived.
func NewImport(log *slog.Logger, broadcast *model.BroadcastProducer) *Import {
	t := model.NewTrack("catalog.json", 0)
	broadcast.InsertTrack(t)

	return &Import{
		log:          log,
		broadcast:    broadcast,
		cat:          catalog.NewCatalog(),
		catTrack:     &trackState{producer: t.Producer()},
		tracks:       make(map[uint32]*trackState),
		lastKeyframe: make(map[uint32]int64),
	}
}

// Write feeds more bytes of the input stream, parsing as many complete
// boxes as are buffered and returning once it needs more data.
func (im *Import) Write(data []byte) (int, error) {
	im.buf = append(im.buf, data...)
	for {
		n, err := im.parseOne()
		if err != nil {
			return len(data), err
		}
		if n == 0 {
			break
		}
	}
	return len(data), nil
}

// Finish signals end of input: any bytes still buffered are a
// truncated final box.
func (im *Import) Finish() error {
	if len(im.buf) > 0 {
		return ErrTrailingData
	}
	return nil
}

// parseOne decodes and processes the single box at the front of buf,
// returning the number of bytes consumed, or 0 if buf doesn't yet hold
// a complete box.
func (im *Import) parseOne() (int, error) {
	if len(im.buf) < 8 {
		return 0, nil
	}
	size := uint64(binary.BigEndian.Uint32(im.buf[0:4]))
	boxType := string(im.buf[4:8])
	if size == 1 {
		if len(im.buf) < 16 {
			return 0, nil
		}
		size = binary.BigEndian.Uint64(im.buf[8:16])
	}
	if size == 0 {
		return 0, fmt.Errorf("cmaf: box %q with to-EOF size is not supported", boxType)
	}
	if uint64(len(im.buf)) < size {
		return 0, nil
	}

	raw := im.buf[:size]
	box, err := mp4.DecodeBox(0, bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("cmaf: decoding %s box: %w", boxType, err)
	}
	if err := im.process(boxType, int(size), box); err != nil {
		return 0, err
	}
	im.buf = im.buf[size:]
	return int(size), nil
}

func (im *Import) process(boxType string, size int, box mp4.Box) error {
	switch b := box.(type) {
	case *mp4.FtypBox:
	case *mp4.StypBox:
	case *mp4.MoovBox:
		return im.init(b)
	case *mp4.MoofBox:
		if im.moof != nil {
			return duplicateBox("moof")
		}
		im.moof = b
		im.moofSize = size
	case *mp4.MdatBox:
		if im.moov == nil {
			return missingBox("moov")
		}
		moof := im.moof
		if moof == nil {
			return missingBox("moof")
		}
		im.moof = nil
		headerSize := size - len(b.Data)
		return im.extract(moof, b, headerSize)
	default:
		im.log.Debug("skipping unrecognized atom", "type", boxType)
	}
	return nil
}

// init processes the moov box: one track per trak, the catalog built
// from their sample descriptions, published immediately.
func (im *Import) init(moov *mp4.MoovBox) error {
	for _, trak := range moovTraks(moov) {
		trackID := trak.Tkhd.TrackID
		stsd := trak.Mdia.Minf.Stbl.Stsd
		timescale := uint64(trak.Mdia.Mdhd.Timescale)

		switch trak.Mdia.Hdlr.HandlerType {
		case "vide":
			name := fmt.Sprintf("video%d", trackID)
			cfg, err := videoRenditionConfig(stsd)
			if err != nil {
				return fmt.Errorf("track %d: %w", trackID, err)
			}
			track := model.NewTrack(name, 2)
			im.broadcast.InsertTrack(track)
			im.tracks[trackID] = &trackState{producer: track.Producer(), video: true, timescale: timescale}
			im.cat.AddVideo(name, cfg)
		case "soun":
			name := fmt.Sprintf("audio%d", trackID)
			cfg, err := audioRenditionConfig(stsd)
			if err != nil {
				return fmt.Errorf("track %d: %w", trackID, err)
			}
			track := model.NewTrack(name, 2)
			im.broadcast.InsertTrack(track)
			im.tracks[trackID] = &trackState{producer: track.Producer(), video: false, timescale: timescale}
			im.cat.AddAudio(name, cfg)
		default:
			return fmt.Errorf("%w: %q", ErrUnsupportedTrack, trak.Mdia.Hdlr.HandlerType)
		}
	}

	im.moov = moov
	return im.publishCatalog()
}

func (im *Import) publishCatalog() error {
	data, err := im.cat.Marshal()
	if err != nil {
		return fmt.Errorf("cmaf: marshaling catalog: %w", err)
	}
	im.emit(im.catTrack, model.FrameInfo{Keyframe: true, Size: uint64(len(data))}, data)
	return nil
}

// extract demuxes every traf/trun in moof against the just-arrived
// mdat, emitting one Frame per sample (spec §4.7).
func (im *Import) extract(moof *mp4.MoofBox, mdat *mp4.MdatBox, headerSize int) error {
	var minTS, maxTS int64
	haveRange := false

	mvex, _ := childOfType(im.moov.Children, "mvex").(*mp4.MvexBox)

	for _, tb := range childrenOfType(moof.Children, "traf") {
		traf := tb.(*mp4.TrafBox)
		tfhd, _ := childOfType(traf.Children, "tfhd").(*mp4.TfhdBox)
		if tfhd == nil {
			return missingBox("tfhd")
		}
		trackID := tfhd.TrackID

		ts, ok := im.tracks[trackID]
		if !ok {
			return ErrUnknownTrack
		}
		trak := findTrak(im.moov, trackID)
		if trak == nil {
			return ErrUnknownTrack
		}

		var trex *mp4.TrexBox
		if mvex != nil {
			for _, tb := range childrenOfType(mvex.Children, "trex") {
				if t := tb.(*mp4.TrexBox); t.TrackID == trackID {
					trex = t
					break
				}
			}
		}
		var defaultDuration, defaultSize, defaultFlags uint32
		if trex != nil {
			defaultDuration = trex.DefaultSampleDuration
			defaultSize = trex.DefaultSampleSize
			defaultFlags = trex.DefaultSampleFlags
		}

		tfdt, _ := childOfType(traf.Children, "tfdt").(*mp4.TfdtBox)
		if tfdt == nil {
			return missingBox("tfdt")
		}
		dts := tfdt.BaseMediaDecodeTime

		truns := childrenOfType(traf.Children, "trun")
		if len(truns) == 0 {
			return missingBox("trun")
		}

		baseDataOffset := uint64(0)
		if tfhd.Flags&tfhdBaseDataOffsetPresent != 0 {
			baseDataOffset = tfhd.BaseDataOffset
		}
		offset := int(baseDataOffset)

		tfhdDuration := defaultDuration
		if tfhd.Flags&tfhdDefaultSampleDurationPresent != 0 {
			tfhdDuration = tfhd.DefaultSampleDuration
		}
		tfhdSize := defaultSize
		if tfhd.Flags&tfhdDefaultSampleSizePresent != 0 {
			tfhdSize = tfhd.DefaultSampleSize
		}
		tfhdFlags := defaultFlags
		if tfhd.Flags&tfhdDefaultSampleFlagsPresent != 0 {
			tfhdFlags = tfhd.DefaultSampleFlags
		}

		for _, trb := range truns {
			trun := trb.(*mp4.TrunBox)

			if trun.Flags&trunDataOffsetPresent != 0 {
				if trun.DataOffset < 0 {
					return ErrInvalidOffset
				}
				dataOffset := int(trun.DataOffset)
				if dataOffset < im.moofSize {
					return ErrInvalidOffset
				}
				offset = int(baseDataOffset) + dataOffset - im.moofSize - headerSize
			}

			hasFlags := trun.Flags&trunSampleFlagsPresent != 0
			hasDuration := trun.Flags&trunSampleDurationPresent != 0
			hasSize := trun.Flags&trunSampleSizePresent != 0
			hasCTS := trun.Flags&trunSampleCompositionTimeOffsetPresent != 0
			hasFirstFlags := trun.Flags&trunFirstSampleFlagsPresent != 0

			for i, sample := range trun.Samples {
				flags := tfhdFlags
				if hasFlags {
					flags = sample.Flags
				} else if i == 0 && hasFirstFlags {
					flags = trun.FirstSampleFlags
				}
				duration := tfhdDuration
				if hasDuration {
					duration = sample.Dur
				}
				size := tfhdSize
				if hasSize {
					size = sample.Size
				}
				cts := int64(0)
				if hasCTS {
					cts = int64(sample.CompositionTimeOffset)
				}

				pts := int64(dts) + cts
				timestampUs := 1_000_000 * pts / int64(ts.timescale)

				if offset+int(size) > len(mdat.Data) {
					return ErrInvalidOffset
				}
				payload := mdat.Data[offset : offset+int(size)]

				keyframe := im.isKeyframe(ts, trackID, flags, timestampUs)

				im.emit(ts, model.FrameInfo{Timestamp: timestampUs, Keyframe: keyframe, Size: uint64(size)}, payload)

				dts += uint64(duration)
				offset += int(size)

				if !haveRange || timestampUs < minTS {
					minTS = timestampUs
				}
				if !haveRange || timestampUs > maxTS {
					maxTS = timestampUs
				}
				haveRange = true
			}
		}
	}

	if haveRange && maxTS-minTS > 1000 {
		im.log.Warn("fMP4 fragment interleaves tracks with high skew", "spread_us", maxTS-minTS)
	}
	return nil
}

func (im *Import) isKeyframe(ts *trackState, trackID uint32, flags uint32, timestampUs int64) bool {
	if ts.video {
		dependsOnNoOther := (flags>>24)&0x3 == 0x2
		nonSync := (flags>>16)&0x1 == 0x1
		keyframe := dependsOnNoOther && !nonSync
		if keyframe {
			for _, other := range moovTraks(im.moov) {
				if other.Mdia.Hdlr.HandlerType == "soun" {
					delete(im.lastKeyframe, other.Tkhd.TrackID)
				}
			}
		}
		return keyframe
	}

	prev, ok := im.lastKeyframe[trackID]
	keyframe := !ok || timestampUs-prev > forcedAudioKeyframeGapUs
	if keyframe {
		im.lastKeyframe[trackID] = timestampUs
	}
	return keyframe
}

// emit writes a frame into ts, cutting a new group whenever the frame
// is a keyframe (spec §4.7) or none has been opened yet.
func (im *Import) emit(ts *trackState, info model.FrameInfo, payload []byte) {
	if info.Keyframe || !ts.opened {
		if ts.opened {
			ts.group.Close()
		}
		ts.group = ts.producer.CreateGroup(ts.nextSeq)
		ts.nextSeq++
		ts.opened = true
	}
	f := ts.group.CreateFrame(info)
	f.WriteChunk(payload)
	f.Close()
}

// Close ends every track Import created, including the catalog track.
func (im *Import) Close() {
	if im.catTrack.opened {
		im.catTrack.group.Close()
	}
	im.catTrack.producer.Close()
	for _, ts := range im.tracks {
		if ts.opened {
			ts.group.Close()
		}
		ts.producer.Close()
	}
}

func moovTraks(moov *mp4.MoovBox) []*mp4.TrakBox {
	var out []*mp4.TrakBox
	for _, c := range moov.Children {
		if t, ok := c.(*mp4.TrakBox); ok {
			out = append(out, t)
		}
	}
	return out
}

func findTrak(moov *mp4.MoovBox, trackID uint32) *mp4.TrakBox {
	for _, t := range moovTraks(moov) {
		if t.Tkhd.TrackID == trackID {
			return t
		}
	}
	return nil
}
