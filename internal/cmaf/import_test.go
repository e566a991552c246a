package cmaf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/zsiec/hang/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestImport builds an Import with a hand-built two-track moov (video
// track 1, audio track 2) and the matching trackState entries wired
// directly against a fresh broadcast, bypassing the moov box decode and
// codec inspection that init() performs so these tests can focus on
// extract()'s fragment demuxing.
func newTestImport(t *testing.T) (*Import, *model.BroadcastConsumer) {
	t.Helper()

	broadcast := model.NewBroadcast()
	producer := broadcast.Producer()

	videoTrack := model.NewTrack("video1", 2)
	audioTrack := model.NewTrack("audio2", 2)
	producer.InsertTrack(videoTrack)
	producer.InsertTrack(audioTrack)

	moov := &mp4.MoovBox{Children: []mp4.Box{
		&mp4.TrakBox{
			Tkhd: &mp4.TkhdBox{TrackID: 1},
			Mdia: &mp4.MdiaBox{
				Mdhd: &mp4.MdhdBox{Timescale: 90000},
				Hdlr: &mp4.HdlrBox{HandlerType: "vide"},
			},
		},
		&mp4.TrakBox{
			Tkhd: &mp4.TkhdBox{TrackID: 2},
			Mdia: &mp4.MdiaBox{
				Mdhd: &mp4.MdhdBox{Timescale: 48000},
				Hdlr: &mp4.HdlrBox{HandlerType: "soun"},
			},
		},
	}}

	im := &Import{
		log:          testLogger(),
		broadcast:    producer,
		tracks:       make(map[uint32]*trackState),
		lastKeyframe: make(map[uint32]int64),
		moov:         moov,
	}
	im.tracks[1] = &trackState{producer: videoTrack.Producer(), video: true, timescale: 90000}
	im.tracks[2] = &trackState{producer: audioTrack.Producer(), video: false, timescale: 48000}

	return im, broadcast.Consumer()
}

const (
	videoKeyframeFlags    = 0x02000000 // depends_on = no-other, sync sample
	videoNonKeyframeFlags = 0x01010000 // depends_on = others, non-sync
)

func TestExtractEmitsFramesForVideoAndAudio(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	im, consumer := newTestImport(t)

	mdat := &mp4.MdatBox{Data: make([]byte, 1600)}
	copy(mdat.Data[0:1000], []byte{0xAA})
	copy(mdat.Data[1000:1500], []byte{0xBB})
	copy(mdat.Data[1500:1600], []byte{0xCC})

	moof := &mp4.MoofBox{Children: []mp4.Box{
		&mp4.TrafBox{Children: []mp4.Box{
			&mp4.TfhdBox{TrackID: 1},
			&mp4.TfdtBox{BaseMediaDecodeTime: 0},
			&mp4.TrunBox{
				Flags: trunSampleDurationPresent | trunSampleSizePresent | trunSampleFlagsPresent,
				Samples: []mp4.Sample{
					{Flags: videoKeyframeFlags, Dur: 3000, Size: 1000},
					{Flags: videoNonKeyframeFlags, Dur: 3000, Size: 500},
				},
			},
		}},
		&mp4.TrafBox{Children: []mp4.Box{
			&mp4.TfhdBox{TrackID: 2, Flags: tfhdBaseDataOffsetPresent, BaseDataOffset: 0},
			&mp4.TfdtBox{BaseMediaDecodeTime: 0},
			&mp4.TrunBox{
				Flags:      trunSampleDurationPresent | trunSampleSizePresent | trunDataOffsetPresent,
				DataOffset: 1608, // moofSize(100) + headerSize(8) + 1500
				Samples: []mp4.Sample{
					{Dur: 1024, Size: 100},
				},
			},
		}},
	}}

	im.moofSize = 100
	if err := im.extract(moof, mdat, 8); err != nil {
		t.Fatalf("extract: %v", err)
	}

	videoConsumer, err := consumer.SubscribeTrack(ctx, "video1")
	if err != nil {
		t.Fatal(err)
	}
	group, err := videoConsumer.NextGroup(ctx)
	if err != nil {
		t.Fatal(err)
	}

	f1, err := group.NextFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f1.Info().Timestamp != 0 || !f1.Info().Keyframe {
		t.Fatalf("frame1 info = %+v, want timestamp=0 keyframe=true", f1.Info())
	}
	payload1, err := f1.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload1) != 1000 || payload1[0] != 0xAA {
		t.Fatalf("frame1 payload length=%d first=%#x", len(payload1), payload1[0])
	}

	f2, err := group.NextFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f2.Info().Timestamp != 33333 || f2.Info().Keyframe {
		t.Fatalf("frame2 info = %+v, want timestamp=33333 keyframe=false", f2.Info())
	}

	audioConsumer, err := consumer.SubscribeTrack(ctx, "audio2")
	if err != nil {
		t.Fatal(err)
	}
	audioGroup, err := audioConsumer.NextGroup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	af, err := audioGroup.NextFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if af.Info().Timestamp != 0 || !af.Info().Keyframe {
		t.Fatalf("audio frame info = %+v, want timestamp=0 keyframe=true", af.Info())
	}
	audioPayload, err := af.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(audioPayload) != 100 || audioPayload[0] != 0xCC {
		t.Fatalf("audio payload length=%d first=%#x", len(audioPayload), audioPayload[0])
	}
}

func TestIsKeyframeForcesAudioAfterGap(t *testing.T) {
	t.Parallel()

	im, _ := newTestImport(t)

	if !im.isKeyframe(im.tracks[2], 2, 0, 0) {
		t.Fatal("first audio sample must be a keyframe")
	}
	if im.isKeyframe(im.tracks[2], 2, 0, 5_000_000) {
		t.Fatal("audio sample 5s after a keyframe must not be forced")
	}
	if !im.isKeyframe(im.tracks[2], 2, 0, 11_000_000) {
		t.Fatal("audio sample 11s after the last keyframe must be forced")
	}
}

func TestIsKeyframeVideoClearsAudioTracking(t *testing.T) {
	t.Parallel()

	im, _ := newTestImport(t)

	im.isKeyframe(im.tracks[2], 2, 0, 1_000_000)
	if !im.isKeyframe(im.tracks[1], 1, videoKeyframeFlags, 1_500_000) {
		t.Fatal("video sample with depends_on=no-other and sync must be a keyframe")
	}
	if !im.isKeyframe(im.tracks[2], 2, 0, 1_600_000) {
		t.Fatal("audio keyframe tracking must reset after a video keyframe")
	}
}

func TestIsKeyframeVideoNonSync(t *testing.T) {
	t.Parallel()

	im, _ := newTestImport(t)
	if im.isKeyframe(im.tracks[1], 1, videoNonKeyframeFlags, 0) {
		t.Fatal("video sample depending on another sample must not be a keyframe")
	}
}

func TestProcessMissingMoofBeforeMdat(t *testing.T) {
	t.Parallel()

	im, _ := newTestImport(t)
	err := im.process("mdat", 16, &mp4.MdatBox{Data: []byte{}})
	if !errors.Is(err, ErrMissingBox) {
		t.Fatalf("process(mdat) error = %v, want ErrMissingBox", err)
	}
}

func TestProcessDuplicateMoof(t *testing.T) {
	t.Parallel()

	im, _ := newTestImport(t)
	first := &mp4.MoofBox{}
	if err := im.process("moof", 8, first); err != nil {
		t.Fatalf("first moof: %v", err)
	}

	second := &mp4.MoofBox{}
	err := im.process("moof", 8, second)
	if !errors.Is(err, ErrDuplicateBox) {
		t.Fatalf("process(moof) error = %v, want ErrDuplicateBox", err)
	}
}

func TestExtractInvalidDataOffset(t *testing.T) {
	t.Parallel()

	im, _ := newTestImport(t)
	im.moofSize = 100

	mdat := &mp4.MdatBox{Data: make([]byte, 100)}
	moof := &mp4.MoofBox{Children: []mp4.Box{
		&mp4.TrafBox{Children: []mp4.Box{
			&mp4.TfhdBox{TrackID: 1},
			&mp4.TfdtBox{BaseMediaDecodeTime: 0},
			&mp4.TrunBox{
				Flags:      trunSampleDurationPresent | trunSampleSizePresent | trunDataOffsetPresent,
				DataOffset: 50, // below moofSize: not a valid byte offset into mdat
				Samples: []mp4.Sample{
					{Flags: videoKeyframeFlags, Dur: 3000, Size: 10},
				},
			},
		}},
	}}

	err := im.extract(moof, mdat, 8)
	if !errors.Is(err, ErrInvalidOffset) {
		t.Fatalf("extract error = %v, want ErrInvalidOffset", err)
	}
}
