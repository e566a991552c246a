package annexb

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/zsiec/hang/internal/catalog"
	"github.com/zsiec/hang/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nal(nalType byte, body ...byte) []byte {
	return append([]byte{nalType}, body...)
}

func TestImportEmitsCatalogAndFrames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	broadcast := model.NewBroadcast()
	im := NewImport(testLogger(), broadcast.Producer())
	consumer := broadcast.Consumer()

	var stream []byte
	stream = append(stream, startCode...)
	stream = append(stream, nal(nalTypeSPS, 0x01, 0x02)...)
	stream = append(stream, startCode...)
	stream = append(stream, nal(nalTypePPS, 0x03)...)
	stream = append(stream, startCode...)
	stream = append(stream, nal(nalTypeIDR, 0xAA, 0xBB)...)
	stream = append(stream, startCode...)
	stream = append(stream, nal(nalTypeSlice, 0xCC)...)
	stream = append(stream, startCode...) // terminates the final slice NAL

	if _, err := im.Write(stream); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := im.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	im.Close()

	catConsumer, err := consumer.SubscribeTrack(ctx, "catalog.json")
	if err != nil {
		t.Fatal(err)
	}
	catGroup, err := catConsumer.NextGroup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	catFrame, err := catGroup.NextFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	catData, err := catFrame.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Parse(catData)
	if err != nil {
		t.Fatalf("parsing catalog: %v", err)
	}
	if cat.Video == nil {
		t.Fatal("expected a video section in the catalog")
	}
	cfg, ok := cat.Video.Renditions["video"]
	if !ok {
		t.Fatal("expected a \"video\" rendition")
	}
	if cfg.Codec != "avc3" {
		t.Fatalf("codec = %q, want avc3", cfg.Codec)
	}

	videoConsumer, err := consumer.SubscribeTrack(ctx, "video")
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
	if !f1.Info().Keyframe {
		t.Fatal("IDR frame must be marked keyframe")
	}
	payload1, err := f1.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want1 := append(append([]byte{0, 0, 0, 1}, nalTypeIDR), 0xAA, 0xBB)
	if string(payload1) != string(want1) {
		t.Fatalf("frame1 payload = %x, want %x", payload1, want1)
	}

	// The following slice NAL is not a keyframe, so it belongs to the
	// same group as the IDR that opened it.
	f2, err := group.NextFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f2.Info().Keyframe {
		t.Fatal("non-IDR slice must not be marked keyframe")
	}

	if _, err := group.NextFrame(ctx); err != io.EOF {
		t.Fatalf("expected io.EOF after Close, got %v", err)
	}
}

func TestSplitNALNeedsMoreData(t *testing.T) {
	t.Parallel()

	buf := append(append([]byte{}, startCode...), nal(nalTypeSEI, 0x01)...)
	_, _, ok := splitNAL(buf)
	if ok {
		t.Fatal("splitNAL should not return a unit without a following start code")
	}
}

func TestTrimTrailingZeros(t *testing.T) {
	t.Parallel()

	got := trimTrailingZeros([]byte{0x67, 0x01, 0x00, 0x00})
	want := []byte{0x67, 0x01}
	if string(got) != string(want) {
		t.Fatalf("trimTrailingZeros = %x, want %x", got, want)
	}
}
