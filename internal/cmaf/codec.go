package cmaf

import (
	"encoding/base64"
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/zsiec/hang/internal/catalog"
)

// videoRenditionConfig builds the catalog entry for a "vide" trak's
// single sample description. The codec-specific decoder configuration
// box (avcC/hvcC/vpcC/av1C) is carried verbatim as the rendition's
// base64 description rather than redecoded field-by-field: a consumer
// that needs profile/level detail can decode it itself, and we avoid
// repeating the box layout a second time.
func videoRenditionConfig(stsd *mp4.StsdBox) (catalog.VideoConfig, error) {
	entry, err := soleSampleEntry(stsd)
	if err != nil {
		return catalog.VideoConfig{}, err
	}

	visual, ok := entry.(*mp4.VisualSampleEntryBox)
	if !ok {
		return catalog.VideoConfig{}, fmt.Errorf("%w: %s sample entry is not a visual sample entry", ErrUnsupportedCodec, entry.Type())
	}

	var descBox mp4.Box
	switch visual.Type() {
	case "avc1", "avc3":
		descBox = childOfType(visual.Children, "avcC")
	case "hev1", "hvc1":
		descBox = childOfType(visual.Children, "hvcC")
	case "vp08", "vp09":
		descBox = childOfType(visual.Children, "vpcC")
	case "av01":
		descBox = childOfType(visual.Children, "av1C")
	default:
		return catalog.VideoConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedCodec, visual.Type())
	}

	cfg := catalog.VideoConfig{
		Codec:  visual.Type(),
		Width:  int(visual.Width),
		Height: int(visual.Height),
	}
	if descBox != nil {
		raw, err := encodeBox(descBox)
		if err != nil {
			return catalog.VideoConfig{}, fmt.Errorf("encoding %s: %w", descBox.Type(), err)
		}
		cfg.DescriptionB64 = base64.StdEncoding.EncodeToString(raw)
	}
	return cfg, nil
}

// audioRenditionConfig builds the catalog entry for a "soun" trak.
func audioRenditionConfig(stsd *mp4.StsdBox) (catalog.AudioConfig, error) {
	entry, err := soleSampleEntry(stsd)
	if err != nil {
		return catalog.AudioConfig{}, err
	}

	audio, ok := entry.(*mp4.AudioSampleEntryBox)
	if !ok {
		return catalog.AudioConfig{}, fmt.Errorf("%w: %s sample entry is not an audio sample entry", ErrUnsupportedCodec, entry.Type())
	}

	cfg := catalog.AudioConfig{
		SampleRate: int(audio.SampleRate),
		Channels:   int(audio.ChannelCount),
	}

	switch audio.Type() {
	case "mp4a":
		esds := childOfType(audio.Children, "esds")
		if esds == nil {
			return catalog.AudioConfig{}, missingBox("esds")
		}
		raw, err := encodeBox(esds)
		if err != nil {
			return catalog.AudioConfig{}, fmt.Errorf("encoding esds: %w", err)
		}
		oti, err := aacObjectTypeIndication(raw)
		if err != nil {
			return catalog.AudioConfig{}, err
		}
		if oti != 0x40 {
			return catalog.AudioConfig{}, fmt.Errorf("%w: esds object_type_indication %#x, only AAC (0x40) is supported", ErrUnsupportedCodec, oti)
		}
		cfg.Codec = "mp4a"
		cfg.DescriptionB64 = base64.StdEncoding.EncodeToString(raw)
	case "Opus", "opus":
		cfg.Codec = "Opus"
		if dops := childOfType(audio.Children, "dOps"); dops != nil {
			raw, err := encodeBox(dops)
			if err != nil {
				return catalog.AudioConfig{}, fmt.Errorf("encoding dOps: %w", err)
			}
			cfg.DescriptionB64 = base64.StdEncoding.EncodeToString(raw)
		}
	default:
		return catalog.AudioConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedCodec, audio.Type())
	}
	return cfg, nil
}

func soleSampleEntry(stsd *mp4.StsdBox) (mp4.Box, error) {
	switch len(stsd.Children) {
	case 0:
		return nil, ErrMissingCodec
	case 1:
		return stsd.Children[0], nil
	default:
		return nil, ErrMultipleCodecs
	}
}

// aacObjectTypeIndication walks the raw esds box looking for the
// DecoderConfigDescriptor (tag 0x04) and returns the object type byte
// immediately following it, per the ISO/IEC 14496-1 descriptor
// encoding. This is decoded by hand, rather than through a box-specific
// accessor, because the descriptor's tag-length-value layout is a fixed
// part of the MPEG-4 systems spec independent of any box library.
func aacObjectTypeIndication(raw []byte) (byte, error) {
	// Skip the 12-byte full-box header (size, type, version/flags) that
	// precedes the descriptor tree in an encoded esds box.
	const esdsHeader = 12
	if len(raw) < esdsHeader {
		return 0, fmt.Errorf("cmaf: esds box too short")
	}
	b := raw[esdsHeader:]
	for len(b) > 0 {
		tag := b[0]
		b = b[1:]
		size, n, err := readDescriptorLength(b)
		if err != nil {
			return 0, err
		}
		b = b[n:]
		if uint64(len(b)) < size {
			return 0, fmt.Errorf("cmaf: truncated descriptor in esds")
		}
		if tag == 0x04 { // DecoderConfigDescriptor
			if size < 1 {
				return 0, fmt.Errorf("cmaf: empty DecoderConfigDescriptor")
			}
			return b[0], nil
		}
		b = b[size:]
	}
	return 0, fmt.Errorf("cmaf: esds has no DecoderConfigDescriptor")
}

// readDescriptorLength decodes the MPEG-4 descriptor variable-length
// size field: up to four bytes, each carrying 7 bits of value with the
// top bit signaling continuation.
func readDescriptorLength(b []byte) (size uint64, consumed int, err error) {
	for i := 0; i < 4 && i < len(b); i++ {
		size = size<<7 | uint64(b[i]&0x7f)
		if b[i]&0x80 == 0 {
			return size, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("cmaf: malformed descriptor length")
}
