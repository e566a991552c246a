package cmaf

import (
	"github.com/Eyevinn/mp4ff/bits"
	"github.com/Eyevinn/mp4ff/mp4"
)

// childOfType returns the first child of box whose four-character type
// matches typ, searching the generic Children slice every mp4ff
// container box exposes alongside its typed convenience fields.
func childOfType(children []mp4.Box, typ string) mp4.Box {
	for _, c := range children {
		if c.Type() == typ {
			return c
		}
	}
	return nil
}

func childrenOfType(children []mp4.Box, typ string) []mp4.Box {
	var out []mp4.Box
	for _, c := range children {
		if c.Type() == typ {
			out = append(out, c)
		}
	}
	return out
}

// encodeBox serializes a single box (header included) the same way
// Import's init-segment handling encodes whole segments: allocate a
// slice writer sized to Size() and EncodeSW into it.
func encodeBox(b mp4.Box) ([]byte, error) {
	sw := bits.NewFixedSliceWriter(int(b.Size()))
	if err := b.EncodeSW(sw); err != nil {
		return nil, err
	}
	return sw.Bytes(), nil
}
