package cmaf

import "testing"

// buildEsds constructs a minimal esds box body: a 12-byte stand-in for
// the full-box header (size/type/version+flags, never inspected by
// aacObjectTypeIndication) followed by an ES_Descriptor (tag 0x03)
// wrapping a DecoderConfigDescriptor (tag 0x04) whose first byte is the
// object type indication.
func buildEsds(objectType byte) []byte {
	decCfg := []byte{0x04, 0x0d, objectType, 0x15, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	es := append([]byte{0x03, byte(len(decCfg) + 3), 0x00, 0x01, 0x00}, decCfg...)
	return append(make([]byte, 12), es...)
}

func TestAacObjectTypeIndicationAAC(t *testing.T) {
	t.Parallel()

	raw := buildEsds(0x40)
	oti, err := aacObjectTypeIndication(raw)
	if err != nil {
		t.Fatal(err)
	}
	if oti != 0x40 {
		t.Fatalf("objectTypeIndication = %#x, want 0x40", oti)
	}
}

func TestAacObjectTypeIndicationOther(t *testing.T) {
	t.Parallel()

	raw := buildEsds(0x69) // MPEG-2 Audio, not AAC
	oti, err := aacObjectTypeIndication(raw)
	if err != nil {
		t.Fatal(err)
	}
	if oti == 0x40 {
		t.Fatal("expected a non-AAC object type")
	}
}

func TestAacObjectTypeIndicationTooShort(t *testing.T) {
	t.Parallel()

	if _, err := aacObjectTypeIndication(make([]byte, 4)); err == nil {
		t.Fatal("expected error for truncated esds")
	}
}

func TestReadDescriptorLengthSingleByte(t *testing.T) {
	t.Parallel()

	size, n, err := readDescriptorLength([]byte{0x0d, 0xff})
	if err != nil {
		t.Fatal(err)
	}
	if size != 0x0d || n != 1 {
		t.Fatalf("size=%d n=%d, want 13 1", size, n)
	}
}

func TestReadDescriptorLengthMultiByte(t *testing.T) {
	t.Parallel()

	// 0x81 0x02 encodes 7-bit groups (0x01 << 7) | 0x02 = 130.
	size, n, err := readDescriptorLength([]byte{0x81, 0x02})
	if err != nil {
		t.Fatal(err)
	}
	if size != 130 || n != 2 {
		t.Fatalf("size=%d n=%d, want 130 2", size, n)
	}
}
