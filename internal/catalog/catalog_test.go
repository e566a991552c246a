package catalog

import (
	"encoding/json"
	"testing"
)

func TestCatalogRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewCatalog()
	c.AddVideo("video1", VideoConfig{Codec: "avc1.640028", Width: 1920, Height: 1080})
	c.AddAudio("audio1", AudioConfig{Codec: "mp4a.40.2", SampleRate: 48000, Channels: 2})

	data, err := c.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}

	vc, ok := got.Video.Renditions["video1"]
	if !ok {
		t.Fatal("missing video1 rendition")
	}
	if vc.Codec != "avc1.640028" || vc.Width != 1920 || vc.Height != 1080 {
		t.Fatalf("video1 = %+v", vc)
	}

	ac, ok := got.Audio.Renditions["audio1"]
	if !ok {
		t.Fatal("missing audio1 rendition")
	}
	if ac.Codec != "mp4a.40.2" || ac.SampleRate != 48000 || ac.Channels != 2 {
		t.Fatalf("audio1 = %+v", ac)
	}
}

func TestCatalogJSONFieldNames(t *testing.T) {
	t.Parallel()

	c := NewCatalog()
	c.AddVideo("video1", VideoConfig{Codec: "avc1.640028"})

	data, err := c.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}

	video, ok := raw["video"].(map[string]any)
	if !ok {
		t.Fatal("missing top-level video section")
	}
	renditions, ok := video["renditions"].(map[string]any)
	if !ok {
		t.Fatal("missing video.renditions")
	}
	if _, ok := renditions["video1"]; !ok {
		t.Fatal("missing video.renditions.video1")
	}
}

func TestCatalogOmitsEmptyAudioSection(t *testing.T) {
	t.Parallel()

	c := &Catalog{Video: &VideoSection{Renditions: map[string]VideoConfig{
		"video1": {Codec: "avc1.640028"},
	}}}

	data, err := c.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["audio"]; ok {
		t.Fatal("audio section should be omitted when nil")
	}
}

func TestCatalogParseInvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
