// Package catalog builds and parses the JSON document published as a
// broadcast's catalog.json track (spec §3): a description of every
// rendition available, keyed by track name, so a subscriber can pick
// one without inspecting the media itself.
package catalog

import "encoding/json"

// VideoConfig describes one video rendition's codec configuration.
type VideoConfig struct {
	Codec          string `json:"codec"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	DescriptionB64 string `json:"description,omitempty"`
	Bitrate        int    `json:"bitrate,omitempty"`
}

// AudioConfig describes one audio rendition's codec configuration.
type AudioConfig struct {
	Codec          string `json:"codec"`
	SampleRate     int    `json:"sampleRate,omitempty"`
	Channels       int    `json:"channels,omitempty"`
	DescriptionB64 string `json:"description,omitempty"`
	Bitrate        int    `json:"bitrate,omitempty"`
}

// VideoSection lists every video rendition and its selection priority.
type VideoSection struct {
	Renditions map[string]VideoConfig `json:"renditions"`
	Priority   int                    `json:"priority,omitempty"`
}

// AudioSection lists every audio rendition and its selection priority.
type AudioSection struct {
	Renditions map[string]AudioConfig `json:"renditions"`
	Priority   int                    `json:"priority,omitempty"`
}

// Catalog is the top-level document published on the catalog.json
// track, enumerating every rendition of a broadcast (spec §3).
type Catalog struct {
	Video *VideoSection `json:"video,omitempty"`
	Audio *AudioSection `json:"audio,omitempty"`
}

// NewCatalog returns an empty catalog with both sections initialized.
func NewCatalog() *Catalog {
	return &Catalog{
		Video: &VideoSection{Renditions: make(map[string]VideoConfig)},
		Audio: &AudioSection{Renditions: make(map[string]AudioConfig)},
	}
}

// AddVideo registers (or replaces) a video rendition by name.
func (c *Catalog) AddVideo(name string, cfg VideoConfig) {
	if c.Video == nil {
		c.Video = &VideoSection{Renditions: make(map[string]VideoConfig)}
	}
	c.Video.Renditions[name] = cfg
}

// AddAudio registers (or replaces) an audio rendition by name.
func (c *Catalog) AddAudio(name string, cfg AudioConfig) {
	if c.Audio == nil {
		c.Audio = &AudioSection{Renditions: make(map[string]AudioConfig)}
	}
	c.Audio.Renditions[name] = cfg
}

// Marshal encodes the catalog as the single-frame JSON document written
// to the catalog.json track on every update (spec §6).
func (c *Catalog) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Parse decodes a catalog.json frame's payload.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
