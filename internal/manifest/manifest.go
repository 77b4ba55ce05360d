// Package manifest describes a diff archive: canvas dimensions, the
// frozen record layout, the palette, and timestamps to skip. Manifests
// are JSON sidecar files validated against a schema before anything
// trusts their contents.
package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"placelapse.dev/internal/diff"
	"placelapse.dev/internal/palette"
)

//go:embed manifest.schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("manifest.schema.json", schemaJSON)

type Manifest struct {
	Version        int      `json:"version"`
	Width          uint32   `json:"width"`
	Height         uint32   `json:"height"`
	RecordBytes    int      `json:"record_bytes"`
	ByteOrder      string   `json:"byte_order"`
	Background     uint8    `json:"background"`
	PaletteHex     []string `json:"palette"`
	SkipTimestamps []uint32 `json:"skip_timestamps,omitempty"`
}

// Default describes the April 2017 archive: 1000x1000 canvas, 16-color
// palette, one blank first frame to skip.
func Default() Manifest {
	return Manifest{
		Version:        1,
		Width:          1000,
		Height:         1000,
		RecordBytes:    diff.RecordSize,
		ByteOrder:      "le",
		Background:     0,
		PaletteHex:     palette.Default2017().Hex(),
		SkipTimestamps: []uint32{1490986860},
	}
}

// Load reads and validates a manifest file. Schema validation runs
// before unmarshaling into the typed struct, so a malformed sidecar is
// rejected with a field-level reason instead of decoding to zero
// values.
func Load(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	if err := schema.Validate(doc); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Format returns the decoder parameters the manifest pins down.
func (m Manifest) Format() diff.Format {
	return diff.Format{Width: m.Width, Height: m.Height, Colors: len(m.PaletteHex)}
}

// Colors builds the palette the manifest declares.
func (m Manifest) Colors() (palette.Palette, error) {
	return palette.FromHex(m.PaletteHex)
}
