// Package palette maps the small integer color codes found in a diff
// stream to concrete RGB colors. A palette is immutable for the whole
// run; the replay engine validates codes against it before any pixel is
// applied.
package palette

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image/color"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnknownCodeError reports a color code outside the palette range. It is
// fatal for a replay: the stream and the palette disagree on versions.
type UnknownCodeError struct {
	Code uint32
	Size int
}

func (e *UnknownCodeError) Error() string {
	return fmt.Sprintf("unknown color code %d (palette has %d colors)", e.Code, e.Size)
}

// Palette is a fixed table of colors indexed by code.
type Palette struct {
	colors []color.NRGBA
	hex    []string
}

// Default2017 is the 16-color palette of the April 2017 archive.
func Default2017() Palette {
	p, err := FromHex([]string{
		"ffffff", "e4e4e4", "888888", "222222",
		"ffa7d1", "e50000", "e59500", "a06a42",
		"e5d900", "94e044", "02be01", "00d3dd",
		"0083c7", "0000ea", "cf6ee4", "820080",
	})
	if err != nil {
		panic(err) // static table
	}
	return p
}

// FromHex builds a palette from rrggbb hex strings, code i mapping to
// colors[i].
func FromHex(colors []string) (Palette, error) {
	if len(colors) == 0 {
		return Palette{}, fmt.Errorf("empty palette")
	}
	p := Palette{
		colors: make([]color.NRGBA, 0, len(colors)),
		hex:    make([]string, 0, len(colors)),
	}
	for i, s := range colors {
		s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "#")
		if len(s) != 6 {
			return Palette{}, fmt.Errorf("color %d: want rrggbb, got %q", i, s)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return Palette{}, fmt.Errorf("color %d: %w", i, err)
		}
		p.colors = append(p.colors, color.NRGBA{R: b[0], G: b[1], B: b[2], A: 0xff})
		p.hex = append(p.hex, s)
	}
	return p, nil
}

type fileFormat struct {
	Colors []string `yaml:"colors"`
}

// LoadFile reads a palette from a YAML file with a single `colors` list
// of rrggbb strings.
func LoadFile(path string) (Palette, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Palette{}, err
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Palette{}, fmt.Errorf("palette %s: %w", path, err)
	}
	p, err := FromHex(f.Colors)
	if err != nil {
		return Palette{}, fmt.Errorf("palette %s: %w", path, err)
	}
	return p, nil
}

// Size returns the number of colors; valid codes are [0, Size).
func (p Palette) Size() int { return len(p.colors) }

// Resolve returns the color for a code.
func (p Palette) Resolve(code uint32) (color.NRGBA, error) {
	if int(code) >= len(p.colors) {
		return color.NRGBA{}, &UnknownCodeError{Code: code, Size: len(p.colors)}
	}
	return p.colors[code], nil
}

// Hex returns the rrggbb strings in code order.
func (p Palette) Hex() []string {
	out := make([]string, len(p.hex))
	copy(out, p.hex)
	return out
}

// Digest is a stable identifier of the palette contents, used to
// cross-check a diff archive's manifest against the palette actually
// loaded.
func (p Palette) Digest() string {
	sum := sha256.Sum256([]byte(strings.Join(p.hex, ",")))
	return hex.EncodeToString(sum[:])
}
