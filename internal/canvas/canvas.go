// Package canvas holds the mutable pixel grid a replay folds events
// into, and the immutable snapshots cut from it.
//
// Cells store palette codes, not resolved colors; code validity is
// enforced upstream by the decoder and the palette is immutable for the
// run, so resolution can wait until a snapshot is rendered.
package canvas

import (
	"image"
	"image/color"

	"placelapse.dev/internal/diff"
	"placelapse.dev/internal/palette"
)

// Canvas is a fixed-size grid of palette codes. One instance belongs to
// exactly one replay run; it is not safe for concurrent use.
type Canvas struct {
	w, h int
	pix  []uint8
}

// New returns a canvas with every cell set to the background code.
func New(width, height int, background uint8) *Canvas {
	c := &Canvas{w: width, h: height, pix: make([]uint8, width*height)}
	if background != 0 {
		for i := range c.pix {
			c.pix[i] = background
		}
	}
	return c
}

func (c *Canvas) Width() int  { return c.w }
func (c *Canvas) Height() int { return c.h }

// Apply sets the cell addressed by a decoded record. Out-of-bounds
// coordinates are rejected, never clamped: a misplaced pixel would
// corrupt every later snapshot. The decoder already validates bounds;
// this re-check keeps the canvas safe against other callers.
func (c *Canvas) Apply(rec diff.Record) error {
	if rec.X >= uint32(c.w) {
		return &diff.MalformedRecordError{Timestamp: rec.Timestamp, Field: "x", Value: rec.X, Limit: uint32(c.w)}
	}
	if rec.Y >= uint32(c.h) {
		return &diff.MalformedRecordError{Timestamp: rec.Timestamp, Field: "y", Value: rec.Y, Limit: uint32(c.h)}
	}
	// Cells are one byte wide; a code past 255 cannot be stored and must
	// not be truncated, even when the decoder ran with color validation
	// disabled.
	if rec.Color > 0xff {
		return &diff.MalformedRecordError{Timestamp: rec.Timestamp, Field: "color", Value: rec.Color, Limit: 256}
	}
	c.pix[int(rec.Y)*c.w+int(rec.X)] = uint8(rec.Color)
	return nil
}

// Snapshot returns an independent deep copy of the grid. Later Apply
// calls must not alter snapshots already emitted.
func (c *Canvas) Snapshot() Snapshot {
	pix := make([]uint8, len(c.pix))
	copy(pix, c.pix)
	return Snapshot{w: c.w, h: c.h, pix: pix}
}

// Snapshot is a frozen copy of the canvas at one cut point.
type Snapshot struct {
	w, h int
	pix  []uint8
}

func (s Snapshot) Width() int  { return s.w }
func (s Snapshot) Height() int { return s.h }

// At returns the palette code at (x, y).
func (s Snapshot) At(x, y int) uint8 { return s.pix[y*s.w+x] }

// Image renders the snapshot through a palette. Unknown codes cannot
// occur here when the decoder validated against the same palette size.
func (s Snapshot) Image(pal palette.Palette) (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, s.w, s.h))
	lut := make([]color.NRGBA, pal.Size())
	for code := range lut {
		c, err := pal.Resolve(uint32(code))
		if err != nil {
			return nil, err
		}
		lut[code] = c
	}
	for i, code := range s.pix {
		if int(code) >= len(lut) {
			return nil, &palette.UnknownCodeError{Code: uint32(code), Size: pal.Size()}
		}
		c := lut[code]
		o := i * 4
		img.Pix[o+0] = c.R
		img.Pix[o+1] = c.G
		img.Pix[o+2] = c.B
		img.Pix[o+3] = c.A
	}
	return img, nil
}

// Equal reports whether two snapshots have identical dimensions and
// cells.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.w != o.w || s.h != o.h {
		return false
	}
	for i := range s.pix {
		if s.pix[i] != o.pix[i] {
			return false
		}
	}
	return true
}
