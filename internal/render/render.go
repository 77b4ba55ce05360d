// Package render is the snapshot sink: it turns emitted frames into
// image files on disk. Label formatting and directory layout live here,
// not in the replay engine.
package render

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"

	"placelapse.dev/internal/canvas"
	"placelapse.dev/internal/palette"
	"placelapse.dev/internal/replay"
)

// Paletted renders a snapshot as an indexed image, optionally upscaled
// by an integer factor (nearest neighbor). Indexed output keeps both
// PNG and GIF encodings small for palette canvases.
func Paletted(snap canvas.Snapshot, pal palette.Palette, scale int) (*image.Paletted, error) {
	if scale < 1 {
		scale = 1
	}
	cpal := make(color.Palette, pal.Size())
	for code := range cpal {
		c, err := pal.Resolve(uint32(code))
		if err != nil {
			return nil, err
		}
		cpal[code] = c
	}

	w, h := snap.Width(), snap.Height()
	img := image.NewPaletted(image.Rect(0, 0, w*scale, h*scale), cpal)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			code := snap.At(x, y)
			if int(code) >= len(cpal) {
				return nil, &palette.UnknownCodeError{Code: uint32(code), Size: pal.Size()}
			}
			for dy := 0; dy < scale; dy++ {
				row := (y*scale + dy) * img.Stride
				for dx := 0; dx < scale; dx++ {
					img.Pix[row+x*scale+dx] = code
				}
			}
		}
	}
	return img, nil
}

// EmittedFrame records where a frame landed and what was written, for
// the emission log, the index and the mirror.
type EmittedFrame struct {
	Label     string
	Timestamp uint32
	Index     int
	Path      string
	SHA256    string
	Bytes     int64
}

// Writer persists frames as <label>.<format> files in one directory.
type Writer struct {
	dir    string
	format string
	scale  int
	pal    palette.Palette
	logger *log.Logger
}

// NewWriter creates the output directory on demand. Supported formats:
// png, gif.
func NewWriter(dir, format string, scale int, pal palette.Palette, logger *log.Logger) (*Writer, error) {
	switch format {
	case "png", "gif":
	default:
		return nil, fmt.Errorf("unsupported format %q (want png or gif)", format)
	}
	if scale < 1 {
		scale = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{dir: dir, format: format, scale: scale, pal: pal, logger: logger}, nil
}

// Emit encodes and writes one frame.
func (w *Writer) Emit(f replay.Frame) (EmittedFrame, error) {
	img, err := Paletted(f.Snap, w.pal, w.scale)
	if err != nil {
		return EmittedFrame{}, err
	}

	path := filepath.Join(w.dir, f.Label+"."+w.format)
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return EmittedFrame{}, err
	}

	h := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(out, h)}

	switch w.format {
	case "png":
		err = png.Encode(cw, img)
	case "gif":
		err = gif.Encode(cw, img, &gif.Options{NumColors: len(img.Palette)})
	}
	if err != nil {
		_ = out.Close()
		return EmittedFrame{}, fmt.Errorf("encode %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return EmittedFrame{}, err
	}

	ef := EmittedFrame{
		Label:     f.Label,
		Timestamp: f.Timestamp,
		Index:     f.Index,
		Path:      path,
		SHA256:    hex.EncodeToString(h.Sum(nil)),
		Bytes:     cw.n,
	}
	if w.logger != nil {
		w.logger.Printf("storing %s", path)
	}
	return ef, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
