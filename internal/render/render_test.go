package render

import (
	"crypto/sha256"
	"encoding/hex"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"placelapse.dev/internal/canvas"
	"placelapse.dev/internal/diff"
	"placelapse.dev/internal/palette"
	"placelapse.dev/internal/replay"
)

func frame(t *testing.T) replay.Frame {
	t.Helper()
	cv := canvas.New(2, 2, 0)
	if err := cv.Apply(diff.Record{X: 0, Y: 0, Color: 5}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := cv.Apply(diff.Record{X: 1, Y: 1, Color: 3}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	return replay.Frame{Index: 0, Label: "1490986900", Timestamp: 1490986900, Snap: cv.Snapshot()}
}

func TestWriter_EmitPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "frames")
	w, err := NewWriter(dir, "png", 1, palette.Default2017(), nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	ef, err := w.Emit(frame(t))
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if filepath.Base(ef.Path) != "1490986900.png" {
		t.Fatalf("path: %s", ef.Path)
	}

	raw, err := os.ReadFile(ef.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if int64(len(raw)) != ef.Bytes {
		t.Fatalf("bytes=%d file=%d", ef.Bytes, len(raw))
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != ef.SHA256 {
		t.Fatalf("sha mismatch")
	}

	f, err := os.Open(ef.Path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	if uint8(r>>8) != 0xe5 || uint8(g>>8) != 0x00 || uint8(b>>8) != 0x00 {
		t.Fatalf("pixel (0,0) = %d,%d,%d want e50000", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = img.At(0, 1).RGBA()
	if uint8(r>>8) != 0xff || uint8(g>>8) != 0xff || uint8(b>>8) != 0xff {
		t.Fatalf("pixel (0,1) = %d,%d,%d want background white", r>>8, g>>8, b>>8)
	}
}

func TestWriter_EmitGIF(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "gif", 1, palette.Default2017(), nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	ef, err := w.Emit(frame(t))
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	f, err := os.Open(ef.Path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := gif.Decode(f); err != nil {
		t.Fatalf("gif decode: %v", err)
	}
}

func TestWriter_RejectsUnknownFormat(t *testing.T) {
	if _, err := NewWriter(t.TempDir(), "bmp", 1, palette.Default2017(), nil); err == nil {
		t.Fatalf("bmp accepted")
	}
}

func TestPaletted_Scale(t *testing.T) {
	f := frame(t)
	img, err := Paletted(f.Snap, palette.Default2017(), 3)
	if err != nil {
		t.Fatalf("paletted: %v", err)
	}
	if img.Rect.Dx() != 6 || img.Rect.Dy() != 6 {
		t.Fatalf("bounds: %v", img.Rect)
	}
	// Every pixel of the 3x3 block keeps the source color.
	want := img.Palette[5].(color.NRGBA)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if got := img.At(x, y).(color.NRGBA); got != want {
				t.Fatalf("pixel (%d,%d)=%v want %v", x, y, got, want)
			}
		}
	}
}
