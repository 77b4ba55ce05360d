package diff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var testFormat = Format{Width: 1000, Height: 1000, Colors: 16}

func encode(t *testing.T, recs ...Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, r := range recs {
		for _, v := range []uint32{r.Timestamp, r.X, r.Y, r.Color} {
			if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
				t.Fatalf("encode: %v", err)
			}
		}
	}
	return buf.Bytes()
}

func drain(t *testing.T, r *Reader) []Record {
	t.Helper()
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, rec)
	}
}

func TestReader_DecodesRecordsInOrder(t *testing.T) {
	want := []Record{
		{Timestamp: 100, X: 0, Y: 0, Color: 1},
		{Timestamp: 200, X: 999, Y: 999, Color: 15},
		{Timestamp: 200, X: 1, Y: 2, Color: 0},
	}
	r := NewReader(bytes.NewReader(encode(t, want...)), testFormat)
	got := drain(t, r)
	if len(got) != len(want) {
		t.Fatalf("decoded %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReader_TruncatedTailIsCleanEOF(t *testing.T) {
	full := encode(t,
		Record{Timestamp: 100, X: 1, Y: 1, Color: 1},
		Record{Timestamp: 101, X: 2, Y: 2, Color: 2},
	)
	for _, cut := range []int{1, 7, 15} {
		stream := append(append([]byte{}, full...), full[:cut]...)
		r := NewReader(bytes.NewReader(stream), testFormat)
		got := drain(t, r)
		if len(got) != 2 {
			t.Fatalf("cut=%d: decoded %d records, want 2", cut, len(got))
		}
		// A second Next after EOF stays at EOF.
		if _, err := r.Next(); err != io.EOF {
			t.Fatalf("cut=%d: err=%v, want EOF", cut, err)
		}
	}
}

func TestReader_EmptyStream(t *testing.T) {
	r := NewReader(bytes.NewReader(nil), testFormat)
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("err=%v, want EOF", err)
	}
}

func TestReader_MalformedCoordinateCarriesOffset(t *testing.T) {
	stream := encode(t,
		Record{Timestamp: 100, X: 1, Y: 1, Color: 1},
		Record{Timestamp: 101, X: 1000, Y: 0, Color: 1}, // x == width
	)
	r := NewReader(bytes.NewReader(stream), testFormat)
	if _, err := r.Next(); err != nil {
		t.Fatalf("first record: %v", err)
	}
	_, err := r.Next()
	var mr *MalformedRecordError
	if !errors.As(err, &mr) {
		t.Fatalf("error %T (%v), want *MalformedRecordError", err, err)
	}
	if mr.Offset != RecordSize {
		t.Fatalf("offset=%d want %d", mr.Offset, RecordSize)
	}
	if mr.Field != "x" || mr.Value != 1000 || mr.Limit != 1000 {
		t.Fatalf("fields: %+v", mr)
	}
}

func TestReader_UnknownColorCarriesOffset(t *testing.T) {
	stream := encode(t, Record{Timestamp: 100, X: 1, Y: 1, Color: 16})
	r := NewReader(bytes.NewReader(stream), testFormat)
	_, err := r.Next()
	var uc *UnknownColorError
	if !errors.As(err, &uc) {
		t.Fatalf("error %T (%v), want *UnknownColorError", err, err)
	}
	if uc.Offset != 0 || uc.Code != 16 {
		t.Fatalf("fields: %+v", uc)
	}
}

func TestReader_NoColorValidationWhenUnknownPaletteSize(t *testing.T) {
	stream := encode(t, Record{Timestamp: 100, X: 1, Y: 1, Color: 200})
	r := NewReader(bytes.NewReader(stream), Format{Width: 1000, Height: 1000})
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if rec.Color != 200 {
		t.Fatalf("color=%d want 200", rec.Color)
	}
}

func TestOpen_TransparentDecompression(t *testing.T) {
	raw := encode(t,
		Record{Timestamp: 100, X: 5, Y: 6, Color: 7},
		Record{Timestamp: 200, X: 8, Y: 9, Color: 10},
	)
	dir := t.TempDir()

	plain := filepath.Join(dir, "canvas.bin")
	if err := os.WriteFile(plain, raw, 0o644); err != nil {
		t.Fatalf("write plain: %v", err)
	}

	gzPath := filepath.Join(dir, "canvas.bin.gz")
	{
		f, err := os.Create(gzPath)
		if err != nil {
			t.Fatalf("create gz: %v", err)
		}
		zw := gzip.NewWriter(f)
		if _, err := zw.Write(raw); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("gzip close: %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	zstPath := filepath.Join(dir, "canvas.bin.zst")
	{
		f, err := os.Create(zstPath)
		if err != nil {
			t.Fatalf("create zst: %v", err)
		}
		zw, err := zstd.NewWriter(f)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		if _, err := zw.Write(raw); err != nil {
			t.Fatalf("zstd write: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("zstd close: %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	for _, path := range []string{plain, gzPath, zstPath} {
		rc, err := Open(path)
		if err != nil {
			t.Fatalf("open %s: %v", path, err)
		}
		got := drain(t, NewReader(rc, testFormat))
		if err := rc.Close(); err != nil {
			t.Fatalf("close %s: %v", path, err)
		}
		if len(got) != 2 || got[0].X != 5 || got[1].Color != 10 {
			t.Fatalf("%s: decoded %+v", path, got)
		}
	}
}
