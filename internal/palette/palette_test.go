package palette

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault2017_ResolveKnownCodes(t *testing.T) {
	p := Default2017()
	if p.Size() != 16 {
		t.Fatalf("size=%d want 16", p.Size())
	}

	c, err := p.Resolve(0)
	if err != nil {
		t.Fatalf("resolve 0: %v", err)
	}
	if c != (color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
		t.Fatalf("code 0 = %v, want white", c)
	}

	c, err = p.Resolve(5)
	if err != nil {
		t.Fatalf("resolve 5: %v", err)
	}
	if c != (color.NRGBA{R: 0xe5, G: 0x00, B: 0x00, A: 0xff}) {
		t.Fatalf("code 5 = %v, want e50000", c)
	}
}

func TestResolve_UnknownCode(t *testing.T) {
	p := Default2017()
	_, err := p.Resolve(16)
	if err == nil {
		t.Fatalf("expected error for code 16")
	}
	var uc *UnknownCodeError
	if !errors.As(err, &uc) {
		t.Fatalf("error type %T, want *UnknownCodeError", err)
	}
	if uc.Code != 16 || uc.Size != 16 {
		t.Fatalf("error fields code=%d size=%d", uc.Code, uc.Size)
	}
}

func TestFromHex_Rejects(t *testing.T) {
	if _, err := FromHex(nil); err == nil {
		t.Fatalf("empty palette accepted")
	}
	if _, err := FromHex([]string{"fff"}); err == nil {
		t.Fatalf("short hex accepted")
	}
	if _, err := FromHex([]string{"zzzzzz"}); err == nil {
		t.Fatalf("non-hex accepted")
	}
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "palette.yaml")
	body := "colors:\n  - \"000000\"\n  - \"#FF0000\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Size() != 2 {
		t.Fatalf("size=%d want 2", p.Size())
	}
	c, err := p.Resolve(1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c != (color.NRGBA{R: 0xff, A: 0xff}) {
		t.Fatalf("code 1 = %v, want red", c)
	}
}

func TestDigest_StableAndDistinct(t *testing.T) {
	a := Default2017()
	b := Default2017()
	if a.Digest() != b.Digest() {
		t.Fatalf("digest not stable")
	}
	other, err := FromHex([]string{"000000"})
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if other.Digest() == a.Digest() {
		t.Fatalf("distinct palettes share a digest")
	}
}
