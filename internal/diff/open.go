package diff

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Open opens a diff file for reading, transparently decompressing
// .gz and .zst archives by extension. Callers get plain decoded bytes
// either way.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &layeredCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &layeredCloser{Reader: dec, closers: []io.Closer{dec.IOReadCloser(), f}}, nil
	default:
		return f, nil
	}
}

type layeredCloser struct {
	io.Reader
	closers []io.Closer
}

func (l *layeredCloser) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
