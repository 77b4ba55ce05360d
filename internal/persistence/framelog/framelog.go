// Package framelog appends one JSONL entry per emitted frame,
// compressed with zstd. The log is the durable record of a run; the
// SQLite index is derived and may drop writes under load.
package framelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry describes one frame written by a sink.
type Entry struct {
	Label     string `json:"label"`
	Timestamp uint32 `json:"timestamp"`
	Index     int    `json:"index"`
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	Bytes     int64  `json:"bytes"`
}

// FrameLogger writes a run's entries to a single
// frames-<start>.jsonl.zst file under <outDir>/framelog. A run is a
// bounded unit of work, so one file per run is the natural grain; the
// file is created on the first write, and a run that emits nothing
// leaves nothing behind.
type FrameLogger struct {
	dir string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewFrameLogger(outDir string) *FrameLogger {
	return &FrameLogger{dir: filepath.Join(outDir, "framelog")}
}

func (l *FrameLogger) WriteFrame(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		if err := l.openLocked(); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *FrameLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.enc != nil {
		err = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.w = nil
	return err
}

func (l *FrameLogger) openLocked() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("frames-%s.jsonl.zst", time.Now().UTC().Format("20060102T150405Z"))
	// Append mode: back-to-back runs in the same second share a file
	// rather than clobbering each other.
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	return nil
}
