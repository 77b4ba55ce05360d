package s3mirror

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Mirror uploads emitted frame files in the background. Enqueue never
// blocks the replay loop; a saturated queue drops the upload and the
// local file remains the source of truth.
type Mirror struct {
	client *Client
	outDir string
	prefix string
	logger *log.Logger

	jobs chan string
	wg   sync.WaitGroup

	uploaded atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

func NewMirror(client *Client, outDir, prefix string, workers, queueCapacity int, logger *log.Logger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	m := &Mirror{
		client: client,
		outDir: outDir,
		prefix: strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger: logger,
		jobs:   make(chan string, queueCapacity),
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for localPath := range m.jobs {
				m.uploadOne(localPath)
			}
		}()
	}
	return m
}

func (m *Mirror) Enqueue(localPath string) {
	if m == nil || m.client == nil {
		return
	}
	select {
	case m.jobs <- localPath:
	default:
		dropped := m.dropped.Add(1)
		m.printf("mirror drop local=%s reason=queue_saturated dropped_total=%d", localPath, dropped)
	}
}

// Close drains the queue and stops the workers.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Uploaded() uint64 { return m.uploaded.Load() }
func (m *Mirror) Failed() uint64   { return m.failed.Load() }

func (m *Mirror) uploadOne(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.printf("mirror skip local=%s err=%v", localPath, err)
		return
	}

	if err := m.uploadWithRetry(key, localPath); err != nil {
		m.failed.Add(1)
		m.printf("mirror upload failed key=%s local=%s err=%v", key, localPath, err)
		return
	}
	m.uploaded.Add(1)
	m.printf("mirror uploaded key=%s", key)
}

func (m *Mirror) uploadWithRetry(key, localPath string) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := m.client.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * 200 * time.Millisecond)
		}
	}
	return lastErr
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty local path")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}

	absBase, err := filepath.Abs(m.outDir)
	if err != nil {
		return "", err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absLocal)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside output dir %s", absLocal, absBase)
	}

	if m.prefix != "" {
		return path.Join(m.prefix, rel), nil
	}
	return rel, nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
