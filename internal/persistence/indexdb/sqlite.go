// Package indexdb keeps a queryable SQLite index of replay runs and the
// frames they emitted. It is a secondary index: frame writes go through
// a bounded background queue and may drop under load, with the JSONL
// frame log as the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"placelapse.dev/internal/persistence/framelog"
)

type FrameIndex struct {
	db *sql.DB

	ch   chan frameReq
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type frameReq struct {
	runID int64
	entry framelog.Entry
}

func OpenSQLite(path string) (*FrameIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &FrameIndex{
		db: db,
		// Interval-0 runs emit one frame per archive timestamp; allow a
		// large burst without stalling the replay loop.
		ch: make(chan frameReq, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id INTEGER PRIMARY KEY AUTOINCREMENT,
			diff_path TEXT NOT NULL,
			mode TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			palette_digest TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			events INTEGER NOT NULL DEFAULT 0,
			frames INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'running'
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			run_id INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			label TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			path TEXT NOT NULL,
			sha256 TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			PRIMARY KEY (run_id, idx)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_timestamp ON frames(timestamp);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *FrameIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// BeginRun registers a run synchronously and returns its id; frames
// reference it.
func (s *FrameIndex) BeginRun(diffPath, mode string, width, height uint32, paletteDigest string) (int64, error) {
	if s == nil {
		return 0, nil
	}
	res, err := s.db.Exec(
		`INSERT INTO runs(diff_path,mode,width,height,palette_digest,started_at) VALUES(?,?,?,?,?,?)`,
		diffPath, mode, int64(width), int64(height), paletteDigest,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishRun records the outcome of a run.
func (s *FrameIndex) FinishRun(runID int64, events, frames int, status string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at=?, events=?, frames=?, status=? WHERE run_id=?`,
		time.Now().UTC().Format(time.RFC3339Nano), events, frames, status, runID,
	)
	return err
}

// WriteFrame enqueues one frame row. Never blocks the replay loop: on a
// full queue the row is dropped and the frame log stays authoritative.
func (s *FrameIndex) WriteFrame(runID int64, e framelog.Entry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- frameReq{runID: runID, entry: e}:
	default:
	}
}

// Frames returns a run's indexed frames in emission order.
func (s *FrameIndex) Frames(ctx context.Context, runID int64) ([]framelog.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx,label,timestamp,path,sha256,bytes FROM frames WHERE run_id=? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []framelog.Entry
	for rows.Next() {
		var e framelog.Entry
		var ts int64
		if err := rows.Scan(&e.Index, &e.Label, &ts, &e.Path, &e.SHA256, &e.Bytes); err != nil {
			return nil, err
		}
		e.Timestamp = uint32(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *FrameIndex) loop() {
	ctx := context.Background()

	insertFrame, _ := s.db.Prepare(`INSERT OR REPLACE INTO frames(run_id,idx,label,timestamp,path,sha256,bytes) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertFrame != nil {
			_ = insertFrame.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 512
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		lastCommit = time.Now()
	}

	// The ticker flushes a quiet queue so rows become visible to
	// readers without waiting for the next burst.
	flush := time.NewTicker(250 * time.Millisecond)
	defer flush.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil || insertFrame == nil {
				continue
			}
			e := r.entry
			if _, err := tx.Stmt(insertFrame).Exec(
				r.runID, e.Index, e.Label, int64(e.Timestamp), e.Path, e.SHA256, e.Bytes,
			); err != nil {
				rollback()
				continue
			}
			opCount++
			if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		case <-flush.C:
			commit()
		}
	}
}
