// Command render replays a binary canvas diff and writes raster frames.
//
// Exactly one cut mode is required per run:
//
//	render -diff canvas.bin.gz -latest
//	render -diff canvas.bin.gz -interval 300 -o frames/
//	render -diff canvas.bin.gz -timestamp 1490986900 -timestamp 1491000000
//
// S3 mirroring credentials come from PLACELAPSE_S3_ACCESS_KEY and
// PLACELAPSE_S3_SECRET_KEY; everything else is flags.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"placelapse.dev/internal/canvas"
	"placelapse.dev/internal/diff"
	"placelapse.dev/internal/manifest"
	"placelapse.dev/internal/palette"
	"placelapse.dev/internal/persistence/framelog"
	"placelapse.dev/internal/persistence/indexdb"
	"placelapse.dev/internal/persistence/s3mirror"
	"placelapse.dev/internal/render"
	"placelapse.dev/internal/replay"
)

type timestampList []uint32

func (t *timestampList) String() string {
	parts := make([]string, len(*t))
	for i, v := range *t {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}

func (t *timestampList) Set(s string) error {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return err
	}
	*t = append(*t, uint32(v))
	return nil
}

func main() {
	var (
		diffPath     = flag.String("diff", "", "path to the binary diff (.bin, .bin.gz or .bin.zst)")
		outDir       = flag.String("o", ".", "output directory for frames")
		format       = flag.String("format", "png", "image format (png or gif)")
		scale        = flag.Int("scale", 1, "integer upscale factor")
		manifestPath = flag.String("manifest", "", "archive manifest (default: built-in 2017 archive)")
		palettePath  = flag.String("palette", "", "palette YAML overriding the manifest palette")

		interval = flag.Int64("interval", -1, "seconds between frames (0 = one frame per archive timestamp)")
		latest   = flag.Bool("latest", false, "render only the final frame")

		indexPath  = flag.String("index", "", "optional sqlite frame index path")
		noFramelog = flag.Bool("disable_framelog", false, "disable the JSONL frame log")

		s3Endpoint = flag.String("s3_endpoint", "", "S3-compatible endpoint for frame mirroring (empty to disable)")
		s3Bucket   = flag.String("s3_bucket", "", "mirror bucket")
		s3Prefix   = flag.String("s3_prefix", "", "object key prefix for mirrored frames")
	)
	var timestamps timestampList
	flag.Var(&timestamps, "timestamp", "timestamp to render (repeatable)")
	flag.Parse()

	logger := log.New(os.Stdout, "[render] ", log.LstdFlags|log.Lmicroseconds)

	if *diffPath == "" {
		fmt.Fprintln(os.Stderr, "missing -diff")
		os.Exit(2)
	}
	modes := 0
	if *latest {
		modes++
	}
	if *interval >= 0 {
		modes++
	}
	if len(timestamps) > 0 {
		modes++
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -latest, -interval, -timestamp is required")
		os.Exit(2)
	}
	if *interval > int64(^uint32(0)) {
		fmt.Fprintln(os.Stderr, "-interval out of range")
		os.Exit(2)
	}

	man := manifest.Default()
	if *manifestPath != "" {
		m, err := manifest.Load(*manifestPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "manifest:", err)
			os.Exit(1)
		}
		man = m
	}

	pal, err := man.Colors()
	if err != nil {
		fmt.Fprintln(os.Stderr, "palette:", err)
		os.Exit(1)
	}
	if *palettePath != "" {
		p, err := palette.LoadFile(*palettePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "palette:", err)
			os.Exit(1)
		}
		if p.Size() != pal.Size() {
			logger.Printf("palette override has %d colors, manifest declares %d", p.Size(), pal.Size())
		}
		pal = p
	}

	var mode string
	var req replay.CutRequest
	switch {
	case *latest:
		mode = "latest"
		req = replay.Latest()
	case *interval >= 0:
		mode = fmt.Sprintf("interval:%d", *interval)
		req = replay.Every(uint32(*interval))
	default:
		mode = fmt.Sprintf("timestamps:%d", len(timestamps))
		req = replay.At(timestamps...)
	}

	stream, err := diff.Open(*diffPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open diff:", err)
		os.Exit(1)
	}
	defer stream.Close()

	fmtSpec := man.Format()
	fmtSpec.Colors = pal.Size()
	reader := diff.NewReader(stream, fmtSpec)

	writer, err := render.NewWriter(*outDir, *format, *scale, pal, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "writer:", err)
		os.Exit(1)
	}

	var flog *framelog.FrameLogger
	if !*noFramelog {
		flog = framelog.NewFrameLogger(*outDir)
	}

	var idx *indexdb.FrameIndex
	var runID int64
	if *indexPath != "" {
		idx, err = indexdb.OpenSQLite(*indexPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "index:", err)
			os.Exit(1)
		}
		runID, err = idx.BeginRun(*diffPath, mode, man.Width, man.Height, pal.Digest())
		if err != nil {
			fmt.Fprintln(os.Stderr, "index:", err)
			os.Exit(1)
		}
	}

	var mirror *s3mirror.Mirror
	if *s3Endpoint != "" {
		client, err := s3mirror.NewClient(*s3Endpoint, *s3Bucket,
			os.Getenv("PLACELAPSE_S3_ACCESS_KEY"), os.Getenv("PLACELAPSE_S3_SECRET_KEY"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "s3:", err)
			os.Exit(1)
		}
		mirror = s3mirror.NewMirror(client, *outDir, *s3Prefix, 2, 1024, logger)
	}

	cv := canvas.New(int(man.Width), int(man.Height), man.Background)
	opts := replay.Options{SkipTimestamps: man.SkipTimestamps}

	emit := func(f replay.Frame) error {
		ef, err := writer.Emit(f)
		if err != nil {
			return err
		}
		entry := framelog.Entry{
			Label:     ef.Label,
			Timestamp: ef.Timestamp,
			Index:     ef.Index,
			Path:      ef.Path,
			SHA256:    ef.SHA256,
			Bytes:     ef.Bytes,
		}
		if flog != nil {
			if err := flog.WriteFrame(entry); err != nil {
				return err
			}
		}
		if idx != nil {
			idx.WriteFrame(runID, entry)
		}
		if mirror != nil {
			mirror.Enqueue(ef.Path)
		}
		return nil
	}

	res, runErr := replay.Run(reader, cv, req, opts, emit)

	for _, ts := range res.Missing {
		logger.Printf("timestamp not found: %d", ts)
	}

	status := "ok"
	exitCode := 0
	switch {
	case runErr == nil:
	case errors.Is(runErr, replay.ErrEmptyStream):
		logger.Printf("diff is empty: emitted %d background frame(s)", res.Frames)
	default:
		fmt.Fprintln(os.Stderr, "replay:", runErr)
		status = "failed"
		exitCode = 1
	}

	if flog != nil {
		if err := flog.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "framelog:", err)
		}
	}
	if mirror != nil {
		mirror.Close()
		if mirror.Failed() > 0 {
			logger.Printf("mirror: %d upload(s) failed", mirror.Failed())
		}
	}
	if idx != nil {
		if err := idx.FinishRun(runID, res.Events, res.Frames, status); err != nil {
			fmt.Fprintln(os.Stderr, "index:", err)
		}
		if err := idx.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "index:", err)
		}
	}

	if exitCode == 0 {
		logger.Printf("replay ok: events=%d frames=%d span=[%d,%d]",
			res.Events, res.Frames, res.FirstTimestamp, res.LastTimestamp)
	}
	os.Exit(exitCode)
}
