// Command serve replays a diff and streams the frames to browsers over
// WebSocket, alongside a bootstrap endpoint and a static file server
// for frames already on disk.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"placelapse.dev/internal/canvas"
	"placelapse.dev/internal/diff"
	"placelapse.dev/internal/manifest"
	"placelapse.dev/internal/obsproto"
	"placelapse.dev/internal/render"
	"placelapse.dev/internal/replay"
	"placelapse.dev/internal/transport/observer"
)

func main() {
	var (
		addr         = flag.String("addr", "127.0.0.1:8080", "http listen address")
		diffPath     = flag.String("diff", "", "path to the binary diff (.bin, .bin.gz or .bin.zst)")
		manifestPath = flag.String("manifest", "", "archive manifest (default: built-in 2017 archive)")
		framesDir    = flag.String("frames", "", "optional directory of rendered frames to serve under /frames/")
		interval     = flag.Int64("interval", 300, "seconds between streamed frames (0 = one per archive timestamp)")
		delayMS      = flag.Int("delay_ms", 0, "artificial pacing between frames, for presentations")
		cacheSize    = flag.Int("cache", 256, "frame backlog kept for late subscribers")
		allowRemote  = flag.Bool("allow_remote", false, "allow non-loopback clients")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[serve] ", log.LstdFlags|log.Lmicroseconds)

	if *diffPath == "" {
		fmt.Fprintln(os.Stderr, "missing -diff")
		os.Exit(2)
	}
	if *interval < 0 || *interval > int64(^uint32(0)) {
		fmt.Fprintln(os.Stderr, "-interval out of range")
		os.Exit(2)
	}

	man := manifest.Default()
	if *manifestPath != "" {
		m, err := manifest.Load(*manifestPath)
		if err != nil {
			logger.Fatalf("manifest: %v", err)
		}
		man = m
	}
	pal, err := man.Colors()
	if err != nil {
		logger.Fatalf("palette: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	mode := fmt.Sprintf("interval:%d", *interval)
	hub := observer.NewHub(*cacheSize)

	go func() {
		stream, err := diff.Open(*diffPath)
		if err != nil {
			logger.Printf("open diff: %v", err)
			finish(hub, replay.Result{}, err)
			return
		}
		defer stream.Close()

		reader := diff.NewReader(stream, man.Format())
		cv := canvas.New(int(man.Width), int(man.Height), man.Background)
		opts := replay.Options{SkipTimestamps: man.SkipTimestamps}

		emit := func(f replay.Frame) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			img, err := render.Paletted(f.Snap, pal, 1)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return err
			}
			msg, err := json.Marshal(obsproto.FrameMsg{
				Type:            "FRAME",
				ProtocolVersion: obsproto.Version,
				Index:           f.Index,
				Label:           f.Label,
				Timestamp:       f.Timestamp,
				Encoding:        "PNG_B64",
				Data:            base64.StdEncoding.EncodeToString(buf.Bytes()),
			})
			if err != nil {
				return err
			}
			hub.Publish(msg)
			if *delayMS > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(*delayMS) * time.Millisecond):
				}
			}
			return nil
		}

		res, err := replay.Run(reader, cv, replay.Every(uint32(*interval)), opts, emit)
		switch {
		case err == nil || errors.Is(err, replay.ErrEmptyStream):
			logger.Printf("replay done: events=%d frames=%d", res.Events, res.Frames)
			finish(hub, res, nil)
		case errors.Is(err, context.Canceled):
			finish(hub, res, err)
		default:
			logger.Printf("replay: %v", err)
			finish(hub, res, err)
		}
	}()

	srv := observer.NewServer(hub, man, *diffPath, mode, logger)
	srv.AllowRemote = *allowRemote

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", srv.WSHandler())
	if *framesDir != "" {
		mux.Handle("/frames/", http.StripPrefix("/frames/", http.FileServer(http.Dir(*framesDir))))
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func finish(hub *observer.Hub, res replay.Result, runErr error) {
	done := obsproto.DoneMsg{
		Type:            "DONE",
		ProtocolVersion: obsproto.Version,
		Frames:          res.Frames,
		Events:          res.Events,
	}
	if runErr != nil {
		done.Error = runErr.Error()
	}
	msg, err := json.Marshal(done)
	if err != nil {
		return
	}
	hub.Finish(msg)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
