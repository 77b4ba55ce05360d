// Command inspect summarizes a binary diff without rendering anything:
// record count, timestamp span, distinct timestamps and a per-color
// histogram.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"placelapse.dev/internal/diff"
	"placelapse.dev/internal/manifest"
)

type summary struct {
	Diff               string `json:"diff"`
	Events             int    `json:"events"`
	FirstTimestamp     uint32 `json:"first_timestamp"`
	LastTimestamp      uint32 `json:"last_timestamp"`
	DurationSeconds    uint64 `json:"duration_seconds"`
	DistinctTimestamps int    `json:"distinct_timestamps"`
	ColorCounts        []int  `json:"color_counts"`
}

func main() {
	var (
		diffPath     = flag.String("diff", "", "path to the binary diff (.bin, .bin.gz or .bin.zst)")
		manifestPath = flag.String("manifest", "", "archive manifest (default: built-in 2017 archive)")
		asJSON       = flag.Bool("json", false, "emit the summary as JSON")
	)
	flag.Parse()

	if *diffPath == "" {
		fmt.Fprintln(os.Stderr, "missing -diff")
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

	stream, err := diff.Open(*diffPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open diff:", err)
		os.Exit(1)
	}
	defer stream.Close()

	reader := diff.NewReader(stream, man.Format())
	sum := summary{Diff: *diffPath, ColorCounts: make([]int, len(man.PaletteHex))}

	var prevTS uint32
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "decode:", err)
			os.Exit(1)
		}
		if sum.Events == 0 {
			sum.FirstTimestamp = rec.Timestamp
		}
		if sum.Events == 0 || rec.Timestamp != prevTS {
			sum.DistinctTimestamps++
			prevTS = rec.Timestamp
		}
		if int(rec.Color) < len(sum.ColorCounts) {
			sum.ColorCounts[rec.Color]++
		}
		sum.LastTimestamp = rec.Timestamp
		sum.Events++
	}
	if sum.Events > 0 {
		sum.DurationSeconds = uint64(sum.LastTimestamp) - uint64(sum.FirstTimestamp)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("diff:                %s\n", sum.Diff)
	fmt.Printf("events:              %d\n", sum.Events)
	if sum.Events == 0 {
		return
	}
	fmt.Printf("first timestamp:     %d (%s)\n", sum.FirstTimestamp, time.Unix(int64(sum.FirstTimestamp), 0).UTC().Format(time.RFC3339))
	fmt.Printf("last timestamp:      %d (%s)\n", sum.LastTimestamp, time.Unix(int64(sum.LastTimestamp), 0).UTC().Format(time.RFC3339))
	fmt.Printf("duration:            %s\n", time.Duration(sum.DurationSeconds)*time.Second)
	fmt.Printf("distinct timestamps: %d\n", sum.DistinctTimestamps)
	fmt.Println("color histogram:")
	for code, n := range sum.ColorCounts {
		if n == 0 {
			continue
		}
		hex := ""
		if code < len(man.PaletteHex) {
			hex = man.PaletteHex[code]
		}
		fmt.Printf("  %2d %s %d\n", code, hex, n)
	}
}
