// Package replay folds an ordered placement-event stream into canvas
// snapshots at requested cut points. The whole engine is a single-pass,
// single-owner fold: one goroutine, one canvas, frames emitted in
// ascending target order.
package replay

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"placelapse.dev/internal/canvas"
	"placelapse.dev/internal/diff"
)

// ErrEmptyStream reports that zero events were decoded. Not necessarily
// fatal: the caller decides whether a background-only result is an
// error.
var ErrEmptyStream = errors.New("no events decoded from stream")

type mode int

const (
	modeLatest mode = iota
	modeInterval
	modeTimestamps
)

// CutRequest selects which instants get a snapshot. The three request
// modes are mutually exclusive per run.
type CutRequest struct {
	mode       mode
	interval   uint32
	timestamps []uint32
}

// Latest requests a single snapshot at the final event's timestamp.
func Latest() CutRequest { return CutRequest{mode: modeLatest} }

// Every requests a snapshot at firstEvent+k*interval for k=0,1,2,…
// up to the last event. Interval 0 means one snapshot per distinct
// event timestamp (maximum resolution).
func Every(interval uint32) CutRequest {
	return CutRequest{mode: modeInterval, interval: interval}
}

// At requests snapshots at the given explicit timestamps.
func At(timestamps ...uint32) CutRequest {
	return CutRequest{mode: modeTimestamps, timestamps: timestamps}
}

// Frame is one emitted snapshot. Snapshots are handed to the sink in
// ascending timestamp order; Index is the emission sequence number.
type Frame struct {
	Index     int
	Label     string
	Timestamp uint32
	Snap      canvas.Snapshot
}

// Options tunes replay behavior beyond the cut request.
type Options struct {
	// SkipTimestamps are never used as cut labels in interval mode.
	// The 2017 archive's first frame is blank; its timestamp lives
	// here. Events at a skipped timestamp still apply.
	SkipTimestamps []uint32
}

// Result summarizes a finished run.
type Result struct {
	Events         int
	Frames         int
	FirstTimestamp uint32
	LastTimestamp  uint32
	// Missing lists explicit targets later than the final event; the
	// canvas never reaches them, so no frame is emitted.
	Missing []uint32
}

// Run consumes the decoder once and emits one frame per resolved cut
// point. The frame at cut point T reflects every event with
// timestamp <= T and none after: events sharing a timestamp are all
// applied before that timestamp's snapshot is taken. Any decode or sink
// failure aborts the run; frames already emitted stay with the sink but
// the run counts as failed.
func Run(r *diff.Reader, cv *canvas.Canvas, req CutRequest, opts Options, emit func(Frame) error) (Result, error) {
	var res Result

	skip := make(map[uint32]bool, len(opts.SkipTimestamps))
	for _, ts := range opts.SkipTimestamps {
		skip[ts] = true
	}

	var targets []uint32
	if req.mode == modeTimestamps {
		if len(req.timestamps) == 0 {
			return res, fmt.Errorf("explicit cut request with no timestamps")
		}
		targets = dedupeSorted(req.timestamps)
	}

	push := func(label string, ts uint32) error {
		f := Frame{Index: res.Frames, Label: label, Timestamp: ts, Snap: cv.Snapshot()}
		if err := emit(f); err != nil {
			return fmt.Errorf("emit %s: %w", label, err)
		}
		res.Frames++
		return nil
	}
	pushTS := func(ts uint32) error {
		return push(strconv.FormatUint(uint64(ts), 10), ts)
	}

	var (
		targetIdx int
		// Interval-mode cursor; uint64 so t0+k*interval cannot wrap.
		nextTarget uint64
		started    bool
		// Distinct-timestamp cursor for interval 0.
		curTS    uint32
		haveCur  bool
		lastSeen uint32
	)

	// A validation error still names a fully decoded record, so every
	// instant strictly before its timestamp is completely covered by the
	// events already applied. Those cut points are emitted before the
	// error propagates; targets at or past the bad record are not, since
	// the stream may hold more events for them.
	flushBefore := func(ts uint32) error {
		switch req.mode {
		case modeTimestamps:
			for targetIdx < len(targets) && targets[targetIdx] < ts {
				if err := pushTS(targets[targetIdx]); err != nil {
					return err
				}
				targetIdx++
			}
		case modeInterval:
			if req.interval == 0 {
				if haveCur && curTS < ts && !skip[curTS] {
					if err := pushTS(curTS); err != nil {
						return err
					}
				}
				haveCur = false
			} else {
				for started && nextTarget < uint64(ts) {
					if !skip[uint32(nextTarget)] {
						if err := pushTS(uint32(nextTarget)); err != nil {
							return err
						}
					}
					nextTarget += uint64(req.interval)
				}
			}
		}
		return nil
	}

	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ts, ok := failedRecordTimestamp(err); ok {
				if ferr := flushBefore(ts); ferr != nil {
					return res, ferr
				}
			}
			return res, err
		}

		if res.Events == 0 {
			res.FirstTimestamp = rec.Timestamp
		}

		switch req.mode {
		case modeTimestamps:
			// Targets strictly before this event snapshot the canvas as
			// it stood; several may fall in one gap, each seeing the
			// same unchanged grid.
			for targetIdx < len(targets) && rec.Timestamp > targets[targetIdx] {
				if err := pushTS(targets[targetIdx]); err != nil {
					return res, err
				}
				targetIdx++
			}

		case modeInterval:
			if req.interval == 0 {
				if haveCur && rec.Timestamp != curTS {
					if !skip[curTS] {
						if err := pushTS(curTS); err != nil {
							return res, err
						}
					}
					haveCur = false
				}
				if !haveCur {
					curTS = rec.Timestamp
					haveCur = true
				}
			} else {
				if !started && !skip[rec.Timestamp] {
					started = true
					nextTarget = uint64(rec.Timestamp)
				}
				for started && uint64(rec.Timestamp) > nextTarget {
					if !skip[uint32(nextTarget)] {
						if err := pushTS(uint32(nextTarget)); err != nil {
							return res, err
						}
					}
					nextTarget += uint64(req.interval)
				}
			}
		}

		if err := cv.Apply(rec); err != nil {
			return res, err
		}
		res.Events++
		lastSeen = rec.Timestamp
	}

	if res.Events == 0 {
		if req.mode == modeLatest {
			// The reference behavior: an empty diff still yields the
			// untouched background canvas as the latest frame.
			if err := push("latest", 0); err != nil {
				return res, err
			}
		}
		if req.mode == modeTimestamps {
			res.Missing = append(res.Missing, targets...)
		}
		return res, ErrEmptyStream
	}
	res.LastTimestamp = lastSeen

	// Flush: remaining targets at or before the final event see the
	// final canvas; explicit targets beyond it are reported, not
	// emitted.
	switch req.mode {
	case modeLatest:
		if err := push("latest", lastSeen); err != nil {
			return res, err
		}
	case modeTimestamps:
		for targetIdx < len(targets) && targets[targetIdx] <= lastSeen {
			if err := pushTS(targets[targetIdx]); err != nil {
				return res, err
			}
			targetIdx++
		}
		res.Missing = append(res.Missing, targets[targetIdx:]...)
	case modeInterval:
		if req.interval == 0 {
			if haveCur && !skip[curTS] {
				if err := pushTS(curTS); err != nil {
					return res, err
				}
			}
		} else {
			for started && nextTarget <= uint64(lastSeen) {
				if !skip[uint32(nextTarget)] {
					if err := pushTS(uint32(nextTarget)); err != nil {
						return res, err
					}
				}
				nextTarget += uint64(req.interval)
			}
		}
	}

	return res, nil
}

// failedRecordTimestamp extracts the timestamp of the record a decode
// error points at. False for plain I/O errors, where no record was
// decoded.
func failedRecordTimestamp(err error) (uint32, bool) {
	var mr *diff.MalformedRecordError
	if errors.As(err, &mr) {
		return mr.Timestamp, true
	}
	var uc *diff.UnknownColorError
	if errors.As(err, &uc) {
		return uc.Timestamp, true
	}
	return 0, false
}

func dedupeSorted(in []uint32) []uint32 {
	out := make([]uint32, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}
