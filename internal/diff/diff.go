// Package diff decodes binary canvas diff streams: back-to-back
// fixed-width records of (timestamp, x, y, color) little-endian uint32
// quads, with no delimiters. The byte layout is a frozen wire format
// shared with the 2017 archive; it must not change.
package diff

import "fmt"

// RecordSize is the fixed width of one placement record in bytes.
const RecordSize = 16

// Record is one pixel placement event. Timestamps are seconds since
// epoch and arrive in non-decreasing order; the decoder does not
// re-sort.
type Record struct {
	Timestamp uint32
	X         uint32
	Y         uint32
	Color     uint32
}

// Format describes the canvas a stream belongs to. Colors is the
// palette size; 0 disables color validation at decode time.
type Format struct {
	Width  uint32
	Height uint32
	Colors int
}

// MalformedRecordError reports a record whose coordinates fall outside
// the canvas. Fatal: continuing would silently corrupt every later
// snapshot. Offset is the byte offset of the record start. Timestamp is
// the record's own timestamp (the record decodes fully before
// validation), so callers can tell which instants the stream still
// covered.
type MalformedRecordError struct {
	Offset    int64
	Timestamp uint32
	Field     string
	Value     uint32
	Limit     uint32
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at byte %d: %s=%d out of range [0,%d)", e.Offset, e.Field, e.Value, e.Limit)
}

// UnknownColorError reports a color code outside the declared palette,
// surfaced through the decoder's validation path. Same fatal handling
// as MalformedRecordError.
type UnknownColorError struct {
	Offset    int64
	Timestamp uint32
	Code      uint32
	Colors    int
}

func (e *UnknownColorError) Error() string {
	return fmt.Sprintf("unknown color code %d at byte %d (palette has %d colors)", e.Code, e.Offset, e.Colors)
}
