package diff

import (
	"encoding/binary"
	"io"
)

// Reader decodes one record at a time from a byte stream. It never
// buffers more than a single record, so arbitrarily large diffs replay
// in constant memory. Forward-only; restart by reopening the source.
type Reader struct {
	r   io.Reader
	fmt Format
	off int64
	buf [RecordSize]byte
}

// NewReader wraps an already-decompressed byte stream. The reader only
// ever sees decoded bytes; transport compression is Open's concern.
func NewReader(r io.Reader, f Format) *Reader {
	return &Reader{r: r, fmt: f}
}

// Offset returns the byte offset of the next record.
func (r *Reader) Offset() int64 { return r.off }

// Next returns the next record, or io.EOF at the end of the stream.
// A trailing remainder shorter than one record is not an error: the
// archive may end mid-record on a cleanly closed stream, and replay
// must not crash on padding.
func (r *Reader) Next() (Record, error) {
	off := r.off
	if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	r.off += RecordSize

	rec := Record{
		Timestamp: binary.LittleEndian.Uint32(r.buf[0:4]),
		X:         binary.LittleEndian.Uint32(r.buf[4:8]),
		Y:         binary.LittleEndian.Uint32(r.buf[8:12]),
		Color:     binary.LittleEndian.Uint32(r.buf[12:16]),
	}

	if rec.X >= r.fmt.Width {
		return Record{}, &MalformedRecordError{Offset: off, Timestamp: rec.Timestamp, Field: "x", Value: rec.X, Limit: r.fmt.Width}
	}
	if rec.Y >= r.fmt.Height {
		return Record{}, &MalformedRecordError{Offset: off, Timestamp: rec.Timestamp, Field: "y", Value: rec.Y, Limit: r.fmt.Height}
	}
	if r.fmt.Colors > 0 && int(rec.Color) >= r.fmt.Colors {
		return Record{}, &UnknownColorError{Offset: off, Timestamp: rec.Timestamp, Code: rec.Color, Colors: r.fmt.Colors}
	}
	return rec, nil
}
