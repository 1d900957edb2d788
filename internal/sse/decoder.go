// Package sse decodes server-sent-event wire records from an incremental
// byte stream into discrete frames.
package sse

import (
	"bufio"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Frame is one decoded wire event: an optional event name plus the joined
// data payload. Frames are ephemeral and consumed within a single pipeline
// pass.
type Frame struct {
	Event string
	Data  string
}

// Decoder lazily pulls complete frames from a reader. Fragments are not
// guaranteed to align with event boundaries; partial events are buffered
// until their terminating blank line arrives.
//
// Usage follows the pull pattern of the SDK stream decoders:
//
//	for dec.Next() {
//	    frame := dec.Current()
//	    ...
//	}
//	if err := dec.Err(); err != nil { ... }
type Decoder struct {
	scanner *bufio.Scanner
	current Frame
	err     error
	done    bool
}

// NewDecoder creates a decoder over the response body stream.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	// Increase buffer size to handle large SSE chunks (default 64KB is too small)
	scanner.Buffer(nil, bufio.MaxScanTokenSize<<9)
	return &Decoder{scanner: scanner}
}

// Next advances to the next complete frame. It returns false when the
// stream is exhausted or a read error occurred.
func (d *Decoder) Next() bool {
	if d.done {
		return false
	}

	var (
		event    string
		data     []string
		sawField bool
	)

	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")

		if line == "" {
			if !sawField {
				// Blank line with nothing buffered, keep scanning.
				continue
			}
			d.current = Frame{Event: event, Data: strings.Join(data, "\n")}
			return true
		}

		// Comment line per the SSE convention.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			event = value
			sawField = true
		case "data":
			data = append(data, value)
			sawField = true
		default:
			// Unrecognized fields (id, retry, ...) are ignored.
		}
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		d.err = err
		return false
	}

	// End of input with an unterminated partial event: the trailing frame
	// cannot be considered complete, so it is discarded.
	if sawField {
		logrus.Debugf("[SSE] Discarding unterminated trailing event (%d data lines)", len(data))
	}
	return false
}

// Current returns the most recently decoded frame. Only valid after a true
// return from Next.
func (d *Decoder) Current() Frame {
	return d.current
}

// Err returns the first read error encountered, if any.
func (d *Decoder) Err() error {
	return d.err
}

// splitField splits an SSE "field: value" line. A single leading space in
// the value is stripped per the wire format.
func splitField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}
