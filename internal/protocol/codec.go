// internal/protocol/codec.go
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Frames are concatenated JSON objects with no length prefix; JSON objects
// are self-delimiting, so a streaming decoder recovers the boundaries.

// ErrIncomplete reports that the buffer holds only a partial frame; feed
// more bytes and try again.
var ErrIncomplete = errors.New("incomplete frame")

// ErrGarbage reports that the buffer head was not valid JSON. The decoder
// discards its entire buffer rather than desynchronize silently.
var ErrGarbage = errors.New("malformed frame")

// Decoder accumulates raw bytes from a connection and peels complete frames
// off the head of its buffer. Not safe for concurrent use; each connection
// owns one.
type Decoder struct {
	buf []byte
}

// Feed appends freshly read bytes to the internal buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes awaiting decode.
func (d *Decoder) Buffered() int {
	return len(bytes.TrimLeft(d.buf, " \t\r\n"))
}

// Next decodes one frame from the buffer head.
//
// On success the consumed bytes are dropped and any trailing content is
// retained for the next call. ErrIncomplete means the buffer ends inside a
// value. Any other error wraps ErrGarbage: the buffer has been discarded.
func (d *Decoder) Next() (Frame, error) {
	d.buf = bytes.TrimLeft(d.buf, " \t\r\n")
	if len(d.buf) == 0 {
		return nil, ErrIncomplete
	}

	dec := json.NewDecoder(bytes.NewReader(d.buf))
	var f Frame
	err := dec.Decode(&f)
	if err == nil {
		d.buf = d.buf[dec.InputOffset():]
		return f, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, ErrIncomplete
	}

	// Syntactic garbage or a non-object value at the head. Resynchronizing
	// mid-stream is guesswork, so drop everything buffered.
	d.buf = nil
	return nil, fmt.Errorf("%w: %v", ErrGarbage, err)
}

// Encode serializes a frame for the wire.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}
