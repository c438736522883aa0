package sse

import (
	"errors"
	"io"
)

const readChunkSize = 4096

// Reader pulls events from an event-stream body one at a time.
type Reader struct {
	src     io.Reader
	parser  Parser
	pending []Event
	chunk   []byte
	done    bool
}

// NewReader returns a Reader consuming src.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src:   src,
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next event. It returns io.EOF once the body is exhausted
// and any unterminated trailing frame has been emitted. Read errors other
// than io.EOF are returned as-is and end the stream.
func (r *Reader) Next() (Event, error) {
	for {
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			return ev, nil
		}
		if r.done {
			return Event{}, io.EOF
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.parser.Feed(r.chunk[:n])...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Event{}, err
			}
			r.done = true
			r.pending = append(r.pending, r.parser.Flush()...)
		}
	}
}
