// Package sse decodes text/event-stream bodies into typed events.
package sse

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
)

// DefaultEventType is used for frames without an event: line.
const DefaultEventType = "message"

// Event is one decoded server-sent event.
type Event struct {
	Type string
	// Data holds the JSON payload. It is nil when the frame carried no data
	// or when the joined data lines were not valid JSON.
	Data json.RawMessage
}

// Decode unmarshals the event payload into v. A nil payload decodes as JSON null.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(e.Data, v)
}

// Parser accumulates raw stream bytes and yields complete frames as events.
// A Parser is not safe for concurrent use.
type Parser struct {
	buf []byte
}

// Feed appends chunk to the buffer and returns every event completed by it,
// in arrival order.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		idx, width := frameBoundary(p.buf)
		if idx < 0 {
			break
		}
		frame := string(p.buf[:idx])
		p.buf = p.buf[idx+width:]

		if ev, ok := ParseFrame(frame); ok {
			events = append(events, ev)
		}
	}

	if len(p.buf) == 0 {
		p.buf = nil
	}
	return events
}

// Flush parses whatever remains in the buffer as one final frame. It is used
// at end of stream when the server did not terminate the last frame.
func (p *Parser) Flush() []Event {
	rest := p.buf
	p.buf = nil

	if len(bytes.TrimSpace(rest)) == 0 {
		return nil
	}
	if ev, ok := ParseFrame(string(rest)); ok {
		return []Event{ev}
	}
	return nil
}

// Buffered returns the number of bytes waiting for a frame delimiter.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// ParseFrame decodes a single frame. It reports false when the frame has no
// recognizable event or data line.
func ParseFrame(frame string) (Event, bool) {
	frame = strings.ReplaceAll(frame, "\r\n", "\n")

	var (
		eventType string
		dataLines []string
		seen      bool
	)

	for _, line := range strings.Split(frame, "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "event":
			eventType = strings.TrimSpace(value)
			seen = true
		case "data":
			dataLines = append(dataLines, value)
			seen = true
		}
	}

	if !seen {
		return Event{}, false
	}
	if eventType == "" {
		eventType = DefaultEventType
	}

	ev := Event{Type: eventType}
	if len(dataLines) > 0 {
		payload := []byte(strings.Join(dataLines, "\n"))
		if json.Valid(payload) {
			ev.Data = json.RawMessage(payload)
		}
	}
	return ev, true
}

// frameBoundary returns the index of the earliest blank-line delimiter and
// its width, or -1 when the buffer holds no complete frame.
func frameBoundary(buf []byte) (int, int) {
	lf := bytes.Index(buf, []byte("\n\n"))
	crlf := bytes.Index(buf, []byte("\r\n\r\n"))

	switch {
	case lf < 0 && crlf < 0:
		return -1, 0
	case crlf < 0:
		return lf, 2
	case lf < 0 || crlf < lf:
		return crlf, 4
	default:
		return lf, 2
	}
}
