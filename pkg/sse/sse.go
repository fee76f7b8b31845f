// Package sse implements Server-Sent Events framing for both directions
// of the gateway: parsing upstream provider streams and writing
// wire-format-appropriate event streams back to gateway clients.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Event is a single Server-Sent Event.
type Event struct {
	// Name is the "event:" field. OpenAI's wire format never sets this;
	// Anthropic's sets it to one of the six lifecycle event names.
	Name string

	// Data is the "data:" payload, already joined across continuation
	// lines.
	Data string

	ID    string
	Retry int
}

// Reader parses an SSE byte stream into Events. Used on the upstream
// client's read side, where the body being parsed is the provider's raw
// response stream.
type Reader struct {
	scanner *bufio.Scanner
	err     error
}

// NewReader wraps r as an SSE event source.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: s}
}

// Next returns the next event, or io.EOF once the stream is exhausted.
func (r *Reader) Next() (*Event, error) {
	if r.err != nil {
		return nil, r.err
	}

	ev := &Event{}
	var dataLines []string

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if len(dataLines) > 0 || ev.Name != "" {
				ev.Data = strings.Join(dataLines, "\n")
				return ev, nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		colonIdx := strings.Index(line, ":")
		if colonIdx == -1 {
			continue
		}

		field := line[:colonIdx]
		value := line[colonIdx+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}

		switch field {
		case "event":
			ev.Name = value
		case "data":
			dataLines = append(dataLines, value)
		case "id":
			ev.ID = value
		case "retry":
			var retry int
			_, _ = fmt.Sscanf(value, "%d", &retry)
			ev.Retry = retry
		}
	}

	if err := r.scanner.Err(); err != nil {
		r.err = err
		return nil, err
	}

	if len(dataLines) > 0 || ev.Name != "" {
		ev.Data = strings.Join(dataLines, "\n")
		r.err = io.EOF
		return ev, nil
	}

	r.err = io.EOF
	return nil, io.EOF
}

// IsOpenAIDone reports whether ev is OpenAI's terminal "data: [DONE]"
// marker.
func IsOpenAIDone(ev *Event) bool {
	return strings.TrimSpace(ev.Data) == "[DONE]"
}

// Writer writes an SSE stream to an http.ResponseWriter, flushing after
// every event so bytes reach the client as they are produced rather than
// buffering until gin's response writer fills.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. If w also implements http.Flusher (as
// gin.ResponseWriter and http.ResponseWriter both do), each write is
// flushed immediately.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// WriteEvent writes a raw event and flushes.
func (w *Writer) WriteEvent(ev Event) error {
	var buf bytes.Buffer

	if ev.Name != "" {
		fmt.Fprintf(&buf, "event: %s\n", ev.Name)
	}
	if ev.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", ev.ID)
	}
	if ev.Retry > 0 {
		fmt.Fprintf(&buf, "retry: %d\n", ev.Retry)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteString("\n")

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// WriteJSON marshals payload as the event's data and writes it, optionally
// under a named "event:" field (Anthropic) or unnamed (OpenAI).
func (w *Writer) WriteJSON(name string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: marshal event payload: %w", err)
	}
	return w.WriteEvent(Event{Name: name, Data: string(b)})
}

// WriteOpenAIDone writes OpenAI's terminal "data: [DONE]" marker, unnamed.
func (w *Writer) WriteOpenAIDone() error {
	return w.WriteEvent(Event{Data: "[DONE]"})
}
