package stream

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// Framer encodes events for one transport.
type Framer interface {
	// Open writes the connect preamble.
	Open(retry time.Duration) error
	WriteEvent(e domain.Event) error
	Heartbeat() error
	Transport() string
}

// SSEFramer writes the text/event-stream wire format.
type SSEFramer struct {
	w       *bufio.Writer
	flusher http.Flusher
}

// NewSSEFramer wraps w. When w is an http.Flusher every frame is flushed to the client.
func NewSSEFramer(w io.Writer) *SSEFramer {
	f := &SSEFramer{w: bufio.NewWriter(w)}
	if fl, ok := w.(http.Flusher); ok {
		f.flusher = fl
	}
	return f
}

func (f *SSEFramer) Transport() string { return "sse" }

func (f *SSEFramer) Open(retry time.Duration) error {
	if retry > 0 {
		fmt.Fprintf(f.w, "retry: %d\n\n", retry.Milliseconds())
	}
	f.w.WriteString(": hello\n\n")
	return f.flush()
}

// WriteEvent writes one event line and one data line per payload line.
func (f *SSEFramer) WriteEvent(e domain.Event) error {
	f.w.WriteString("event: ")
	f.w.WriteString(singleLine(e.Type))
	f.w.WriteByte('\n')

	payload := strings.ReplaceAll(e.Payload, "\r\n", "\n")
	for line := range strings.SplitSeq(payload, "\n") {
		f.w.WriteString("data: ")
		f.w.WriteString(strings.TrimSuffix(line, "\r"))
		f.w.WriteByte('\n')
	}
	f.w.WriteByte('\n')
	return f.flush()
}

func (f *SSEFramer) Heartbeat() error {
	f.w.WriteString(": hb\n\n")
	return f.flush()
}

func (f *SSEFramer) flush() error {
	if err := f.w.Flush(); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return nil
}

func singleLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
