package sse

import (
	"fmt"
	"net/http"
	"sync"

	"vellum/internal/domain/models"
)

// Writer streams generation events to one client as SSE data frames.
// Safe for concurrent use: the event loop and the keep-alive ticker write
// through the same Writer.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewWriter prepares w for event streaming and returns a Writer, or an
// error when the ResponseWriter cannot flush (no streaming support).
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent writes one data frame and flushes it to the client.
func (s *Writer) WriteEvent(event *models.StreamEvent) error {
	frame, err := models.FormatSSE(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return fmt.Errorf("write event failed: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteKeepAlive writes an SSE comment line and flushes. Lines starting
// with ':' are ignored by clients per the SSE spec.
func (s *Writer) WriteKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}
	s.flusher.Flush()

	// Zero-byte write probes for a closed connection.
	if _, err := s.w.Write([]byte{}); err != nil {
		return fmt.Errorf("connection closed: %w", err)
	}

	return nil
}
