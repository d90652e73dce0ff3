package models

import (
	"encoding/json"
	"fmt"
)

// Stream event types carried in SSE data frames. The generation endpoints
// emit newline-delimited `data: {...}` frames with a "type" discriminator:
//
//	data: {"type":"content","content":"partial text"}
//	data: {"type":"content","content":" more"}
//	data: {"type":"done","operationId":"...","diff":[...]}
//
// A mid-stream failure is reported in-band as a terminal error frame.
const (
	StreamEventContent = "content"
	StreamEventDone    = "done"
	StreamEventError   = "error"
)

// StreamEvent is the wire shape of one generation stream frame. Fields other
// than Type are populated per event type: Content for content frames;
// OperationID, ModifiedContent and Diff for done frames (ModifiedContent and
// Diff only on global edits); Error for error frames.
type StreamEvent struct {
	Type            string      `json:"type"`
	Content         string      `json:"content,omitempty"`
	OperationID     string      `json:"operationId,omitempty"`
	ModifiedContent string      `json:"modifiedContent,omitempty"`
	Diff            []DiffEntry `json:"diff,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// FormatSSE renders an event as an SSE data frame, including the trailing
// blank line that terminates the frame.
func FormatSSE(event *StreamEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal stream event: %w", err)
	}
	return fmt.Sprintf("data: %s\n\n", payload), nil
}

// NewContentEvent creates a content frame carrying one chunk of partial text.
func NewContentEvent(text string) *StreamEvent {
	return &StreamEvent{Type: StreamEventContent, Content: text}
}

// NewDoneEvent creates the terminal frame for a successful stream.
// modifiedContent and diff are empty except for global edits.
func NewDoneEvent(operationID, modifiedContent string, diff []DiffEntry) *StreamEvent {
	return &StreamEvent{
		Type:            StreamEventDone,
		OperationID:     operationID,
		ModifiedContent: modifiedContent,
		Diff:            diff,
	}
}

// NewErrorEvent creates a terminal error frame.
func NewErrorEvent(message string) *StreamEvent {
	return &StreamEvent{Type: StreamEventError, Error: message}
}
