package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"vellum/internal/domain/models"
)

// maxFrameBytes bounds one SSE data line. Global-edit done frames carry the
// whole modified document plus its diff.
const maxFrameBytes = 8 << 20

// OpenStream POSTs a generation request and consumes the SSE response as a
// channel of decoded events. The channel delivers frames in arrival order
// and is closed after a terminal event (done or error), on EOF, or when ctx
// is cancelled. A transport failure mid-stream is surfaced as a synthesized
// error event before the close, so consumers see every outcome in-band.
func (c *Client) OpenStream(ctx context.Context, path string, body interface{}) (<-chan *models.StreamEvent, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.decodeError(req, resp)
	}

	events := make(chan *models.StreamEvent, 16)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)

		for scanner.Scan() {
			payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				// Blank frame separators and ": keepalive" comments.
				continue
			}

			var event models.StreamEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				deliver(ctx, events, models.NewErrorEvent("malformed stream frame: "+err.Error()))
				return
			}

			if !deliver(ctx, events, &event) {
				return
			}

			if event.Type == models.StreamEventDone || event.Type == models.StreamEventError {
				return
			}
		}

		if err := scanner.Err(); err != nil && err != io.EOF && ctx.Err() == nil {
			deliver(ctx, events, models.NewErrorEvent("stream transport failed: "+err.Error()))
		}
	}()

	return events, nil
}

// deliver sends an event unless the consumer's context is gone. Returns
// false when the send was abandoned.
func deliver(ctx context.Context, events chan<- *models.StreamEvent, event *models.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
