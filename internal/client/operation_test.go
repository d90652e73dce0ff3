package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vellum/internal/domain/models"
)

// writeFrames flushes a sequence of SSE data frames to the response.
func writeFrames(t *testing.T, w http.ResponseWriter, events ...*models.StreamEvent) {
	t.Helper()
	flusher, ok := w.(http.Flusher)
	if !ok {
		t.Fatal("response writer is not a flusher")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	for _, event := range events {
		frame, err := models.FormatSSE(event)
		if err != nil {
			t.Errorf("format frame: %v", err)
			return
		}
		if _, err := w.Write([]byte(frame)); err != nil {
			return
		}
		flusher.Flush()
	}
}

func newStreamServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func selectionRequest(sel *Selection) StartRequest {
	return StartRequest{
		Scope:      models.ScopeSelection,
		ProjectID:  "p1",
		DocumentID: "d1",
		Action:     "refine",
		Selection:  sel,
	}
}

func TestSelectionOperationLifecycle(t *testing.T) {
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrames(t, w,
			models.NewContentEvent("Hello"),
			models.NewContentEvent(" world"),
			models.NewDoneEvent("op-server-1", "", nil),
		)
	})

	buffer := NewDocumentBuffer("0123456789 rest of the document")
	ctrl := NewOperationController(New(srv.URL, "token"), buffer)
	defer ctrl.Close()

	if _, err := ctrl.StartOperation(context.Background(), selectionRequest(&Selection{From: 0, To: 10, Text: "0123456789"})); err != nil {
		t.Fatalf("StartOperation: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStatePreview
	}, "preview state")

	snap := ctrl.Snapshot()
	if snap.Output != "Hello world" {
		t.Errorf("output = %q, want ordered concatenation %q", snap.Output, "Hello world")
	}
	if snap.ServerOperationID != "op-server-1" {
		t.Errorf("server operation id = %q, want op-server-1", snap.ServerOperationID)
	}

	if err := ctrl.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got := buffer.Content(); got != "Hello world rest of the document" {
		t.Errorf("buffer after accept = %q", got)
	}
	if got := ctrl.Snapshot().State; got != OpStateIdle {
		t.Errorf("state after accept = %q, want idle", got)
	}
}

func TestGlobalEditPreservesDiffOrder(t *testing.T) {
	diff := []models.DiffEntry{
		{Type: "remove", Value: "Old", LineNumber: 1},
		{Type: "add", Value: "New", LineNumber: 1},
	}
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrames(t, w,
			models.NewContentEvent("New"),
			models.NewDoneEvent("op-server-2", "New", diff),
		)
	})

	buffer := NewDocumentBuffer("Old")
	ctrl := NewOperationController(New(srv.URL, "token"), buffer)
	defer ctrl.Close()

	req := StartRequest{
		Scope:       models.ScopeGlobal,
		ProjectID:   "p1",
		DocumentID:  "d1",
		Instruction: "replace everything",
	}
	if _, err := ctrl.StartOperation(context.Background(), req); err != nil {
		t.Fatalf("StartOperation: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStatePreview
	}, "preview state")

	snap := ctrl.Snapshot()
	if len(snap.Diff) != 2 {
		t.Fatalf("diff has %d entries, want 2", len(snap.Diff))
	}
	for i, want := range diff {
		if snap.Diff[i] != want {
			t.Errorf("diff[%d] = %+v, want %+v", i, snap.Diff[i], want)
		}
	}

	if err := ctrl.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got := buffer.Content(); got != "New" {
		t.Errorf("buffer after global accept = %q, want New", got)
	}
}

func TestSecondStartCancelsFirstStream(t *testing.T) {
	var firstDone atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; ; i++ {
			select {
			case <-r.Context().Done():
				firstDone.Store(true)
				return
			case <-time.After(10 * time.Millisecond):
			}
			frame, _ := models.FormatSSE(models.NewContentEvent("A"))
			if _, err := w.Write([]byte(frame)); err != nil {
				firstDone.Store(true)
				return
			}
			flusher.Flush()
		}
	})
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		writeFrames(t, w,
			models.NewContentEvent("B"),
			models.NewDoneEvent("op-2", "", nil),
		)
	})

	// Route by call order rather than path: both starts hit the same
	// generate endpoint.
	var calls atomic.Int32
	routed := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			r.URL.Path = "/slow"
		} else {
			r.URL.Path = "/fast"
		}
		mux.ServeHTTP(w, r)
	})

	buffer := NewDocumentBuffer("0123456789")
	ctrl := NewOperationController(New(routed.URL, "token"), buffer)
	defer ctrl.Close()

	if _, err := ctrl.StartOperation(context.Background(), selectionRequest(&Selection{From: 0, To: 5, Text: "01234"})); err != nil {
		t.Fatalf("first StartOperation: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStateStreaming
	}, "first stream to produce chunks")

	if _, err := ctrl.StartOperation(context.Background(), selectionRequest(&Selection{From: 0, To: 5, Text: "01234"})); err != nil {
		t.Fatalf("second StartOperation: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStatePreview
	}, "second stream to finish")
	waitFor(t, time.Second, firstDone.Load, "first stream to be cancelled server-side")

	// Only the second stream's chunks are observable.
	if got := ctrl.Snapshot().Output; got != "B" {
		t.Errorf("output = %q, want B with no chunks from the cancelled stream", got)
	}
}

func TestAcceptEmptyOutputStaysInPreview(t *testing.T) {
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrames(t, w,
			models.NewContentEvent("   "),
			models.NewDoneEvent("op-3", "", nil),
		)
	})

	buffer := NewDocumentBuffer("original text here")
	ctrl := NewOperationController(New(srv.URL, "token"), buffer)
	defer ctrl.Close()

	if _, err := ctrl.StartOperation(context.Background(), selectionRequest(&Selection{From: 0, To: 8, Text: "original"})); err != nil {
		t.Fatalf("StartOperation: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStatePreview
	}, "preview state")

	if err := ctrl.Accept(); err == nil {
		t.Fatal("Accept of whitespace output should fail")
	}

	snap := ctrl.Snapshot()
	if snap.State != OpStatePreview {
		t.Errorf("state = %q, want operation still reviewable in preview", snap.State)
	}
	if snap.Err == nil {
		t.Error("expected a surfaced error after refused accept")
	}
	if got := buffer.Content(); got != "original text here" {
		t.Errorf("buffer mutated on refused accept: %q", got)
	}
}

func TestAcceptStaleSelectionAutoRejects(t *testing.T) {
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrames(t, w,
			models.NewContentEvent("replacement"),
			models.NewDoneEvent("op-4", "", nil),
		)
	})

	buffer := NewDocumentBuffer("a long enough document body to select from, well past fifty runes total")
	ctrl := NewOperationController(New(srv.URL, "token"), buffer)
	defer ctrl.Close()

	if _, err := ctrl.StartOperation(context.Background(), selectionRequest(&Selection{From: 0, To: 50, Text: "..."})); err != nil {
		t.Fatalf("StartOperation: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStatePreview
	}, "preview state")

	// The document shrank underneath the captured selection.
	buffer.SetContent("short")

	if err := ctrl.Accept(); err == nil {
		t.Fatal("Accept with a stale selection should fail")
	}

	snap := ctrl.Snapshot()
	if snap.State != OpStateIdle {
		t.Errorf("state = %q, want auto-reject to idle", snap.State)
	}
	if got := buffer.Content(); got != "short" {
		t.Errorf("buffer mutated on stale accept: %q", got)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	started := make(chan struct{})
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		frame, _ := models.FormatSSE(models.NewContentEvent("chunk"))
		w.Write([]byte(frame))
		flusher.Flush()
		close(started)
		<-r.Context().Done()
	})

	buffer := NewDocumentBuffer("0123456789")
	ctrl := NewOperationController(New(srv.URL, "token"), buffer)
	defer ctrl.Close()

	if _, err := ctrl.StartOperation(context.Background(), selectionRequest(&Selection{From: 0, To: 5, Text: "01234"})); err != nil {
		t.Fatalf("StartOperation: %v", err)
	}
	<-started
	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStateStreaming
	}, "streaming state")

	ctrl.Cancel()
	if got := ctrl.Snapshot().State; got != OpStateIdle {
		t.Fatalf("state after cancel = %q, want idle", got)
	}
	ctrl.Cancel() // second cancel is a no-op

	// Late chunks from the dead stream never reappear.
	time.Sleep(50 * time.Millisecond)
	snap := ctrl.Snapshot()
	if snap.State != OpStateIdle || snap.Output != "" {
		t.Errorf("late chunks leaked: state=%q output=%q", snap.State, snap.Output)
	}
}

func TestCancelDiscardsPreviewedOperation(t *testing.T) {
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrames(t, w,
			models.NewContentEvent("suggestion"),
			models.NewDoneEvent("op-6", "", nil),
		)
	})

	buffer := NewDocumentBuffer("original text here")
	ctrl := NewOperationController(New(srv.URL, "token"), buffer)
	defer ctrl.Close()

	if _, err := ctrl.StartOperation(context.Background(), selectionRequest(&Selection{From: 0, To: 8, Text: "original"})); err != nil {
		t.Fatalf("StartOperation: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStatePreview
	}, "preview state")

	ctrl.Cancel()

	snap := ctrl.Snapshot()
	if snap.State != OpStateIdle {
		t.Fatalf("state after cancel from preview = %q, want idle", snap.State)
	}
	if snap.Output != "" {
		t.Errorf("output survived cancel: %q", snap.Output)
	}
	if got := buffer.Content(); got != "original text here" {
		t.Errorf("buffer mutated by cancel: %q", got)
	}
}

func TestCancelDiscardsErroredOperation(t *testing.T) {
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrames(t, w, models.NewErrorEvent("provider blew up"))
	})

	buffer := NewDocumentBuffer("0123456789")
	ctrl := NewOperationController(New(srv.URL, "token"), buffer)
	defer ctrl.Close()

	if _, err := ctrl.StartOperation(context.Background(), selectionRequest(&Selection{From: 0, To: 5, Text: "01234"})); err != nil {
		t.Fatalf("StartOperation: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStateError
	}, "error state")

	ctrl.Cancel()

	snap := ctrl.Snapshot()
	if snap.State != OpStateIdle {
		t.Fatalf("state after cancel from error = %q, want idle", snap.State)
	}
	if snap.Err != nil {
		t.Errorf("error survived cancel: %+v", snap.Err)
	}
}

func TestStreamErrorClassifiedAndRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeFrames(t, w, models.NewErrorEvent("429 rate limit exceeded"))
			return
		}
		writeFrames(t, w,
			models.NewContentEvent("second try"),
			models.NewDoneEvent("op-5", "", nil),
		)
	})

	var mu sync.Mutex
	var states []OpState
	buffer := NewDocumentBuffer("0123456789")
	ctrl := NewOperationController(New(srv.URL, "token"), buffer,
		WithOnUpdate(func(op Operation) {
			mu.Lock()
			states = append(states, op.State)
			mu.Unlock()
		}),
	)
	defer ctrl.Close()

	if _, err := ctrl.StartOperation(context.Background(), selectionRequest(&Selection{From: 0, To: 5, Text: "01234"})); err != nil {
		t.Fatalf("StartOperation: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStateError
	}, "error state")

	snap := ctrl.Snapshot()
	if snap.Err == nil || snap.Err.Kind != ErrorKindRateLimited {
		t.Fatalf("error = %+v, want rate-limited classification", snap.Err)
	}

	if _, err := ctrl.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().State == OpStatePreview
	}, "retry to reach preview")

	if got := ctrl.Snapshot().Output; got != "second try" {
		t.Errorf("retry output = %q, want %q", got, "second try")
	}
}

func TestStartValidation(t *testing.T) {
	buffer := NewDocumentBuffer("content")
	ctrl := NewOperationController(New("http://unreachable.invalid", "token"), buffer)
	defer ctrl.Close()

	tests := []struct {
		name string
		req  StartRequest
	}{
		{
			name: "unknown scope",
			req:  StartRequest{Scope: "paragraph", ProjectID: "p1", DocumentID: "d1"},
		},
		{
			name: "selection scope without selection",
			req:  StartRequest{Scope: models.ScopeSelection, ProjectID: "p1", DocumentID: "d1"},
		},
		{
			name: "global scope without instruction",
			req:  StartRequest{Scope: models.ScopeGlobal, ProjectID: "p1", DocumentID: "d1"},
		},
		{
			name: "missing document id",
			req:  StartRequest{Scope: models.ScopeGlobal, ProjectID: "p1", Instruction: "tighten"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ctrl.StartOperation(context.Background(), tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
