package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"vellum/internal/domain/models"
)

// OpState is the AI operation lifecycle status.
type OpState string

const (
	OpStateIdle      OpState = "idle"
	OpStateLoading   OpState = "loading"
	OpStateStreaming OpState = "streaming"
	OpStatePreview   OpState = "preview"
	OpStateError     OpState = "error"
)

// Selection is the snapshot of a user-highlighted range taken when a
// selection operation starts. From/To are rune offsets into the buffer.
type Selection struct {
	From int
	To   int
	Text string
}

// StartRequest describes one generation to run.
type StartRequest struct {
	Scope       string // models.ScopeSelection or models.ScopeGlobal
	ProjectID   string
	DocumentID  string
	Action      string     // selection scope: refine, extend, summarize, simplify
	Instruction string     // global scope
	Selection   *Selection // required for selection scope
}

// Operation is a point-in-time snapshot of the controller's state.
type Operation struct {
	ID                string
	ServerOperationID string
	Scope             string
	State             OpState
	Output            string
	ModifiedContent   string
	Diff              []models.DiffEntry
	Selection         *Selection
	Err               *OpError
}

// OperationOption configures an OperationController.
type OperationOption func(*OperationController)

// WithOnUpdate installs a callback invoked after every state change.
func WithOnUpdate(fn func(Operation)) OperationOption {
	return func(c *OperationController) { c.onUpdate = fn }
}

// OperationController drives exactly one AI generation lifecycle at a time:
// it opens the stream, accumulates ordered chunks, and enforces the
// accept/reject invariants against the document buffer. Starting a new
// operation cancels the previous stream first; chunks from a cancelled
// stream are never observed.
type OperationController struct {
	client   *Client
	buffer   *DocumentBuffer
	onUpdate func(Operation)

	mu              sync.Mutex
	state           OpState
	opID            string
	serverOpID      string
	scope           string
	selection       *Selection
	output          string
	modifiedContent string
	diff            []models.DiffEntry
	opErr           *OpError
	cancel          context.CancelFunc
	gen             int // bumped on cancel/start so stale streams are ignored
	lastReq         *StartRequest
	accepting       bool
	closed          bool
}

// NewOperationController creates a controller bound to one editor buffer.
func NewOperationController(client *Client, buffer *DocumentBuffer, opts ...OperationOption) *OperationController {
	c := &OperationController{
		client: client,
		buffer: buffer,
		state:  OpStateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartOperation begins a new generation, cancelling any active one first.
// Returns the local operation identifier.
func (c *OperationController) StartOperation(ctx context.Context, req StartRequest) (string, error) {
	if err := validateStart(&req); err != nil {
		return "", err
	}

	path, body := c.buildRequest(&req)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", fmt.Errorf("operation controller is closed")
	}

	// Single in-flight rule: the prior stream dies before the new one opens.
	c.cancelStreamLocked()

	streamCtx, cancelFn := context.WithCancel(ctx)
	c.gen++
	gen := c.gen
	c.cancel = cancelFn

	reqCopy := req
	c.lastReq = &reqCopy
	c.opID = uuid.New().String()
	c.serverOpID = ""
	c.scope = req.Scope
	c.selection = req.Selection
	c.output = ""
	c.modifiedContent = ""
	c.diff = nil
	c.opErr = nil
	c.state = OpStateLoading
	opID := c.opID
	c.mu.Unlock()
	c.notify()

	go c.consume(streamCtx, gen, path, body)

	return opID, nil
}

// Retry re-invokes the last started action. Valid from the error state (and
// harmless elsewhere: it behaves like starting the same operation again).
func (c *OperationController) Retry(ctx context.Context) (string, error) {
	c.mu.Lock()
	req := c.lastReq
	c.mu.Unlock()

	if req == nil {
		return "", fmt.Errorf("no operation to retry")
	}
	return c.StartOperation(ctx, *req)
}

// Cancel aborts the underlying stream and discards the operation. Safe at
// any status and idempotent: an active, previewed or errored operation
// resets to idle; from idle it is a no-op.
func (c *OperationController) Cancel() {
	c.mu.Lock()
	c.cancelStreamLocked()

	changed := false
	if c.state != OpStateIdle {
		c.resetLocked()
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// Accept applies the accumulated output into the buffer: range replace for
// selection scope, wholesale for global scope. Guards run before any
// mutation; a second Accept while one is applying is refused.
func (c *OperationController) Accept() error {
	c.mu.Lock()

	if c.accepting {
		c.mu.Unlock()
		return fmt.Errorf("accept already in progress")
	}
	if c.state != OpStatePreview {
		c.mu.Unlock()
		return fmt.Errorf("no operation in preview")
	}
	c.accepting = true

	output := c.output
	scope := c.scope
	selection := c.selection
	modified := c.modifiedContent

	if strings.TrimSpace(output) == "" {
		// Nothing to apply. The operation stays reviewable in preview.
		c.opErr = &OpError{
			Kind:    ErrorKindGeneric,
			Message: "The AI returned no content to apply.",
			Raw:     "empty output on accept",
		}
		c.accepting = false
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("cannot accept empty output")
	}

	if scope == models.ScopeSelection {
		if selection == nil || selection.From < 0 || selection.To < selection.From || selection.To > c.buffer.Len() {
			// Staleness guard: the document changed under the selection.
			// Automatic reject, no mutation.
			c.resetLocked()
			c.opErr = &OpError{
				Kind:    ErrorKindGeneric,
				Message: "The selection is no longer valid. The document changed since this suggestion was generated.",
				Raw:     "stale selection on accept",
			}
			c.accepting = false
			c.mu.Unlock()
			c.notify()
			return fmt.Errorf("selection no longer valid")
		}

		if err := c.buffer.ReplaceRange(selection.From, selection.To, output); err != nil {
			c.resetLocked()
			c.opErr = &OpError{
				Kind:    ErrorKindGeneric,
				Message: "The selection is no longer valid. The document changed since this suggestion was generated.",
				Raw:     err.Error(),
			}
			c.accepting = false
			c.mu.Unlock()
			c.notify()
			return fmt.Errorf("selection no longer valid: %w", err)
		}
	} else {
		content := modified
		if content == "" {
			content = output
		}
		c.buffer.SetContent(content)
	}

	c.resetLocked()
	c.accepting = false
	c.mu.Unlock()
	c.notify()
	return nil
}

// Reject cancels any active stream and resets to idle without touching the
// buffer.
func (c *OperationController) Reject() {
	c.mu.Lock()
	c.cancelStreamLocked()
	c.resetLocked()
	c.mu.Unlock()
	c.notify()
}

// Close cancels and discards the current operation. Used on editor unmount
// or document navigation; the controller accepts no further starts.
func (c *OperationController) Close() {
	c.mu.Lock()
	c.cancelStreamLocked()
	c.resetLocked()
	c.closed = true
	c.mu.Unlock()
}

// Snapshot returns the current operation state.
func (c *OperationController) Snapshot() Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *OperationController) snapshotLocked() Operation {
	op := Operation{
		ID:                c.opID,
		ServerOperationID: c.serverOpID,
		Scope:             c.scope,
		State:             c.state,
		Output:            c.output,
		ModifiedContent:   c.modifiedContent,
		Err:               c.opErr,
	}
	if c.selection != nil {
		sel := *c.selection
		op.Selection = &sel
	}
	if len(c.diff) > 0 {
		op.Diff = append([]models.DiffEntry(nil), c.diff...)
	}
	return op
}

// consume drains one stream into the controller. gen pins the stream: once
// the controller moves on (cancel, new start), events from this stream are
// dropped without effect.
func (c *OperationController) consume(ctx context.Context, gen int, path string, body interface{}) {
	events, err := c.client.OpenStream(ctx, path, body)
	if err != nil {
		c.failStream(gen, err.Error())
		return
	}

	sawTerminal := false
	for event := range events {
		switch event.Type {
		case models.StreamEventContent:
			c.appendChunk(gen, event.Content)

		case models.StreamEventDone:
			sawTerminal = true
			c.finishStream(gen, event)

		case models.StreamEventError:
			sawTerminal = true
			c.failStream(gen, event.Error)
		}
	}

	if !sawTerminal && ctx.Err() == nil {
		c.failStream(gen, "stream ended unexpectedly")
	}
}

func (c *OperationController) appendChunk(gen int, text string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.state == OpStateLoading {
		c.state = OpStateStreaming
	}
	c.output += text
	c.mu.Unlock()
	c.notify()
}

func (c *OperationController) finishStream(gen int, event *models.StreamEvent) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = OpStatePreview
	c.serverOpID = event.OperationID
	c.modifiedContent = event.ModifiedContent
	c.diff = event.Diff
	c.clearCancelLocked()
	c.mu.Unlock()
	c.notify()
}

func (c *OperationController) failStream(gen int, raw string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = OpStateError
	c.opErr = classifyStreamError(raw)
	c.clearCancelLocked()
	c.mu.Unlock()
	c.notify()
}

// cancelStreamLocked aborts the active stream and bumps the generation so
// its remaining events are ignored.
func (c *OperationController) cancelStreamLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

func (c *OperationController) clearCancelLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *OperationController) resetLocked() {
	c.state = OpStateIdle
	c.opID = ""
	c.serverOpID = ""
	c.scope = ""
	c.selection = nil
	c.output = ""
	c.modifiedContent = ""
	c.diff = nil
	c.opErr = nil
}

func (c *OperationController) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	var op Operation
	if fn != nil {
		op = c.snapshotLocked()
	}
	c.mu.Unlock()

	if fn != nil {
		fn(op)
	}
}

func (c *OperationController) buildRequest(req *StartRequest) (string, interface{}) {
	if req.Scope == models.ScopeSelection {
		action := req.Action
		if action == "" {
			action = "refine"
		}
		return "/api/ai/generate", map[string]string{
			"prompt":     action + ": " + req.Selection.Text,
			"projectId":  req.ProjectID,
			"documentId": req.DocumentID,
		}
	}

	return "/api/ai/global-edit", map[string]string{
		"instruction":    req.Instruction,
		"currentContent": c.buffer.Content(),
		"projectId":      req.ProjectID,
		"documentId":     req.DocumentID,
	}
}

func validateStart(req *StartRequest) error {
	if !models.ValidOperationScope(req.Scope) || req.Scope == models.ScopeChat {
		return fmt.Errorf("invalid scope %q", req.Scope)
	}
	if req.Scope == models.ScopeSelection && req.Selection == nil {
		return fmt.Errorf("selection scope requires a selection snapshot")
	}
	if req.Scope == models.ScopeGlobal && strings.TrimSpace(req.Instruction) == "" {
		return fmt.Errorf("global scope requires an instruction")
	}
	if req.ProjectID == "" || req.DocumentID == "" {
		return fmt.Errorf("projectId and documentId are required")
	}
	return nil
}
