package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"vellum/internal/config"
	"vellum/internal/domain"
)

// SaveState is the observable autosave status.
type SaveState string

const (
	SaveStateIdle   SaveState = "idle"
	SaveStateSaving SaveState = "saving"
	SaveStateSaved  SaveState = "saved"
	SaveStateError  SaveState = "error"
)

// SaveStatus is the snapshot exposed to the UI: state, the last-known
// server version, and the retry-relevant error detail.
type SaveStatus struct {
	State       SaveState
	Version     int
	LastSavedAt time.Time
	LastError   error
}

// ConflictFunc receives the authoritative server version and the stale local
// version when a save hits a 409. Resolution policy belongs to the caller;
// the controller never auto-merges.
type ConflictFunc func(serverVersion, localVersion int)

// AutosaveOption configures an Autosave controller.
type AutosaveOption func(*Autosave)

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) AutosaveOption {
	return func(a *Autosave) { a.debounce = d }
}

// WithOnConflict installs the conflict callback.
func WithOnConflict(fn ConflictFunc) AutosaveOption {
	return func(a *Autosave) { a.onConflict = fn }
}

// WithOnStatus installs a callback invoked after every status transition.
func WithOnStatus(fn func(SaveStatus)) AutosaveOption {
	return func(a *Autosave) { a.onStatus = fn }
}

// Autosave decouples "the user is typing" from "a network write happens"
// while preserving last-write-wins-with-conflict-detection semantics.
// Rapid TriggerSave calls are debounced and coalesced: at most one PATCH is
// in flight, the newest content is never dropped, and content queued behind
// an in-flight write is sent immediately after it completes.
type Autosave struct {
	client     *Client
	documentID string

	debounce   time.Duration
	onConflict ConflictFunc
	onStatus   func(SaveStatus)

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu          sync.Mutex
	state       SaveState
	version     int
	lastSavedAt time.Time
	lastError   error
	lastSaved   string  // content of the last successful save
	pending     *string // newest content awaiting a write
	lastAttempt *string // content of the most recent attempted write, for retry
	inFlight    bool
	sending     string // content currently on the wire
	timer       *time.Timer
	closed      bool
}

// NewAutosave creates an autosave controller for one document. version and
// content seed the version counter and the idempotence check from the
// document as loaded into the editor.
func NewAutosave(c *Client, documentID string, version int, content string, opts ...AutosaveOption) *Autosave {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Autosave{
		client:     c,
		documentID: documentID,
		debounce:   config.DefaultAutosaveDebounce,
		ctx:        ctx,
		cancelCtx:  cancel,
		state:      SaveStateIdle,
		version:    version,
		lastSaved:  content,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TriggerSave records new content and (re)starts the debounce window.
// Fire-and-forget; may be called arbitrarily often.
func (a *Autosave) TriggerSave(content string) {
	a.mu.Lock()

	if a.closed {
		a.mu.Unlock()
		return
	}

	// Idempotence: identical to the last successful save with nothing else
	// queued, or identical to what is already on the wire. No duplicate
	// write either way.
	if a.pending == nil {
		if !a.inFlight && content == a.lastSaved {
			a.mu.Unlock()
			return
		}
		if a.inFlight && content == a.sending {
			a.mu.Unlock()
			return
		}
	}

	queued := content
	a.pending = &queued

	if a.inFlight {
		// Picked up by the save loop as soon as the current write lands.
		a.mu.Unlock()
		return
	}

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.debounce, a.flush)
	a.mu.Unlock()
}

// SaveNow forces an immediate write, bypassing the debounce window. With no
// queued content it re-sends the last failed attempt, which is the manual
// retry path after an error.
func (a *Autosave) SaveNow() {
	a.mu.Lock()

	if a.closed {
		a.mu.Unlock()
		return
	}

	if a.pending == nil {
		if a.state != SaveStateError || a.lastAttempt == nil {
			a.mu.Unlock()
			return
		}
		retry := *a.lastAttempt
		a.pending = &retry
	}

	if a.inFlight {
		a.mu.Unlock()
		return
	}

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	a.flush()
}

// Status returns the current status snapshot.
func (a *Autosave) Status() SaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return SaveStatus{
		State:       a.state,
		Version:     a.version,
		LastSavedAt: a.lastSavedAt,
		LastError:   a.lastError,
	}
}

// Version returns the last-known server version.
func (a *Autosave) Version() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// Close stops the debounce timer and aborts in-flight work. The controller
// accepts no further saves.
func (a *Autosave) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	a.cancelCtx()
}

// flush moves queued content onto the wire. Runs from the debounce timer
// and from SaveNow.
func (a *Autosave) flush() {
	a.mu.Lock()
	if a.closed || a.inFlight || a.pending == nil {
		a.mu.Unlock()
		return
	}
	a.inFlight = true
	a.mu.Unlock()

	go a.saveLoop()
}

// saveLoop drains queued content. One write at a time; content that arrived
// while a write was in flight goes out immediately after it, so the newest
// edit always reaches the server.
func (a *Autosave) saveLoop() {
	for {
		a.mu.Lock()
		if a.closed || a.pending == nil {
			a.inFlight = false
			a.mu.Unlock()
			return
		}

		content := *a.pending
		a.pending = nil

		if content == a.lastSaved {
			// The queue caught up with the server; nothing to write, but
			// the loop may have gotten here from a saving state.
			a.inFlight = false
			a.state = SaveStateSaved
			a.mu.Unlock()
			a.notify()
			return
		}

		attempt := content
		a.lastAttempt = &attempt
		a.sending = content
		expected := a.version
		a.state = SaveStateSaving
		a.mu.Unlock()
		a.notify()

		doc, err := a.client.SaveDocument(a.ctx, a.documentID, &SaveRequest{
			Content:         content,
			ExpectedVersion: expected,
		})
		if err != nil {
			a.handleSaveError(err, expected)
			return
		}

		a.mu.Lock()
		a.version = doc.Version
		a.lastSaved = content
		a.lastSavedAt = now()
		a.lastError = nil
		a.sending = ""

		if a.pending != nil {
			// Newer content queued behind this write; send it now.
			a.mu.Unlock()
			continue
		}

		a.inFlight = false
		a.state = SaveStateSaved
		a.mu.Unlock()
		a.notify()
		return
	}
}

// handleSaveError turns a failed write into error state. Conflicts fetch
// the authoritative document and report both versions; nothing retries
// automatically.
func (a *Autosave) handleSaveError(err error, localVersion int) {
	var conflict *domain.VersionConflictError
	if errors.As(err, &conflict) {
		serverVersion := conflict.ServerVersion
		if doc, fetchErr := a.client.GetDocument(a.ctx, a.documentID); fetchErr == nil {
			serverVersion = doc.Version
		}

		a.mu.Lock()
		a.lastError = err
		a.inFlight = false
		a.sending = ""
		a.state = SaveStateError
		onConflict := a.onConflict
		a.mu.Unlock()

		if onConflict != nil {
			onConflict(serverVersion, localVersion)
		}
		a.notify()
		return
	}

	a.mu.Lock()
	a.lastError = err
	a.inFlight = false
	a.sending = ""
	a.state = SaveStateError
	a.mu.Unlock()
	a.notify()
}

func (a *Autosave) notify() {
	a.mu.Lock()
	fn := a.onStatus
	a.mu.Unlock()

	if fn != nil {
		fn(a.Status())
	}
}
