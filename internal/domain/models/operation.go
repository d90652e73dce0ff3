package models

import (
	"time"
)

// Operation scopes
const (
	ScopeSelection = "selection" // Rewrite a user-highlighted range
	ScopeGlobal    = "global"    // Whole-document edit, reviewed as a diff
	ScopeChat      = "chat"      // Document-aware Q&A, never applied to the buffer
)

// Operation statuses. The server records streaming/preview/error; the final
// accepted/rejected decision arrives via PATCH from the client once the user
// has reviewed the output.
const (
	OperationStatusStreaming = "streaming"
	OperationStatusPreview   = "preview"
	OperationStatusAccepted  = "accepted"
	OperationStatusRejected  = "rejected"
	OperationStatusError     = "error"
)

// AIOperation is one user-initiated generation request and its outcome,
// persisted for audit/history. The live stream itself is not stored; only
// the accumulated output and the user's decision are.
type AIOperation struct {
	ID            string      `json:"id" db:"id"`
	UserID        string      `json:"userId" db:"user_id"`
	ProjectID     string      `json:"projectId" db:"project_id"`
	DocumentID    string      `json:"documentId" db:"document_id"`
	Scope         string      `json:"scope" db:"scope"`
	Action        string      `json:"action" db:"action"` // refine, extend, summarize, simplify, chat, global-edit
	Status        string      `json:"status" db:"status"`
	OutputContent string      `json:"outputContent" db:"output_content"`
	Error         *string     `json:"error,omitempty" db:"error"`
	Diff          []DiffEntry `json:"diff,omitempty" db:"-"`
	CreatedAt     time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time   `json:"updatedAt" db:"updated_at"`
}

// DiffEntry is one line-level change produced by a global edit. Entries are
// ordered; the review UI tracks per-entry accept/reject decisions on its own.
type DiffEntry struct {
	Type       string `json:"type"` // "add" or "remove"
	Value      string `json:"value"`
	LineNumber int    `json:"lineNumber"`
}

// ValidOperationScope reports whether s is a known scope.
func ValidOperationScope(s string) bool {
	return s == ScopeSelection || s == ScopeGlobal || s == ScopeChat
}

// TerminalOperationStatus reports whether a status is a final user decision.
func TerminalOperationStatus(s string) bool {
	return s == OperationStatusAccepted || s == OperationStatusRejected
}
