package services

import (
	"context"

	"vellum/internal/domain/models"
)

// ChatRequest starts a document-aware chat generation.
type ChatRequest struct {
	UserID     string `json:"-"`
	ProjectID  string `json:"projectId"`
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	Mode       string `json:"mode,omitempty"` // optional chat mode hint
}

// SelectionRequest starts a selection-scoped generation (refine, extend,
// summarize, simplify). Prompt carries the action name and selected text as
// "<action>: <text>"; the service resolves the action template server-side.
type SelectionRequest struct {
	UserID     string `json:"-"`
	ProjectID  string `json:"projectId"`
	DocumentID string `json:"documentId"`
	Prompt     string `json:"prompt"`
}

// GlobalEditRequest starts a whole-document edit that completes with a
// line-level diff for review.
type GlobalEditRequest struct {
	UserID         string `json:"-"`
	ProjectID      string `json:"projectId"`
	DocumentID     string `json:"documentId"`
	Instruction    string `json:"instruction"`
	CurrentContent string `json:"currentContent"`
}

// GenerationRun is a live stream handed to the transport layer. Events is
// closed after the terminal frame (done or error). Cancelling the context
// passed to Start* stops the run; Interrupt stops it by operation ID.
type GenerationRun struct {
	OperationID string
	Events      <-chan *models.StreamEvent
}

// DecideOperationRequest records the user's final call on an operation.
type DecideOperationRequest struct {
	UserID        string  `json:"-"`
	Status        string  `json:"status"` // accepted or rejected
	OutputContent *string `json:"outputContent,omitempty"`
}

// GenerationService drives AI generation runs and the operations registry.
type GenerationService interface {
	StartChat(ctx context.Context, req *ChatRequest) (*GenerationRun, error)
	StartSelection(ctx context.Context, req *SelectionRequest) (*GenerationRun, error)
	StartGlobalEdit(ctx context.Context, req *GlobalEditRequest) (*GenerationRun, error)

	// Interrupt cancels a live run. Returns domain.ErrNotFound when the
	// operation is not currently streaming.
	Interrupt(ctx context.Context, operationID, userID string) error

	ListOperations(ctx context.Context, documentID, userID string, limit int) ([]models.AIOperation, error)
	DecideOperation(ctx context.Context, operationID string, req *DecideOperationRequest) (*models.AIOperation, error)
}
