package repositories

import (
	"context"

	"vellum/internal/domain/models"
)

// OperationRepository persists AI operations for the audit registry.
type OperationRepository interface {
	// Create inserts a new operation row (status "streaming").
	Create(ctx context.Context, op *models.AIOperation) error

	// GetByID retrieves an operation owned by userID.
	GetByID(ctx context.Context, id, userID string) (*models.AIOperation, error)

	// UpdateResult records the stream outcome: status preview/error, the
	// accumulated output, and the error message when present.
	UpdateResult(ctx context.Context, id, status, outputContent string, errMessage *string) error

	// UpdateDecision records the user's final accept/reject decision and
	// optionally the output content as applied.
	UpdateDecision(ctx context.Context, id, userID, status string, outputContent *string) error

	// ListByDocument returns the most recent operations for a document,
	// newest first, capped at limit.
	ListByDocument(ctx context.Context, documentID, userID string, limit int) ([]models.AIOperation, error)
}
