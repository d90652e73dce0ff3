package repositories

import (
	"context"

	"vellum/internal/domain/models"
)

// DocumentRepository persists documents with optimistic-concurrency writes.
type DocumentRepository interface {
	// Create inserts a new document at version 1. Returns a
	// domain.ConflictError when a document with the same title already
	// exists in the project.
	Create(ctx context.Context, doc *models.Document) error

	// GetByID retrieves a document scoped to a project. Pass an empty
	// projectID to skip project scoping (authorization handled upstream).
	GetByID(ctx context.Context, id, projectID string) (*models.Document, error)

	// UpdateWithVersion applies a compare-and-swap write: the row is
	// updated (and version incremented) only when its stored version
	// equals expectedVersion. On mismatch it returns a
	// domain.VersionConflictError carrying the server's current version;
	// on a missing row it returns domain.ErrNotFound.
	UpdateWithVersion(ctx context.Context, doc *models.Document, expectedVersion int) error

	// GetVersion returns the current version of a document, ignoring
	// soft-deletion, for conflict reporting.
	GetVersion(ctx context.Context, id string) (int, error)

	// SoftDelete marks a document deleted without removing the row.
	SoftDelete(ctx context.Context, id, projectID string) error

	// ListByProject returns all live documents in a project.
	ListByProject(ctx context.Context, projectID string) ([]models.Document, error)
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id, userID string) (*models.Project, error)
	ListByUser(ctx context.Context, userID string) ([]models.Project, error)
}
