package services

import (
	"context"

	"vellum/internal/domain/models"
	"vellum/internal/httputil"
)

// CreateDocumentRequest is the payload for creating a document.
type CreateDocumentRequest struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"-"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

// UpdateDocumentRequest is the payload for the version-checked PATCH.
// Content and Title are tri-state so a PATCH can change either independently;
// ExpectedVersion is mandatory.
type UpdateDocumentRequest struct {
	UserID          string                   `json:"-"`
	Title           httputil.OptionalString  `json:"title"`
	Content         httputil.OptionalString  `json:"content"`
	ExpectedVersion *int                     `json:"expectedVersion"`
}

// DocumentService owns document business logic: validation, word counting,
// and the optimistic-concurrency write path.
type DocumentService interface {
	CreateDocument(ctx context.Context, req *CreateDocumentRequest) (*models.Document, error)
	GetDocument(ctx context.Context, id, userID string) (*models.Document, error)
	UpdateDocument(ctx context.Context, id string, req *UpdateDocumentRequest) (*models.Document, error)
	DeleteDocument(ctx context.Context, id, userID string) error
	ListDocuments(ctx context.Context, projectID, userID string) ([]models.Document, error)
}

// CreateProjectRequest is the payload for creating a project.
type CreateProjectRequest struct {
	UserID string `json:"-"`
	Name   string `json:"name"`
}

// ProjectService owns project business logic.
type ProjectService interface {
	CreateProject(ctx context.Context, req *CreateProjectRequest) (*models.Project, error)
	GetProject(ctx context.Context, id, userID string) (*models.Project, error)
	ListProjects(ctx context.Context, userID string) ([]models.Project, error)
}
