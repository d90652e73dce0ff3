package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"vellum/internal/config"
	"vellum/internal/domain"
	"vellum/internal/domain/models"
	"vellum/internal/domain/repositories"
	"vellum/internal/domain/services"
	"vellum/internal/utils"
)

// documentService implements services.DocumentService.
type documentService struct {
	docRepo     repositories.DocumentRepository
	projectRepo repositories.ProjectRepository
	logger      *slog.Logger
}

// NewDocumentService creates a new document service.
func NewDocumentService(
	docRepo repositories.DocumentRepository,
	projectRepo repositories.ProjectRepository,
	logger *slog.Logger,
) services.DocumentService {
	return &documentService{
		docRepo:     docRepo,
		projectRepo: projectRepo,
		logger:      logger,
	}
}

// CreateDocument creates a document in one of the caller's projects.
func (s *documentService) CreateDocument(ctx context.Context, req *services.CreateDocumentRequest) (*models.Document, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ProjectID, validation.Required),
		validation.Field(&req.Title, validation.Required, validation.Length(1, config.MaxDocumentTitleLength)),
		validation.Field(&req.Content, validation.Length(0, config.MaxDocumentContentBytes)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	// Ownership check: the project must belong to the caller.
	if _, err := s.projectRepo.GetByID(ctx, req.ProjectID, req.UserID); err != nil {
		return nil, err
	}

	now := time.Now()
	doc := &models.Document{
		ProjectID: req.ProjectID,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		WordCount: utils.CountWords(req.Content),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document created",
		"document_id", doc.ID,
		"project_id", doc.ProjectID,
		"word_count", doc.WordCount,
	)

	return doc, nil
}

// GetDocument retrieves a document the caller can access.
func (s *documentService) GetDocument(ctx context.Context, id, userID string) (*models.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id, "")
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, doc.ProjectID, userID); err != nil {
		return nil, err
	}

	return doc, nil
}

// UpdateDocument applies the version-checked PATCH. The compare-and-swap
// lives in the repository; this layer validates the request, merges the
// tri-state fields onto the stored row, and recounts words when content
// changed.
func (s *documentService) UpdateDocument(ctx context.Context, id string, req *services.UpdateDocumentRequest) (*models.Document, error) {
	if req.ExpectedVersion == nil {
		return nil, fmt.Errorf("%w: expectedVersion is required", domain.ErrValidation)
	}
	if *req.ExpectedVersion < 1 {
		return nil, fmt.Errorf("%w: expectedVersion must be positive", domain.ErrValidation)
	}
	if !req.Title.Present && !req.Content.Present {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}

	doc, err := s.docRepo.GetByID(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, doc.ProjectID, req.UserID); err != nil {
		return nil, err
	}

	if req.Title.Present {
		if req.Title.Value == nil || strings.TrimSpace(*req.Title.Value) == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", domain.ErrValidation)
		}
		if len(*req.Title.Value) > config.MaxDocumentTitleLength {
			return nil, fmt.Errorf("%w: title too long", domain.ErrValidation)
		}
		doc.Title = strings.TrimSpace(*req.Title.Value)
	}

	if req.Content.Present {
		content := ""
		if req.Content.Value != nil {
			content = *req.Content.Value
		}
		if len(content) > config.MaxDocumentContentBytes {
			return nil, fmt.Errorf("%w: content too large", domain.ErrValidation)
		}
		doc.Content = content
		doc.WordCount = utils.CountWords(content)
	}

	if err := s.docRepo.UpdateWithVersion(ctx, doc, *req.ExpectedVersion); err != nil {
		return nil, err
	}

	s.logger.Debug("document saved",
		"document_id", doc.ID,
		"version", doc.Version,
		"word_count", doc.WordCount,
	)

	return doc, nil
}

// DeleteDocument soft-deletes a document the caller owns.
func (s *documentService) DeleteDocument(ctx context.Context, id, userID string) error {
	doc, err := s.docRepo.GetByID(ctx, id, "")
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, doc.ProjectID, userID); err != nil {
		return err
	}

	return s.docRepo.SoftDelete(ctx, id, doc.ProjectID)
}

// ListDocuments returns the documents of one of the caller's projects.
func (s *documentService) ListDocuments(ctx context.Context, projectID, userID string) ([]models.Document, error) {
	if err := s.authorize(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.docRepo.ListByProject(ctx, projectID)
}

// authorize verifies the project belongs to userID, mapping a missing
// project to forbidden rather than leaking existence.
func (s *documentService) authorize(ctx context.Context, projectID, userID string) error {
	if _, err := s.projectRepo.GetByID(ctx, projectID, userID); err != nil {
		return fmt.Errorf("document access denied: %w", domain.ErrForbidden)
	}
	return nil
}
