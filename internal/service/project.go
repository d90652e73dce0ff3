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
)

// projectService implements services.ProjectService.
type projectService struct {
	projectRepo repositories.ProjectRepository
	logger      *slog.Logger
}

// NewProjectService creates a new project service.
func NewProjectService(projectRepo repositories.ProjectRepository, logger *slog.Logger) services.ProjectService {
	return &projectService{
		projectRepo: projectRepo,
		logger:      logger,
	}
}

func (s *projectService) CreateProject(ctx context.Context, req *services.CreateProjectRequest) (*models.Project, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, config.MaxProjectNameLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	now := time.Now()
	project := &models.Project{
		UserID:    req.UserID,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project_id", project.ID, "user_id", project.UserID)

	return project, nil
}

func (s *projectService) GetProject(ctx context.Context, id, userID string) (*models.Project, error) {
	return s.projectRepo.GetByID(ctx, id, userID)
}

func (s *projectService) ListProjects(ctx context.Context, userID string) ([]models.Project, error) {
	return s.projectRepo.ListByUser(ctx, userID)
}
