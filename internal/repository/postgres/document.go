package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"vellum/internal/domain"
	"vellum/internal/domain/models"
	"vellum/internal/domain/repositories"
)

// PostgresDocumentRepository implements repositories.DocumentRepository.
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(config *RepositoryConfig) repositories.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new document. Version starts at 1.
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (project_id, title, content, version, word_count, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5, $6)
		RETURNING id, version, created_at, updated_at
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		doc.ProjectID,
		doc.Title,
		doc.Content,
		doc.WordCount,
		doc.CreatedAt,
		doc.UpdatedAt,
	).Scan(&doc.ID, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			existingID, queryErr := r.getExistingDocumentID(ctx, doc.ProjectID, doc.Title)
			if queryErr != nil {
				return fmt.Errorf("document '%s' already exists in this project: %w", doc.Title, domain.ErrConflict)
			}
			return &domain.ConflictError{
				Message:      fmt.Sprintf("document '%s' already exists in this project", doc.Title),
				ResourceType: "document",
				ResourceID:   existingID,
			}
		}
		return fmt.Errorf("create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by ID, optionally scoped to a project.
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id, projectID string) (*models.Document, error) {
	var query string
	var args []interface{}

	if projectID != "" {
		query = fmt.Sprintf(`
			SELECT id, project_id, title, content, version, word_count, created_at, updated_at
			FROM %s
			WHERE id = $1 AND project_id = $2 AND deleted_at IS NULL
		`, r.tables.Documents)
		args = []interface{}{id, projectID}
	} else {
		query = fmt.Sprintf(`
			SELECT id, project_id, title, content, version, word_count, created_at, updated_at
			FROM %s
			WHERE id = $1 AND deleted_at IS NULL
		`, r.tables.Documents)
		args = []interface{}{id}
	}

	var doc models.Document
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, args...).Scan(
		&doc.ID,
		&doc.ProjectID,
		&doc.Title,
		&doc.Content,
		&doc.Version,
		&doc.WordCount,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	return &doc, nil
}

// UpdateWithVersion is the compare-and-swap write: the UPDATE only matches
// when the stored version equals expectedVersion, and the version bump rides
// in the same statement so there is no read-modify-write window. Zero rows
// means either a stale version or a missing document; a follow-up version
// probe tells the two apart.
func (r *PostgresDocumentRepository) UpdateWithVersion(ctx context.Context, doc *models.Document, expectedVersion int) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $1, content = $2, word_count = $3, version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5 AND deleted_at IS NULL
		RETURNING version, updated_at
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		doc.Title,
		doc.Content,
		doc.WordCount,
		doc.ID,
		expectedVersion,
	).Scan(&doc.Version, &doc.UpdatedAt)

	if err == nil {
		return nil
	}
	if !IsPgNoRowsError(err) {
		return fmt.Errorf("update document: %w", err)
	}

	serverVersion, probeErr := r.GetVersion(ctx, doc.ID)
	if probeErr != nil {
		return probeErr
	}

	r.logger.Info("document version conflict",
		"document_id", doc.ID,
		"expected_version", expectedVersion,
		"server_version", serverVersion,
	)

	return &domain.VersionConflictError{
		DocumentID:      doc.ID,
		ServerVersion:   serverVersion,
		ExpectedVersion: expectedVersion,
	}
}

// GetVersion returns the current version of a live document.
func (r *PostgresDocumentRepository) GetVersion(ctx context.Context, id string) (int, error) {
	query := fmt.Sprintf(`
		SELECT version FROM %s WHERE id = $1 AND deleted_at IS NULL
	`, r.tables.Documents)

	var version int
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, id).Scan(&version); err != nil {
		if IsPgNoRowsError(err) {
			return 0, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("get document version: %w", err)
	}

	return version, nil
}

// SoftDelete marks a document deleted.
func (r *PostgresDocumentRepository) SoftDelete(ctx context.Context, id, projectID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET deleted_at = NOW()
		WHERE id = $1 AND project_id = $2 AND deleted_at IS NULL
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, projectID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// ListByProject returns live documents in a project, most recently updated first.
func (r *PostgresDocumentRepository) ListByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT id, project_id, title, content, version, word_count, created_at, updated_at
		FROM %s
		WHERE project_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(
			&doc.ID,
			&doc.ProjectID,
			&doc.Title,
			&doc.Content,
			&doc.Version,
			&doc.WordCount,
			&doc.CreatedAt,
			&doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	return docs, nil
}

// getExistingDocumentID finds the live document holding a title in a project,
// used to populate ConflictError.ResourceID on duplicate creates.
func (r *PostgresDocumentRepository) getExistingDocumentID(ctx context.Context, projectID, title string) (string, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE project_id = $1 AND title = $2 AND deleted_at IS NULL
	`, r.tables.Documents)

	var id string
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, projectID, title).Scan(&id); err != nil {
		return "", err
	}

	return id, nil
}
