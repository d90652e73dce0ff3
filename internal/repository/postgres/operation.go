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

// PostgresOperationRepository implements repositories.OperationRepository.
type PostgresOperationRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewOperationRepository creates a new operation repository.
func NewOperationRepository(config *RepositoryConfig) repositories.OperationRepository {
	return &PostgresOperationRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new operation row.
func (r *PostgresOperationRepository) Create(ctx context.Context, op *models.AIOperation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, project_id, document_id, scope, action, status, output_content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, r.tables.Operations)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		op.ID,
		op.UserID,
		op.ProjectID,
		op.DocumentID,
		op.Scope,
		op.Action,
		op.Status,
		op.OutputContent,
		op.CreatedAt,
		op.UpdatedAt,
	).Scan(&op.CreatedAt, &op.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create operation: %w", err)
	}

	return nil
}

// GetByID retrieves an operation owned by userID.
func (r *PostgresOperationRepository) GetByID(ctx context.Context, id, userID string) (*models.AIOperation, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, project_id, document_id, scope, action, status, output_content, error, created_at, updated_at
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Operations)

	var op models.AIOperation
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id, userID).Scan(
		&op.ID,
		&op.UserID,
		&op.ProjectID,
		&op.DocumentID,
		&op.Scope,
		&op.Action,
		&op.Status,
		&op.OutputContent,
		&op.Error,
		&op.CreatedAt,
		&op.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("operation %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get operation: %w", err)
	}

	return &op, nil
}

// UpdateResult records the stream outcome for an operation.
func (r *PostgresOperationRepository) UpdateResult(ctx context.Context, id, status, outputContent string, errMessage *string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, output_content = $2, error = $3, updated_at = NOW()
		WHERE id = $4
	`, r.tables.Operations)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, status, outputContent, errMessage, id)
	if err != nil {
		return fmt.Errorf("update operation result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// UpdateDecision records the user's accept/reject decision. Output content is
// only replaced when the client sends the applied text back.
func (r *PostgresOperationRepository) UpdateDecision(ctx context.Context, id, userID, status string, outputContent *string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, output_content = COALESCE($2, output_content), updated_at = NOW()
		WHERE id = $3 AND user_id = $4
	`, r.tables.Operations)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, status, outputContent, id, userID)
	if err != nil {
		return fmt.Errorf("update operation decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// ListByDocument returns recent operations for a document, newest first.
func (r *PostgresOperationRepository) ListByDocument(ctx context.Context, documentID, userID string, limit int) ([]models.AIOperation, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, project_id, document_id, scope, action, status, output_content, error, created_at, updated_at
		FROM %s
		WHERE document_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, r.tables.Operations)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, documentID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var ops []models.AIOperation
	for rows.Next() {
		var op models.AIOperation
		if err := rows.Scan(
			&op.ID,
			&op.UserID,
			&op.ProjectID,
			&op.DocumentID,
			&op.Scope,
			&op.Action,
			&op.Status,
			&op.OutputContent,
			&op.Error,
			&op.CreatedAt,
			&op.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}

	return ops, nil
}
