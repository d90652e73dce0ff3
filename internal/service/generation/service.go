package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"vellum/internal/config"
	"vellum/internal/domain"
	"vellum/internal/domain/models"
	"vellum/internal/domain/repositories"
	"vellum/internal/domain/services"
)

// Output budgets per scope, in provider tokens.
const (
	chatMaxTokens       = 1024
	selectionMaxTokens  = 1024
	globalEditMaxTokens = 8192
)

// persistTimeout bounds the detached DB writes made at stream end. Stream
// outcomes are persisted even when the request context is already gone.
const persistTimeout = 10 * time.Second

// Service implements services.GenerationService: it owns operation rows,
// prompt construction, provider streaming, and the active-run registry.
type Service struct {
	opRepo      repositories.OperationRepository
	docRepo     repositories.DocumentRepository
	projectRepo repositories.ProjectRepository
	providers   *ProviderRegistry
	actions     *ActionRegistry
	runs        *RunRegistry
	model       string
	logger      *slog.Logger
}

// NewService creates the generation service.
func NewService(
	opRepo repositories.OperationRepository,
	docRepo repositories.DocumentRepository,
	projectRepo repositories.ProjectRepository,
	providers *ProviderRegistry,
	actions *ActionRegistry,
	runs *RunRegistry,
	model string,
	logger *slog.Logger,
) *Service {
	return &Service{
		opRepo:      opRepo,
		docRepo:     docRepo,
		projectRepo: projectRepo,
		providers:   providers,
		actions:     actions,
		runs:        runs,
		model:       model,
		logger:      logger,
	}
}

var _ services.GenerationService = (*Service)(nil)

// StartChat starts a document-aware chat generation.
func (s *Service) StartChat(ctx context.Context, req *services.ChatRequest) (*services.GenerationRun, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ProjectID, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.Content, validation.Required, validation.Length(1, config.MaxInstructionLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.authorize(ctx, req.ProjectID, req.DocumentID, req.UserID); err != nil {
		return nil, err
	}

	system := s.actions.Chat().System
	if req.Mode != "" {
		system += "\n\nMode: " + req.Mode
	}

	op := s.newOperation(req.UserID, req.ProjectID, req.DocumentID, models.ScopeChat, "chat")

	return s.startRun(ctx, op, &services.StreamRequest{
		Model:     s.model,
		System:    system,
		Prompt:    req.Content,
		MaxTokens: chatMaxTokens,
	}, func(output string) *models.StreamEvent {
		return models.NewDoneEvent(op.ID, "", nil)
	})
}

// StartSelection starts a selection-scoped generation. The prompt carries
// the action and the highlighted text as "<action>: <text>"; the action
// template is resolved server-side.
func (s *Service) StartSelection(ctx context.Context, req *services.SelectionRequest) (*services.GenerationRun, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ProjectID, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.Prompt, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.authorize(ctx, req.ProjectID, req.DocumentID, req.UserID); err != nil {
		return nil, err
	}

	name, action, text, err := s.actions.ParseSelectionPrompt(req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if len(text) > config.MaxDocumentContentBytes {
		return nil, fmt.Errorf("%w: selection too large", domain.ErrValidation)
	}

	op := s.newOperation(req.UserID, req.ProjectID, req.DocumentID, models.ScopeSelection, name)

	return s.startRun(ctx, op, &services.StreamRequest{
		Model:     s.model,
		System:    action.System,
		Prompt:    RenderTemplate(action.Template, map[string]string{"text": text}),
		MaxTokens: selectionMaxTokens,
	}, func(output string) *models.StreamEvent {
		return models.NewDoneEvent(op.ID, "", nil)
	})
}

// StartGlobalEdit starts a whole-document edit. The done frame carries the
// full modified document and an ordered line diff for review.
func (s *Service) StartGlobalEdit(ctx context.Context, req *services.GlobalEditRequest) (*services.GenerationRun, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ProjectID, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.Instruction, validation.Required, validation.Length(1, config.MaxInstructionLength)),
		validation.Field(&req.CurrentContent, validation.Length(0, config.MaxGlobalEditContentBytes)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.authorize(ctx, req.ProjectID, req.DocumentID, req.UserID); err != nil {
		return nil, err
	}

	prompt := s.actions.GlobalEdit()
	original := req.CurrentContent

	op := s.newOperation(req.UserID, req.ProjectID, req.DocumentID, models.ScopeGlobal, "global-edit")

	return s.startRun(ctx, op, &services.StreamRequest{
		Model:  s.model,
		System: prompt.System,
		Prompt: RenderTemplate(prompt.Template, map[string]string{
			"instruction": req.Instruction,
			"document":    original,
		}),
		MaxTokens: globalEditMaxTokens,
	}, func(output string) *models.StreamEvent {
		modified := strings.TrimSpace(output)
		return models.NewDoneEvent(op.ID, modified, LineDiff(original, modified))
	})
}

// Interrupt cancels a live run owned by userID.
func (s *Service) Interrupt(ctx context.Context, operationID, userID string) error {
	if s.runs.Cancel(operationID, userID) {
		s.logger.Info("generation interrupted", "operation_id", operationID)
		return nil
	}

	// Distinguish "no such operation" from "already finished": both are 404
	// for the interrupt endpoint, but ownership errors must surface as-is.
	if _, err := s.opRepo.GetByID(ctx, operationID, userID); err != nil {
		return err
	}
	return fmt.Errorf("operation %s is not streaming: %w", operationID, domain.ErrNotFound)
}

// ListOperations returns the most recent operations for a document, newest
// first. limit is clamped to the registry bounds.
func (s *Service) ListOperations(ctx context.Context, documentID, userID string, limit int) ([]models.AIOperation, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: documentId is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = config.DefaultOperationListLimit
	}
	if limit > config.MaxOperationListLimit {
		limit = config.MaxOperationListLimit
	}
	return s.opRepo.ListByDocument(ctx, documentID, userID, limit)
}

// DecideOperation records the user's final accept/reject call. Accept is
// only valid from preview; reject is also allowed for errored operations.
func (s *Service) DecideOperation(ctx context.Context, operationID string, req *services.DecideOperationRequest) (*models.AIOperation, error) {
	if !models.TerminalOperationStatus(req.Status) {
		return nil, fmt.Errorf("%w: status must be accepted or rejected", domain.ErrValidation)
	}

	op, err := s.opRepo.GetByID(ctx, operationID, req.UserID)
	if err != nil {
		return nil, err
	}

	switch op.Status {
	case models.OperationStatusStreaming:
		return nil, fmt.Errorf("%w: operation is still streaming", domain.ErrValidation)
	case models.OperationStatusAccepted, models.OperationStatusRejected:
		return nil, &domain.ConflictError{
			Message:      "operation decision already recorded",
			ResourceType: "operation",
			ResourceID:   op.ID,
		}
	case models.OperationStatusError:
		if req.Status == models.OperationStatusAccepted {
			return nil, fmt.Errorf("%w: cannot accept a failed operation", domain.ErrValidation)
		}
	}

	if err := s.opRepo.UpdateDecision(ctx, operationID, req.UserID, req.Status, req.OutputContent); err != nil {
		return nil, err
	}

	s.logger.Info("operation decided",
		"operation_id", operationID,
		"status", req.Status,
	)

	return s.opRepo.GetByID(ctx, operationID, req.UserID)
}

// newOperation builds a fresh operation row in the streaming state.
func (s *Service) newOperation(userID, projectID, documentID, scope, action string) *models.AIOperation {
	now := time.Now()
	return &models.AIOperation{
		ID:         uuid.New().String(),
		UserID:     userID,
		ProjectID:  projectID,
		DocumentID: documentID,
		Scope:      scope,
		Action:     action,
		Status:     models.OperationStatusStreaming,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// authorize verifies project ownership and document membership.
func (s *Service) authorize(ctx context.Context, projectID, documentID, userID string) error {
	if _, err := s.projectRepo.GetByID(ctx, projectID, userID); err != nil {
		return fmt.Errorf("generation access denied: %w", domain.ErrForbidden)
	}
	if _, err := s.docRepo.GetByID(ctx, documentID, projectID); err != nil {
		return err
	}
	return nil
}

// startRun persists the operation row, opens the provider stream, and
// spawns the goroutine that turns provider chunks into stream events.
// finish builds the terminal done frame from the accumulated output.
func (s *Service) startRun(
	ctx context.Context,
	op *models.AIOperation,
	streamReq *services.StreamRequest,
	finish func(output string) *models.StreamEvent,
) (*services.GenerationRun, error) {
	provider, err := s.providers.ForModel(streamReq.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.opRepo.Create(ctx, op); err != nil {
		return nil, err
	}

	// The run context is derived from the request so that a client
	// disconnect stops the provider stream; Interrupt cancels it by ID.
	runCtx, cancel := context.WithCancel(ctx)

	if !s.runs.Register(op.ID, op.UserID, cancel) {
		cancel()
		return nil, &domain.ConflictError{
			Message:      "operation is already running",
			ResourceType: "operation",
			ResourceID:   op.ID,
		}
	}

	chunks, err := provider.StreamText(runCtx, streamReq)
	if err != nil {
		s.runs.Remove(op.ID)
		cancel()
		s.persistError(op.ID, err.Error())
		return nil, err
	}

	s.logger.Info("generation started",
		"operation_id", op.ID,
		"scope", op.Scope,
		"action", op.Action,
		"model", streamReq.Model,
		"provider", provider.Name(),
	)

	events := make(chan *models.StreamEvent, 16)

	go func() {
		defer close(events)
		defer cancel()
		defer s.runs.Remove(op.ID)

		var output strings.Builder

		for chunk := range chunks {
			if chunk.Err != nil {
				message := chunk.Err.Error()
				if errors.Is(chunk.Err, context.Canceled) {
					message = "generation interrupted"
				}
				s.persistError(op.ID, message)
				s.emit(runCtx, events, models.NewErrorEvent(message))
				return
			}

			output.WriteString(chunk.Text)
			s.emit(runCtx, events, models.NewContentEvent(chunk.Text))
		}

		done := finish(output.String())
		s.persistPreview(op.ID, output.String())
		s.emit(runCtx, events, done)

		s.logger.Info("generation finished",
			"operation_id", op.ID,
			"output_bytes", output.Len(),
		)
	}()

	return &services.GenerationRun{
		OperationID: op.ID,
		Events:      events,
	}, nil
}

// emit sends an event without blocking a run whose consumer is gone.
func (s *Service) emit(runCtx context.Context, events chan<- *models.StreamEvent, event *models.StreamEvent) {
	select {
	case events <- event:
		return
	default:
	}
	select {
	case events <- event:
	case <-runCtx.Done():
	}
}

// persistPreview records a successful stream outcome on a detached context.
func (s *Service) persistPreview(operationID, output string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.opRepo.UpdateResult(ctx, operationID, models.OperationStatusPreview, output, nil); err != nil {
		s.logger.Error("failed to persist stream result",
			"operation_id", operationID,
			"error", err,
		)
	}
}

// persistError records a failed stream outcome on a detached context.
func (s *Service) persistError(operationID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.opRepo.UpdateResult(ctx, operationID, models.OperationStatusError, "", &message); err != nil {
		s.logger.Error("failed to persist stream error",
			"operation_id", operationID,
			"error", err,
		)
	}
}
