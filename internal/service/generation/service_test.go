package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"vellum/internal/domain"
	"vellum/internal/domain/models"
	"vellum/internal/domain/services"
)

// scriptedProvider streams a fixed chunk sequence. With block set it holds
// the stream open until the context is cancelled.
type scriptedProvider struct {
	model  string
	chunks []services.Chunk
	block  bool
}

func (p *scriptedProvider) Name() string                  { return "scripted" }
func (p *scriptedProvider) SupportsModel(model string) bool { return model == p.model }

func (p *scriptedProvider) StreamText(ctx context.Context, req *services.StreamRequest) (<-chan services.Chunk, error) {
	out := make(chan services.Chunk, len(p.chunks)+1)
	go func() {
		defer close(out)
		if p.block {
			<-ctx.Done()
			out <- services.Chunk{Err: ctx.Err()}
			return
		}
		for _, chunk := range p.chunks {
			out <- chunk
		}
	}()
	return out, nil
}

type fakeOpRepo struct {
	mu        sync.Mutex
	ops       map[string]*models.AIOperation
	lastLimit int
}

func newFakeOpRepo() *fakeOpRepo {
	return &fakeOpRepo{ops: make(map[string]*models.AIOperation)}
}

func (r *fakeOpRepo) Create(ctx context.Context, op *models.AIOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *op
	r.ops[op.ID] = &stored
	return nil
}

func (r *fakeOpRepo) GetByID(ctx context.Context, id, userID string) (*models.AIOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok || op.UserID != userID {
		return nil, fmt.Errorf("operation %s: %w", id, domain.ErrNotFound)
	}
	copied := *op
	return &copied, nil
}

func (r *fakeOpRepo) UpdateResult(ctx context.Context, id, status, outputContent string, errMessage *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return domain.ErrNotFound
	}
	op.Status = status
	op.OutputContent = outputContent
	op.Error = errMessage
	return nil
}

func (r *fakeOpRepo) UpdateDecision(ctx context.Context, id, userID, status string, outputContent *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok || op.UserID != userID {
		return domain.ErrNotFound
	}
	op.Status = status
	if outputContent != nil {
		op.OutputContent = *outputContent
	}
	return nil
}

func (r *fakeOpRepo) ListByDocument(ctx context.Context, documentID, userID string, limit int) ([]models.AIOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	var out []models.AIOperation
	for _, op := range r.ops {
		if op.DocumentID == documentID && op.UserID == userID {
			out = append(out, *op)
		}
	}
	return out, nil
}

func (r *fakeOpRepo) get(id string) models.AIOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.ops[id]
}

type fakeDocRepo struct{}

func (fakeDocRepo) Create(ctx context.Context, doc *models.Document) error { return nil }
func (fakeDocRepo) GetByID(ctx context.Context, id, projectID string) (*models.Document, error) {
	if id != "d1" {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return &models.Document{ID: id, ProjectID: projectID, Version: 1}, nil
}
func (fakeDocRepo) UpdateWithVersion(ctx context.Context, doc *models.Document, expectedVersion int) error {
	return nil
}
func (fakeDocRepo) GetVersion(ctx context.Context, id string) (int, error) { return 1, nil }
func (fakeDocRepo) SoftDelete(ctx context.Context, id, projectID string) error {
	return nil
}
func (fakeDocRepo) ListByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	return nil, nil
}

type fakeProjectRepo struct{}

func (fakeProjectRepo) Create(ctx context.Context, project *models.Project) error { return nil }
func (fakeProjectRepo) GetByID(ctx context.Context, id, userID string) (*models.Project, error) {
	if id != "p1" || userID != "u1" {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return &models.Project{ID: id, UserID: userID}, nil
}
func (fakeProjectRepo) ListByUser(ctx context.Context, userID string) ([]models.Project, error) {
	return nil, nil
}

func newTestService(t *testing.T, provider services.Provider) (*Service, *fakeOpRepo) {
	t.Helper()

	actions, err := NewActionRegistry()
	if err != nil {
		t.Fatalf("NewActionRegistry: %v", err)
	}

	providers := NewProviderRegistry()
	providers.Register(provider)

	opRepo := newFakeOpRepo()
	svc := NewService(
		opRepo,
		fakeDocRepo{},
		fakeProjectRepo{},
		providers,
		actions,
		NewRunRegistry(time.Minute, time.Minute),
		"scripted-1",
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, opRepo
}

func drain(t *testing.T, events <-chan *models.StreamEvent) []*models.StreamEvent {
	t.Helper()
	var got []*models.StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, event)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestStartSelectionStreamsToPreview(t *testing.T) {
	provider := &scriptedProvider{
		model: "scripted-1",
		chunks: []services.Chunk{
			{Text: "Hello"},
			{Text: " world"},
		},
	}
	svc, opRepo := newTestService(t, provider)

	run, err := svc.StartSelection(context.Background(), &services.SelectionRequest{
		UserID:     "u1",
		ProjectID:  "p1",
		DocumentID: "d1",
		Prompt:     "refine: some highlighted text",
	})
	if err != nil {
		t.Fatalf("StartSelection: %v", err)
	}

	got := drain(t, run.Events)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 2 content + done: %+v", len(got), got)
	}
	if got[0].Content != "Hello" || got[1].Content != " world" {
		t.Errorf("content events out of order: %+v", got[:2])
	}
	if got[2].Type != models.StreamEventDone || got[2].OperationID != run.OperationID {
		t.Errorf("terminal event = %+v", got[2])
	}

	op := opRepo.get(run.OperationID)
	if op.Status != models.OperationStatusPreview {
		t.Errorf("persisted status = %q, want preview", op.Status)
	}
	if op.OutputContent != "Hello world" {
		t.Errorf("persisted output = %q", op.OutputContent)
	}
	if op.Action != "refine" {
		t.Errorf("action = %q, want refine", op.Action)
	}
}

func TestStartGlobalEditEmitsModifiedContentAndDiff(t *testing.T) {
	provider := &scriptedProvider{
		model:  "scripted-1",
		chunks: []services.Chunk{{Text: "New\n"}},
	}
	svc, _ := newTestService(t, provider)

	run, err := svc.StartGlobalEdit(context.Background(), &services.GlobalEditRequest{
		UserID:         "u1",
		ProjectID:      "p1",
		DocumentID:     "d1",
		Instruction:    "replace everything",
		CurrentContent: "Old",
	})
	if err != nil {
		t.Fatalf("StartGlobalEdit: %v", err)
	}

	got := drain(t, run.Events)
	done := got[len(got)-1]
	if done.Type != models.StreamEventDone {
		t.Fatalf("terminal event = %+v", done)
	}
	if done.ModifiedContent != "New" {
		t.Errorf("modifiedContent = %q, want trimmed output", done.ModifiedContent)
	}

	want := []models.DiffEntry{
		{Type: "remove", Value: "Old", LineNumber: 1},
		{Type: "add", Value: "New", LineNumber: 1},
	}
	if len(done.Diff) != len(want) {
		t.Fatalf("diff = %+v, want %+v", done.Diff, want)
	}
	for i := range want {
		if done.Diff[i] != want[i] {
			t.Errorf("diff[%d] = %+v, want %+v", i, done.Diff[i], want[i])
		}
	}
}

func TestInterruptCancelsLiveRun(t *testing.T) {
	provider := &scriptedProvider{model: "scripted-1", block: true}
	svc, opRepo := newTestService(t, provider)

	run, err := svc.StartSelection(context.Background(), &services.SelectionRequest{
		UserID:     "u1",
		ProjectID:  "p1",
		DocumentID: "d1",
		Prompt:     "refine: text",
	})
	if err != nil {
		t.Fatalf("StartSelection: %v", err)
	}

	if err := svc.Interrupt(context.Background(), run.OperationID, "u1"); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	got := drain(t, run.Events)
	if len(got) == 0 {
		t.Fatal("no events after interrupt")
	}
	last := got[len(got)-1]
	if last.Type != models.StreamEventError || last.Error != "generation interrupted" {
		t.Errorf("terminal event = %+v, want interrupted error", last)
	}

	op := opRepo.get(run.OperationID)
	if op.Status != models.OperationStatusError {
		t.Errorf("persisted status = %q, want error", op.Status)
	}

	// The run is gone; a second interrupt reports not found.
	if err := svc.Interrupt(context.Background(), run.OperationID, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Interrupt = %v, want not found", err)
	}
}

func TestStartSelectionDeniedForForeignProject(t *testing.T) {
	provider := &scriptedProvider{model: "scripted-1"}
	svc, _ := newTestService(t, provider)

	_, err := svc.StartSelection(context.Background(), &services.SelectionRequest{
		UserID:     "intruder",
		ProjectID:  "p1",
		DocumentID: "d1",
		Prompt:     "refine: text",
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestListOperationsClampsLimit(t *testing.T) {
	provider := &scriptedProvider{model: "scripted-1"}
	svc, opRepo := newTestService(t, provider)

	if _, err := svc.ListOperations(context.Background(), "d1", "u1", 0); err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if opRepo.lastLimit != 20 {
		t.Errorf("default limit = %d, want 20", opRepo.lastLimit)
	}

	if _, err := svc.ListOperations(context.Background(), "d1", "u1", 5000); err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if opRepo.lastLimit != 100 {
		t.Errorf("clamped limit = %d, want 100", opRepo.lastLimit)
	}

	if _, err := svc.ListOperations(context.Background(), "", "u1", 10); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing documentId should be a validation error, got %v", err)
	}
}

func TestDecideOperation(t *testing.T) {
	accepted := models.OperationStatusAccepted
	rejected := models.OperationStatusRejected

	tests := []struct {
		name       string
		current    string
		decide     string
		wantErr    error
		wantStatus string
	}{
		{"accept from preview", models.OperationStatusPreview, accepted, nil, accepted},
		{"reject from preview", models.OperationStatusPreview, rejected, nil, rejected},
		{"reject a failed operation", models.OperationStatusError, rejected, nil, rejected},
		{"accept a failed operation", models.OperationStatusError, accepted, domain.ErrValidation, ""},
		{"decide while streaming", models.OperationStatusStreaming, accepted, domain.ErrValidation, ""},
		{"invalid target status", models.OperationStatusPreview, "pondering", domain.ErrValidation, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{model: "scripted-1"}
			svc, opRepo := newTestService(t, provider)

			opRepo.Create(context.Background(), &models.AIOperation{
				ID:         "op-1",
				UserID:     "u1",
				ProjectID:  "p1",
				DocumentID: "d1",
				Scope:      models.ScopeSelection,
				Status:     tt.current,
			})

			op, err := svc.DecideOperation(context.Background(), "op-1", &services.DecideOperationRequest{
				UserID: "u1",
				Status: tt.decide,
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecideOperation: %v", err)
			}
			if op.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", op.Status, tt.wantStatus)
			}
		})
	}
}

func TestDecideOperationTwiceConflicts(t *testing.T) {
	provider := &scriptedProvider{model: "scripted-1"}
	svc, opRepo := newTestService(t, provider)

	opRepo.Create(context.Background(), &models.AIOperation{
		ID:         "op-1",
		UserID:     "u1",
		DocumentID: "d1",
		Status:     models.OperationStatusPreview,
	})

	req := &services.DecideOperationRequest{UserID: "u1", Status: models.OperationStatusAccepted}
	if _, err := svc.DecideOperation(context.Background(), "op-1", req); err != nil {
		t.Fatalf("first decision: %v", err)
	}

	_, err := svc.DecideOperation(context.Background(), "op-1", req)
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second decision err = %T %v, want ConflictError", err, err)
	}
}
