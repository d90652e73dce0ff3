package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"vellum/internal/domain"
	"vellum/internal/domain/models"
	"vellum/internal/domain/services"
	"vellum/internal/httputil"
)

type memDocRepo struct {
	doc          *models.Document
	conflict     *domain.VersionConflictError // forced UpdateWithVersion outcome
	lastExpected int
	deleted      bool
}

func (r *memDocRepo) Create(ctx context.Context, doc *models.Document) error {
	doc.ID = "d1"
	doc.Version = 1
	stored := *doc
	r.doc = &stored
	return nil
}

func (r *memDocRepo) GetByID(ctx context.Context, id, projectID string) (*models.Document, error) {
	if r.doc == nil || r.doc.ID != id {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	copied := *r.doc
	return &copied, nil
}

func (r *memDocRepo) UpdateWithVersion(ctx context.Context, doc *models.Document, expectedVersion int) error {
	r.lastExpected = expectedVersion
	if r.conflict != nil {
		return r.conflict
	}
	stored := *doc
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = time.Now()
	r.doc = &stored
	doc.Version = stored.Version
	return nil
}

func (r *memDocRepo) GetVersion(ctx context.Context, id string) (int, error) {
	return r.doc.Version, nil
}

func (r *memDocRepo) SoftDelete(ctx context.Context, id, projectID string) error {
	r.deleted = true
	return nil
}

func (r *memDocRepo) ListByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	if r.doc == nil {
		return nil, nil
	}
	return []models.Document{*r.doc}, nil
}

type memProjectRepo struct{}

func (memProjectRepo) Create(ctx context.Context, project *models.Project) error { return nil }
func (memProjectRepo) GetByID(ctx context.Context, id, userID string) (*models.Project, error) {
	if id != "p1" || userID != "u1" {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return &models.Project{ID: id, UserID: userID}, nil
}
func (memProjectRepo) ListByUser(ctx context.Context, userID string) ([]models.Project, error) {
	return nil, nil
}

func strptr(s string) *string { return &s }
func intptr(i int) *int       { return &i }

func present(s string) httputil.OptionalString {
	return httputil.OptionalString{Present: true, Value: strptr(s)}
}

func newTestDocService(repo *memDocRepo) services.DocumentService {
	return NewDocumentService(repo, memProjectRepo{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedDoc(repo *memDocRepo) {
	repo.doc = &models.Document{
		ID:        "d1",
		ProjectID: "p1",
		Title:     "Budget Narrative",
		Content:   "original body text",
		Version:   3,
		WordCount: 3,
	}
}

func TestCreateDocumentCountsWords(t *testing.T) {
	repo := &memDocRepo{}
	svc := newTestDocService(repo)

	doc, err := svc.CreateDocument(context.Background(), &services.CreateDocumentRequest{
		ProjectID: "p1",
		UserID:    "u1",
		Title:     "  Needs Statement  ",
		Content:   "We serve two hundred families.",
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.Title != "Needs Statement" {
		t.Errorf("title = %q, want trimmed", doc.Title)
	}
	if doc.WordCount != 5 {
		t.Errorf("word count = %d, want 5", doc.WordCount)
	}
	if doc.Version != 1 {
		t.Errorf("version = %d, want 1", doc.Version)
	}
}

func TestUpdateDocumentMergesTriStateFields(t *testing.T) {
	tests := []struct {
		name        string
		req         services.UpdateDocumentRequest
		wantTitle   string
		wantContent string
		wantWords   int
	}{
		{
			name: "content only leaves title alone",
			req: services.UpdateDocumentRequest{
				UserID:          "u1",
				Content:         present("five words of new content"),
				ExpectedVersion: intptr(3),
			},
			wantTitle:   "Budget Narrative",
			wantContent: "five words of new content",
			wantWords:   5,
		},
		{
			name: "title only leaves content alone",
			req: services.UpdateDocumentRequest{
				UserID:          "u1",
				Title:           present("Revised Narrative"),
				ExpectedVersion: intptr(3),
			},
			wantTitle:   "Revised Narrative",
			wantContent: "original body text",
			wantWords:   3,
		},
		{
			name: "content null clears the document",
			req: services.UpdateDocumentRequest{
				UserID:          "u1",
				Content:         httputil.OptionalString{Present: true, Value: nil},
				ExpectedVersion: intptr(3),
			},
			wantTitle:   "Budget Narrative",
			wantContent: "",
			wantWords:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memDocRepo{}
			seedDoc(repo)
			svc := newTestDocService(repo)

			doc, err := svc.UpdateDocument(context.Background(), "d1", &tt.req)
			if err != nil {
				t.Fatalf("UpdateDocument: %v", err)
			}
			if doc.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", doc.Title, tt.wantTitle)
			}
			if doc.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", doc.Content, tt.wantContent)
			}
			if doc.WordCount != tt.wantWords {
				t.Errorf("word count = %d, want %d", doc.WordCount, tt.wantWords)
			}
			if doc.Version != 4 {
				t.Errorf("version = %d, want incremented 4", doc.Version)
			}
			if repo.lastExpected != 3 {
				t.Errorf("CAS expected version = %d, want 3", repo.lastExpected)
			}
		})
	}
}

func TestUpdateDocumentValidation(t *testing.T) {
	tests := []struct {
		name string
		req  services.UpdateDocumentRequest
	}{
		{
			name: "missing expectedVersion",
			req:  services.UpdateDocumentRequest{UserID: "u1", Content: present("x")},
		},
		{
			name: "non-positive expectedVersion",
			req:  services.UpdateDocumentRequest{UserID: "u1", Content: present("x"), ExpectedVersion: intptr(0)},
		},
		{
			name: "no fields to update",
			req:  services.UpdateDocumentRequest{UserID: "u1", ExpectedVersion: intptr(3)},
		},
		{
			name: "empty title",
			req:  services.UpdateDocumentRequest{UserID: "u1", Title: present("   "), ExpectedVersion: intptr(3)},
		},
		{
			name: "title null",
			req: services.UpdateDocumentRequest{
				UserID:          "u1",
				Title:           httputil.OptionalString{Present: true, Value: nil},
				ExpectedVersion: intptr(3),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memDocRepo{}
			seedDoc(repo)
			svc := newTestDocService(repo)

			_, err := svc.UpdateDocument(context.Background(), "d1", &tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestUpdateDocumentPropagatesVersionConflict(t *testing.T) {
	repo := &memDocRepo{}
	seedDoc(repo)
	repo.doc.Version = 5
	repo.conflict = &domain.VersionConflictError{
		DocumentID:      "d1",
		ServerVersion:   5,
		ExpectedVersion: 3,
	}
	svc := newTestDocService(repo)

	_, err := svc.UpdateDocument(context.Background(), "d1", &services.UpdateDocumentRequest{
		UserID:          "u1",
		Content:         present("stale edit"),
		ExpectedVersion: intptr(3),
	})

	var conflict *domain.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %T %v, want VersionConflictError", err, err)
	}
	if conflict.ServerVersion != 5 || conflict.ExpectedVersion != 3 {
		t.Errorf("conflict = %+v", conflict)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Error("conflict should match domain.ErrConflict")
	}
}

func TestDocumentAccessDeniedForForeignUser(t *testing.T) {
	repo := &memDocRepo{}
	seedDoc(repo)
	svc := newTestDocService(repo)

	if _, err := svc.GetDocument(context.Background(), "d1", "intruder"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("GetDocument err = %v, want forbidden", err)
	}
	if err := svc.DeleteDocument(context.Background(), "d1", "intruder"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("DeleteDocument err = %v, want forbidden", err)
	}
	if repo.deleted {
		t.Error("soft delete happened despite denied access")
	}
}
