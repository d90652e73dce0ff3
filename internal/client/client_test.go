package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"vellum/internal/domain"
)

func TestSaveDocumentDecodesVersionConflict(t *testing.T) {
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"title":"Conflict","status":409,"code":"CONFLICT","serverVersion":7,"expectedVersion":4}`)
	})

	c := New(srv.URL, "token")
	_, err := c.SaveDocument(context.Background(), "d1", &SaveRequest{Content: "x", ExpectedVersion: 4})
	if err == nil {
		t.Fatal("expected conflict error")
	}

	var conflict *domain.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %T %v, want VersionConflictError", err, err)
	}
	if conflict.ServerVersion != 7 || conflict.ExpectedVersion != 4 {
		t.Errorf("conflict = %+v, want serverVersion 7 expectedVersion 4", conflict)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Error("conflict should match domain.ErrConflict")
	}
}

func TestSaveDocumentSurfacesProblemDetail(t *testing.T) {
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"title":"Not Found","status":404,"detail":"document not found"}`)
	})

	c := New(srv.URL, "token")
	_, err := c.SaveDocument(context.Background(), "missing", &SaveRequest{Content: "x", ExpectedVersion: 1})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T %v, want APIError", err, err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.Status)
	}
	if apiErr.Detail != "document not found" {
		t.Errorf("detail = %q", apiErr.Detail)
	}
}

func TestRequestsCarryBearerToken(t *testing.T) {
	var gotAuth string
	srv := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"id":"d1","content":"","version":1}`)
	})

	c := New(srv.URL, "secret-token")
	if _, err := c.GetDocument(context.Background(), "d1"); err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
