// Package client implements the editor-side core: the autosave controller,
// the AI operation controller, the shared SSE consumption primitive, and a
// rune-indexed document buffer standing in for the editor model. Each editor
// instance owns its own controllers; nothing here is a process-wide
// singleton.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vellum/internal/domain"
	"vellum/internal/domain/models"
)

// Client is the HTTP transport shared by both controllers: base URL, bearer
// token, JSON request/response helpers, and SSE stream opening.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Streaming requests
// need a client without a response timeout; tests inject httptest clients
// here.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// New creates a Client for the given API base URL and bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		// No Timeout: SSE responses stay open for the life of a
		// generation. Per-request deadlines come from contexts.
		httpc: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response that is not a version conflict.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// SaveRequest is the body of the version-checked PATCH.
type SaveRequest struct {
	Content         string `json:"content"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// GetDocument fetches the server's authoritative copy of a document.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/documents/"+documentID, nil)
	if err != nil {
		return nil, err
	}

	var doc models.Document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SaveDocument issues the optimistic-concurrency PATCH. A stale
// expectedVersion returns a *domain.VersionConflictError carrying both
// versions; other failures return *APIError.
func (c *Client) SaveDocument(ctx context.Context, documentID string, save *SaveRequest) (*models.Document, error) {
	req, err := c.newRequest(ctx, http.MethodPatch, "/api/documents/"+documentID, save)
	if err != nil {
		return nil, err
	}

	var doc models.Document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return req, nil
}

// do executes a JSON request, decoding a 2xx body into dest and mapping
// error bodies to typed errors.
func (c *Client) do(req *http.Request, dest interface{}) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if dest == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(dest)
	}

	return c.decodeError(req, resp)
}

// problemBody is the subset of the server's problem+json responses the
// client reads. The conflict body carries code/serverVersion/expectedVersion
// beside the standard members.
type problemBody struct {
	Detail          string `json:"detail"`
	Code            string `json:"code"`
	ServerVersion   int    `json:"serverVersion"`
	ExpectedVersion int    `json:"expectedVersion"`
}

func (c *Client) decodeError(req *http.Request, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var problem problemBody
	_ = json.Unmarshal(raw, &problem)

	if resp.StatusCode == http.StatusConflict && problem.Code == "CONFLICT" {
		return &domain.VersionConflictError{
			DocumentID:      documentIDFromPath(req.URL.Path),
			ServerVersion:   problem.ServerVersion,
			ExpectedVersion: problem.ExpectedVersion,
		}
	}

	detail := problem.Detail
	if detail == "" {
		detail = string(raw)
	}
	return &APIError{Status: resp.StatusCode, Detail: detail}
}

// documentIDFromPath pulls the trailing path segment out of a document URL.
func documentIDFromPath(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// now is a seam for tests that assert on save timestamps.
var now = time.Now
