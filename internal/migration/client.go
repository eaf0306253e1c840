// Package migration calls the external migration backend that converts a
// repository and reports the resulting files.
package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/normalize"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 32 << 20

// Request is the body posted to the migration backend.
type Request struct {
	ProjectID      string `json:"projectId"`
	RunID          string `json:"runId"`
	RepoURL        string `json:"repoUrl"`
	Scope          string `json:"scope"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// Backend runs a migration and returns the decoded response payload.
type Backend interface {
	Migrate(ctx context.Context, req Request) (any, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (any, error)

// Migrate calls f.
func (f BackendFunc) Migrate(ctx context.Context, req Request) (any, error) { return f(ctx, req) }

// Client is the HTTP Backend. Each call is a single attempt bounded by the
// client timeout.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a Client posting to endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// Migrate posts req and decodes the response. Transport failures, timeouts,
// non-2xx statuses and undecodable bodies are all returned as errors.
func (c *Client) Migrate(ctx context.Context, req Request) (any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("migration: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("migration: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperr.Upstream("migration", 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Upstream("migration", resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}
	log.Printf("migration: %s run %s -> status %d, %d bytes", c.endpoint, req.RunID, resp.StatusCode, len(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream("migration", resp.StatusCode, string(raw), nil)
	}
	payload, err := normalize.Decode(raw)
	if err != nil {
		return nil, apperr.Upstream("migration", resp.StatusCode, string(raw), err)
	}
	return payload, nil
}
