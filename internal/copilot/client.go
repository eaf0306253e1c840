package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/codem/internal/apperr"
)

const maxBodyBytes = 4 << 20

// Client is the HTTP Backend.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a Client posting to endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// Ask posts p and parses the reply. Non-2xx statuses and transport failures
// are upstream errors; a 2xx body that is not JSON becomes the answer text.
func (c *Client) Ask(ctx context.Context, p Payload) (*Answer, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("copilot: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("copilot: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("copilot: %s: %v", c.endpoint, err)
		return nil, apperr.Upstream("copilot", 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Upstream("copilot", resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("copilot: %s -> status %d: %s", c.endpoint, resp.StatusCode, raw)
		return nil, apperr.Upstream("copilot", resp.StatusCode, string(raw), nil)
	}
	return parseAnswer(raw), nil
}

// parseAnswer normalizes a 2xx reply. An object supplies answer,
// suggestedTests and risks; a one-element array holding an object is
// unwrapped first. When no non-empty answer is found the raw text is used.
func parseAnswer(raw []byte) *Answer {
	text := string(raw)
	a := &Answer{SuggestedTests: []string{}, Risks: []string{}}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		a.Answer = text
		return a
	}
	if arr, ok := v.([]any); ok && len(arr) == 1 {
		v = arr[0]
	}
	switch t := v.(type) {
	case map[string]any:
		if s, ok := t["answer"].(string); ok {
			a.Answer = s
		}
		a.SuggestedTests = stringList(t["suggestedTests"])
		a.Risks = stringList(t["risks"])
	case string:
		a.Answer = t
	}
	if strings.TrimSpace(a.Answer) == "" {
		a.Answer = text
	}
	return a
}

// stringList reads a JSON array as strings. A lone string becomes a
// one-element list; anything else is empty.
func stringList(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			switch s := e.(type) {
			case string:
				out = append(out, s)
			case nil:
			default:
				b, err := json.Marshal(s)
				if err == nil {
					out = append(out, string(b))
				}
			}
		}
	case string:
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
