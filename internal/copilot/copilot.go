// Package copilot answers questions about one migrated file by forwarding
// the file's code and the conversation to an external Q&A backend.
package copilot

import (
	"context"
	"strings"

	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/store"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryMessage is one earlier turn of the conversation.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a question about a file of a run.
type Request struct {
	ProjectID string           `json:"projectId"`
	RunID     string           `json:"runId"`
	FileID    string           `json:"fileId"`
	Question  string           `json:"question"`
	History   []HistoryMessage `json:"history,omitempty"`
}

// Payload is what the Q&A backend receives. KotlinCode repeats
// ConvertedCode for backends that read the older field name.
type Payload struct {
	ProjectID     string           `json:"projectId"`
	RunID         string           `json:"runId"`
	FileID        string           `json:"fileId"`
	OriginalCode  string           `json:"originalCode"`
	ConvertedCode string           `json:"convertedCode"`
	KotlinCode    string           `json:"kotlinCode"`
	Question      string           `json:"question"`
	History       []HistoryMessage `json:"history"`
}

// Answer is the normalized backend reply.
type Answer struct {
	Answer         string   `json:"answer"`
	SuggestedTests []string `json:"suggestedTests"`
	Risks          []string `json:"risks"`
}

// Backend answers a payload.
type Backend interface {
	Ask(ctx context.Context, p Payload) (*Answer, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, p Payload) (*Answer, error)

// Ask calls f.
func (f BackendFunc) Ask(ctx context.Context, p Payload) (*Answer, error) { return f(ctx, p) }

// Adapter resolves the file a question is about and forwards it.
type Adapter struct {
	store   store.Store
	backend Backend
}

// NewAdapter returns an Adapter reading files from st.
func NewAdapter(st store.Store, backend Backend) *Adapter {
	return &Adapter{store: st, backend: backend}
}

// Ask validates req, resolves the run and file it names and asks the
// backend. Backend failures are returned, not recovered.
func (a *Adapter) Ask(ctx context.Context, req Request) (*Answer, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	doc, err := a.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if doc.Run(req.ProjectID, req.RunID) == nil {
		return nil, apperr.NotFound("run", req.RunID)
	}
	f := doc.File(req.RunID, req.FileID)
	if f == nil {
		return nil, apperr.NotFound("file", req.FileID)
	}

	history := req.History
	if history == nil {
		history = []HistoryMessage{}
	}
	return a.backend.Ask(ctx, Payload{
		ProjectID:     req.ProjectID,
		RunID:         req.RunID,
		FileID:        req.FileID,
		OriginalCode:  f.OriginalCode,
		ConvertedCode: f.ConvertedCode,
		KotlinCode:    f.ConvertedCode,
		Question:      req.Question,
		History:       history,
	})
}

func validate(req Request) error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"projectId", req.ProjectID},
		{"runId", req.RunID},
		{"fileId", req.FileID},
		{"question", req.Question},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.InvalidArgument("projectId, runId, fileId and question are required (missing %s)", strings.Join(missing, ", "))
	}
	for i, m := range req.History {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return apperr.InvalidArgument("history[%d]: role must be %q or %q", i, RoleUser, RoleAssistant)
		}
	}
	return nil
}
