// Package project registers source repositories and keeps their analysis
// snapshots current.
package project

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/codem/internal/analysis"
	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/idgen"
	"github.com/zulandar/codem/internal/models"
	"github.com/zulandar/codem/internal/store"
)

// UntitledName names a project whose repository URL yields no name.
const UntitledName = "Untitled Project"

// Service manages projects.
type Service struct {
	store    store.Store
	analyzer analysis.Analyzer
	newID    idgen.Func
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIDFunc replaces the identifier generator.
func WithIDFunc(f idgen.Func) Option {
	return func(s *Service) { s.newID = f }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service over st using analyzer for analysis.
func NewService(st store.Store, analyzer analysis.Analyzer, opts ...Option) *Service {
	s := &Service{
		store:    st,
		analyzer: analyzer,
		newID:    idgen.Generate,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateOpts holds parameters for creating a project.
type CreateOpts struct {
	Name           string `json:"name"`
	RepoURL        string `json:"repoUrl"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

// DeriveName returns name when set, else the last "/" segment of repoURL,
// else UntitledName.
func DeriveName(name, repoURL string) string {
	if name != "" {
		return name
	}
	if i := strings.LastIndex(repoURL, "/"); i >= 0 {
		repoURL = repoURL[i+1:]
	}
	if repoURL != "" {
		return repoURL
	}
	return UntitledName
}

// Create registers a new project in the not_analyzed state.
func (s *Service) Create(ctx context.Context, opts CreateOpts) (*models.Project, error) {
	if strings.TrimSpace(opts.RepoURL) == "" {
		return nil, apperr.InvalidArgument("repoUrl is required")
	}
	if !models.ValidLanguage(opts.SourceLanguage) {
		return nil, apperr.InvalidArgument("unknown sourceLanguage %q", opts.SourceLanguage)
	}
	if !models.ValidLanguage(opts.TargetLanguage) {
		return nil, apperr.InvalidArgument("unknown targetLanguage %q", opts.TargetLanguage)
	}

	id, err := s.newID("proj")
	if err != nil {
		return nil, fmt.Errorf("project: create: %w", err)
	}
	now := s.now()
	p := models.Project{
		ID:             id,
		Name:           DeriveName(opts.Name, opts.RepoURL),
		RepoURL:        opts.RepoURL,
		Status:         models.ProjectNotAnalyzed,
		SourceLanguage: opts.SourceLanguage,
		TargetLanguage: opts.TargetLanguage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = store.Update(ctx, s.store, func(doc *store.Document) error {
		doc.Projects = append(doc.Projects, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("project: created %s (%s)", p.ID, p.RepoURL)
	return &p, nil
}

// List returns all projects in creation order.
func (s *Service) List(ctx context.Context) ([]models.Project, error) {
	doc, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Projects, nil
}

// Get returns the project and its runs.
func (s *Service) Get(ctx context.Context, id string) (*models.Project, []models.Run, error) {
	doc, err := s.store.Read(ctx)
	if err != nil {
		return nil, nil, err
	}
	p := doc.Project(id)
	if p == nil {
		return nil, nil, apperr.NotFound("project", id)
	}
	proj := *p
	return &proj, doc.RunsForProject(id), nil
}

// Analyze marks the project analyzing, runs the analyzer and stores the
// snapshot with status ready. If the analyzer fails the previous status is
// restored and the error returned.
func (s *Service) Analyze(ctx context.Context, id string) (*models.Project, error) {
	var (
		proj     models.Project
		previous string
	)
	err := store.Update(ctx, s.store, func(doc *store.Document) error {
		p := doc.Project(id)
		if p == nil {
			return apperr.NotFound("project", id)
		}
		previous = p.Status
		p.Status = models.ProjectAnalyzing
		p.UpdatedAt = s.now()
		proj = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.analyzer.Analyze(ctx, proj)
	if err != nil {
		log.Printf("project: analyze %s: %v", id, err)
		s.restoreStatus(ctx, id, previous)
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Upstream("analysis", 0, "", err)
	}

	err = store.Update(ctx, s.store, func(doc *store.Document) error {
		p := doc.Project(id)
		if p == nil {
			return apperr.NotFound("project", id)
		}
		p.Analysis = result
		p.Status = models.ProjectReady
		p.UpdatedAt = s.now()
		proj = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("project: analyzed %s: %d languages, %d warnings", id, len(result.Languages), len(result.Warnings))
	return &proj, nil
}

// restoreStatus puts back the status a failed analysis replaced, unless
// something else changed it in the meantime.
func (s *Service) restoreStatus(ctx context.Context, id, status string) {
	err := store.Update(ctx, s.store, func(doc *store.Document) error {
		if p := doc.Project(id); p != nil && p.Status == models.ProjectAnalyzing {
			p.Status = status
			p.UpdatedAt = s.now()
		}
		return nil
	})
	if err != nil {
		log.Printf("project: restore status of %s: %v", id, err)
	}
}

// RefreshAnalyses re-analyzes every ready project and returns how many
// succeeded. Failures are logged and do not stop the sweep.
func (s *Service) RefreshAnalyses(ctx context.Context) (int, error) {
	projects, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, p := range projects {
		if p.Status != models.ProjectReady {
			continue
		}
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := s.Analyze(ctx, p.ID); err != nil {
			log.Printf("project: refresh %s: %v", p.ID, err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}
