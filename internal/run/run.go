// Package run creates migration runs: it calls the migration backend,
// normalizes what comes back (or substitutes a fallback file when the call
// fails), derives the run statistics and commits the run with its files.
package run

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/idgen"
	"github.com/zulandar/codem/internal/migration"
	"github.com/zulandar/codem/internal/models"
	"github.com/zulandar/codem/internal/normalize"
	"github.com/zulandar/codem/internal/notify"
	"github.com/zulandar/codem/internal/store"
)

// DefaultScope is used when a run is created without a scope.
const DefaultScope = "service"

// DefaultNotifyTimeout bounds the run-completed notification.
const DefaultNotifyTimeout = 10 * time.Second

// Fallback file contents, used when the migration backend cannot be reached.
const (
	FallbackPath      = "src/example/Example.java"
	FallbackOriginal  = "public class Example {\n    public int add(int a, int b) { return a + b; }\n}"
	FallbackConverted = "class Example {\n    fun add(a: Int, b: Int): Int = a + b\n}"
)

// Service creates and looks up runs.
type Service struct {
	store    store.Store
	backend  migration.Backend
	notifier      notify.Notifier
	notifyTimeout time.Duration
	newID         idgen.Func
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier reports committed runs to n.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithNotifyTimeout bounds how long CreateRun waits for the notifier.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithIDFunc replaces the identifier generator.
func WithIDFunc(f idgen.Func) Option {
	return func(s *Service) { s.newID = f }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service over st calling backend.
func NewService(st store.Store, backend migration.Backend, opts ...Option) *Service {
	s := &Service{
		store:         st,
		backend:       backend,
		notifyTimeout: DefaultNotifyTimeout,
		newID:         idgen.Generate,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Outcome is the result of one backend call: the normalized drafts, or the
// error that prevented getting any.
type Outcome struct {
	Drafts []normalize.Draft
	Shape  normalize.Shape
	Err    error
}

// FallbackDraft is the file substituted for a failed backend call.
func FallbackDraft() normalize.Draft {
	return normalize.Draft{
		Path:           FallbackPath,
		Status:         models.FileMigrated,
		OriginalCode:   FallbackOriginal,
		ConvertedCode:  FallbackConverted,
		SourceLanguage: "java",
		TargetLanguage: "kotlin",
	}
}

// CreateRun runs the migration for projectID and commits the resulting run.
// Once the project is found, a backend failure never fails the call: the
// run is created with the fallback file instead.
func (s *Service) CreateRun(ctx context.Context, projectID, scope string) (*models.Run, error) {
	doc, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	p := doc.Project(projectID)
	if p == nil {
		return nil, apperr.NotFound("project", projectID)
	}
	project := *p

	if strings.TrimSpace(scope) == "" {
		scope = DefaultScope
	}
	runID, err := s.newID("run")
	if err != nil {
		return nil, fmt.Errorf("run: create: %w", err)
	}

	outcome := s.invoke(ctx, migration.Request{
		ProjectID:      project.ID,
		RunID:          runID,
		RepoURL:        project.RepoURL,
		Scope:          scope,
		SourceLanguage: project.SourceLanguage,
		TargetLanguage: project.TargetLanguage,
	})
	drafts := collapse(runID, outcome)

	files := make([]models.FileRecord, 0, len(drafts))
	fileIDs := make([]string, 0, len(drafts))
	for _, d := range drafts {
		id, err := s.newID("file")
		if err != nil {
			return nil, fmt.Errorf("run: create: %w", err)
		}
		f := d.Record(id, runID)
		f.Status = canonicalStatus(runID, f.Path, f.Status)
		if f.SourceLanguage == "" {
			f.SourceLanguage = project.SourceLanguage
		}
		if f.TargetLanguage == "" {
			f.TargetLanguage = project.TargetLanguage
		}
		files = append(files, f)
		fileIDs = append(fileIDs, id)
	}

	now := s.now()
	r := models.Run{
		ID:             runID,
		ProjectID:      project.ID,
		Scope:          scope,
		Status:         models.RunCompleted,
		Stats:          models.ComputeStats(files),
		FileIDs:        fileIDs,
		SourceLanguage: project.SourceLanguage,
		TargetLanguage: project.TargetLanguage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = store.Update(ctx, s.store, func(doc *store.Document) error {
		if doc.Project(project.ID) == nil {
			return apperr.NotFound("project", project.ID)
		}
		doc.Runs = append(doc.Runs, r)
		doc.Files = append(doc.Files, files...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("run: created %s for %s: %d files (%d migrated, %d pending, %d manual)",
		r.ID, project.ID, r.Stats.TotalFiles, r.Stats.Migrated, r.Stats.Pending, r.Stats.Manual)

	s.notify(ctx, project, r)
	return &r, nil
}

// notify reports a committed run. The run is already stored, so a slow or
// failing notifier is logged and cut off at notifyTimeout.
func (s *Service) notify(ctx context.Context, project models.Project, r models.Run) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	if err := s.notifier.RunCompleted(ctx, project, r); err != nil {
		log.Printf("run: notify %s: %v", r.ID, err)
	}
}

// invoke calls the backend and normalizes a successful response.
func (s *Service) invoke(ctx context.Context, req migration.Request) Outcome {
	payload, err := s.backend.Migrate(ctx, req)
	if err != nil {
		return Outcome{Err: err}
	}
	drafts, shape := normalize.Files(payload)
	return Outcome{Drafts: drafts, Shape: shape}
}

// collapse turns an Outcome into the run's drafts: the normalized files on
// success, or exactly the fallback file on failure. An empty success stays
// empty.
func collapse(runID string, o Outcome) []normalize.Draft {
	if o.Err != nil {
		log.Printf("run: %s: migration backend failed, using fallback file: %v", runID, o.Err)
		return []normalize.Draft{FallbackDraft()}
	}
	if len(o.Drafts) == 0 {
		log.Printf("run: %s: warning: migration backend responded without files (shape %s); run has 0 files", runID, o.Shape)
	}
	return o.Drafts
}

// canonicalStatus maps statuses outside migrated/pending/manual to manual so
// the run's status counts always add up to its file count.
func canonicalStatus(runID, path, status string) string {
	if models.ValidFileStatus(status) {
		return status
	}
	log.Printf("run: %s: file %s has unknown status %q, recording as manual", runID, path, status)
	return models.FileManual
}

// ListRuns returns the project's runs in creation order.
func (s *Service) ListRuns(ctx context.Context, projectID string) ([]models.Run, error) {
	doc, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if doc.Project(projectID) == nil {
		return nil, apperr.NotFound("project", projectID)
	}
	return doc.RunsForProject(projectID), nil
}

// GetRun returns the run with runID owned by projectID and its files.
func (s *Service) GetRun(ctx context.Context, projectID, runID string) (*models.Run, []models.FileRecord, error) {
	doc, err := s.store.Read(ctx)
	if err != nil {
		return nil, nil, err
	}
	r := doc.Run(projectID, runID)
	if r == nil {
		return nil, nil, apperr.NotFound("run", runID)
	}
	run := *r
	return &run, doc.FilesForRun(run.ID), nil
}
