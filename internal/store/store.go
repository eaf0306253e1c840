// Package store holds the Codem document: the projects, runs and file
// records collections, read and written as one snapshot.
//
// Every snapshot carries a version. Write succeeds only when the persisted
// version still equals the version the snapshot was read at, so a
// read-modify-write cycle that raced with another writer fails with
// ErrConflict instead of silently dropping the other writer's changes.
// Update wraps the cycle and retries on conflict.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/config"
	"github.com/zulandar/codem/internal/db"
	"github.com/zulandar/codem/internal/models"
)

// ErrConflict is returned by Write when the document changed since it was read.
var ErrConflict = errors.New("store: document version conflict")

// MaxUpdateAttempts bounds the retries Update makes on ErrConflict.
const MaxUpdateAttempts = 5

const (
	// baseConflictBackoff is the wait after the first conflicting write.
	baseConflictBackoff = 5 * time.Millisecond
	// maxConflictBackoff caps the exponential wait between attempts.
	maxConflictBackoff = 100 * time.Millisecond
)

// conflictBackoff returns the wait before retry attempt+1: exponential from
// baseConflictBackoff, capped, plus up to one base of jitter so racing
// writers spread out.
func conflictBackoff(attempt int) time.Duration {
	d := baseConflictBackoff << attempt
	if d > maxConflictBackoff || d <= 0 {
		d = maxConflictBackoff
	}
	return d + time.Duration(rand.Int63n(int64(baseConflictBackoff)))
}

// Document is one full snapshot of persisted state.
type Document struct {
	Version  int64               `json:"version"`
	Projects []models.Project    `json:"projects"`
	Runs     []models.Run        `json:"runs"`
	Files    []models.FileRecord `json:"files"`
}

// Store reads and replaces the whole document. Implementations create the
// underlying medium with empty collections on first access.
type Store interface {
	Read(ctx context.Context) (*Document, error)
	Write(ctx context.Context, doc *Document) error
	Reset(ctx context.Context) error
}

// Open returns the Store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverFile:
		return NewFileStore(cfg.Path), nil
	case config.DriverSQLite, config.DriverMySQL:
		gormDB, err := db.Connect(cfg)
		if err != nil {
			return nil, apperr.StorageUnavailable(err)
		}
		return NewGormStore(gormDB), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// Update runs a read-modify-write cycle: it reads the document, applies fn
// and writes the result, starting over after a short jittered wait when the
// write conflicts. An error from fn aborts the cycle and is returned
// unchanged.
func Update(ctx context.Context, s Store, fn func(doc *Document) error) error {
	var lastErr error
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		doc, err := s.Read(ctx)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		err = s.Write(ctx, doc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
		if attempt == MaxUpdateAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(conflictBackoff(attempt)):
		}
	}
	return apperr.Conflict(fmt.Sprintf("store: gave up after %d conflicting writes", MaxUpdateAttempts), lastErr)
}

// emptyDocument returns a document with non-nil empty collections.
func emptyDocument() *Document {
	return &Document{
		Projects: []models.Project{},
		Runs:     []models.Run{},
		Files:    []models.FileRecord{},
	}
}

// fillEmpty replaces nil collections with empty ones so they serialize as [].
func (d *Document) fillEmpty() {
	if d.Projects == nil {
		d.Projects = []models.Project{}
	}
	if d.Runs == nil {
		d.Runs = []models.Run{}
	}
	if d.Files == nil {
		d.Files = []models.FileRecord{}
	}
	for i := range d.Runs {
		if d.Runs[i].FileIDs == nil {
			d.Runs[i].FileIDs = []string{}
		}
	}
}

// Project returns the project with the given ID, or nil.
func (d *Document) Project(id string) *models.Project {
	for i := range d.Projects {
		if d.Projects[i].ID == id {
			return &d.Projects[i]
		}
	}
	return nil
}

// Run returns the run with runID owned by projectID, or nil.
func (d *Document) Run(projectID, runID string) *models.Run {
	for i := range d.Runs {
		if d.Runs[i].ID == runID && d.Runs[i].ProjectID == projectID {
			return &d.Runs[i]
		}
	}
	return nil
}

// File returns the file record with fileID owned by runID, or nil.
func (d *Document) File(runID, fileID string) *models.FileRecord {
	for i := range d.Files {
		if d.Files[i].ID == fileID && d.Files[i].RunID == runID {
			return &d.Files[i]
		}
	}
	return nil
}

// RunsForProject returns the project's runs in insertion order.
func (d *Document) RunsForProject(projectID string) []models.Run {
	runs := []models.Run{}
	for _, r := range d.Runs {
		if r.ProjectID == projectID {
			runs = append(runs, r)
		}
	}
	return runs
}

// FilesForRun returns the run's files in insertion order.
func (d *Document) FilesForRun(runID string) []models.FileRecord {
	files := []models.FileRecord{}
	for _, f := range d.Files {
		if f.RunID == runID {
			files = append(files, f)
		}
	}
	return files
}
