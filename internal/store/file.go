package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/zulandar/codem/internal/apperr"
)

// FileStore keeps the document as one indented JSON file. Writes go to a
// temporary file that is renamed over the original. The version check is
// guarded by an in-process mutex, so one FileStore must own the path.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore for path. Nothing is touched until the
// first Read or Write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document file path.
func (s *FileStore) Path() string { return s.path }

// Read returns the current document, creating an empty one if absent.
func (s *FileStore) Read(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(); err != nil {
		return nil, err
	}
	return s.load()
}

// Write replaces the document if doc.Version is current, then advances
// doc.Version.
func (s *FileStore) Write(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(); err != nil {
		return err
	}
	current, err := s.load()
	if err != nil {
		return err
	}
	if current.Version != doc.Version {
		return ErrConflict
	}

	next := *doc
	next.Version++
	next.fillEmpty()
	if err := s.save(&next); err != nil {
		return err
	}
	doc.Version = next.Version
	return nil
}

// Reset removes the document file. The next access recreates it empty.
func (s *FileStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.StorageUnavailable(fmt.Errorf("store: remove %s: %w", s.path, err))
	}
	return nil
}

// ensure creates the directory and an empty document if the file is missing.
func (s *FileStore) ensure() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return apperr.StorageUnavailable(fmt.Errorf("store: create directory for %s: %w", s.path, err))
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return apperr.StorageUnavailable(fmt.Errorf("store: stat %s: %w", s.path, err))
	}
	return s.save(emptyDocument())
}

func (s *FileStore) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, apperr.StorageUnavailable(fmt.Errorf("store: read %s: %w", s.path, err))
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, apperr.StorageUnavailable(fmt.Errorf("store: decode %s: %w", s.path, err))
	}
	doc.fillEmpty()
	return doc, nil
}

func (s *FileStore) save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode document: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return apperr.StorageUnavailable(fmt.Errorf("store: create temp file: %w", err))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.StorageUnavailable(fmt.Errorf("store: write %s: %w", tmpName, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.StorageUnavailable(fmt.Errorf("store: close %s: %w", tmpName, err))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperr.StorageUnavailable(fmt.Errorf("store: replace %s: %w", s.path, err))
	}
	return nil
}
