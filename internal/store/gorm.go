package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/db"
	"github.com/zulandar/codem/internal/models"
	"gorm.io/gorm"
)

const (
	metaID    = 1
	batchSize = 100
)

// GormStore keeps the document in three tables plus a one-row version
// table. Write replaces every row inside a transaction that first bumps the
// version with a conditional UPDATE, which is the compare-and-swap.
type GormStore struct {
	db    *gorm.DB
	mu    sync.Mutex
	ready bool
}

// NewGormStore returns a GormStore over db. Tables are migrated lazily.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// ensure migrates the schema and seeds the version row once per store.
func (s *GormStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	gdb := s.db.WithContext(ctx)
	if err := db.AutoMigrate(gdb); err != nil {
		return apperr.StorageUnavailable(err)
	}
	meta := models.StoreMeta{ID: metaID}
	if err := gdb.FirstOrCreate(&meta, models.StoreMeta{ID: metaID}).Error; err != nil {
		return apperr.StorageUnavailable(fmt.Errorf("store: seed version row: %w", err))
	}
	s.ready = true
	return nil
}

// Read loads all collections in one transaction, ordered as written.
func (s *GormStore) Read(ctx context.Context) (*Document, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	doc := emptyDocument()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meta models.StoreMeta
		if err := tx.First(&meta, metaID).Error; err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		doc.Version = meta.Version
		if err := tx.Order("seq").Find(&doc.Projects).Error; err != nil {
			return fmt.Errorf("read projects: %w", err)
		}
		if err := tx.Order("seq").Find(&doc.Runs).Error; err != nil {
			return fmt.Errorf("read runs: %w", err)
		}
		if err := tx.Order("seq").Find(&doc.Files).Error; err != nil {
			return fmt.Errorf("read files: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.StorageUnavailable(fmt.Errorf("store: %w", err))
	}
	doc.fillEmpty()
	return doc, nil
}

// Write replaces all rows if doc.Version is current, then advances
// doc.Version.
func (s *GormStore) Write(ctx context.Context, doc *Document) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.StoreMeta{}).
			Where("id = ? AND version = ?", metaID, doc.Version).
			Update("version", gorm.Expr("version + 1"))
		if res.Error != nil {
			return fmt.Errorf("bump version: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&models.FileRecord{}).Error; err != nil {
			return fmt.Errorf("clear files: %w", err)
		}
		if err := all.Delete(&models.Run{}).Error; err != nil {
			return fmt.Errorf("clear runs: %w", err)
		}
		if err := all.Delete(&models.Project{}).Error; err != nil {
			return fmt.Errorf("clear projects: %w", err)
		}

		projects := append([]models.Project(nil), doc.Projects...)
		for i := range projects {
			projects[i].Seq = i
		}
		runs := append([]models.Run(nil), doc.Runs...)
		for i := range runs {
			runs[i].Seq = i
		}
		files := append([]models.FileRecord(nil), doc.Files...)
		for i := range files {
			files[i].Seq = i
		}
		if len(projects) > 0 {
			if err := tx.CreateInBatches(&projects, batchSize).Error; err != nil {
				return fmt.Errorf("write projects: %w", err)
			}
		}
		if len(runs) > 0 {
			if err := tx.CreateInBatches(&runs, batchSize).Error; err != nil {
				return fmt.Errorf("write runs: %w", err)
			}
		}
		if len(files) > 0 {
			if err := tx.CreateInBatches(&files, batchSize).Error; err != nil {
				return fmt.Errorf("write files: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		return ErrConflict
	}
	if err != nil {
		return apperr.StorageUnavailable(fmt.Errorf("store: %w", err))
	}
	doc.Version++
	return nil
}

// Reset drops every table. The next access recreates them empty.
func (s *GormStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := db.DropAll(s.db.WithContext(ctx)); err != nil {
		return apperr.StorageUnavailable(err)
	}
	s.ready = false
	return nil
}
