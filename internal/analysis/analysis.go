// Package analysis produces repository analysis snapshots: language
// composition, dependency edges and migration warnings.
package analysis

import (
	"context"
	"time"

	"github.com/zulandar/codem/internal/models"
)

// Analyzer analyzes a project's repository.
type Analyzer interface {
	Analyze(ctx context.Context, project models.Project) (*models.Analysis, error)
}

// Mock returns the same fixed snapshot for every project.
type Mock struct {
	Now func() time.Time
}

// Analyze returns the fixed snapshot stamped with the current time.
func (m Mock) Analyze(ctx context.Context, project models.Project) (*models.Analysis, error) {
	now := time.Now().UTC()
	if m.Now != nil {
		now = m.Now()
	}
	return &models.Analysis{
		Languages: []models.LanguageShare{
			{Name: "C", Percent: 20},
			{Name: "C++", Percent: 25},
			{Name: "Java", Percent: 35},
			{Name: "Python", Percent: 20},
		},
		Dependencies: []string{
			"auth-service -> user-service",
			"payment-service -> ledger-service",
			"fraud-service -> rules-engine",
		},
		Warnings: []string{
			"Manual memory management in legacy modules.",
			"Native interop/FFI present in some layers.",
			"Multi-threading primitives need careful review post-migration.",
		},
		LastAnalyzedAt: now,
	}, nil
}
