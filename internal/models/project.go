// Package models holds the persisted entities of a Codem document: projects,
// migration runs and the file records each run owns.
package models

import "time"

// Project statuses.
const (
	ProjectNotAnalyzed = "not_analyzed"
	ProjectAnalyzing   = "analyzing"
	ProjectReady       = "ready"
)

// Languages a project or file may declare as its source or target.
var Languages = []string{"c", "cpp", "java", "python", "kotlin", "csharp", "javascript", "typescript"}

// ValidLanguage reports whether code is a known language code. The empty
// string is valid and means "not declared".
func ValidLanguage(code string) bool {
	if code == "" {
		return true
	}
	for _, l := range Languages {
		if l == code {
			return true
		}
	}
	return false
}

// Project is a registered source repository.
type Project struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	Name           string    `gorm:"size:256;not null" json:"name"`
	RepoURL        string    `gorm:"type:text;not null" json:"repoUrl"`
	Status         string    `gorm:"size:16;default:not_analyzed;index" json:"status"`
	Analysis       *Analysis `gorm:"serializer:json;type:text" json:"analysis,omitempty"`
	SourceLanguage string    `gorm:"size:16" json:"sourceLanguage,omitempty"`
	TargetLanguage string    `gorm:"size:16" json:"targetLanguage,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Seq            int       `gorm:"index" json:"-"`
}

// Analysis is a snapshot of a repository's composition.
type Analysis struct {
	Languages      []LanguageShare `json:"languages"`
	Dependencies   []string        `json:"dependencies"`
	Warnings       []string        `json:"warnings"`
	LastAnalyzedAt time.Time       `json:"lastAnalyzedAt"`
}

// LanguageShare is one language's percentage of a repository.
type LanguageShare struct {
	Name    string `json:"name"`
	Percent int    `json:"percent"`
}
