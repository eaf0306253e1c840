package models

import "time"

// Run statuses.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one execution of the migration pipeline against a project.
type Run struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	ProjectID      string    `gorm:"size:64;not null;index" json:"projectId"`
	Scope          string    `gorm:"size:64" json:"scope"`
	Status         string    `gorm:"size:16;default:pending;index" json:"status"`
	Stats          RunStats  `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`
	FileIDs        []string  `gorm:"serializer:json;type:text" json:"fileIds"`
	SourceLanguage string    `gorm:"size:16" json:"sourceLanguage,omitempty"`
	TargetLanguage string    `gorm:"size:16" json:"targetLanguage,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Seq            int       `gorm:"index" json:"-"`
}

// RunStats counts a run's files by status. It is always derived from the
// file set, see ComputeStats.
type RunStats struct {
	TotalFiles int `json:"totalFiles"`
	Migrated   int `json:"migrated"`
	Pending    int `json:"pending"`
	Manual     int `json:"manual"`
}

// ComputeStats counts files by status.
func ComputeStats(files []FileRecord) RunStats {
	stats := RunStats{TotalFiles: len(files)}
	for _, f := range files {
		switch f.Status {
		case FileMigrated:
			stats.Migrated++
		case FilePending:
			stats.Pending++
		case FileManual:
			stats.Manual++
		}
	}
	return stats
}
