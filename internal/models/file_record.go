package models

// File statuses.
const (
	FileMigrated = "migrated"
	FilePending  = "pending"
	FileManual   = "manual"
)

// ValidFileStatus reports whether s is one of the known file statuses.
func ValidFileStatus(s string) bool {
	return s == FileMigrated || s == FilePending || s == FileManual
}

// FileRecord is one file's original and converted code within a run.
type FileRecord struct {
	ID             string `gorm:"primaryKey;size:64" json:"id"`
	RunID          string `gorm:"size:64;not null;index" json:"runId"`
	Path           string `gorm:"type:text;not null" json:"path"`
	Status         string `gorm:"size:16;default:migrated" json:"status"`
	OriginalCode   string `gorm:"type:text" json:"originalCode"`
	ConvertedCode  string `gorm:"type:text" json:"convertedCode"`
	Notes          string `gorm:"type:text" json:"notes,omitempty"`
	SourceLanguage string `gorm:"size:16" json:"sourceLanguage,omitempty"`
	TargetLanguage string `gorm:"size:16" json:"targetLanguage,omitempty"`
	Seq            int    `gorm:"index" json:"-"`
}
