package models

// StoreMeta holds the document version used for compare-and-swap writes.
// There is exactly one row, with ID 1.
type StoreMeta struct {
	ID      uint  `gorm:"primaryKey"`
	Version int64 `gorm:"not null;default:0"`
}
