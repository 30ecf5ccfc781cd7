package entity

import (
	"fmt"
	"time"
)

// FileCategory identifies an upload slot
type FileCategory string

// Upload slots
const (
	CategoryPolicy  FileCategory = "policy"
	CategoryExpense FileCategory = "expense"
)

// ParseFileCategory converts a raw route parameter into a FileCategory
func ParseFileCategory(raw string) (FileCategory, error) {
	switch FileCategory(raw) {
	case CategoryPolicy, CategoryExpense:
		return FileCategory(raw), nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidCategory, raw)
}

// AllowedExtensions returns the file extensions accepted for the category
func (c FileCategory) AllowedExtensions() []string {
	switch c {
	case CategoryPolicy:
		return []string{".md", ".txt", ".pdf"}
	case CategoryExpense:
		return []string{".csv"}
	}
	return nil
}

// StoredFile describes an uploaded file
type StoredFile struct {
	ID           string       `json:"id"`
	Category     FileCategory `json:"category"`
	OriginalName string       `json:"originalName"`
	StoredName   string       `json:"filename"`
	Path         string       `json:"path"`
	Size         int64        `json:"size"`
	UploadedAt   time.Time    `json:"uploadedAt"`
}
