package port

import (
	"context"

	"github.com/garyjia/expense-validator/internal/domain/entity"
)

// FileStorage defines raw file operations relative to a base directory
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	GetFullPath(relativePath string) string
}

// UploadStore keeps the uploaded files for each category
type UploadStore interface {
	// Save stores content as the newest file of the category
	Save(ctx context.Context, category entity.FileCategory, originalName string, content []byte) (*entity.StoredFile, error)

	// List returns the files of a category, newest first
	List(ctx context.Context, category entity.FileCategory) ([]*entity.StoredFile, error)

	// Clear removes every file of a category
	Clear(ctx context.Context, category entity.FileCategory) error

	// Read returns the content of a stored file
	Read(ctx context.Context, file *entity.StoredFile) ([]byte, error)
}
