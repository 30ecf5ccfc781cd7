package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/domain/entity"
	"github.com/garyjia/expense-validator/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// StoredFileRepository implements port.StoredFileRepository
type StoredFileRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStoredFileRepository creates a new stored file repository
func NewStoredFileRepository(db *sql.DB, logger *zap.Logger) port.StoredFileRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoredFileRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new upload descriptor
func (r *StoredFileRepository) Create(ctx context.Context, file *entity.StoredFile) error {
	query := `
		INSERT INTO uploaded_files (
			id, category, original_name, stored_name, path, size, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		file.ID,
		string(file.Category),
		file.OriginalName,
		file.StoredName,
		file.Path,
		file.Size,
		file.UploadedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create stored file", zap.String("id", file.ID), zap.Error(err))
		return fmt.Errorf("failed to create stored file: %w", err)
	}

	return nil
}

// GetByID retrieves a descriptor by ID; nil when it does not exist
func (r *StoredFileRepository) GetByID(ctx context.Context, id string) (*entity.StoredFile, error) {
	query := `
		SELECT id, category, original_name, stored_name, path, size, uploaded_at
		FROM uploaded_files
		WHERE id = ?
	`

	file, err := scanStoredFile(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get stored file", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get stored file: %w", err)
	}

	return file, nil
}

// ListByCategory returns the category's descriptors, newest first
func (r *StoredFileRepository) ListByCategory(ctx context.Context, category entity.FileCategory) ([]*entity.StoredFile, error) {
	query := `
		SELECT id, category, original_name, stored_name, path, size, uploaded_at
		FROM uploaded_files
		WHERE category = ?
		ORDER BY uploaded_at DESC, rowid DESC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, string(category))
	if err != nil {
		r.logger.Error("Failed to list stored files", zap.String("category", string(category)), zap.Error(err))
		return nil, fmt.Errorf("failed to list stored files: %w", err)
	}
	defer rows.Close()

	var files []*entity.StoredFile
	for rows.Next() {
		file, err := scanStoredFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stored file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stored files: %w", err)
	}

	return files, nil
}

// DeleteByCategory removes every descriptor of a category
func (r *StoredFileRepository) DeleteByCategory(ctx context.Context, category entity.FileCategory) (int64, error) {
	result, err := r.getExecutor(ctx).ExecContext(ctx,
		"DELETE FROM uploaded_files WHERE category = ?", string(category))
	if err != nil {
		r.logger.Error("Failed to delete stored files", zap.String("category", string(category)), zap.Error(err))
		return 0, fmt.Errorf("failed to delete stored files: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStoredFile(row rowScanner) (*entity.StoredFile, error) {
	var file entity.StoredFile
	var category string
	var uploadedAt time.Time

	if err := row.Scan(
		&file.ID,
		&category,
		&file.OriginalName,
		&file.StoredName,
		&file.Path,
		&file.Size,
		&uploadedAt,
	); err != nil {
		return nil, err
	}

	file.Category = entity.FileCategory(category)
	file.UploadedAt = uploadedAt
	return &file, nil
}

// getExecutor returns appropriate executor based on context
func (r *StoredFileRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.StoredFileRepository = (*StoredFileRepository)(nil)
