package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadStore implements port.UploadStore: bytes live in a FileStorage under
// "<category>/<uuid><ext>" and descriptors live in a repository
type UploadStore struct {
	files  port.FileStorage
	repo   port.StoredFileRepository
	tx     port.TransactionManager
	logger *zap.Logger
	now    func() time.Time

	// Serializes slot operations within this process
	mu sync.Mutex
}

// NewUploadStore creates a new UploadStore
func NewUploadStore(files port.FileStorage, repo port.StoredFileRepository, tx port.TransactionManager, logger *zap.Logger) *UploadStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadStore{
		files:  files,
		repo:   repo,
		tx:     tx,
		logger: logger,
		now:    time.Now,
	}
}

// Save writes content and records its descriptor. A failed insert removes
// the written file.
func (s *UploadStore) Save(ctx context.Context, category entity.FileCategory, originalName string, content []byte) (*entity.StoredFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	storedName := id + strings.ToLower(filepath.Ext(originalName))
	file := &entity.StoredFile{
		ID:           id,
		Category:     category,
		OriginalName: filepath.Base(originalName),
		StoredName:   storedName,
		Path:         path.Join(string(category), storedName),
		Size:         int64(len(content)),
		UploadedAt:   s.now().UTC(),
	}

	if err := s.files.Save(ctx, file.Path, content); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	if err := s.repo.Create(ctx, file); err != nil {
		if rmErr := s.files.Delete(ctx, file.Path); rmErr != nil {
			s.logger.Error("Failed to remove orphaned upload", zap.String("path", file.Path), zap.Error(rmErr))
		}
		return nil, err
	}

	s.logger.Info("Upload stored",
		zap.String("id", file.ID),
		zap.String("category", string(category)),
		zap.String("path", file.Path))

	return file, nil
}

// List returns the category's descriptors, newest first
func (s *UploadStore) List(ctx context.Context, category entity.FileCategory) ([]*entity.StoredFile, error) {
	return s.repo.ListByCategory(ctx, category)
}

// Clear removes every descriptor of the category and then its files. A file
// that cannot be removed is logged and left behind.
func (s *UploadStore) Clear(ctx context.Context, category entity.FileCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*entity.StoredFile
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		files, err := s.repo.ListByCategory(ctx, category)
		if err != nil {
			return err
		}
		if _, err := s.repo.DeleteByCategory(ctx, category); err != nil {
			return err
		}
		removed = files
		return nil
	})
	if err != nil {
		return err
	}

	for _, f := range removed {
		if err := s.files.Delete(ctx, f.Path); err != nil {
			s.logger.Error("Failed to delete upload file", zap.String("path", f.Path), zap.Error(err))
		}
	}

	if len(removed) > 0 {
		s.logger.Info("Upload slot cleared",
			zap.String("category", string(category)),
			zap.Int("files", len(removed)))
	}
	return nil
}

// Read returns the bytes of a stored upload
func (s *UploadStore) Read(ctx context.Context, file *entity.StoredFile) ([]byte, error) {
	return s.files.Read(ctx, file.Path)
}

// Verify interface compliance
var _ port.UploadStore = (*UploadStore)(nil)
