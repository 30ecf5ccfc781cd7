package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/domain/entity"
)

// DefaultMaxUploadBytes is the largest accepted upload (5MB)
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

// UploadService manages the single policy and expense upload slots
type UploadService interface {
	Save(ctx context.Context, category entity.FileCategory, originalName string, content []byte) (*entity.StoredFile, error)
	List(ctx context.Context, category entity.FileCategory) ([]*entity.StoredFile, error)
	Clear(ctx context.Context, category entity.FileCategory) error
	LoadText(ctx context.Context, category entity.FileCategory) (string, error)
}

type uploadServiceImpl struct {
	store    port.UploadStore
	reader   port.DocumentReader
	maxBytes int64
	logger   Logger
}

// NewUploadService creates a new UploadService. reader may be nil, in which
// case stored bytes are returned as text unchanged.
func NewUploadService(store port.UploadStore, reader port.DocumentReader, maxBytes int64, logger Logger) UploadService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &uploadServiceImpl{
		store:    store,
		reader:   reader,
		maxBytes: maxBytes,
		logger:   orNop(logger),
	}
}

// Save replaces the category's current file with the new upload
func (s *uploadServiceImpl) Save(ctx context.Context, category entity.FileCategory, originalName string, content []byte) (*entity.StoredFile, error) {
	if err := s.checkUpload(category, originalName, content); err != nil {
		return nil, err
	}

	if err := s.store.Clear(ctx, category); err != nil {
		s.logger.Error("Failed to clear upload slot", "category", category, "error", err)
		return nil, fmt.Errorf("clear %s files: %w", category, err)
	}

	file, err := s.store.Save(ctx, category, originalName, content)
	if err != nil {
		s.logger.Error("Failed to save upload", "category", category, "name", originalName, "error", err)
		return nil, fmt.Errorf("save %s file: %w", category, err)
	}

	s.logger.Info("File uploaded",
		"category", category,
		"id", file.ID,
		"name", originalName,
		"size", file.Size)

	return file, nil
}

func (s *uploadServiceImpl) checkUpload(category entity.FileCategory, originalName string, content []byte) error {
	allowed := category.AllowedExtensions()
	if len(allowed) == 0 {
		return fmt.Errorf("%w: %s", entity.ErrInvalidCategory, category)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	supported := false
	for _, a := range allowed {
		if ext == a {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("%w: only %s files are allowed", entity.ErrUnsupportedFileType, strings.Join(allowed, ", "))
	}

	if len(content) == 0 {
		return entity.ErrEmptyFile
	}
	if int64(len(content)) > s.maxBytes {
		return fmt.Errorf("%w: maximum size is %dMB", entity.ErrFileTooLarge, s.maxBytes/(1024*1024))
	}
	return nil
}

// List returns the category's files, newest first
func (s *uploadServiceImpl) List(ctx context.Context, category entity.FileCategory) ([]*entity.StoredFile, error) {
	files, err := s.store.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list %s files: %w", category, err)
	}
	return files, nil
}

// Clear empties the category slot
func (s *uploadServiceImpl) Clear(ctx context.Context, category entity.FileCategory) error {
	if err := s.store.Clear(ctx, category); err != nil {
		s.logger.Error("Failed to clear upload slot", "category", category, "error", err)
		return fmt.Errorf("clear %s files: %w", category, err)
	}
	s.logger.Info("Upload slot cleared", "category", category)
	return nil
}

// LoadText returns the text of the newest file in the category
func (s *uploadServiceImpl) LoadText(ctx context.Context, category entity.FileCategory) (string, error) {
	files, err := s.List(ctx, category)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: %s", entity.ErrNoFileUploaded, category)
	}

	file := files[0]
	content, err := s.store.Read(ctx, file)
	if err != nil {
		return "", fmt.Errorf("read %s file: %w", category, err)
	}

	if s.reader == nil {
		return string(content), nil
	}
	text, err := s.reader.ReadText(ctx, file.OriginalName, content)
	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", file.OriginalName, err)
	}
	return text, nil
}
