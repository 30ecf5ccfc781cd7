package port

import (
	"context"

	"github.com/garyjia/expense-validator/internal/domain/entity"
)

// StoredFileRepository defines persistence operations for upload descriptors
type StoredFileRepository interface {
	Create(ctx context.Context, file *entity.StoredFile) error
	GetByID(ctx context.Context, id string) (*entity.StoredFile, error)
	ListByCategory(ctx context.Context, category entity.FileCategory) ([]*entity.StoredFile, error)
	DeleteByCategory(ctx context.Context, category entity.FileCategory) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
