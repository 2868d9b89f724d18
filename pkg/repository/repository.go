package repository

import (
	"context"

	"github.com/smallbiznis/scholara/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm-backed store for one model.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Upsert(ctx context.Context, resource *T, conflictColumns ...string) error
}
