package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

var (
	ErrURLNotFound      = errors.New("URL not found")
	ErrCodeConflict     = errors.New("short code already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnknownBackend   = errors.New("unknown store backend")
)

const dbTimeout = 5 * time.Second

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// URLRepository persists URL mappings. Implementations must enforce short code
// uniqueness atomically on Insert and Update, and must never lose a concurrent
// IncrementClicks.
type URLRepository interface {
	// Insert stores url, assigning ID, Clicks, CreatedAt and UpdatedAt
	Insert(ctx context.Context, url *model.URL) error
	FindByCode(ctx context.Context, code string) (*model.URL, error)
	FindByID(ctx context.Context, id string) (*model.URL, error)
	FindAll(ctx context.Context) ([]model.URL, error)
	IncrementClicks(ctx context.Context, code string) (*model.URL, error)
	// Update applies every staged field of update in one step, or none of them
	Update(ctx context.Context, code string, update model.URLUpdate) (*model.URL, error)
	DeleteByID(ctx context.Context, id string) (int64, error)
}
