package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS url_mappings (
	id           TEXT PRIMARY KEY,
	original_url TEXT NOT NULL,
	short_code   VARCHAR(10) NOT NULL,
	clicks       BIGINT NOT NULL DEFAULT 0 CHECK (clicks >= 0),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT url_mappings_short_code_key UNIQUE (short_code)
)`

const urlColumns = "id, original_url, short_code, clicks, created_at, updated_at"

// PostgresURLRepository implements URLRepository using PostgreSQL
type PostgresURLRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresURLRepository creates a new PostgresURLRepository
func NewPostgresURLRepository(db *pgxpool.Pool) *PostgresURLRepository {
	return &PostgresURLRepository{
		db:     db,
		logger: zap.L().With(zap.String("component", "PostgresURLRepository")),
	}
}

// EnsureSchema creates the url_mappings table and its unique index if missing
func (r *PostgresURLRepository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := r.db.Exec(ctx, postgresSchema); err != nil {
		r.logger.Error("Failed to create schema", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *PostgresURLRepository) Insert(ctx context.Context, url *model.URL) error {
	defer metrics.ObserveStoreOperation(BackendPostgres, "insert", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	id := uuid.NewString()
	err := r.db.QueryRow(ctx,
		`INSERT INTO url_mappings (id, original_url, short_code)
		VALUES ($1, $2, $3)
		RETURNING clicks, created_at, updated_at`,
		id, url.OriginalURL, url.ShortCode,
	).Scan(&url.Clicks, &url.CreatedAt, &url.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Debug("Short code conflict on insert", zap.String("short_code", url.ShortCode))
			return ErrCodeConflict
		}
		r.logger.Error("Failed to insert URL", zap.Error(err), zap.String("short_code", url.ShortCode))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	url.ID = id
	return nil
}

func (r *PostgresURLRepository) FindByCode(ctx context.Context, code string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendPostgres, "find_by_code", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, "SELECT "+urlColumns+" FROM url_mappings WHERE short_code = $1", code)
	return r.scanOne(row, zap.String("short_code", code))
}

func (r *PostgresURLRepository) FindByID(ctx context.Context, id string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendPostgres, "find_by_id", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, "SELECT "+urlColumns+" FROM url_mappings WHERE id = $1", id)
	return r.scanOne(row, zap.String("id", id))
}

func (r *PostgresURLRepository) FindAll(ctx context.Context) ([]model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendPostgres, "find_all", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, "SELECT "+urlColumns+" FROM url_mappings ORDER BY created_at")
	if err != nil {
		r.logger.Error("Database query error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	urls, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.URL])
	if err != nil {
		r.logger.Error("Failed to scan URLs", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return urls, nil
}

// IncrementClicks bumps the counter inside a single UPDATE, so concurrent
// increments serialize on the row lock instead of racing on a read.
func (r *PostgresURLRepository) IncrementClicks(ctx context.Context, code string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendPostgres, "increment_clicks", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx,
		`UPDATE url_mappings
		SET clicks = clicks + 1, updated_at = now()
		WHERE short_code = $1
		RETURNING `+urlColumns,
		code,
	)
	return r.scanOne(row, zap.String("short_code", code))
}

func (r *PostgresURLRepository) Update(ctx context.Context, code string, update model.URLUpdate) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendPostgres, "update", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx,
		`UPDATE url_mappings
		SET original_url = COALESCE($2, original_url),
			short_code = COALESCE($3, short_code),
			updated_at = now()
		WHERE short_code = $1
		RETURNING `+urlColumns,
		code, update.OriginalURL, update.ShortCode,
	)

	return r.scanOne(row, zap.String("short_code", code))
}

func (r *PostgresURLRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	defer metrics.ObserveStoreOperation(BackendPostgres, "delete", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, "DELETE FROM url_mappings WHERE id = $1", id)
	if err != nil {
		r.logger.Error("Failed to delete URL", zap.Error(err), zap.String("id", id))
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrURLNotFound
	}
	return tag.RowsAffected(), nil
}

// scanOne scans a single mapping row. A unique violation from a rename maps
// to ErrCodeConflict; other driver errors are wrapped with %w so callers can
// still inspect the underlying *pgconn.PgError.
func (r *PostgresURLRepository) scanOne(row pgx.Row, key zap.Field) (*model.URL, error) {
	url := &model.URL{}
	err := row.Scan(&url.ID, &url.OriginalURL, &url.ShortCode, &url.Clicks, &url.CreatedAt, &url.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("URL not found", key)
			return nil, ErrURLNotFound
		}
		if isUniqueViolation(err) {
			r.logger.Debug("Short code conflict on update", key)
			return nil, ErrCodeConflict
		}
		r.logger.Error("Database query error", zap.Error(err), key)
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return url, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
