package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS url_mappings (
	id           TEXT PRIMARY KEY,
	original_url TEXT NOT NULL,
	short_code   TEXT NOT NULL UNIQUE,
	clicks       INTEGER NOT NULL DEFAULT 0 CHECK (clicks >= 0),
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
)`

// SQLiteURLRepository implements URLRepository on an embedded SQLite file.
// The pool is limited to one connection so writers never see SQLITE_BUSY.
type SQLiteURLRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteURLRepository wraps db and creates the schema if needed
func NewSQLiteURLRepository(db *sql.DB) (*SQLiteURLRepository, error) {
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &SQLiteURLRepository{
		db:     db,
		logger: zap.L().With(zap.String("component", "SQLiteURLRepository")),
	}, nil
}

func (r *SQLiteURLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteURLRepository) Insert(ctx context.Context, url *model.URL) error {
	defer metrics.ObserveStoreOperation(BackendSQLite, "insert", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO url_mappings (id, original_url, short_code, clicks, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)",
		id, url.OriginalURL, url.ShortCode, now, now,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrCodeConflict
		}
		r.logger.Error("Failed to insert URL", zap.Error(err), zap.String("short_code", url.ShortCode))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	url.ID = id
	url.Clicks = 0
	url.CreatedAt = now
	url.UpdatedAt = now
	return nil
}

func (r *SQLiteURLRepository) FindByCode(ctx context.Context, code string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendSQLite, "find_by_code", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.selectOne(ctx, r.db, "short_code", code)
}

func (r *SQLiteURLRepository) FindByID(ctx context.Context, id string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendSQLite, "find_by_id", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.selectOne(ctx, r.db, "id", id)
}

func (r *SQLiteURLRepository) FindAll(ctx context.Context) ([]model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendSQLite, "find_all", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, "SELECT "+urlColumns+" FROM url_mappings ORDER BY created_at, id")
	if err != nil {
		r.logger.Error("Database query error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	urls := make([]model.URL, 0)
	for rows.Next() {
		var url model.URL
		if err := rows.Scan(&url.ID, &url.OriginalURL, &url.ShortCode, &url.Clicks, &url.CreatedAt, &url.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return urls, nil
}

func (r *SQLiteURLRepository) IncrementClicks(ctx context.Context, code string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendSQLite, "increment_clicks", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var url *model.URL
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE url_mappings SET clicks = clicks + 1, updated_at = ? WHERE short_code = ?",
			time.Now().UTC(), code,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrURLNotFound
		}
		url, err = r.selectOne(ctx, tx, "short_code", code)
		return err
	})
	return url, err
}

func (r *SQLiteURLRepository) Update(ctx context.Context, code string, update model.URLUpdate) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendSQLite, "update", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var url *model.URL
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := r.selectOne(ctx, tx, "short_code", code)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE url_mappings SET original_url = COALESCE(?, original_url), short_code = COALESCE(?, short_code), updated_at = ? WHERE id = ?",
			update.OriginalURL, update.ShortCode, time.Now().UTC(), current.ID,
		)
		if err != nil {
			if isSQLiteUniqueViolation(err) {
				return ErrCodeConflict
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		url, err = r.selectOne(ctx, tx, "id", current.ID)
		return err
	})
	return url, err
}

func (r *SQLiteURLRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	defer metrics.ObserveStoreOperation(BackendSQLite, "delete", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, "DELETE FROM url_mappings WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to delete URL", zap.Error(err), zap.String("id", id))
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		return 0, ErrURLNotFound
	}
	return n, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// selectOne loads a mapping by column; column is always a constant from this file
func (r *SQLiteURLRepository) selectOne(ctx context.Context, q queryRower, column, value string) (*model.URL, error) {
	url := &model.URL{}
	err := q.QueryRowContext(ctx, "SELECT "+urlColumns+" FROM url_mappings WHERE "+column+" = ?", value).
		Scan(&url.ID, &url.OriginalURL, &url.ShortCode, &url.Clicks, &url.CreatedAt, &url.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrURLNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String(column, value))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return url, nil
}

func (r *SQLiteURLRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
