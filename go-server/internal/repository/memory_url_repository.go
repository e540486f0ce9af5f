package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

// MemoryURLRepository keeps mappings in process memory. A single mutex
// covers both indexes, so code uniqueness and click increments are atomic.
type MemoryURLRepository struct {
	mu     sync.RWMutex
	byID   map[string]*model.URL
	byCode map[string]string
	ids    *snowflake.Node
	now    func() time.Time
}

func NewMemoryURLRepository(nodeID int64) (*MemoryURLRepository, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &MemoryURLRepository{
		byID:   make(map[string]*model.URL),
		byCode: make(map[string]string),
		ids:    node,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *MemoryURLRepository) Insert(ctx context.Context, url *model.URL) error {
	defer metrics.ObserveStoreOperation(BackendMemory, "insert", time.Now())
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byCode[url.ShortCode]; taken {
		return ErrCodeConflict
	}

	now := r.now()
	url.ID = r.ids.Generate().String()
	url.Clicks = 0
	url.CreatedAt = now
	url.UpdatedAt = now

	stored := *url
	r.byID[stored.ID] = &stored
	r.byCode[stored.ShortCode] = stored.ID
	return nil
}

func (r *MemoryURLRepository) FindByCode(ctx context.Context, code string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendMemory, "find_by_code", time.Now())
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[code]
	if !ok {
		return nil, ErrURLNotFound
	}
	found := *r.byID[id]
	return &found, nil
}

func (r *MemoryURLRepository) FindByID(ctx context.Context, id string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendMemory, "find_by_id", time.Now())
	r.mu.RLock()
	defer r.mu.RUnlock()

	url, ok := r.byID[id]
	if !ok {
		return nil, ErrURLNotFound
	}
	found := *url
	return &found, nil
}

func (r *MemoryURLRepository) FindAll(ctx context.Context) ([]model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendMemory, "find_all", time.Now())
	r.mu.RLock()
	defer r.mu.RUnlock()

	urls := make([]model.URL, 0, len(r.byID))
	for _, url := range r.byID {
		urls = append(urls, *url)
	}
	sort.Slice(urls, func(i, j int) bool {
		if urls[i].CreatedAt.Equal(urls[j].CreatedAt) {
			return urls[i].ID < urls[j].ID
		}
		return urls[i].CreatedAt.Before(urls[j].CreatedAt)
	})
	return urls, nil
}

func (r *MemoryURLRepository) IncrementClicks(ctx context.Context, code string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendMemory, "increment_clicks", time.Now())
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byCode[code]
	if !ok {
		return nil, ErrURLNotFound
	}
	url := r.byID[id]
	url.Clicks++
	url.UpdatedAt = r.now()

	updated := *url
	return &updated, nil
}

func (r *MemoryURLRepository) Update(ctx context.Context, code string, update model.URLUpdate) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendMemory, "update", time.Now())
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byCode[code]
	if !ok {
		return nil, ErrURLNotFound
	}
	// validate everything before touching state
	if update.ShortCode != nil && *update.ShortCode != code {
		if _, taken := r.byCode[*update.ShortCode]; taken {
			return nil, ErrCodeConflict
		}
	}

	url := r.byID[id]
	if update.OriginalURL != nil {
		url.OriginalURL = *update.OriginalURL
	}
	if update.ShortCode != nil && *update.ShortCode != code {
		delete(r.byCode, code)
		r.byCode[*update.ShortCode] = id
		url.ShortCode = *update.ShortCode
	}
	url.UpdatedAt = r.now()

	updated := *url
	return &updated, nil
}

func (r *MemoryURLRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	defer metrics.ObserveStoreOperation(BackendMemory, "delete", time.Now())
	r.mu.Lock()
	defer r.mu.Unlock()

	url, ok := r.byID[id]
	if !ok {
		return 0, ErrURLNotFound
	}
	delete(r.byCode, url.ShortCode)
	delete(r.byID, id)
	return 1, nil
}
