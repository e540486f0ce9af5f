package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

const defaultRedisPrefix = "shortlink:"

// Every mutation runs as a Lua script so the code index and the record hash
// change together. Record keys are derived inside the scripts, which ties
// this backend to a single Redis node.
var (
	insertScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[2],
	'id', ARGV[1], 'original_url', ARGV[2], 'short_code', ARGV[3],
	'clicks', '0', 'created_at', ARGV[4], 'updated_at', ARGV[4])
redis.call('SADD', KEYS[3], ARGV[1])
return 1
`)

	incrementScript = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id then
	return false
end
local key = ARGV[1] .. 'url:' .. id
redis.call('HINCRBY', key, 'clicks', 1)
redis.call('HSET', key, 'updated_at', ARGV[2])
return redis.call('HGETALL', key)
`)

	// ARGV: prefix, original_url, new short code ('' keeps it), has original_url flag, updated_at
	updateScript = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id then
	return false
end
local key = ARGV[1] .. 'url:' .. id
local current = redis.call('HGET', key, 'short_code')
local rename = ARGV[3] ~= '' and ARGV[3] ~= current
if rename and redis.call('EXISTS', ARGV[1] .. 'code:' .. ARGV[3]) == 1 then
	return 0
end
if rename then
	redis.call('SET', ARGV[1] .. 'code:' .. ARGV[3], id)
	redis.call('DEL', KEYS[1])
	redis.call('HSET', key, 'short_code', ARGV[3])
end
if ARGV[4] == '1' then
	redis.call('HSET', key, 'original_url', ARGV[2])
end
redis.call('HSET', key, 'updated_at', ARGV[5])
return redis.call('HGETALL', key)
`)

	deleteScript = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'short_code')
if not code then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('DEL', ARGV[1] .. 'code:' .. code)
redis.call('SREM', KEYS[2], ARGV[2])
return 1
`)
)

// RedisURLRepository implements URLRepository on Redis. A record lives in the
// hash <prefix>url:<id>; <prefix>code:<code> points at its id and doubles as
// the uniqueness claim.
type RedisURLRepository struct {
	client redis.UniversalClient
	prefix string
	ids    *snowflake.Node
	logger *zap.Logger
}

func NewRedisURLRepository(client redis.UniversalClient, prefix string, nodeID int64) (*RedisURLRepository, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisURLRepository{
		client: client,
		prefix: prefix,
		ids:    node,
		logger: zap.L().With(zap.String("component", "RedisURLRepository")),
	}, nil
}

func (r *RedisURLRepository) urlKey(id string) string   { return r.prefix + "url:" + id }
func (r *RedisURLRepository) codeKey(code string) string { return r.prefix + "code:" + code }
func (r *RedisURLRepository) idsKey() string             { return r.prefix + "ids" }

func (r *RedisURLRepository) Insert(ctx context.Context, url *model.URL) error {
	defer metrics.ObserveStoreOperation(BackendRedis, "insert", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	id := r.ids.Generate().String()
	now := time.Now().UTC()

	inserted, err := insertScript.Run(ctx, r.client,
		[]string{r.codeKey(url.ShortCode), r.urlKey(id), r.idsKey()},
		id, url.OriginalURL, url.ShortCode, formatTime(now),
	).Int()
	if err != nil {
		r.logger.Error("Failed to insert URL", zap.Error(err), zap.String("short_code", url.ShortCode))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if inserted == 0 {
		return ErrCodeConflict
	}

	url.ID = id
	url.Clicks = 0
	url.CreatedAt = now
	url.UpdatedAt = now
	return nil
}

func (r *RedisURLRepository) FindByCode(ctx context.Context, code string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendRedis, "find_by_code", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	id, err := r.client.Get(ctx, r.codeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrURLNotFound
		}
		r.logger.Error("Redis query error", zap.Error(err), zap.String("short_code", code))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return r.load(ctx, id)
}

func (r *RedisURLRepository) FindByID(ctx context.Context, id string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendRedis, "find_by_id", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.load(ctx, id)
}

func (r *RedisURLRepository) FindAll(ctx context.Context) ([]model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendRedis, "find_all", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		r.logger.Error("Redis query error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.urlKey(id))
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Redis pipeline error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	urls := make([]model.URL, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// deleted between SMEMBERS and HGETALL
			continue
		}
		url, err := decodeURL(fields)
		if err != nil {
			return nil, err
		}
		urls = append(urls, *url)
	}
	return urls, nil
}

func (r *RedisURLRepository) IncrementClicks(ctx context.Context, code string) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendRedis, "increment_clicks", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := incrementScript.Run(ctx, r.client,
		[]string{r.codeKey(code)},
		r.prefix, formatTime(time.Now().UTC()),
	).Result()
	return r.decodeScriptResult(res, err, zap.String("short_code", code))
}

func (r *RedisURLRepository) Update(ctx context.Context, code string, update model.URLUpdate) (*model.URL, error) {
	defer metrics.ObserveStoreOperation(BackendRedis, "update", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	originalURL, hasURL := "", "0"
	if update.OriginalURL != nil {
		originalURL, hasURL = *update.OriginalURL, "1"
	}
	newCode := ""
	if update.ShortCode != nil {
		newCode = *update.ShortCode
	}

	res, err := updateScript.Run(ctx, r.client,
		[]string{r.codeKey(code)},
		r.prefix, originalURL, newCode, hasURL, formatTime(time.Now().UTC()),
	).Result()
	return r.decodeScriptResult(res, err, zap.String("short_code", code))
}

func (r *RedisURLRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	defer metrics.ObserveStoreOperation(BackendRedis, "delete", time.Now())
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	deleted, err := deleteScript.Run(ctx, r.client,
		[]string{r.urlKey(id), r.idsKey()},
		r.prefix, id,
	).Int64()
	if err != nil {
		r.logger.Error("Failed to delete URL", zap.Error(err), zap.String("id", id))
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if deleted == 0 {
		return 0, ErrURLNotFound
	}
	return deleted, nil
}

func (r *RedisURLRepository) load(ctx context.Context, id string) (*model.URL, error) {
	fields, err := r.client.HGetAll(ctx, r.urlKey(id)).Result()
	if err != nil {
		r.logger.Error("Redis query error", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrURLNotFound
	}
	return decodeURL(fields)
}

// decodeScriptResult maps the reply of the increment and update scripts:
// nil means the code is unknown, 0 a short code conflict, a flat
// field/value array the updated record.
func (r *RedisURLRepository) decodeScriptResult(res interface{}, err error, key zap.Field) (*model.URL, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrURLNotFound
		}
		r.logger.Error("Redis script error", zap.Error(err), key)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch v := res.(type) {
	case int64:
		return nil, ErrCodeConflict
	case []interface{}:
		fields := make(map[string]string, len(v)/2)
		for i := 0; i+1 < len(v); i += 2 {
			k, _ := v[i].(string)
			val, _ := v[i+1].(string)
			fields[k] = val
		}
		return decodeURL(fields)
	default:
		return nil, fmt.Errorf("%w: unexpected script reply %T", ErrStoreUnavailable, res)
	}
}

func decodeURL(fields map[string]string) (*model.URL, error) {
	clicks, err := strconv.ParseInt(fields["clicks"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt clicks field: %v", ErrStoreUnavailable, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt created_at field: %v", ErrStoreUnavailable, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt updated_at field: %v", ErrStoreUnavailable, err)
	}

	return &model.URL{
		ID:          fields["id"],
		OriginalURL: fields["original_url"],
		ShortCode:   fields["short_code"],
		Clicks:      clicks,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
