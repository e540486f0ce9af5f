package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fonsecaaso/shortlink/go-server/config"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	testCases := []struct {
		name     string
		cfg      *config.Config
		expected interface{}
	}{
		{"memory", &config.Config{StoreBackend: BackendMemory, NodeID: 1}, &MemoryURLRepository{}},
		{"sqlite", &config.Config{StoreBackend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "open.db")}, &SQLiteURLRepository{}},
		{"redis", &config.Config{StoreBackend: BackendRedis, RedisAddr: mr.Addr(), RedisPrefix: "open:", NodeID: 1}, &RedisURLRepository{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, closeFn, err := Open(context.Background(), tc.cfg)
			require.NoError(t, err)
			defer closeFn()

			assert.IsType(t, tc.expected, repo)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, _, err := Open(context.Background(), &config.Config{StoreBackend: "mongo"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, _, err = Open(context.Background(), &config.Config{StoreBackend: BackendMemory, NodeID: -1})
	assert.Error(t, err)

	_, _, err = Open(context.Background(), &config.Config{StoreBackend: BackendRedis, RedisAddr: "127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
