package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

func strPtr(s string) *string { return &s }

// runContractTests exercises the behaviour every backend must share
func runContractTests(t *testing.T, newRepo func(t *testing.T) URLRepository) {
	ctx := context.Background()

	t.Run("insert and find", func(t *testing.T) {
		repo := newRepo(t)
		url := &model.URL{OriginalURL: "https://example.com", ShortCode: "abc123"}

		require.NoError(t, repo.Insert(ctx, url))
		assert.NotEmpty(t, url.ID)
		assert.Equal(t, int64(0), url.Clicks)
		assert.False(t, url.CreatedAt.IsZero())

		byCode, err := repo.FindByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, url.ID, byCode.ID)
		assert.Equal(t, "https://example.com", byCode.OriginalURL)

		byID, err := repo.FindByID(ctx, url.ID)
		require.NoError(t, err)
		assert.Equal(t, "abc123", byID.ShortCode)
	})

	t.Run("find unknown", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.FindByCode(ctx, "nope")
		assert.ErrorIs(t, err, ErrURLNotFound)

		_, err = repo.FindByID(ctx, "nope")
		assert.ErrorIs(t, err, ErrURLNotFound)
	})

	t.Run("duplicate code conflicts", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, &model.URL{OriginalURL: "https://a.com", ShortCode: "dup"}))

		err := repo.Insert(ctx, &model.URL{OriginalURL: "https://b.com", ShortCode: "dup"})
		assert.ErrorIs(t, err, ErrCodeConflict)

		url, err := repo.FindByCode(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "https://a.com", url.OriginalURL)
	})

	t.Run("find all", func(t *testing.T) {
		repo := newRepo(t)
		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		for _, code := range []string{"one", "two", "three"} {
			require.NoError(t, repo.Insert(ctx, &model.URL{OriginalURL: "https://" + code + ".com", ShortCode: code}))
		}

		all, err = repo.FindAll(ctx)
		require.NoError(t, err)
		codes := make([]string, 0, len(all))
		for _, u := range all {
			codes = append(codes, u.ShortCode)
		}
		assert.ElementsMatch(t, []string{"one", "two", "three"}, codes)
	})

	t.Run("increment clicks", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, &model.URL{OriginalURL: "https://example.com", ShortCode: "clk"}))

		for i := 1; i <= 3; i++ {
			url, err := repo.IncrementClicks(ctx, "clk")
			require.NoError(t, err)
			assert.Equal(t, int64(i), url.Clicks)
		}

		_, err := repo.IncrementClicks(ctx, "missing")
		assert.ErrorIs(t, err, ErrURLNotFound)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, &model.URL{OriginalURL: "https://example.com", ShortCode: "hot"}))

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.IncrementClicks(ctx, "hot")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		url, err := repo.FindByCode(ctx, "hot")
		require.NoError(t, err)
		assert.Equal(t, int64(n), url.Clicks)
	})

	t.Run("concurrent inserts of one code admit a single winner", func(t *testing.T) {
		repo := newRepo(t)

		const n = 20
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.Insert(ctx, &model.URL{OriginalURL: fmt.Sprintf("https://site%d.com", i), ShortCode: "race"})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case assert.ErrorIs(t, err, ErrCodeConflict):
					conflicts++
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, n-1, conflicts)
	})

	t.Run("update url keeps code and clicks", func(t *testing.T) {
		repo := newRepo(t)
		url := &model.URL{OriginalURL: "https://old.com", ShortCode: "upd"}
		require.NoError(t, repo.Insert(ctx, url))
		_, err := repo.IncrementClicks(ctx, "upd")
		require.NoError(t, err)

		updated, err := repo.Update(ctx, "upd", model.URLUpdate{OriginalURL: strPtr("https://new.com")})
		require.NoError(t, err)
		assert.Equal(t, url.ID, updated.ID)
		assert.Equal(t, "https://new.com", updated.OriginalURL)
		assert.Equal(t, "upd", updated.ShortCode)
		assert.Equal(t, int64(1), updated.Clicks)
	})

	t.Run("rename moves the code", func(t *testing.T) {
		repo := newRepo(t)
		url := &model.URL{OriginalURL: "https://example.com", ShortCode: "old"}
		require.NoError(t, repo.Insert(ctx, url))

		updated, err := repo.Update(ctx, "old", model.URLUpdate{ShortCode: strPtr("new")})
		require.NoError(t, err)
		assert.Equal(t, url.ID, updated.ID)
		assert.Equal(t, "new", updated.ShortCode)

		_, err = repo.FindByCode(ctx, "old")
		assert.ErrorIs(t, err, ErrURLNotFound)

		found, err := repo.FindByCode(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, url.ID, found.ID)

		// the old code is free again
		require.NoError(t, repo.Insert(ctx, &model.URL{OriginalURL: "https://other.com", ShortCode: "old"}))
	})

	t.Run("rename onto a taken code changes nothing", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, &model.URL{OriginalURL: "https://a.com", ShortCode: "aaa"}))
		require.NoError(t, repo.Insert(ctx, &model.URL{OriginalURL: "https://b.com", ShortCode: "bbb"}))

		_, err := repo.Update(ctx, "aaa", model.URLUpdate{
			OriginalURL: strPtr("https://changed.com"),
			ShortCode:   strPtr("bbb"),
		})
		assert.ErrorIs(t, err, ErrCodeConflict)

		a, err := repo.FindByCode(ctx, "aaa")
		require.NoError(t, err)
		assert.Equal(t, "https://a.com", a.OriginalURL)

		b, err := repo.FindByCode(ctx, "bbb")
		require.NoError(t, err)
		assert.Equal(t, "https://b.com", b.OriginalURL)
	})

	t.Run("rename to the same code", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, &model.URL{OriginalURL: "https://a.com", ShortCode: "same"}))

		updated, err := repo.Update(ctx, "same", model.URLUpdate{ShortCode: strPtr("same")})
		require.NoError(t, err)
		assert.Equal(t, "same", updated.ShortCode)
	})

	t.Run("update unknown", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Update(ctx, "ghost", model.URLUpdate{OriginalURL: strPtr("https://x.com")})
		assert.ErrorIs(t, err, ErrURLNotFound)
	})

	t.Run("delete frees the code", func(t *testing.T) {
		repo := newRepo(t)
		url := &model.URL{OriginalURL: "https://example.com", ShortCode: "gone"}
		require.NoError(t, repo.Insert(ctx, url))

		n, err := repo.DeleteByID(ctx, url.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.FindByCode(ctx, "gone")
		assert.ErrorIs(t, err, ErrURLNotFound)
		_, err = repo.FindByID(ctx, url.ID)
		assert.ErrorIs(t, err, ErrURLNotFound)

		_, err = repo.DeleteByID(ctx, url.ID)
		assert.ErrorIs(t, err, ErrURLNotFound)

		require.NoError(t, repo.Insert(ctx, &model.URL{OriginalURL: "https://again.com", ShortCode: "gone"}))
	})
}
