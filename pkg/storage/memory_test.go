package storage_test

import (
	"context"
	"math"
	"sync"
	"testing"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/absmach/fedcycle/pkg/storage/storagetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMemoryRepositories(t *testing.T) {
	storagetest.Run(t, storage.NewMemoryRepositories())
}

func TestMemoryCheckpointsConcurrentSave(t *testing.T) {
	repos := storage.NewMemoryRepositories()
	modelID := uuid.NewString()

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.Checkpoints.Save(context.Background(), modelID, []byte("p"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, total, err := repos.Checkpoints.List(context.Background(), modelID, 0, n)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), total)

	latest := 0
	for i, cp := range all {
		assert.Equal(t, uint64(i+1), cp.Number)
		if cp.Latest {
			latest++
		}
	}
	assert.Equal(t, 1, latest)
}

func TestMemoryConsumeOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		repos := storage.NewMemoryRepositories()
		ctx := context.Background()
		c := storagetest.Cycle(uuid.NewString(), 1)
		require.NoError(rt, repos.Cycles.Create(ctx, c))

		keys := rapid.IntRange(1, 5).Draw(rt, "keys")
		attempts := rapid.IntRange(1, 8).Draw(rt, "attempts")

		bound := make([]string, keys)
		for i := range bound {
			bound[i] = uuid.NewString()
			require.NoError(rt, repos.WorkerCycles.Create(ctx, storagetest.Binding(c.ID, bound[i])))
		}

		var (
			mu        sync.Mutex
			successes = make(map[string]int)
			wg        sync.WaitGroup
		)
		for _, key := range bound {
			for range attempts {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := repos.WorkerCycles.Consume(ctx, key, []byte("d"), c.Start); err == nil {
						mu.Lock()
						successes[key]++
						mu.Unlock()
					}
				}()
			}
		}
		wg.Wait()

		for _, key := range bound {
			if successes[key] != 1 {
				rt.Fatalf("key %s consumed %d times", key, successes[key])
			}
		}
	})
}

func TestInMemoryStorageOrder(t *testing.T) {
	ctx := context.Background()
	s := storage.NewInMemoryStorage()

	for _, k := range []string{"c", "a", "d", "b"} {
		require.NoError(t, s.Create(ctx, k, k+"-value"))
	}
	assert.ErrorIs(t, s.Create(ctx, "a", "again"), pkgerrors.ErrEntityExists)
	assert.ErrorIs(t, s.Create(ctx, "", "x"), pkgerrors.ErrEmptyKey)
	assert.ErrorIs(t, s.Update(ctx, "z", "x"), pkgerrors.ErrNotFound)

	cases := []struct {
		desc   string
		offset uint64
		limit  uint64
		want   []any
	}{
		{desc: "all in key order", offset: 0, limit: 10, want: []any{"a-value", "b-value", "c-value", "d-value"}},
		{desc: "middle page", offset: 1, limit: 2, want: []any{"b-value", "c-value"}},
		{desc: "offset past the end", offset: 4, limit: 2, want: nil},
		{desc: "zero limit", offset: 0, limit: 0, want: []any{}},
		{desc: "limit overflowing offset", offset: 2, limit: math.MaxUint64, want: []any{"c-value", "d-value"}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			page, total, err := s.List(ctx, tc.offset, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, uint64(4), total)
			assert.Equal(t, tc.want, page)
		})
	}

	require.NoError(t, s.Delete(ctx, "b"))
	require.NoError(t, s.Delete(ctx, "b"))
	_, err := s.Get(ctx, "b")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	page, total, err := s.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)
	assert.Equal(t, []any{"a-value", "c-value", "d-value"}, page)
}
