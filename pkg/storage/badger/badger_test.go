package badger_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/absmach/fedcycle/pkg/storage/badger"
	"github.com/absmach/fedcycle/pkg/storage/storagetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *badger.Database

func TestMain(m *testing.M) {
	tmpDir := os.TempDir()
	dbPath := filepath.Join(tmpDir, "badger_test_"+uuid.NewString())

	var err error
	testDB, err = badger.NewDatabase(dbPath)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	os.RemoveAll(dbPath)

	os.Exit(code)
}

func TestRepositories(t *testing.T) {
	storagetest.Run(t, storage.FromBadger(badger.NewRepositories(testDB), nil))
}

func TestConsumeConcurrently(t *testing.T) {
	repos := badger.NewRepositories(testDB)
	ctx := context.Background()

	c := storagetest.Cycle(uuid.NewString(), 1)
	require.NoError(t, repos.Cycles.Create(ctx, c))

	key := uuid.NewString()
	require.NoError(t, repos.WorkerCycles.Create(ctx, storagetest.Binding(c.ID, key)))

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.WorkerCycles.Consume(ctx, key, []byte("diff"), time.Now())
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()

				return
			}
			assert.ErrorIs(t, err, pkgerrors.ErrKeyConsumed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
