package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/absmach/fedcycle/pkg/storage/sqlite"
	"github.com/absmach/fedcycle/pkg/storage/storagetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *sqlite.Database

func TestMain(m *testing.M) {
	tmpDir := os.TempDir()
	dbPath := filepath.Join(tmpDir, "test_"+uuid.NewString()+".db")

	var err error
	testDB, err = sqlite.NewDatabase(dbPath)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	os.Remove(dbPath)

	os.Exit(code)
}

func TestRepositories(t *testing.T) {
	storagetest.Run(t, storage.FromSQL(sqlite.NewRepositories(testDB), testDB))
}

func TestMigrateIsIdempotent(t *testing.T) {
	require.NoError(t, testDB.Migrate())
	require.NoError(t, testDB.Migrate())
}

func TestIsUniqueViolation(t *testing.T) {
	_, err := testDB.Exec(`CREATE TABLE IF NOT EXISTS uniq (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	_, err = testDB.Exec(`INSERT INTO uniq (id) VALUES ('a')`)
	require.NoError(t, err)

	_, err = testDB.Exec(`INSERT INTO uniq (id) VALUES ('a')`)
	assert.True(t, sqlite.IsUniqueViolation(err))
	assert.False(t, sqlite.IsBusy(err))
	assert.False(t, sqlite.IsUniqueViolation(nil))
}
