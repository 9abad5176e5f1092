package sqlite

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"m/000001_items.up.sql":   {Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
		"m/000001_items.down.sql": {Data: []byte("DROP TABLE items;")},
		"m/000002_idx.up.sql":     {Data: []byte("CREATE INDEX ix_items_name ON items(name);")},
		"m/000002_idx.down.sql":   {Data: []byte("DROP INDEX ix_items_name;")},
	}
}

func TestApplyMigrationsFS(t *testing.T) {
	tdb := NewTestDBInMemory(t)

	info, err := ApplyMigrationsFS(tdb.DB, testMigrations(), "m")
	require.NoError(t, err)
	assert.True(t, info.Applied)
	assert.Equal(t, uint(2), info.Version)
	assert.False(t, info.Dirty)
	assert.True(t, tdb.TableExists(t, "items"))

	// Повторный вызов не должен падать
	info, err = ApplyMigrationsFS(tdb.DB, testMigrations(), "m")
	require.NoError(t, err)
	assert.False(t, info.Applied)
	assert.Equal(t, uint(2), info.Version)

	// Общее соединение должно остаться открытым
	require.NoError(t, tdb.DB.Ping())
}

func TestResetMigrationsFS(t *testing.T) {
	tdb := NewTestDBInMemory(t)
	tdb.Migrate(t, testMigrations(), "m")

	require.NoError(t, ResetMigrationsFS(tdb.DB, testMigrations(), "m"))
	assert.False(t, tdb.TableExists(t, "items"))
}

func TestApplyMigrationsFS_MissingDir(t *testing.T) {
	tdb := NewTestDBInMemory(t)

	_, err := ApplyMigrationsFS(tdb.DB, testMigrations(), "absent")
	require.Error(t, err)
}
