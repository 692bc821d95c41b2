package db

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestMigrationVersion(t *testing.T) {
	v, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestMigrate_UpDownUp(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer db.Close()

	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.MigrateUp(), "second up is a no-op")
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	require.NoError(t, db.MigrateDown())
	_, err = db.RecentUploads(1)
	assert.Error(t, err, "uploads table dropped")

	require.NoError(t, db.MigrateUp())
	_, err = db.RecentUploads(1)
	assert.NoError(t, err)
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"status"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 0")
	assert.Contains(t, out.String(), "1 migration(s) pending")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, &out))
	assert.Contains(t, out.String(), "All migrations applied")
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"force", "1"}, path, &out))
	assert.Contains(t, out.String(), "Dirty: false")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"down"}, path, &out))
	assert.Contains(t, out.String(), "Rolled back one migration")
}

func TestRunMigrateCommand_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	var out bytes.Buffer

	assert.Error(t, RunMigrateCommand(nil, path, &out))
	assert.Contains(t, out.String(), "Usage:")
	assert.Error(t, RunMigrateCommand([]string{"sideways"}, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"force"}, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"force", "x"}, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"up"}, "", &out))
	assert.NoError(t, RunMigrateCommand([]string{"help"}, "", &out))
}
