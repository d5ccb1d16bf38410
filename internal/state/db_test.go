package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t), "")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path, "")
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	assert.Equal(t, DriverModernc, db.Driver())
	assert.FileExists(t, path)
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")

	db, err := Open(filepath.Join(nested, "test.db"), DriverModernc)
	require.NoError(t, err)
	defer db.Close()

	assert.DirExists(t, nested)
}

func TestOpen_InvalidPath(t *testing.T) {
	// Nothing can be created under /proc on Linux
	_, err := Open("/proc/nonexistent/test.db", "")
	assert.Error(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(tempDBPath(t), "postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported journal driver")
}

func TestOpen_CgoDriver(t *testing.T) {
	db, err := Open(tempDBPath(t), DriverMattn)
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED") {
		t.Skip("sqlite3 driver needs cgo")
	}
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())
	require.NoError(t, db.RecordRun(&Run{TaskID: "t1", Status: RunCompleted, Backends: []string{"fast"}}))

	runs, err := db.ListRuns(RunFilter{TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"fast"}, runs[0].Backends)
}

func TestClose(t *testing.T) {
	db, err := Open(tempDBPath(t), "")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Subsequent operations should fail
	_, err = db.Query("SELECT 1")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	db, err := Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())

	for _, table := range []string{"schema_version", "runs"} {
		var count int
		row := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		require.NoError(t, row.Scan(&count))
		assert.Equal(t, 1, count, "table %s", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(tempDBPath(t), "")
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Migrate(), "iteration %d", i)
	}

	var version int
	require.NoError(t, db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, "/custom/data/maestro/journal.db", DefaultPath())

	t.Setenv("XDG_DATA_HOME", "")
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".local", "share", "maestro", "journal.db"), DefaultPath())
}

func TestFormatAndParseTime(t *testing.T) {
	now := time.Now()
	parsed, err := parseTime(formatTime(now))
	require.NoError(t, err)
	assert.True(t, now.Equal(parsed), "got %v, want %v", parsed, now.UTC())
}
