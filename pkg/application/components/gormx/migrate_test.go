package gormx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSplitStatements(t *testing.T) {
	script := `
-- create table
CREATE TABLE a (id INT);

  -- second
INSERT INTO a VALUES (1);
;
`
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "INSERT INTO a VALUES (1)"}, SplitStatements(script))
}

func TestRunMigrations_AppliesOnce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0002_seed.sql"), []byte("INSERT INTO things (id) VALUES (7);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_init.sql"), []byte("CREATE TABLE things (id INTEGER PRIMARY KEY);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: NewLogger("test", "silent", 0)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	ran, err := RunMigrations(context.Background(), db, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_seed.sql"}, ran)

	ran, err = RunMigrations(context.Background(), db, dir)
	require.NoError(t, err)
	assert.Empty(t, ran)

	var n int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM things").Scan(&n).Error)
	assert.EqualValues(t, 1, n)
}
