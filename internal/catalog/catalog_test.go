package catalog

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := openReadWrite(filepath.Join(dir, "up2k.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`select w, mt, sz, rd, fn, ip, at from up limit 0`)
	require.NoError(t, err)

	_, err = db.Exec(`select w, k, v from mt limit 0`)
	require.NoError(t, err)
}

func TestSeedAndReadBack(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Seed(db, []Row{
		{Wark: "wA", MTime: 100, Size: 10, RelDir: "dir1", Name: "a.txt", Tags: map[string]string{"tags": "x,y"}},
		{Wark: "wB", MTime: 200, Size: 20, RelDir: "", Name: "b.bin"},
	}))

	var n int
	require.NoError(t, db.QueryRow(`select count(*) from up`).Scan(&n))
	require.Equal(t, 2, n)

	var v string
	require.NoError(t, db.QueryRow(`select v from mt where w = ? and k = ?`, "wA", "tags").Scan(&v))
	require.Equal(t, "x,y", v)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	require.False(t, Exists(dir))

	db, err := openReadWrite(DBPath(dir))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(db))

	require.True(t, Exists(dir))
}
