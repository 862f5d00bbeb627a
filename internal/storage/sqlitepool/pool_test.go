package sqlitepool

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func pragmaText(t *testing.T, conn *sqlite.Conn, pragma string) string {
	t.Helper()
	var out string
	err := sqlitex.Execute(conn, "PRAGMA "+pragma, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = stmt.ColumnText(0)
			return nil
		},
	})
	require.NoError(t, err)
	return out
}

func TestOpenFile(t *testing.T) {
	var prepared int
	pool, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		PoolSize: 2,
		OnConnect: func(conn *sqlite.Conn) error {
			prepared++
			return sqlitex.ExecuteScript(conn, `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`, nil)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	assert.Equal(t, 2, pool.Size())

	conn, err := pool.Take(context.Background())
	require.NoError(t, err)
	defer pool.Put(conn)

	assert.Equal(t, "wal", pragmaText(t, conn, "journal_mode"))
	assert.Equal(t, "5000", pragmaText(t, conn, "busy_timeout"))
	assert.Equal(t, 1, prepared)

	require.NoError(t, sqlitex.Execute(conn, `INSERT INTO kv (k, v) VALUES (?, ?)`, &sqlitex.ExecOptions{
		Args: []any{"a", "1"},
	}))
}

func TestMemoryPoolHasOneConnection(t *testing.T) {
	pool, err := Open(Config{Path: MemoryPath, PoolSize: 8})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	assert.Equal(t, 1, pool.Size())
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestTakeHonoursContext(t *testing.T) {
	pool, err := Open(Config{Path: MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	conn, err := pool.Take(context.Background())
	require.NoError(t, err)
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Take(ctx)
	assert.Error(t, err)
}
