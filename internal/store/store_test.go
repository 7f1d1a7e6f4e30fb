package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "devtree.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	_, err = os.Stat(path)
	assert.NoError(t, err)

	for _, table := range []string{"block_rules", "events"} {
		var name string
		err := db.QueryRowContext(context.Background(),
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

// TestOpen_Reopen verifies that the schema can be applied to an existing
// database.
func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devtree.db")
	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO block_rules (vid, pid, serial) VALUES ('1', '2', '3')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM block_rules").Scan(&n))
	assert.Equal(t, 1, n)
}
