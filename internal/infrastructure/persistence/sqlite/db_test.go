package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = sqlDB.Exec("CREATE TABLE items (name TEXT NOT NULL)")
	require.NoError(t, err)
	return NewDB(sqlDB, nil)
}

func countItems(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
	return n
}

func TestWithTransaction_Commits(t *testing.T) {
	db := openTestDB(t)

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, TxFromContext(ctx))
		_, err := ExecutorFor(ctx, db.DB).ExecContext(ctx, "INSERT INTO items (name) VALUES ('a')")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, db))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	boom := errors.New("boom")

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := ExecutorFor(ctx, db.DB).ExecContext(ctx, "INSERT INTO items (name) VALUES ('a')"); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, db))
}

func TestWithTransaction_NestedJoinsOuter(t *testing.T) {
	db := openTestDB(t)

	err := db.WithTransaction(context.Background(), func(outer context.Context) error {
		return db.WithTransaction(outer, func(inner context.Context) error {
			assert.Same(t, TxFromContext(outer), TxFromContext(inner))
			return nil
		})
	})

	assert.NoError(t, err)
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)

	assert.Panics(t, func() {
		_ = db.WithTransaction(context.Background(), func(ctx context.Context) error {
			_, _ = ExecutorFor(ctx, db.DB).ExecContext(ctx, "INSERT INTO items (name) VALUES ('a')")
			panic("unexpected")
		})
	})
	assert.Equal(t, 0, countItems(t, db))
}

func TestExecutorFor_WithoutTransaction(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, Executor(db.DB), ExecutorFor(context.Background(), db.DB))
}
