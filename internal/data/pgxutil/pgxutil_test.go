package pgxutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/opsdesk-go/internal/testutil"
)

func TestWithPgxConn(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		var got int
		err := WithPgxConn(context.Background(), db, func(conn *pgx.Conn) error {
			return conn.QueryRow(context.Background(), "SELECT 41 + 1").Scan(&got)
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	})
}

func TestWithPgxConn_ClosedPool(t *testing.T) {
	db, err := sql.Open("pgx", "postgres://opsdesk@127.0.0.1:1/opsdesk")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	called := false
	err = WithPgxConn(context.Background(), db, func(*pgx.Conn) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
