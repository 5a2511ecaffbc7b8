package rackdb

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFacade_WrapAndQuery tests the exported surface end to end around a
// wrapped handle.
func TestFacade_WrapAndQuery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn := WrapConn(db,
		WithLogger(NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, nil)))),
		WithAuditor(NewAuditor(slog.New(slog.NewTextHandler(os.Stderr, nil)), AuditNone)),
	)

	mock.ExpectQuery("SELECT users.* FROM users WHERE status = '1' LIMIT 5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "alice"))

	rows, err := conn.Table("users").Where("status", 1).Limit(5).All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].String("name"))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestFacade_CompileOnly tests statement capture through the facade types.
func TestFacade_CompileOnly(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := WrapConn(db).Table("jobs").
		Where("state", "queued").
		UpdateLock(LockSkipLocked).
		ToSQL()
	_, err = b.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT jobs.* FROM jobs WHERE state = 'queued' FOR UPDATE SKIP LOCKED",
		b.SQL())
}

// TestFacade_QuoteAndEscape tests the re-exported literal helpers.
func TestFacade_QuoteAndEscape(t *testing.T) {
	assert.Equal(t, "'O\\'Brien'", Quote("O'Brien"))
	assert.Equal(t, "NULL", Quote(nil))
	assert.Equal(t, `a\'b`, Escape("a'b"))
}

// TestFacade_Sentinels tests that the re-exported sentinels keep identity
// with the ones the execution layer returns.
func TestFacade_Sentinels(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn := WrapConn(db)
	mock.ExpectQuery("SELECT users.* FROM users WHERE id = '0' LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = conn.Table("users").Where("id", 0).First(context.Background())
	assert.ErrorIs(t, err, ErrNoRows)
	assert.ErrorIs(t, conn.Commit(context.Background()), ErrTxDone)
}

// TestFacade_DetectOperation tests the re-exported classifier.
func TestFacade_DetectOperation(t *testing.T) {
	assert.Equal(t, "SELECT", DetectOperation("SELECT 1"))
	assert.Equal(t, "UPDATE", DetectOperation("update t set a = 1"))
}
