package cache

import (
	"database/sql"
	"strconv"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prepStmts prepares n distinct statements against a mock handle so the
// cache has real *sql.Stmt values to close on eviction.
func prepStmts(t *testing.T, n int) ([]string, []*sql.Stmt) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	keys := make([]string, n)
	stmts := make([]*sql.Stmt, n)
	for i := 0; i < n; i++ {
		keys[i] = "SELECT " + strconv.Itoa(i)
		mock.ExpectPrepare(keys[i])
		stmt, err := db.Prepare(keys[i])
		require.NoError(t, err)
		stmts[i] = stmt
	}
	return keys, stmts
}

// TestStmtCache_GetSet tests basic storage and hit/miss accounting.
func TestStmtCache_GetSet(t *testing.T) {
	keys, stmts := prepStmts(t, 2)
	sc := NewStmtCache()

	_, ok := sc.Get(keys[0])
	assert.False(t, ok)

	sc.Set(keys[0], stmts[0])
	sc.Set(keys[1], stmts[1])
	assert.Equal(t, 2, sc.Len())

	got, ok := sc.Get(keys[0])
	require.True(t, ok)
	assert.Same(t, stmts[0], got)

	hits, misses, evictions := sc.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
	assert.EqualValues(t, 0, evictions)
}

// TestStmtCache_LRUEviction tests that the least recently used statement
// is evicted at capacity.
func TestStmtCache_LRUEviction(t *testing.T) {
	keys, stmts := prepStmts(t, 3)
	sc := NewStmtCacheWithCapacity(2)

	sc.Set(keys[0], stmts[0])
	sc.Set(keys[1], stmts[1])

	// Touch the first entry so the second becomes the eviction candidate.
	_, ok := sc.Get(keys[0])
	require.True(t, ok)

	sc.Set(keys[2], stmts[2])
	assert.Equal(t, 2, sc.Len())

	_, ok = sc.Get(keys[1])
	assert.False(t, ok, "the least recently used entry is gone")
	_, ok = sc.Get(keys[0])
	assert.True(t, ok)
	_, ok = sc.Get(keys[2])
	assert.True(t, ok)

	_, _, evictions := sc.Stats()
	assert.EqualValues(t, 1, evictions)
}

// TestStmtCache_Clear tests wholesale removal.
func TestStmtCache_Clear(t *testing.T) {
	keys, stmts := prepStmts(t, 2)
	sc := NewStmtCache()
	sc.Set(keys[0], stmts[0])
	sc.Set(keys[1], stmts[1])

	sc.Clear()
	assert.Equal(t, 0, sc.Len())
	_, ok := sc.Get(keys[0])
	assert.False(t, ok)
}

// TestStmtCache_CapacityFallback tests that a non-positive capacity falls
// back to the default.
func TestStmtCache_CapacityFallback(t *testing.T) {
	sc := NewStmtCacheWithCapacity(0)
	assert.NotNil(t, sc)
	assert.Equal(t, 0, sc.Len())
}
