package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compileConn returns a connection that is never dialed. All builder tests
// run in compile-only mode, so no statement ever reaches a server.
func compileConn() *Conn {
	return &Conn{}
}

// toSQL compiles the builder's SELECT without executing it.
func toSQL(t *testing.T, b *Builder) string {
	t.Helper()
	_, err := b.ToSQL().All(context.Background())
	require.NoError(t, err)
	return b.SQL()
}

// TestBuilder_SelectDefaults tests the seeded star select.
func TestBuilder_SelectDefaults(t *testing.T) {
	b := compileConn().Table("users")
	assert.Equal(t, "SELECT users.* FROM users", toSQL(t, b))
}

// TestBuilder_SelectColumns tests plain columns, aliases and expressions.
func TestBuilder_SelectColumns(t *testing.T) {
	b := compileConn().Table("users").Select("id", "name AS n", "COUNT(1) AS total")
	assert.Equal(t, "SELECT users.id, users.name AS n, COUNT(1) AS total FROM users", toSQL(t, b))
}

// TestBuilder_WhereShorthand tests the column-equals shorthand and
// placeholder binding.
func TestBuilder_WhereShorthand(t *testing.T) {
	b := compileConn().Table("users").Where("status", 1)
	assert.Equal(t, "SELECT users.* FROM users WHERE status = '1'", toSQL(t, b))

	b = compileConn().Table("users").Where("age > ? AND age < ?", 18, 65)
	assert.Equal(t, "SELECT users.* FROM users WHERE age > '18' AND age < '65'", toSQL(t, b))
}

// TestBuilder_MixedCombinators tests that predicates keep build order, with
// each one carrying its own combinator.
func TestBuilder_MixedCombinators(t *testing.T) {
	b := compileConn().Table("users").
		Where("a", 1).
		OrWhere("b", 2).
		Where("c", 3)
	assert.Equal(t,
		"SELECT users.* FROM users WHERE a = '1' OR b = '2' AND c = '3'",
		toSQL(t, b))
}

// TestBuilder_WhereVariants tests the specialized predicate helpers.
func TestBuilder_WhereVariants(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Builder
		want  string
	}{
		{
			"in",
			func() *Builder { return compileConn().Table("users").WhereIn("id", 1, 2, 3) },
			"SELECT users.* FROM users WHERE id IN ('1', '2', '3')",
		},
		{
			"not in",
			func() *Builder { return compileConn().Table("users").WhereNotIn("role", "bot") },
			"SELECT users.* FROM users WHERE role NOT IN ('bot')",
		},
		{
			"between",
			func() *Builder { return compileConn().Table("orders").WhereBetween("total", 10, 100) },
			"SELECT orders.* FROM orders WHERE total BETWEEN '10' AND '100'",
		},
		{
			"like",
			func() *Builder { return compileConn().Table("users").WhereLike("name", "al%") },
			"SELECT users.* FROM users WHERE name LIKE 'al%'",
		},
		{
			"not like",
			func() *Builder { return compileConn().Table("users").WhereNotLike("email", "%@spam.%") },
			"SELECT users.* FROM users WHERE email NOT LIKE '%@spam.%'",
		},
		{
			"null",
			func() *Builder { return compileConn().Table("users").WhereNull("deleted_at") },
			"SELECT users.* FROM users WHERE deleted_at IS NULL",
		},
		{
			"not null",
			func() *Builder { return compileConn().Table("users").WhereNotNull("email") },
			"SELECT users.* FROM users WHERE email IS NOT NULL",
		},
		{
			"column comparison",
			func() *Builder { return compileConn().Table("orders").WhereColumn("created_at", "updated_at") },
			"SELECT orders.* FROM orders WHERE created_at = updated_at",
		},
		{
			"date",
			func() *Builder { return compileConn().Table("logs").WhereDate("created_at", "2024-03-15") },
			"SELECT logs.* FROM logs WHERE DATE(created_at) = '2024-03-15'",
		},
		{
			"month",
			func() *Builder { return compileConn().Table("logs").WhereMonth("created_at", 3) },
			"SELECT logs.* FROM logs WHERE MONTH(created_at) = '3'",
		},
		{
			"year",
			func() *Builder { return compileConn().Table("logs").WhereYear("created_at", 2024) },
			"SELECT logs.* FROM logs WHERE YEAR(created_at) = '2024'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toSQL(t, tt.build()))
		})
	}
}

// TestBuilder_WhereFulltext tests MATCH ... AGAINST in each search mode.
func TestBuilder_WhereFulltext(t *testing.T) {
	b := compileConn().Table("posts").WhereFulltext([]string{"title", "body"}, "golang", FulltextNatural)
	assert.Equal(t,
		"SELECT posts.* FROM posts WHERE MATCH (title, body) AGAINST ('golang' IN NATURAL LANGUAGE MODE)",
		toSQL(t, b))

	b = compileConn().Table("posts").WhereFulltext([]string{"body"}, "+go -java", FulltextBoolean)
	assert.Equal(t,
		"SELECT posts.* FROM posts WHERE MATCH (body) AGAINST ('+go -java' IN BOOLEAN MODE)",
		toSQL(t, b))

	b = compileConn().Table("posts").WhereFulltext([]string{"body"}, "database", FulltextExpansion)
	assert.Equal(t,
		"SELECT posts.* FROM posts WHERE MATCH (body) AGAINST ('database' WITH QUERY EXPANSION)",
		toSQL(t, b))
}

// TestBuilder_Joins tests join emission order and per-table column lists.
func TestBuilder_Joins(t *testing.T) {
	b := compileConn().Table("orders").
		LeftJoin("users", "orders.user_id = users.id", "name").
		InnerJoin("items", "orders.id = items.order_id")
	assert.Equal(t,
		"SELECT orders.*, users.name, items.* FROM orders"+
			" LEFT JOIN users ON orders.user_id = users.id"+
			" INNER JOIN items ON orders.id = items.order_id",
		toSQL(t, b))
}

// TestBuilder_GroupByHaving tests grouping with a bound HAVING predicate.
func TestBuilder_GroupByHaving(t *testing.T) {
	b := compileConn().Table("orders").
		Select("status", "COUNT(1) AS total").
		GroupBy("status").
		Having("COUNT(1) > ?", 5)
	assert.Equal(t,
		"SELECT orders.status, COUNT(1) AS total FROM orders GROUP BY status HAVING COUNT(1) > '5'",
		toSQL(t, b))
}

// TestBuilder_OrderOverwrite tests that re-ordering a column flips its
// direction but keeps its original position.
func TestBuilder_OrderOverwrite(t *testing.T) {
	b := compileConn().Table("users").
		Order("name", "asc").
		Order("id", "DESC").
		Order("name", "desc")
	assert.Equal(t, "SELECT users.* FROM users ORDER BY name DESC, id DESC", toSQL(t, b))
}

// TestBuilder_LimitAndPage tests the page-derived comma offset form.
func TestBuilder_LimitAndPage(t *testing.T) {
	b := compileConn().Table("users").Limit(20)
	assert.Equal(t, "SELECT users.* FROM users LIMIT 20", toSQL(t, b))

	b = compileConn().Table("users").Limit(20, 3)
	assert.Equal(t, "SELECT users.* FROM users LIMIT 40, 20", toSQL(t, b))

	b = compileConn().Table("users").Limit(20, 1)
	assert.Equal(t, "SELECT users.* FROM users LIMIT 20", toSQL(t, b),
		"page 1 carries no offset")
}

// TestBuilder_DistinctAndLocks tests DISTINCT and the row-locking suffixes.
func TestBuilder_DistinctAndLocks(t *testing.T) {
	b := compileConn().Table("users").Select("country").Unique()
	assert.Equal(t, "SELECT DISTINCT users.country FROM users", toSQL(t, b))

	b = compileConn().Table("jobs").Where("state", "queued").UpdateLock(LockSkipLocked)
	assert.Equal(t,
		"SELECT jobs.* FROM jobs WHERE state = 'queued' FOR UPDATE SKIP LOCKED",
		toSQL(t, b))

	b = compileConn().Table("jobs").UpdateLock(LockNowait)
	assert.Equal(t, "SELECT jobs.* FROM jobs FOR UPDATE NOWAIT", toSQL(t, b))

	b = compileConn().Table("accounts").ShareLock(LockWaitDefault)
	assert.Equal(t, "SELECT accounts.* FROM accounts FOR SHARE", toSQL(t, b))
}

// TestBuilder_ClauseOrder tests the full fixed emission order in one statement.
func TestBuilder_ClauseOrder(t *testing.T) {
	b := compileConn().Table("orders").
		Select("status", "COUNT(1) AS total").
		LeftJoin("users", "orders.user_id = users.id", "name").
		Where("orders.total > ?", 100).
		GroupBy("status").
		Having("COUNT(1) > ?", 2).
		Order("total", "DESC").
		Limit(10, 2)
	assert.Equal(t,
		"SELECT orders.status, COUNT(1) AS total, users.name FROM orders"+
			" LEFT JOIN users ON orders.user_id = users.id"+
			" WHERE orders.total > '100'"+
			" GROUP BY status"+
			" HAVING COUNT(1) > '2'"+
			" ORDER BY total DESC"+
			" LIMIT 10, 10",
		toSQL(t, b))
}

// TestBuilder_ValidationErrors tests that the first invalid call latches a
// ConfigError which every terminal method then surfaces.
func TestBuilder_ValidationErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		build func() *Builder
	}{
		{"bad table", func() *Builder { return compileConn().Table("users; DROP TABLE x") }},
		{"placeholder mismatch", func() *Builder { return compileConn().Table("users").Where("a = ?", 1, 2) }},
		{"empty condition", func() *Builder { return compileConn().Table("users").Where("  ") }},
		{"empty in list", func() *Builder { return compileConn().Table("users").WhereIn("id") }},
		{"bad order direction", func() *Builder { return compileConn().Table("users").Order("id", "sideways") }},
		{"zero limit", func() *Builder { return compileConn().Table("users").Limit(0) }},
		{"bad page", func() *Builder { return compileConn().Table("users").Limit(10, 0) }},
		{"bad join table", func() *Builder { return compileConn().Table("a").LeftJoin("b c", "a.id = b.id") }},
		{"empty join condition", func() *Builder { return compileConn().Table("a").InnerJoin("b", " ") }},
		{"bad fulltext mode", func() *Builder {
			return compileConn().Table("posts").WhereFulltext([]string{"body"}, "x", FulltextMode("fuzzy"))
		}},
		{"bad lock wait", func() *Builder { return compileConn().Table("jobs").UpdateLock(LockWait("spin")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.build()
			require.Error(t, b.Err())

			_, err := b.All(ctx)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
		})
	}
}

// TestBuilder_FirstErrorWins tests that only the first validation error is kept.
func TestBuilder_FirstErrorWins(t *testing.T) {
	b := compileConn().Table("users").
		Where("a = ?", 1, 2).
		Limit(0)

	var cfgErr *ConfigError
	require.True(t, errors.As(b.Err(), &cfgErr))
	assert.Equal(t, "Where", cfgErr.Op)
}

// TestBuilder_Clone tests that a clone diverges without mutating the original.
func TestBuilder_Clone(t *testing.T) {
	base := compileConn().Table("users").Where("status", 1)
	clone := base.Clone().Where("role", "admin").Limit(5)

	assert.Equal(t,
		"SELECT users.* FROM users WHERE status = '1' AND role = 'admin' LIMIT 5",
		toSQL(t, clone))
	assert.Equal(t, "SELECT users.* FROM users WHERE status = '1'", toSQL(t, base))
}

// TestBuilder_CompileOnlyWrites tests SQL capture for each write shape.
func TestBuilder_CompileOnlyWrites(t *testing.T) {
	ctx := context.Background()

	t.Run("insert", func(t *testing.T) {
		b := compileConn().Table("users").ToSQL()
		id, err := b.Save(ctx, Assoc{"name": "alice", "email": "a@b.c"})
		require.NoError(t, err)
		assert.Zero(t, id)
		assert.Equal(t, "INSERT INTO users (email, name) VALUES ('a@b.c', 'alice')", b.SQL())
	})

	t.Run("update via predicates", func(t *testing.T) {
		b := compileConn().Table("users").Where("id", 9).ToSQL()
		_, err := b.Save(ctx, Assoc{"name": "bob"})
		require.NoError(t, err)
		assert.Equal(t, "UPDATE users SET name = 'bob' WHERE id = '9'", b.SQL())
	})

	t.Run("bulk insert", func(t *testing.T) {
		b := compileConn().Table("users").ToSQL()
		_, err := b.SaveBulk(ctx, []Assoc{{"name": "a"}, {"name": "b"}})
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO users (name) VALUES ('a'), ('b')", b.SQL())
	})

	t.Run("insert ignore", func(t *testing.T) {
		b := compileConn().Table("users").ToSQL()
		_, err := b.SaveIgnore(ctx, Assoc{"email": "x@y.z"})
		require.NoError(t, err)
		assert.Equal(t, "INSERT IGNORE INTO users (email) VALUES ('x@y.z')", b.SQL())
	})

	t.Run("bulk insert fills missing columns with NULL", func(t *testing.T) {
		b := compileConn().Table("users").ToSQL()
		_, err := b.SaveBulk(ctx, []Assoc{
			{"name": "a", "email": "a@b.c"},
			{"name": "b"},
		})
		require.NoError(t, err)
		assert.Equal(t,
			"INSERT INTO users (email, name) VALUES ('a@b.c', 'a'), (NULL, 'b')",
			b.SQL())
	})

	t.Run("delete with tail", func(t *testing.T) {
		b := compileConn().Table("logs").Where("level", "debug").Order("id", "ASC").Limit(100).ToSQL()
		_, err := b.Delete(ctx)
		require.NoError(t, err)
		assert.Equal(t,
			"DELETE FROM logs WHERE level = 'debug' ORDER BY id ASC LIMIT 100",
			b.SQL())
	})

	t.Run("bulk update as case expressions", func(t *testing.T) {
		b := compileConn().Table("games").ToSQL()
		_, err := b.UpdateBulk(ctx, "id", []BulkRow{
			{Key: 1, Fields: Assoc{"score": 10}},
			{Key: 2, Fields: Assoc{"score": 20}},
		})
		require.NoError(t, err)
		assert.Equal(t,
			"UPDATE games SET score = CASE id WHEN '1' THEN '10' WHEN '2' THEN '20' END"+
				" WHERE id IN ('1', '2')",
			b.SQL())
	})

	t.Run("increment", func(t *testing.T) {
		b := compileConn().Table("counters").ToSQL()
		_, err := b.Increment(ctx, "id", []Change{
			{Key: 1, Fields: map[string]int64{"hits": 2}},
		})
		require.NoError(t, err)
		assert.Equal(t,
			"UPDATE counters SET hits = CASE WHEN id = '1' THEN hits + 2 ELSE hits END"+
				" WHERE id IN ('1')",
			b.SQL())
	})

	t.Run("decrement skips non-positive amounts", func(t *testing.T) {
		b := compileConn().Table("counters").ToSQL()
		n, err := b.Decrement(ctx, "id", []Change{
			{Key: 1, Fields: map[string]int64{"hits": 3, "stale": 0}},
			{Key: 2, Fields: map[string]int64{"hits": -1}},
		})
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t,
			"UPDATE counters SET hits = CASE WHEN id = '1' THEN hits - 3 ELSE hits END"+
				" WHERE id IN ('1')",
			b.SQL())
	})

	t.Run("increment with nothing to do compiles nothing", func(t *testing.T) {
		b := compileConn().Table("counters").ToSQL()
		n, err := b.Increment(ctx, "id", []Change{
			{Key: 1, Fields: map[string]int64{"hits": 0}},
		})
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, b.SQL())
	})
}

// TestBuilder_TimestampsOnWrites tests automatic timestamp columns.
func TestBuilder_TimestampsOnWrites(t *testing.T) {
	ctx := context.Background()

	b := compileConn().Table("users").Timestamps().ToSQL()
	_, err := b.Save(ctx, Assoc{"name": "alice"})
	require.NoError(t, err)
	assert.Contains(t, b.SQL(), "created_at")
	assert.Contains(t, b.SQL(), "modified_at")

	b = compileConn().Table("users").Timestamps().Where("id", 1).ToSQL()
	_, err = b.Save(ctx, Assoc{"name": "bob"})
	require.NoError(t, err)
	assert.NotContains(t, b.SQL(), "created_at", "updates never stamp created_at")
	assert.Contains(t, b.SQL(), "modified_at")

	b = compileConn().Table("users").Timestamps().Where("id", 1).ToSQL()
	_, err = b.Save(ctx, Assoc{"name": "bob", "modified_at": "2020-01-01 00:00:00"})
	require.NoError(t, err)
	assert.Contains(t, b.SQL(), "modified_at = '2020-01-01 00:00:00'",
		"caller-supplied values win")
}

// TestBuilder_AggregateCompileOnly tests the column-list substitution of
// aggregate terminals.
func TestBuilder_AggregateCompileOnly(t *testing.T) {
	ctx := context.Background()

	b := compileConn().Table("users").Where("active", 1).ToSQL()
	_, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(1) FROM users WHERE active = '1'", b.SQL())

	b = compileConn().Table("orders").ToSQL()
	_, err = b.Sum(ctx, "amount")
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(amount) FROM orders", b.SQL())

	b = compileConn().Table("users").ToSQL()
	_, err = b.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT users.* FROM users LIMIT 1", b.SQL())
}
