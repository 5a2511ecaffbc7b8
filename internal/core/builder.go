package core

import (
	"fmt"
	"strings"

	"github.com/glivers/rackdb/internal/security"
)

// Assoc is a single row payload: column name to value.
type Assoc map[string]interface{}

// BulkRow is one row of a bulk update, keyed by the value of the key column.
type BulkRow struct {
	Key    interface{}
	Fields Assoc
}

// Change is one row of a bulk increment or decrement. Amounts that are zero
// or negative are skipped.
type Change struct {
	Key    interface{}
	Fields map[string]int64
}

// Builder accumulates clause state through chained calls and compiles it in
// a terminal method. Validation errors are raised at the offending call and
// latched; the first one surfaces from whichever terminal method runs.
//
// A Builder is single-use per terminal call and is not safe for concurrent
// mutation. Clone before reusing accumulated state across diverging queries.
type Builder struct {
	conn     *Conn
	state    *clauseState
	err      error
	compiled string // last compiled statement, also the compile-only result
}

// Table returns a builder bound to the given table.
func (c *Conn) Table(name string) *Builder {
	b := &Builder{conn: c, state: newClauseState(name)}
	if !security.ValidIdentifier(name) {
		b.fail("Table", "invalid table name "+fmt.Sprintf("%q", name))
	}
	return b
}

// fail latches the first builder-time validation error.
func (b *Builder) fail(op, detail string) *Builder {
	if b.err == nil {
		b.err = &ConfigError{Op: op, Detail: detail}
	}
	return b
}

// Err returns the latched builder-time validation error, if any.
func (b *Builder) Err() error {
	return b.err
}

// SQL returns the most recently compiled statement text. In compile-only
// mode this is what the skipped execution would have run.
func (b *Builder) SQL() string {
	return b.compiled
}

// Clone returns a deep copy of the builder. The connection is shared; all
// accumulated clause state is copied.
func (b *Builder) Clone() *Builder {
	return &Builder{conn: b.conn, state: b.state.clone(), err: b.err}
}

// Select replaces the main table's column list. Each entry is a plain
// column, an expression such as COUNT(1), or a "column AS alias" pair.
func (b *Builder) Select(cols ...string) *Builder {
	if len(cols) == 0 {
		return b.fail("Select", "no columns given")
	}
	b.state.columns[b.state.table] = parseColumns(cols)
	return b
}

// parseColumns splits "name AS alias" specs; anything else passes through.
func parseColumns(cols []string) []columnSpec {
	specs := make([]columnSpec, 0, len(cols))
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if i := indexFold(c, " as "); i >= 0 && !strings.Contains(c, "(") {
			specs = append(specs, columnSpec{
				expr:  strings.TrimSpace(c[:i]),
				alias: strings.TrimSpace(c[i+4:]),
			})
			continue
		}
		specs = append(specs, columnSpec{expr: c})
	}
	return specs
}

// indexFold is a case-insensitive strings.Index.
func indexFold(s, sub string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(sub))
}

// bind substitutes each ? in expr with the quoted corresponding value.
// When expr carries no placeholder and exactly one value is given, " = ?"
// is appended first (the where-shorthand). A count mismatch is a
// validation error.
func (b *Builder) bind(op, expr string, vals []interface{}) (string, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		b.fail(op, "empty condition")
		return "", false
	}
	n := strings.Count(expr, "?")
	if n == 0 && len(vals) == 1 {
		expr += " = ?"
		n = 1
	}
	if n != len(vals) {
		b.fail(op, fmt.Sprintf("%d placeholders but %d values", n, len(vals)))
		return "", false
	}

	var out strings.Builder
	vi := 0
	for i := 0; i < len(expr); i++ {
		if expr[i] == '?' {
			out.WriteString(Quote(vals[vi]))
			vi++
			continue
		}
		out.WriteByte(expr[i])
	}
	return out.String(), true
}

func (b *Builder) addPredicate(text, combinator string) *Builder {
	b.state.predicates = append(b.state.predicates, predicate{text: text, combinator: combinator})
	return b
}

// Where adds an AND-combined predicate. The shorthand Where("status", 1)
// compiles to status = '1'; explicit placeholders bind in order:
// Where("age > ? AND age < ?", 18, 65).
func (b *Builder) Where(expr string, vals ...interface{}) *Builder {
	text, ok := b.bind("Where", expr, vals)
	if !ok {
		return b
	}
	return b.addPredicate(text, combAnd)
}

// OrWhere adds an OR-combined predicate; otherwise identical to Where.
func (b *Builder) OrWhere(expr string, vals ...interface{}) *Builder {
	text, ok := b.bind("OrWhere", expr, vals)
	if !ok {
		return b
	}
	return b.addPredicate(text, combOr)
}

// WhereIn adds column IN (values).
func (b *Builder) WhereIn(column string, vals ...interface{}) *Builder {
	return b.whereIn("WhereIn", column, "IN", vals)
}

// WhereNotIn adds column NOT IN (values).
func (b *Builder) WhereNotIn(column string, vals ...interface{}) *Builder {
	return b.whereIn("WhereNotIn", column, "NOT IN", vals)
}

func (b *Builder) whereIn(op, column, keyword string, vals []interface{}) *Builder {
	if len(vals) == 0 {
		return b.fail(op, "empty value list")
	}
	return b.addPredicate(column+" "+keyword+" "+Quote(vals), combAnd)
}

// WhereBetween adds column BETWEEN lo AND hi.
func (b *Builder) WhereBetween(column string, lo, hi interface{}) *Builder {
	return b.addPredicate(column+" BETWEEN "+Quote(lo)+" AND "+Quote(hi), combAnd)
}

// WhereLike adds column LIKE pattern.
func (b *Builder) WhereLike(column, pattern string) *Builder {
	return b.addPredicate(column+" LIKE "+Quote(pattern), combAnd)
}

// WhereNotLike adds column NOT LIKE pattern.
func (b *Builder) WhereNotLike(column, pattern string) *Builder {
	return b.addPredicate(column+" NOT LIKE "+Quote(pattern), combAnd)
}

// WhereNull adds column IS NULL.
func (b *Builder) WhereNull(column string) *Builder {
	return b.addPredicate(column+" IS NULL", combAnd)
}

// WhereNotNull adds column IS NOT NULL.
func (b *Builder) WhereNotNull(column string) *Builder {
	return b.addPredicate(column+" IS NOT NULL", combAnd)
}

// WhereColumn compares two columns for equality without quoting either side.
func (b *Builder) WhereColumn(first, second string) *Builder {
	if !security.ValidIdentifier(first) || !security.ValidIdentifier(second) {
		return b.fail("WhereColumn", "invalid column name")
	}
	return b.addPredicate(first+" = "+second, combAnd)
}

// WhereDate matches on the DATE() of a datetime column.
func (b *Builder) WhereDate(column string, value interface{}) *Builder {
	return b.addPredicate("DATE("+column+") = "+Quote(value), combAnd)
}

// WhereMonth matches on the MONTH() of a datetime column.
func (b *Builder) WhereMonth(column string, value interface{}) *Builder {
	return b.addPredicate("MONTH("+column+") = "+Quote(value), combAnd)
}

// WhereYear matches on the YEAR() of a datetime column.
func (b *Builder) WhereYear(column string, value interface{}) *Builder {
	return b.addPredicate("YEAR("+column+") = "+Quote(value), combAnd)
}

// WhereFulltext adds a MATCH (columns) AGAINST (term) predicate in the
// given search mode.
func (b *Builder) WhereFulltext(columns []string, term string, mode FulltextMode) *Builder {
	if len(columns) == 0 {
		return b.fail("WhereFulltext", "no columns given")
	}
	var suffix string
	switch mode {
	case FulltextNatural:
		suffix = " IN NATURAL LANGUAGE MODE"
	case FulltextBoolean:
		suffix = " IN BOOLEAN MODE"
	case FulltextExpansion:
		suffix = " WITH QUERY EXPANSION"
	default:
		return b.fail("WhereFulltext", "unknown mode "+string(mode))
	}
	return b.addPredicate(
		"MATCH ("+strings.Join(columns, ", ")+") AGAINST ("+Quote(term)+suffix+")",
		combAnd,
	)
}

// LeftJoin adds a LEFT JOIN and optionally the joined table's column list.
// Join declaration order is emission order; mixed LEFT and INNER joins in
// one statement are supported.
func (b *Builder) LeftJoin(table, condition string, cols ...string) *Builder {
	return b.join("LeftJoin", joinLeft, table, condition, cols)
}

// InnerJoin adds an INNER JOIN; otherwise identical to LeftJoin.
func (b *Builder) InnerJoin(table, condition string, cols ...string) *Builder {
	return b.join("InnerJoin", joinInner, table, condition, cols)
}

func (b *Builder) join(op, kind, table, condition string, cols []string) *Builder {
	if !security.ValidIdentifier(table) {
		return b.fail(op, "invalid table name "+fmt.Sprintf("%q", table))
	}
	if strings.TrimSpace(condition) == "" {
		return b.fail(op, "empty join condition")
	}
	b.state.joins = append(b.state.joins, joinClause{table: table, condition: condition, kind: kind})
	var specs []columnSpec
	if len(cols) > 0 {
		specs = parseColumns(cols)
	}
	b.state.addTable(table, specs)
	return b
}

// GroupBy adds grouping columns in call order.
func (b *Builder) GroupBy(cols ...string) *Builder {
	if len(cols) == 0 {
		return b.fail("GroupBy", "no columns given")
	}
	b.state.groupCols = append(b.state.groupCols, cols...)
	return b
}

// Having adds a post-grouping predicate. Having predicates are AND-joined
// only; the Where-style shorthand and placeholder binding apply.
func (b *Builder) Having(expr string, vals ...interface{}) *Builder {
	text, ok := b.bind("Having", expr, vals)
	if !ok {
		return b
	}
	b.state.having = append(b.state.having, text)
	return b
}

// Order adds an ORDER BY entry. Direction must be ASC or DESC. Re-adding a
// column overwrites its direction but keeps its original position.
func (b *Builder) Order(column, direction string) *Builder {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir != "ASC" && dir != "DESC" {
		return b.fail("Order", "direction must be ASC or DESC, got "+fmt.Sprintf("%q", direction))
	}
	b.state.addOrder(column, dir)
	return b
}

// Limit caps the result set at n rows. An optional page number derives the
// offset as (page-1)*n; page 1 is the unoffset first page.
func (b *Builder) Limit(n int, page ...int) *Builder {
	if n <= 0 {
		return b.fail("Limit", "limit must be positive")
	}
	b.state.limit = n
	b.state.hasLimit = true
	if len(page) > 0 {
		if page[0] < 1 {
			return b.fail("Limit", "page must be >= 1")
		}
		b.state.offset = (page[0] - 1) * n
		b.state.hasOffset = true
	}
	return b
}

// Unique marks the select DISTINCT.
func (b *Builder) Unique() *Builder {
	b.state.distinct = true
	return b
}

// UpdateLock appends FOR UPDATE with the given wait mode.
func (b *Builder) UpdateLock(mode LockWait) *Builder {
	return b.setLock("UpdateLock", lockUpdate, mode)
}

// ShareLock appends FOR SHARE with the given wait mode.
func (b *Builder) ShareLock(mode LockWait) *Builder {
	return b.setLock("ShareLock", lockShare, mode)
}

func (b *Builder) setLock(op string, m lockMode, wait LockWait) *Builder {
	switch wait {
	case LockWaitDefault, LockNowait, LockSkipLocked:
	default:
		return b.fail(op, "unknown lock wait mode "+string(wait))
	}
	b.state.lock = m
	b.state.lockWait = wait
	return b
}

// ToSQL switches the builder to compile-only mode: every terminal method
// compiles its statement, performs no I/O, and the text is available from
// SQL().
func (b *Builder) ToSQL() *Builder {
	b.state.compileOnly = true
	return b
}

// NoBuffer switches reads to streaming mode: rows are fetched from the
// server one at a time instead of materialized up front. Rows is the
// streaming terminal; All in streaming mode drains through the same cursor.
func (b *Builder) NoBuffer() *Builder {
	b.state.streaming = true
	return b
}

// Timestamps enables automatic created_at/modified_at population on writes.
func (b *Builder) Timestamps() *Builder {
	b.state.timestamps = true
	return b
}
