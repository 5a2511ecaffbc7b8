package core

import (
	"sort"
	"strconv"
	"strings"
)

// The compiler is a set of pure functions over clauseState. Values are
// inlined through the quoter, so the compiled text is the exact statement
// the connection executes; compile-only mode returns it unchanged.

// compileSelect assembles the fixed-order SELECT template, omitting empty
// clauses: SELECT [DISTINCT] columns FROM table [JOIN...] [WHERE...]
// [GROUP BY...] [HAVING...] [ORDER BY...] [LIMIT...] [lock].
func compileSelect(s *clauseState) string {
	parts := make([]string, 0, 12)
	parts = append(parts, "SELECT")
	if s.distinct {
		parts = append(parts, "DISTINCT")
	}
	parts = append(parts, renderColumns(s), "FROM", s.table)

	for _, j := range s.joins {
		parts = append(parts, j.kind+" JOIN "+j.table+" ON "+j.condition)
	}
	if w := renderWhere(s.predicates); w != "" {
		parts = append(parts, w)
	}
	if len(s.groupCols) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(s.groupCols, ", "))
	}
	if len(s.having) > 0 {
		parts = append(parts, "HAVING "+strings.Join(s.having, " AND "))
	}
	if o := renderOrder(s.orders); o != "" {
		parts = append(parts, o)
	}
	if s.hasLimit {
		// SELECT supports the comma offset form; a zero offset is elided.
		if s.hasOffset && s.offset > 0 {
			parts = append(parts, "LIMIT "+strconv.Itoa(s.offset)+", "+strconv.Itoa(s.limit))
		} else {
			parts = append(parts, "LIMIT "+strconv.Itoa(s.limit))
		}
	}
	if l := renderLock(s); l != "" {
		parts = append(parts, l)
	}
	return strings.Join(parts, " ")
}

// compileAggregate substitutes the whole column list with a single scalar
// expression (COUNT(1), SUM(col), ...) and compiles the SELECT otherwise
// unchanged.
func compileAggregate(s *clauseState, expr string) string {
	c := s.clone()
	c.tables = []string{s.table}
	c.columns = map[string][]columnSpec{s.table: {{expr: expr}}}
	c.distinct = false
	return compileSelect(c)
}

// renderColumns emits the selected columns table by table in first-reference
// order. Expression columns (anything containing parentheses) are emitted
// verbatim without a table prefix; everything else is table.column with an
// optional alias.
func renderColumns(s *clauseState) string {
	var cols []string
	for _, t := range s.tables {
		for _, c := range s.columns[t] {
			switch {
			case strings.Contains(c.expr, "("):
				cols = append(cols, c.expr)
			case c.expr == "*":
				cols = append(cols, t+".*")
			case c.alias != "":
				cols = append(cols, t+"."+c.expr+" AS "+c.alias)
			default:
				cols = append(cols, t+"."+c.expr)
			}
		}
	}
	return strings.Join(cols, ", ")
}

// renderWhere emits the first predicate bare and each subsequent one
// prefixed by its own stored combinator, preserving build order exactly.
func renderWhere(preds []predicate) string {
	if len(preds) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("WHERE ")
	for i, p := range preds {
		if i > 0 {
			b.WriteString(" " + p.combinator + " ")
		}
		b.WriteString(p.text)
	}
	return b.String()
}

func renderOrder(orders []orderSpec) string {
	if len(orders) == 0 {
		return ""
	}
	parts := make([]string, len(orders))
	for i, o := range orders {
		parts[i] = o.column + " " + o.direction
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

func renderLock(s *clauseState) string {
	var base string
	switch s.lock {
	case lockUpdate:
		base = "FOR UPDATE"
	case lockShare:
		base = "FOR SHARE"
	default:
		return ""
	}
	switch s.lockWait {
	case LockNowait:
		return base + " NOWAIT"
	case LockSkipLocked:
		return base + " SKIP LOCKED"
	default:
		return base
	}
}

// renderWriteTail emits the trailing clauses shared by UPDATE and DELETE.
// These statements take a bare row cap only; the comma offset form is a
// SELECT-only construct in this dialect.
func renderWriteTail(s *clauseState) []string {
	var parts []string
	if w := renderWhere(s.predicates); w != "" {
		parts = append(parts, w)
	}
	if o := renderOrder(s.orders); o != "" {
		parts = append(parts, o)
	}
	if s.hasLimit {
		parts = append(parts, "LIMIT "+strconv.Itoa(s.limit))
	}
	return parts
}

// sortedKeys returns the map keys in sorted order for deterministic SQL.
func sortedKeys(m Assoc) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// compileInsert compiles one or more rows into a single INSERT statement.
// The column list comes from the first row, sorted; rows missing a column
// contribute NULL. ignore compiles the variant that silently skips
// unique-constraint violations.
func compileInsert(table string, rows []Assoc, ignore bool) string {
	keys := sortedKeys(rows[0])

	var b strings.Builder
	b.WriteString("INSERT ")
	if ignore {
		b.WriteString("IGNORE ")
	}
	b.WriteString("INTO " + table + " (" + strings.Join(keys, ", ") + ") VALUES ")

	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		vals := make([]string, len(keys))
		for j, k := range keys {
			vals[j] = Quote(row[k])
		}
		b.WriteString("(" + strings.Join(vals, ", ") + ")")
	}
	return b.String()
}

// compileUpdate compiles an UPDATE keyed by the accumulated predicates.
func compileUpdate(s *clauseState, row Assoc) string {
	keys := sortedKeys(row)
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = k + " = " + Quote(row[k])
	}

	parts := []string{"UPDATE", s.table, "SET", strings.Join(sets, ", ")}
	parts = append(parts, renderWriteTail(s)...)
	return strings.Join(parts, " ")
}

// compileDelete compiles a DELETE with the accumulated predicates, ordering
// and row cap.
func compileDelete(s *clauseState) string {
	parts := []string{"DELETE", "FROM", s.table}
	parts = append(parts, renderWriteTail(s)...)
	return strings.Join(parts, " ")
}

// compileUpdateBulk compiles a multi-row UPDATE as one CASE expression per
// updated column, keyed by an explicit id-to-row mapping, with a trailing
// WHERE key IN (ids). The accumulated predicates do not participate; bulk
// updates key off the id set alone.
func compileUpdateBulk(s *clauseState, key string, updates []BulkRow) string {
	cols := bulkColumns(updates)

	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		var b strings.Builder
		b.WriteString(col + " = CASE " + key)
		for _, u := range updates {
			if v, ok := u.Fields[col]; ok {
				b.WriteString(" WHEN " + Quote(u.Key) + " THEN " + Quote(v))
			}
		}
		b.WriteString(" END")
		sets = append(sets, b.String())
	}

	keys := make([]interface{}, len(updates))
	for i, u := range updates {
		keys[i] = u.Key
	}

	return "UPDATE " + s.table + " SET " + strings.Join(sets, ", ") +
		" WHERE " + key + " IN " + Quote(keys)
}

// compileShift compiles a bulk increment (op "+") or decrement (op "-") as
// one CASE expression per column. Zero and negative amounts are skipped; an
// empty string result means no column produced a branch and the caller
// short-circuits to a zero-row no-op without touching the server.
func compileShift(s *clauseState, key string, changes []Change, op string) string {
	colSet := make(map[string]struct{})
	for _, ch := range changes {
		for col, n := range ch.Fields {
			if n > 0 {
				colSet[col] = struct{}{}
			}
		}
	}
	if len(colSet) == 0 {
		return ""
	}
	cols := make([]string, 0, len(colSet))
	for col := range colSet {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var keys []interface{}
	seen := make(map[interface{}]struct{})
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		var b strings.Builder
		b.WriteString(col + " = CASE")
		for _, ch := range changes {
			n, ok := ch.Fields[col]
			if !ok || n <= 0 {
				continue
			}
			b.WriteString(" WHEN " + key + " = " + Quote(ch.Key) +
				" THEN " + col + " " + op + " " + strconv.FormatInt(n, 10))
			if _, dup := seen[ch.Key]; !dup {
				seen[ch.Key] = struct{}{}
				keys = append(keys, ch.Key)
			}
		}
		b.WriteString(" ELSE " + col + " END")
		sets = append(sets, b.String())
	}

	return "UPDATE " + s.table + " SET " + strings.Join(sets, ", ") +
		" WHERE " + key + " IN " + Quote(keys)
}

// bulkColumns returns the sorted union of updated columns across all rows.
func bulkColumns(updates []BulkRow) []string {
	set := make(map[string]struct{})
	for _, u := range updates {
		for col := range u.Fields {
			set[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
