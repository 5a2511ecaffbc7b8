package core

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/glivers/rackdb/internal/security"
)

// Pagination is the result of a paginated fetch. From and To are nil when
// no rows match.
type Pagination struct {
	Data        []Row  `json:"data"`
	CurrentPage int    `json:"current_page"`
	PerPage     int    `json:"per_page"`
	Total       int64  `json:"total"`
	LastPage    int64  `json:"last_page"`
	From        *int64 `json:"from"`
	To          *int64 `json:"to"`
}

// preflight surfaces any latched builder-time validation error before a
// terminal method compiles.
func (b *Builder) preflight() error {
	if b.err != nil {
		return b.err
	}
	if b.state.table == "" {
		return ErrNoTable
	}
	return nil
}

// capture records the compiled statement and reports whether the terminal
// should short-circuit without I/O. Every terminal method checks this the
// same way; compile-only parity depends on it.
func (b *Builder) capture(sqlText string) bool {
	b.compiled = sqlText
	return b.state.compileOnly
}

// stamp adds the automatic timestamp columns to a write payload without
// overwriting caller-supplied values.
func (b *Builder) stamp(row Assoc, creating bool) Assoc {
	if !b.state.timestamps {
		return row
	}
	now := time.Now().Format(timeLayout)
	stamped := make(Assoc, len(row)+2)
	for k, v := range row {
		stamped[k] = v
	}
	if creating {
		if _, ok := stamped["created_at"]; !ok {
			stamped["created_at"] = now
		}
	}
	if _, ok := stamped["modified_at"]; !ok {
		stamped["modified_at"] = now
	}
	return stamped
}

// All compiles and runs the SELECT, returning the materialized result set.
// In streaming mode the rows are drained through the unbuffered cursor one
// at a time instead of being fetched as a block.
func (b *Builder) All(ctx context.Context) ([]Row, error) {
	if err := b.preflight(); err != nil {
		return nil, err
	}
	sqlText := compileSelect(b.state)
	if b.capture(sqlText) {
		return nil, nil
	}
	if !b.state.streaming {
		return b.conn.Query(ctx, sqlText)
	}

	cur, err := b.conn.Stream(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	var out []Row
	for cur.Next() {
		row, err := cur.Scan()
		if err != nil {
			_ = cur.Close()
			return nil, err
		}
		out = append(out, row)
	}
	return out, cur.Err()
}

// Rows compiles and runs the SELECT in unbuffered mode, returning a
// forward-only cursor. The caller must drain or close it before issuing
// another statement on the same connection.
func (b *Builder) Rows(ctx context.Context) (*Cursor, error) {
	if err := b.preflight(); err != nil {
		return nil, err
	}
	sqlText := compileSelect(b.state)
	if b.capture(sqlText) {
		return nil, nil
	}
	return b.conn.Stream(ctx, sqlText)
}

// First returns the single first row, forcing the limit to one. Returns
// ErrNoRows when nothing matches.
func (b *Builder) First(ctx context.Context) (Row, error) {
	if err := b.preflight(); err != nil {
		return nil, err
	}
	s := b.state.clone()
	s.limit = 1
	s.hasLimit = true
	s.hasOffset = false
	sqlText := compileSelect(s)
	if b.capture(sqlText) {
		return nil, nil
	}
	rows, err := b.conn.Query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

// scalar pulls the single value out of a one-column aggregate result.
func scalar(rows []Row) sql.NullString {
	if len(rows) == 0 {
		return sql.NullString{}
	}
	for _, v := range rows[0] {
		return v
	}
	return sql.NullString{}
}

func (b *Builder) aggregate(ctx context.Context, expr string) (sql.NullString, error) {
	if err := b.preflight(); err != nil {
		return sql.NullString{}, err
	}
	sqlText := compileAggregate(b.state, expr)
	if b.capture(sqlText) {
		return sql.NullString{}, nil
	}
	rows, err := b.conn.Query(ctx, sqlText)
	if err != nil {
		return sql.NullString{}, err
	}
	return scalar(rows), nil
}

// Count substitutes the column list with COUNT(1) and returns the result.
// The builder is single-use for this call; no prior column state survives.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	v, err := b.aggregate(ctx, "COUNT(1)")
	if err != nil || !v.Valid {
		return 0, err
	}
	return strconv.ParseInt(v.String, 10, 64)
}

// Exists forces the limit to one and reports whether any row came back.
// Cheaper than Count for a presence check.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	if err := b.preflight(); err != nil {
		return false, err
	}
	s := b.state.clone()
	s.limit = 1
	s.hasLimit = true
	s.hasOffset = false
	sqlText := compileSelect(s)
	if b.capture(sqlText) {
		return false, nil
	}
	rows, err := b.conn.Query(ctx, sqlText)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (b *Builder) aggregateColumn(op, fn, column string) (string, bool) {
	if !security.ValidIdentifier(column) {
		b.fail(op, "invalid column name "+strconv.Quote(column))
		return "", false
	}
	return fn + "(" + column + ")", true
}

// Sum returns the SUM of the column across matching rows.
func (b *Builder) Sum(ctx context.Context, column string) (float64, error) {
	expr, ok := b.aggregateColumn("Sum", "SUM", column)
	if !ok {
		return 0, b.err
	}
	v, err := b.aggregate(ctx, expr)
	if err != nil || !v.Valid {
		return 0, err
	}
	return strconv.ParseFloat(v.String, 64)
}

// Avg returns the AVG of the column across matching rows.
func (b *Builder) Avg(ctx context.Context, column string) (float64, error) {
	expr, ok := b.aggregateColumn("Avg", "AVG", column)
	if !ok {
		return 0, b.err
	}
	v, err := b.aggregate(ctx, expr)
	if err != nil || !v.Valid {
		return 0, err
	}
	return strconv.ParseFloat(v.String, 64)
}

// Min returns the MIN of the column as its string form, empty when no rows match.
func (b *Builder) Min(ctx context.Context, column string) (string, error) {
	expr, ok := b.aggregateColumn("Min", "MIN", column)
	if !ok {
		return "", b.err
	}
	v, err := b.aggregate(ctx, expr)
	return v.String, err
}

// Max returns the MAX of the column as its string form, empty when no rows match.
func (b *Builder) Max(ctx context.Context, column string) (string, error) {
	expr, ok := b.aggregateColumn("Max", "MAX", column)
	if !ok {
		return "", b.err
	}
	v, err := b.aggregate(ctx, expr)
	return v.String, err
}

// Pluck returns the values of a single column across matching rows.
// NULL values collapse to the empty string.
func (b *Builder) Pluck(ctx context.Context, column string) ([]string, error) {
	if err := b.preflight(); err != nil {
		return nil, err
	}
	if !security.ValidIdentifier(column) {
		return nil, b.fail("Pluck", "invalid column name "+strconv.Quote(column)).err
	}
	s := b.state.clone()
	s.tables = []string{s.table}
	s.columns = map[string][]columnSpec{s.table: {{expr: column}}}
	sqlText := compileSelect(s)
	if b.capture(sqlText) {
		return nil, nil
	}
	rows, err := b.conn.Query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	// Result columns drop any table prefix.
	key := column
	if i := strings.LastIndex(key, "."); i >= 0 {
		key = key[i+1:]
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.String(key))
	}
	return out, nil
}

// Save writes the payload, dispatching on the accumulated predicates: with
// none it compiles an INSERT and returns the generated id; with one or
// more it compiles an UPDATE keyed by those predicates and returns the
// affected-row count. The dispatch rule is load-bearing; callers that want
// an unconditional insert must not add predicates first.
func (b *Builder) Save(ctx context.Context, data Assoc) (int64, error) {
	if err := b.preflight(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, &ConfigError{Op: "Save", Detail: "empty payload"}
	}

	inserting := len(b.state.predicates) == 0
	var sqlText string
	if inserting {
		sqlText = compileInsert(b.state.table, []Assoc{b.stamp(data, true)}, false)
	} else {
		sqlText = compileUpdate(b.state, b.stamp(data, false))
	}
	if b.capture(sqlText) {
		return 0, nil
	}

	res, err := b.conn.Execute(ctx, sqlText)
	if err != nil {
		return 0, err
	}
	if inserting {
		return res.LastInsertId()
	}
	return res.RowsAffected()
}

// SaveBulk inserts multiple rows in a single statement and returns the
// affected-row count. The column list comes from the first row.
func (b *Builder) SaveBulk(ctx context.Context, rows []Assoc) (int64, error) {
	return b.insertRows(ctx, "SaveBulk", rows, false)
}

// SaveIgnore inserts one or more rows, silently skipping unique-constraint
// violations, and returns the count of rows actually inserted. The variadic
// form resolves the single-versus-multi row question at the call boundary.
func (b *Builder) SaveIgnore(ctx context.Context, rows ...Assoc) (int64, error) {
	return b.insertRows(ctx, "SaveIgnore", rows, true)
}

func (b *Builder) insertRows(ctx context.Context, op string, rows []Assoc, ignore bool) (int64, error) {
	if err := b.preflight(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, &ConfigError{Op: op, Detail: "no rows given"}
	}
	for i, row := range rows {
		if len(row) == 0 {
			return 0, &ConfigError{Op: op, Detail: "empty row at index " + strconv.Itoa(i)}
		}
	}
	stamped := make([]Assoc, len(rows))
	for i, row := range rows {
		stamped[i] = b.stamp(row, true)
	}
	sqlText := compileInsert(b.state.table, stamped, ignore)
	if b.capture(sqlText) {
		return 0, nil
	}
	res, err := b.conn.Execute(ctx, sqlText)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateBulk updates multiple rows in one statement through per-column
// CASE expressions keyed by keyColumn. Unlike Save, the update signal here
// is the explicit id-to-row mapping, not predicate presence.
func (b *Builder) UpdateBulk(ctx context.Context, keyColumn string, updates []BulkRow) (int64, error) {
	if err := b.preflight(); err != nil {
		return 0, err
	}
	if !security.ValidIdentifier(keyColumn) {
		return 0, &ConfigError{Op: "UpdateBulk", Detail: "invalid key column " + strconv.Quote(keyColumn)}
	}
	if len(updates) == 0 {
		return 0, &ConfigError{Op: "UpdateBulk", Detail: "no updates given"}
	}
	if b.state.timestamps {
		stamped := make([]BulkRow, len(updates))
		for i, u := range updates {
			stamped[i] = BulkRow{Key: u.Key, Fields: b.stamp(u.Fields, false)}
		}
		updates = stamped
	}
	sqlText := compileUpdateBulk(b.state, keyColumn, updates)
	if b.capture(sqlText) {
		return 0, nil
	}
	res, err := b.conn.Execute(ctx, sqlText)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Increment bulk-increments columns keyed by keyColumn. Zero and negative
// amounts are skipped; when nothing remains the call is a zero-row no-op
// and the server is never contacted.
func (b *Builder) Increment(ctx context.Context, keyColumn string, changes []Change) (int64, error) {
	return b.shift(ctx, "Increment", keyColumn, changes, "+")
}

// Decrement bulk-decrements columns keyed by keyColumn, with the same
// skip and no-op rules as Increment.
func (b *Builder) Decrement(ctx context.Context, keyColumn string, changes []Change) (int64, error) {
	return b.shift(ctx, "Decrement", keyColumn, changes, "-")
}

func (b *Builder) shift(ctx context.Context, op, keyColumn string, changes []Change, sign string) (int64, error) {
	if err := b.preflight(); err != nil {
		return 0, err
	}
	if !security.ValidIdentifier(keyColumn) {
		return 0, &ConfigError{Op: op, Detail: "invalid key column " + strconv.Quote(keyColumn)}
	}
	sqlText := compileShift(b.state, keyColumn, changes, sign)
	if sqlText == "" {
		b.compiled = ""
		return 0, nil
	}
	if b.capture(sqlText) {
		return 0, nil
	}
	res, err := b.conn.Execute(ctx, sqlText)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete compiles and runs the DELETE with the accumulated predicates,
// ordering and row cap, returning the affected-row count.
func (b *Builder) Delete(ctx context.Context) (int64, error) {
	if err := b.preflight(); err != nil {
		return 0, err
	}
	sqlText := compileDelete(b.state)
	if b.capture(sqlText) {
		return 0, nil
	}
	res, err := b.conn.Execute(ctx, sqlText)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateOrCreate updates the rows matching the accumulated predicates, or
// inserts the payload when none match. Returns the affected count on
// update, the generated id on insert.
func (b *Builder) UpdateOrCreate(ctx context.Context, data Assoc) (int64, error) {
	if err := b.preflight(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, &ConfigError{Op: "UpdateOrCreate", Detail: "empty payload"}
	}
	if b.state.compileOnly {
		b.compiled = compileUpdate(b.state, b.stamp(data, false))
		return 0, nil
	}

	found, err := b.Clone().Exists(ctx)
	if err != nil {
		return 0, err
	}
	var sqlText string
	if found {
		sqlText = compileUpdate(b.state, b.stamp(data, false))
	} else {
		sqlText = compileInsert(b.state.table, []Assoc{b.stamp(data, true)}, false)
	}
	b.compiled = sqlText
	res, err := b.conn.Execute(ctx, sqlText)
	if err != nil {
		return 0, err
	}
	if found {
		return res.RowsAffected()
	}
	return res.LastInsertId()
}

// FirstOrCreate returns the first row matching the accumulated predicates,
// inserting the payload and refetching by its generated id when none
// matches. The refetch assumes the primary key column is named id.
func (b *Builder) FirstOrCreate(ctx context.Context, data Assoc) (Row, error) {
	if err := b.preflight(); err != nil {
		return nil, err
	}
	if b.state.compileOnly {
		s := b.state.clone()
		s.limit = 1
		s.hasLimit = true
		s.hasOffset = false
		b.compiled = compileSelect(s)
		return nil, nil
	}

	row, err := b.Clone().First(ctx)
	if err == nil {
		return row, nil
	}
	if err != ErrNoRows {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &ConfigError{Op: "FirstOrCreate", Detail: "empty payload"}
	}

	sqlText := compileInsert(b.state.table, []Assoc{b.stamp(data, true)}, false)
	b.compiled = sqlText
	res, err := b.conn.Execute(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return b.conn.Table(b.state.table).Where("id = ?", id).First(ctx)
}

// Paginate runs an independent count pass and a limited fetch pass on
// clones of the builder and assembles the page envelope. From and To are
// nil when no rows match.
func (b *Builder) Paginate(ctx context.Context, perPage, page int) (*Pagination, error) {
	if err := b.preflight(); err != nil {
		return nil, err
	}
	if perPage <= 0 || page < 1 {
		return nil, &ConfigError{Op: "Paginate", Detail: "perPage must be positive and page >= 1"}
	}

	fetch := b.Clone().Limit(perPage, page)
	if b.capture(compileSelect(fetch.state)) {
		return nil, nil
	}

	total, err := b.Clone().Count(ctx)
	if err != nil {
		return nil, err
	}
	data, err := fetch.All(ctx)
	if err != nil {
		return nil, err
	}

	p := &Pagination{
		Data:        data,
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    (total + int64(perPage) - 1) / int64(perPage),
	}
	if total > 0 {
		offset := int64(perPage) * int64(page-1)
		from := offset + 1
		to := offset + int64(len(data))
		p.From = &from
		p.To = &to
	}
	return p, nil
}

// Chunk fetches page-sized batches until one comes back empty or the
// callback returns false, letting callers stream large tables without full
// materialization and tolerate partial failure between batches.
func (b *Builder) Chunk(ctx context.Context, size int, fn func(batch []Row) bool) error {
	if err := b.preflight(); err != nil {
		return err
	}
	if size <= 0 {
		return &ConfigError{Op: "Chunk", Detail: "size must be positive"}
	}
	if fn == nil {
		return &ConfigError{Op: "Chunk", Detail: "nil callback"}
	}
	if b.state.compileOnly {
		b.compiled = compileSelect(b.Clone().Limit(size, 1).state)
		return nil
	}

	for page := 1; ; page++ {
		batch, err := b.Clone().Limit(size, page).All(ctx)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if !fn(batch) {
			return nil
		}
		if len(batch) < size {
			return nil
		}
	}
}
