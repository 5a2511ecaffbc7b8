package core

import (
	"database/sql"
	"strconv"
)

// Row is one result row with nullable string values, scanned column by
// column regardless of server-side type. Useful because this layer compiles
// against tables whose schema is not known at build time.
//
// Example:
//
//	rows, err := conn.Table("users").Where("id", 1).All(ctx)
//	name := rows[0].String("name") // empty string when NULL
//	if !rows[0].IsNull("email") {
//	    email := rows[0].String("email")
//	}
type Row map[string]sql.NullString

// String returns the value for the given column, or the empty string when
// the column is absent or NULL.
func (r Row) String(column string) string {
	if v, ok := r[column]; ok && v.Valid {
		return v.String
	}
	return ""
}

// Int returns the column value parsed as an integer; absent and NULL
// columns return zero.
func (r Row) Int(column string) (int64, error) {
	v, ok := r[column]
	if !ok || !v.Valid {
		return 0, nil
	}
	return strconv.ParseInt(v.String, 10, 64)
}

// Float returns the column value parsed as a float; absent and NULL
// columns return zero.
func (r Row) Float(column string) (float64, error) {
	v, ok := r[column]
	if !ok || !v.Valid {
		return 0, nil
	}
	return strconv.ParseFloat(v.String, 64)
}

// IsNull reports whether the column is NULL or absent.
func (r Row) IsNull(column string) bool {
	v, ok := r[column]
	return !ok || !v.Valid
}

// Has reports whether the column exists in the row, NULL or not.
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// scanRowValues scans the current row of rows into a Row keyed by the
// given column names.
func scanRowValues(rows *sql.Rows, columns []string) (Row, error) {
	values := make([]sql.NullString, len(columns))
	dests := make([]interface{}, len(columns))
	for i := range values {
		dests[i] = &values[i]
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, WrapError(err, "scan failed")
	}
	row := make(Row, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, nil
}

// collectRows drains rows into a materialized slice of Row.
func collectRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, WrapError(err, "failed to get columns")
	}
	var out []Row
	for rows.Next() {
		row, err := scanRowValues(rows, columns)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "rows iteration failed")
	}
	return out, nil
}
