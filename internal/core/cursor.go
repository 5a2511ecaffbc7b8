package core

import "database/sql"

// Cursor is a forward-only, non-restartable row stream. Rows are fetched
// from the server on demand rather than materialized. The owning
// connection refuses further statements until the cursor is fully drained
// or closed.
type Cursor struct {
	conn    *Conn
	rows    *sql.Rows
	columns []string
	closed  bool
	err     error
}

// Next advances to the next row, returning false at the end of the set or
// after Close. Exhausting the set releases the connection automatically.
func (cur *Cursor) Next() bool {
	if cur.closed {
		return false
	}
	if cur.rows.Next() {
		return true
	}
	cur.err = cur.rows.Err()
	_ = cur.close()
	return false
}

// Scan reads the current row. Call after a successful Next.
func (cur *Cursor) Scan() (Row, error) {
	if cur.closed {
		return nil, ErrCursorClosed
	}
	return scanRowValues(cur.rows, cur.columns)
}

// Columns returns the result set's column names in emission order.
func (cur *Cursor) Columns() []string {
	return append([]string(nil), cur.columns...)
}

// Err returns the error that terminated iteration, if any.
func (cur *Cursor) Err() error {
	return cur.err
}

// Close releases the cursor and frees the connection for the next
// statement. Closing an already closed cursor returns ErrCursorClosed.
func (cur *Cursor) Close() error {
	if cur.closed {
		return ErrCursorClosed
	}
	return cur.close()
}

func (cur *Cursor) close() error {
	cur.closed = true
	err := cur.rows.Close()
	cur.conn.release(busyCursor)
	return err
}
