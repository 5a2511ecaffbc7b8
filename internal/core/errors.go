package core

import "errors"

// Predefined errors returned by rackdb database operations.
var (
	// ErrNoRows is returned when a query that expects a row returns no results.
	ErrNoRows = errors.New("no rows in result set")
	// ErrTxDone is returned when operating on an already committed or rolled back transaction.
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
	// ErrConnBusy is returned when a statement is issued while a streaming
	// cursor on the same connection has not been drained or closed.
	ErrConnBusy = errors.New("connection busy: streaming cursor still open")
	// ErrAsyncPending is returned when a second non-blocking query is issued
	// before the previous one has been resolved. One pending async operation
	// per connection is a protocol constraint, not a library limitation.
	ErrAsyncPending = errors.New("async query already pending on this connection")
	// ErrCursorClosed is returned when consuming a streaming cursor after Close.
	ErrCursorClosed = errors.New("streaming cursor already closed")
	// ErrNoTable is returned when a terminal method runs on a builder with no table bound.
	ErrNoTable = errors.New("no table bound to builder")
)

// ConfigError reports invalid builder input: a bad table or column name,
// a placeholder/value count mismatch, or an out-of-range argument.
// It is raised at the offending builder call, not deferred to compile time.
type ConfigError struct {
	Op     string // builder method that rejected the input
	Detail string
}

func (e *ConfigError) Error() string {
	return "rackdb: " + e.Op + ": " + e.Detail
}

// ConnError reports a connection-level failure: dial, authentication, or
// charset negotiation. Fatal to the current operation; not retried except
// through the single gone-away recovery in the execution path.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return "rackdb: " + e.Op + ": " + e.Err.Error()
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// StatementError reports a server-side rejection of a compiled statement.
// It carries the offending SQL text for diagnostics alongside the server message.
type StatementError struct {
	SQL string
	Err error
}

func (e *StatementError) Error() string {
	return "rackdb: statement failed: " + e.Err.Error() + " (sql: " + e.SQL + ")"
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with additional context message.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
