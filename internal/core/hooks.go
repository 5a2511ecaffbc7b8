package core

import (
	"context"
	"strings"
	"time"
)

// QueryEvent contains information about an executed statement.
// This is passed to QueryHook callbacks for logging, metrics, or tracing.
type QueryEvent struct {
	// SQL is the executed statement text
	SQL string
	// Duration is how long the round trip took
	Duration time.Duration
	// RowsAffected is the number of rows affected (writes) or fetched (reads)
	RowsAffected int64
	// Error is any error that occurred (nil on success)
	Error error
	// Operation is the SQL operation type (SELECT, INSERT, UPDATE, DELETE, UNKNOWN)
	Operation string
}

// QueryHook is a callback invoked after each statement execution.
// Use this for logging, metrics, distributed tracing, or debugging.
//
// Example:
//
//	conn, _ := rackdb.Connect(cfg,
//	    rackdb.WithQueryHook(func(ctx context.Context, e rackdb.QueryEvent) {
//	        slog.Info("query", "sql", e.SQL, "duration", e.Duration, "err", e.Error)
//	    }))
type QueryHook func(ctx context.Context, event QueryEvent)

// DetectOperation attempts to detect the SQL operation type from the
// statement text. Returns one of: SELECT, INSERT, UPDATE, DELETE, or UNKNOWN.
// SHOW, DESCRIBE and EXPLAIN are classified as SELECT since they produce
// result sets.
func DetectOperation(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	switch {
	case strings.HasPrefix(sql, "SELECT"), strings.HasPrefix(sql, "WITH"),
		strings.HasPrefix(sql, "SHOW"), strings.HasPrefix(sql, "DESCRIBE"),
		strings.HasPrefix(sql, "EXPLAIN"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	}
	return "UNKNOWN"
}
