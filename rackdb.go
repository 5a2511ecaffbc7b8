// Package rackdb provides a fluent MySQL query builder and a resilient
// single-connection execution layer. Values are quoted and inlined into the
// statement text, the text can be captured without execution, and the
// connection transparently retries once when the server has gone away.
// Streaming cursors, asynchronous queries, and OpenTelemetry tracing are
// supported out of the box.
package rackdb

import (
	"github.com/glivers/rackdb/internal/core"
	"github.com/glivers/rackdb/internal/logger"
	"github.com/glivers/rackdb/internal/security"
	"github.com/glivers/rackdb/internal/tracer"
)

type (
	// Conn is a managed single connection to a MySQL server.
	Conn = core.Conn
	// Config holds the connection parameters.
	Config = core.Config
	// Option is a functional option for configuring a Conn.
	Option = core.Option
	// Builder constructs and executes SQL statements against a Conn.
	Builder = core.Builder
	// Assoc is a column-to-value map used for writes.
	Assoc = core.Assoc
	// Row is a single result row keyed by column name.
	Row = core.Row
	// BulkRow pairs a key value with the fields to set for that key.
	BulkRow = core.BulkRow
	// Change pairs a key value with per-column integer deltas.
	Change = core.Change
	// Cursor iterates an unbuffered result set row by row.
	Cursor = core.Cursor
	// Pending is a handle to an asynchronous query in flight.
	Pending = core.Pending
	// ProcessFunc transforms the rows of an asynchronous query.
	ProcessFunc = core.ProcessFunc
	// Pagination is one page of results plus paging metadata.
	Pagination = core.Pagination
	// QueryEvent describes one executed statement for hooks.
	QueryEvent = core.QueryEvent
	// QueryHook observes executed statements.
	QueryHook = core.QueryHook
	// LockWait selects the row-lock waiting behavior.
	LockWait = core.LockWait
	// FulltextMode selects the MATCH ... AGAINST search mode.
	FulltextMode = core.FulltextMode

	// ConfigError reports invalid builder input or configuration.
	ConfigError = core.ConfigError
	// ConnError reports a connection-level failure.
	ConnError = core.ConnError
	// StatementError reports a failure executing a specific statement.
	StatementError = core.StatementError

	// Logger is the structured logging interface accepted by WithLogger.
	Logger = logger.Logger
	// SlogAdapter adapts a *slog.Logger to the Logger interface.
	SlogAdapter = logger.SlogAdapter
	// Sanitizer masks sensitive literals in logged SQL.
	Sanitizer = logger.Sanitizer
	// Tracer is the tracing interface accepted by WithTracer.
	Tracer = tracer.Tracer
	// Span is a single traced operation.
	Span = tracer.Span
	// Auditor records executed statements for audit trails.
	Auditor = security.Auditor
	// AuditLevel controls which operations the Auditor records.
	AuditLevel = security.AuditLevel
)

const (
	LockWaitDefault = core.LockWaitDefault
	LockNowait      = core.LockNowait
	LockSkipLocked  = core.LockSkipLocked

	FulltextNatural   = core.FulltextNatural
	FulltextBoolean   = core.FulltextBoolean
	FulltextExpansion = core.FulltextExpansion

	AuditNone   = security.AuditNone
	AuditWrites = security.AuditWrites
	AuditReads  = security.AuditReads
	AuditAll    = security.AuditAll
)

// Sentinel errors surfaced by the execution layer.
var (
	ErrNoRows       = core.ErrNoRows
	ErrTxDone       = core.ErrTxDone
	ErrConnBusy     = core.ErrConnBusy
	ErrAsyncPending = core.ErrAsyncPending
	ErrCursorClosed = core.ErrCursorClosed
	ErrNoTable      = core.ErrNoTable
)

// Re-export core functions.
var (
	Connect  = core.Connect
	WrapConn = core.WrapConn

	WithLogger            = core.WithLogger
	WithTracer            = core.WithTracer
	WithAuditor           = core.WithAuditor
	WithQueryHook         = core.WithQueryHook
	WithStmtCacheCapacity = core.WithStmtCacheCapacity
	WithHealthCheck       = core.WithHealthCheck

	Escape          = core.Escape
	Quote           = core.Quote
	DetectOperation = core.DetectOperation

	NewSlogAdapter = logger.NewSlogAdapter
	NewSanitizer   = logger.NewSanitizer
	NewOtelTracer  = tracer.NewOtelTracer
	NewAuditor     = security.NewAuditor
)
