// Package core implements the rackdb query builder, statement compiler and
// the resilient single-connection execution layer it compiles into.
package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/glivers/rackdb/internal/cache"
	"github.com/glivers/rackdb/internal/logger"
	"github.com/glivers/rackdb/internal/security"
	"github.com/glivers/rackdb/internal/tracer"
)

// Client-side error numbers for the gone-away signal.
const (
	errServerGone = 2006 // CR_SERVER_GONE_ERROR
	errServerLost = 2013 // CR_SERVER_LOST
)

// Connection occupancy. While a streaming cursor is open or an async query
// is pending, no other statement may run on the connection.
const (
	busyNone = iota
	busyCursor
	busyAsync
)

// Config describes one logical database role (sync, async, streaming,
// schema-admin). Schema may be empty for schema-admin connections that
// create databases. Timeout applies to connection establishment only;
// there is no statement-level timeout beyond context cancellation.
type Config struct {
	Host     string
	Username string
	Password string
	Schema   string
	Port     int
	Charset  string
	Engine   string // default storage engine, informational
	Timeout  time.Duration
	Compress bool
}

// dsn renders the config through the driver's own DSN builder.
func (c Config) dsn() string {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	port := c.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	mc.DBName = c.Schema
	mc.Timeout = c.Timeout
	_ = mc.Apply(mysql.EnableCompression(c.Compress))
	if c.Charset != "" {
		mc.Params = map[string]string{"charset": c.Charset}
	}
	return mc.FormatDSN()
}

// Conn owns a single live link to the server. The underlying pool is capped
// at one open connection; the dedicated session is acquired lazily on the
// first statement and transparently recreated once when the server reports
// the connection gone.
type Conn struct {
	db  *sql.DB
	cfg Config

	mu        sync.Mutex
	session   *sql.Conn
	connected bool
	busy      int
	inTx      bool

	lastInsertID int64
	affected     int64
	lastErr      error

	log       logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer
	auditor   *security.Auditor
	hook      QueryHook
	stmtCache *cache.StmtCache
	health    *healthChecker
}

// Option is a functional option for configuring a Conn.
type Option func(*Conn)

// WithLogger sets the structured logger for statement logging.
func WithLogger(l logger.Logger) Option {
	return func(c *Conn) {
		c.log = l
	}
}

// WithTracer sets the tracer used to span every execution mode.
func WithTracer(t tracer.Tracer) Option {
	return func(c *Conn) {
		c.tracer = t
	}
}

// WithAuditor enables audit logging of executed statements.
func WithAuditor(a *security.Auditor) Option {
	return func(c *Conn) {
		c.auditor = a
	}
}

// WithQueryHook sets a callback invoked after each statement execution.
func WithQueryHook(h QueryHook) Option {
	return func(c *Conn) {
		c.hook = h
	}
}

// WithStmtCacheCapacity sets the prepared statement cache capacity used by
// the bound raw-query path.
func WithStmtCacheCapacity(capacity int) Option {
	return func(c *Conn) {
		c.stmtCache = cache.NewStmtCacheWithCapacity(capacity)
	}
}

// WithHealthCheck starts a background ping loop at the given interval.
func WithHealthCheck(interval time.Duration) Option {
	return func(c *Conn) {
		c.health = newHealthChecker(c.healthPing, interval)
	}
}

// Connect builds a Conn from the configuration. The dial is lazy: the link
// is established by the first statement, honoring the configured timeout,
// charset and compression.
func Connect(cfg Config, opts ...Option) (*Conn, error) {
	db, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		return nil, &ConnError{Op: "connect", Err: err}
	}
	c := wrap(db, opts...)
	c.cfg = cfg
	return c, nil
}

// WrapConn builds a Conn around an existing database handle. The pool is
// capped at one open connection to preserve single-link semantics.
func WrapConn(db *sql.DB, opts ...Option) *Conn {
	return wrap(db, opts...)
}

func wrap(db *sql.DB, opts ...Option) *Conn {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c := &Conn{
		db:        db,
		log:       &logger.NoopLogger{},
		sanitizer: logger.NewSanitizer(nil),
		tracer:    &tracer.NoopTracer{},
		stmtCache: cache.NewStmtCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.health != nil {
		c.health.start()
	}
	return c
}

// acquire returns the dedicated session, dialing if necessary.
func (c *Conn) acquire(ctx context.Context) (*sql.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}
	session, err := c.db.Conn(ctx)
	if err != nil {
		return nil, &ConnError{Op: "connect", Err: err}
	}
	c.session = session
	c.connected = true
	return session, nil
}

// invalidate drops the dead session so the next acquire dials again.
// Prepared statements belong to the session and die with it.
func (c *Conn) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
	c.stmtCache.Clear()
	c.connected = false
}

// Connected reports whether the dedicated session is currently established.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// goneAway reports whether err is the server-gone-away signal, detected
// either as the driver's invalid-connection fault or as the client error
// codes for a lost or closed server link.
func goneAway(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errServerGone || me.Number == errServerLost
	}
	return false
}

// checkFree rejects a statement while the connection is occupied by a
// streaming cursor or a pending async query.
func (c *Conn) checkFree() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.busy {
	case busyCursor:
		return ErrConnBusy
	case busyAsync:
		return ErrAsyncPending
	}
	return nil
}

// occupy atomically checks the connection is free and claims it.
func (c *Conn) occupy(kind int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.busy {
	case busyCursor:
		return ErrConnBusy
	case busyAsync:
		return ErrAsyncPending
	}
	c.busy = kind
	return nil
}

func (c *Conn) release(kind int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy == kind {
		c.busy = busyNone
	}
}

// execRetry runs an exec-mode statement with the single gone-away recovery:
// on the signal the session is recreated and the statement retried exactly
// once; if the reconnect itself fails, the original failure propagates.
func (c *Conn) execRetry(ctx context.Context, sqlText string) (sql.Result, error) {
	session, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	res, err := session.ExecContext(ctx, sqlText)
	if err != nil && goneAway(err) {
		c.invalidate()
		if session, rerr := c.acquire(ctx); rerr == nil {
			res, err = session.ExecContext(ctx, sqlText)
		}
	}
	return res, err
}

// queryRetry is execRetry for the rows-returning path.
func (c *Conn) queryRetry(ctx context.Context, sqlText string) (*sql.Rows, error) {
	session, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := session.QueryContext(ctx, sqlText)
	if err != nil && goneAway(err) {
		c.invalidate()
		if session, rerr := c.acquire(ctx); rerr == nil {
			rows, err = session.QueryContext(ctx, sqlText)
		}
	}
	return rows, err
}

// observe feeds the ambient stack after an execution: sanitized statement
// logging, span attributes, hook callback and audit record.
func (c *Conn) observe(ctx context.Context, span tracer.Span, sqlText string, affected int64, elapsed time.Duration, err error) {
	op := DetectOperation(sqlText)
	masked := c.sanitizer.MaskSQL(sqlText)

	if err != nil {
		c.log.Error("statement failed",
			"sql", masked,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
	} else {
		c.log.Info("statement executed",
			"sql", masked,
			"duration_ms", elapsed.Milliseconds(),
			"rows", affected,
		)
	}

	if span != nil {
		tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
			SQL:          masked,
			Duration:     elapsed,
			RowsAffected: affected,
			Error:        err,
			Database:     "mysql",
			Operation:    op,
		})
	}
	if c.auditor != nil {
		c.auditor.Record(ctx, op, sqlText, affected, elapsed, err)
	}
	if c.hook != nil {
		c.hook(ctx, QueryEvent{
			SQL:          sqlText,
			Duration:     elapsed,
			RowsAffected: affected,
			Error:        err,
			Operation:    op,
		})
	}
}

// record updates the last-statement accessors.
func (c *Conn) record(res sql.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	if err != nil || res == nil {
		return
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		c.lastInsertID = id
	}
	if n, affErr := res.RowsAffected(); affErr == nil {
		c.affected = n
	}
}

// Execute runs a statement in buffered synchronous mode and returns the
// driver result. This is the write path; server rejections surface as
// StatementError carrying the offending SQL.
func (c *Conn) Execute(ctx context.Context, sqlText string) (sql.Result, error) {
	if err := c.checkFree(); err != nil {
		return nil, err
	}
	ctx, span := c.tracer.StartSpan(ctx, "rackdb.execute")
	defer span.End()

	start := time.Now()
	res, err := c.execRetry(ctx, sqlText)
	elapsed := time.Since(start)

	c.record(res, err)
	var affected int64
	if err == nil && res != nil {
		affected, _ = res.RowsAffected()
	}
	c.observe(ctx, span, sqlText, affected, elapsed, err)

	if err != nil {
		var connErr *ConnError
		if errors.As(err, &connErr) {
			return nil, err
		}
		return nil, &StatementError{SQL: sqlText, Err: err}
	}
	return res, nil
}

// Query runs a statement in buffered synchronous mode and materializes the
// full result set.
func (c *Conn) Query(ctx context.Context, sqlText string) ([]Row, error) {
	if err := c.checkFree(); err != nil {
		return nil, err
	}
	ctx, span := c.tracer.StartSpan(ctx, "rackdb.query")
	defer span.End()

	start := time.Now()
	rows, err := c.queryRetry(ctx, sqlText)
	if err != nil {
		elapsed := time.Since(start)
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.observe(ctx, span, sqlText, 0, elapsed, err)
		var connErr *ConnError
		if errors.As(err, &connErr) {
			return nil, err
		}
		return nil, &StatementError{SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	out, err := collectRows(rows)
	elapsed := time.Since(start)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.observe(ctx, span, sqlText, int64(len(out)), elapsed, err)
	return out, err
}

// queryRows runs a rows-returning statement with the busy check and full
// observation, handing the open rows to the caller to scan and close. Row
// counts are not known at this point, so the statement is observed with a
// zero count the same way Stream is.
func (c *Conn) queryRows(ctx context.Context, sqlText string) (*sql.Rows, error) {
	if err := c.checkFree(); err != nil {
		return nil, err
	}
	ctx, span := c.tracer.StartSpan(ctx, "rackdb.query")
	defer span.End()

	start := time.Now()
	rows, err := c.queryRetry(ctx, sqlText)
	elapsed := time.Since(start)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.observe(ctx, span, sqlText, 0, elapsed, err)
	if err != nil {
		var connErr *ConnError
		if errors.As(err, &connErr) {
			return nil, err
		}
		return nil, &StatementError{SQL: sqlText, Err: err}
	}
	return rows, nil
}

// Stream runs a statement in unbuffered mode and returns a forward-only
// cursor. The connection stays occupied until the cursor is drained or
// closed; any other statement in between fails with ErrConnBusy.
func (c *Conn) Stream(ctx context.Context, sqlText string) (*Cursor, error) {
	if err := c.occupy(busyCursor); err != nil {
		return nil, err
	}
	ctx, span := c.tracer.StartSpan(ctx, "rackdb.stream")
	defer span.End()

	start := time.Now()
	rows, err := c.queryRetry(ctx, sqlText)
	elapsed := time.Since(start)
	if err != nil {
		c.release(busyCursor)
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.observe(ctx, span, sqlText, 0, elapsed, err)
		var connErr *ConnError
		if errors.As(err, &connErr) {
			return nil, err
		}
		return nil, &StatementError{SQL: sqlText, Err: err}
	}

	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		c.release(busyCursor)
		c.observe(ctx, span, sqlText, 0, elapsed, err)
		return nil, &StatementError{SQL: sqlText, Err: err}
	}
	c.observe(ctx, span, sqlText, 0, elapsed, nil)
	return &Cursor{conn: c, rows: rows, columns: columns}, nil
}

// Begin opens a transaction by issuing the session statement verbatim.
func (c *Conn) Begin(ctx context.Context) error {
	c.mu.Lock()
	inTx := c.inTx
	c.mu.Unlock()
	if inTx {
		return ErrTxDone
	}
	if _, err := c.Execute(ctx, "BEGIN"); err != nil {
		return err
	}
	c.mu.Lock()
	c.inTx = true
	c.mu.Unlock()
	return nil
}

// Commit commits the open transaction.
func (c *Conn) Commit(ctx context.Context) error {
	return c.endTx(ctx, "COMMIT")
}

// Rollback rolls back the open transaction.
func (c *Conn) Rollback(ctx context.Context) error {
	return c.endTx(ctx, "ROLLBACK")
}

func (c *Conn) endTx(ctx context.Context, stmt string) error {
	c.mu.Lock()
	inTx := c.inTx
	c.mu.Unlock()
	if !inTx {
		return ErrTxDone
	}
	_, err := c.Execute(ctx, stmt)
	c.mu.Lock()
	c.inTx = false
	c.mu.Unlock()
	return err
}

// RawQuery executes arbitrary statement text: result-set statements return
// rows, everything else runs on the exec path with the outcome available
// from the accessors.
func (c *Conn) RawQuery(ctx context.Context, sqlText string) ([]Row, error) {
	if DetectOperation(sqlText) == "SELECT" {
		return c.Query(ctx, sqlText)
	}
	_, err := c.Execute(ctx, sqlText)
	return nil, err
}

// RawQueryWithBinding executes statement text with driver-level placeholder
// binding through the prepared statement cache. This is the one path that
// bypasses the value quoter; use it for statements built elsewhere.
func (c *Conn) RawQueryWithBinding(ctx context.Context, sqlText string, params ...interface{}) ([]Row, error) {
	if err := c.checkFree(); err != nil {
		return nil, err
	}
	ctx, span := c.tracer.StartSpan(ctx, "rackdb.query.bound")
	defer span.End()

	start := time.Now()
	stmt, err := c.prepare(ctx, sqlText)
	if err != nil {
		c.observe(ctx, span, sqlText, 0, time.Since(start), err)
		return nil, &StatementError{SQL: sqlText, Err: err}
	}

	if DetectOperation(sqlText) == "SELECT" {
		rows, err := stmt.QueryContext(ctx, params...)
		if err != nil {
			c.observe(ctx, span, sqlText, 0, time.Since(start), err)
			return nil, &StatementError{SQL: sqlText, Err: err}
		}
		defer func() { _ = rows.Close() }()
		out, err := collectRows(rows)
		c.observe(ctx, span, sqlText, int64(len(out)), time.Since(start), err)
		return out, err
	}

	res, err := stmt.ExecContext(ctx, params...)
	c.record(res, err)
	var affected int64
	if err == nil && res != nil {
		affected, _ = res.RowsAffected()
	}
	c.observe(ctx, span, sqlText, affected, time.Since(start), err)
	if err != nil {
		return nil, &StatementError{SQL: sqlText, Err: err}
	}
	return nil, nil
}

// prepare returns a cached prepared statement, preparing and caching on miss.
// Statements are prepared on the dedicated session so they execute on the
// same link as every other statement; invalidate drops them with it.
func (c *Conn) prepare(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	if stmt, ok := c.stmtCache.Get(sqlText); ok {
		return stmt, nil
	}
	session, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	stmt, err := session.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	c.stmtCache.Set(sqlText, stmt)
	return stmt, nil
}

// Escape escapes a string using the connection's escaping rules.
func (c *Conn) Escape(s string) string {
	return Escape(s)
}

// LastInsertID returns the id generated by the most recent insert.
func (c *Conn) LastInsertID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInsertID
}

// AffectedRows returns the row count of the most recent write.
func (c *Conn) AffectedRows() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.affected
}

// LastError returns the error of the most recent statement, nil on success.
func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Ping verifies the link, dialing if necessary.
func (c *Conn) Ping(ctx context.Context) error {
	session, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	if err := session.PingContext(ctx); err != nil {
		return &ConnError{Op: "ping", Err: err}
	}
	return nil
}

// healthPing is the probe run by the background health checker. It pings
// through the dedicated session; a connection occupied by a cursor or a
// pending async query is already proof of a live link, so it is not probed.
func (c *Conn) healthPing(ctx context.Context) error {
	if c.checkFree() != nil {
		return nil
	}
	if err := c.Ping(ctx); err != nil {
		if goneAway(err) {
			c.invalidate()
		}
		c.log.Warn("health check failed", "error", err)
		return err
	}
	return nil
}

// Healthy returns the outcome of the most recent background health check.
// Always nil when no health checker is configured.
func (c *Conn) Healthy() error {
	if c.health == nil {
		return nil
	}
	return c.health.lastError()
}

// Close releases the session, the statement cache and the underlying handle.
func (c *Conn) Close() error {
	if c.health != nil {
		c.health.stopAndWait()
	}
	c.stmtCache.Clear()
	c.invalidate()
	return c.db.Close()
}
