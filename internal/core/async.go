package core

import (
	"context"
	"sync"
	"time"
)

// pollInterval bounds each wait iteration inside Await so the caller
// regains control periodically even without context cancellation.
const pollInterval = 50 * time.Millisecond

// ProcessFunc shapes the raw rows of a resolved async query into the
// caller-facing value. A nil ProcessFunc returns the rows unchanged.
type ProcessFunc func(rows []Row) (interface{}, error)

type asyncOutcome struct {
	value interface{}
	err   error
}

// Pending wraps a connection with one in-flight non-blocking query and its
// result-processing function. It resolves at most once and caches the
// resolved value; the connection stays occupied until resolution, so a
// second async query before Await fails with ErrAsyncPending.
type Pending struct {
	conn *Conn
	ch   chan asyncOutcome

	mu       sync.Mutex
	resolved bool
	value    interface{}
	err      error
}

// QueryAsync issues the statement without blocking and hands back the
// pending result. Only one async operation may be outstanding per
// connection at a time; that is a protocol constraint, not a library
// choice, and violations are rejected rather than queued.
func (c *Conn) QueryAsync(ctx context.Context, sqlText string, process ProcessFunc) (*Pending, error) {
	if err := c.occupy(busyAsync); err != nil {
		return nil, err
	}

	p := &Pending{conn: c, ch: make(chan asyncOutcome, 1)}
	go func() {
		ctx, span := c.tracer.StartSpan(ctx, "rackdb.async")
		defer span.End()

		start := time.Now()
		rows, err := c.queryRetry(ctx, sqlText)
		if err != nil {
			c.observe(ctx, span, sqlText, 0, time.Since(start), err)
			p.ch <- asyncOutcome{err: &StatementError{SQL: sqlText, Err: err}}
			return
		}
		out, err := collectRows(rows)
		_ = rows.Close()
		c.observe(ctx, span, sqlText, int64(len(out)), time.Since(start), err)
		if err != nil {
			p.ch <- asyncOutcome{err: err}
			return
		}

		var value interface{} = out
		if process != nil {
			value, err = process(out)
		}
		p.ch <- asyncOutcome{value: value, err: err}
	}()
	return p, nil
}

// Ready performs a single non-blocking poll: true once the server has
// finished and the result awaits reaping. It never mutates resolution
// state, so Ready before Await is always safe.
func (p *Pending) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return true
	}
	return len(p.ch) > 0
}

// Await blocks in a poll loop with a bounded per-iteration wait until the
// query completes, then reaps the raw result, applies the processing
// function and caches the output. Repeated calls return the cached value
// without another round trip. Context cancellation abandons the wait but
// leaves the query pending.
func (p *Pending) Await(ctx context.Context) (interface{}, error) {
	for {
		// Re-checked every iteration: a concurrent Await may have drained
		// the channel and resolved while this caller was waiting.
		p.mu.Lock()
		if p.resolved {
			value, err := p.value, p.err
			p.mu.Unlock()
			return value, err
		}
		p.mu.Unlock()

		select {
		case out := <-p.ch:
			p.mu.Lock()
			p.resolved = true
			p.value = out.value
			p.err = out.err
			p.mu.Unlock()
			p.conn.release(busyAsync)
			return out.value, out.err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
