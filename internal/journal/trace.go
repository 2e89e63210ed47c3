package journal

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// maxTracedArg bounds how much of a payload argument reaches the log.
const maxTracedArg = 64

var errTraceOpen = errors.New("journal: open the tracing driver through sql.OpenDB")

// traceConnector opens sqlite3 connections whose statements are logged at
// debug level.
type traceConnector struct {
	dsn    string
	logger *slog.Logger
}

func newTraceConnector(dsn string, logger *slog.Logger) driver.Connector {
	return &traceConnector{dsn: dsn, logger: logger}
}

func (c *traceConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := (&sqlite3.SQLiteDriver{}).Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &traceConn{conn: conn, logger: c.logger}, nil
}

func (c *traceConnector) Driver() driver.Driver { return traceDriver{} }

type traceDriver struct{}

func (traceDriver) Open(string) (driver.Conn, error) { return nil, errTraceOpen }

type traceConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

func (c *traceConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *traceConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if p, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err = p.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &traceStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

// ExecContext keeps sqlite's multi-statement exec path, which a prepared
// statement would cut short after the first statement.
func (c *traceConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logStatement(c.logger, "exec", query, args)
	return e.ExecContext(ctx, query, args)
}

func (c *traceConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logStatement(c.logger, "query", query, args)
	return q.QueryContext(ctx, query, args)
}

func (c *traceConn) Close() error { return c.conn.Close() }

func (c *traceConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *traceConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.logger.Debug("sql", "op", "begin")
	if b, ok := c.conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019: fallback for connections without BeginTx
	return c.conn.Begin()
}

type traceStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

func (s *traceStmt) Close() error  { return s.stmt.Close() }
func (s *traceStmt) NumInput() int { return s.stmt.NumInput() }

func (s *traceStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), toNamed(args))
}

func (s *traceStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	s.trace("exec", args)
	if e, ok := s.stmt.(driver.StmtExecContext); ok {
		return e.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019: fallback for statements without ExecContext
	return s.stmt.Exec(toValues(args))
}

func (s *traceStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), toNamed(args))
}

func (s *traceStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	s.trace("query", args)
	if q, ok := s.stmt.(driver.StmtQueryContext); ok {
		return q.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019: fallback for statements without QueryContext
	return s.stmt.Query(toValues(args))
}

func (s *traceStmt) trace(op string, args []driver.NamedValue) {
	logStatement(s.logger, op, s.query, args)
}

func logStatement(logger *slog.Logger, op, query string, args []driver.NamedValue) {
	shown := make([]string, len(args))
	for i, a := range args {
		shown[i] = traceArg(a.Value)
	}
	logger.Debug("sql", "op", op, "sql", query, "args", shown)
}

func traceArg(v driver.Value) string {
	var s string
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		s = string(t)
	case string:
		s = t
	default:
		return fmt.Sprint(t)
	}
	if len(s) > maxTracedArg {
		return s[:maxTracedArg] + "..."
	}
	return s
}

func toNamed(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

func toValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}
