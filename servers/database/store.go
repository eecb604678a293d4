package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// StoreConfig controls the connection pool of a Store.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" opens a private
	// in-memory database shared across the pool's connections.
	Path string

	// PoolSize is the number of connections kept open.
	PoolSize int

	// MaxOverflow is the number of additional connections allowed under
	// load. Overflow connections are closed when idle.
	MaxOverflow int

	// AcquireTimeout bounds how long Acquire waits for a free connection.
	AcquireTimeout time.Duration
}

func (c *StoreConfig) applyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 5
	}
	if c.MaxOverflow < 0 {
		c.MaxOverflow = 0
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
}

// Store is the single gateway to the underlying SQLite database. All reads
// performed by tools and resources go through Acquire and Execute so that
// pool limits, sanitization, and query logging apply uniformly.
type Store struct {
	db             *sql.DB
	logger         *slog.Logger
	acquireTimeout time.Duration
	acquires       atomic.Int64
}

// Open opens the database and configures the pool. The effective connection
// ceiling is PoolSize+MaxOverflow; the pool keeps at most PoolSize idle.
func Open(cfg StoreConfig, logger *slog.Logger) (*Store, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	dsn := cfg.Path + "?_foreign_keys=on&_journal_mode=WAL"
	if cfg.Path == ":memory:" {
		// A plain :memory: DSN gives every pooled connection its own
		// private database. A named shared-cache database keeps the
		// pool coherent while staying isolated per Store.
		dsn = fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize + cfg.MaxOverflow)
	db.SetMaxIdleConns(cfg.PoolSize)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &Store{
		db:             db,
		logger:         logger,
		acquireTimeout: cfg.AcquireTimeout,
	}, nil
}

// Close closes the database and all pooled connections.
func (s *Store) Close() error {
	return s.db.Close()
}

// Acquires reports how many connection leases have been handed out. Request
// validation must complete before the count moves.
func (s *Store) Acquires() int64 {
	return s.acquires.Load()
}

// Acquire leases a connection from the pool, waiting at most the configured
// acquire timeout. The lease ends when the returned connection is closed.
// A connection that fails its liveness probe is discarded and replaced
// without surfacing the failure.
func (s *Store) Acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	conn, err := s.db.Conn(acquireCtx)
	if err != nil {
		return nil, s.acquireError(ctx, err)
	}

	if err := conn.PingContext(acquireCtx); err != nil {
		s.logger.Warn("Replacing dead pooled connection.", "error", err)
		conn.Close()
		conn, err = s.db.Conn(acquireCtx)
		if err != nil {
			return nil, s.acquireError(ctx, err)
		}
	}

	s.acquires.Add(1)
	return conn, nil
}

func (s *Store) acquireError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("acquire connection: %w", ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("Connection pool exhausted.", "timeout", s.acquireTimeout)
		return poolExhausted()
	}
	s.logger.Error("Failed to acquire connection.", "error", err)
	return queryExecution("acquire connection")
}

// QueryPlan is a read statement prepared for execution through the gateway.
type QueryPlan struct {
	// Scope names the caller for logs and sanitized error messages.
	Scope string

	// Raw is the SQL text.
	Raw string

	// Args are the bound parameters.
	Args []any

	// Sensitive marks plans whose bound parameters must not be logged.
	Sensitive bool
}

// Execute runs the plan on the leased connection and returns at most limit
// rows (limit <= 0 means unbounded). Every execution is logged with a
// correlation ID, elapsed time, and row count. Failures are logged in full
// here and returned sanitized.
func (s *Store) Execute(ctx context.Context, conn *sql.Conn, plan QueryPlan, limit int) ([]map[string]any, error) {
	queryID := uuid.NewString()
	started := time.Now()

	rows, err := conn.QueryContext(ctx, plan.Raw, plan.Args...)
	if err != nil {
		s.logExecError(queryID, plan, err)
		return nil, queryExecution(plan.Scope)
	}
	defer rows.Close()

	out, err := scanRows(rows, limit)
	if err != nil {
		s.logExecError(queryID, plan, err)
		return nil, queryExecution(plan.Scope)
	}

	attrs := []any{
		"queryId", queryID,
		"scope", plan.Scope,
		"elapsed", time.Since(started),
		"rowCount", len(out),
	}
	if !plan.Sensitive {
		attrs = append(attrs, "args", plan.Args)
	}
	s.logger.Info("Executed query.", attrs...)

	return out, nil
}

func (s *Store) logExecError(queryID string, plan QueryPlan, err error) {
	s.logger.Error("Query execution failed.",
		"queryId", queryID, "scope", plan.Scope, "error", err)
}

func scanRows(rows *sql.Rows, limit int) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Column describes one column of an introspected table in declaration order.
type Column struct {
	Name     string `json:"column"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	IsKey    bool   `json:"isKey"`
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IntrospectSchema describes the named table's columns. A column is a key
// column when it participates in the primary key or references another table.
func (s *Store) IntrospectSchema(ctx context.Context, table string) ([]Column, error) {
	if !identPattern.MatchString(table) {
		return nil, unknownResource(table)
	}

	conn, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// PRAGMA statements do not accept bound parameters; the identifier
	// check above keeps the interpolation safe.
	fkCols := map[string]bool{}
	fkRows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", table))
	if err != nil {
		s.logger.Error("Schema introspection failed.", "table", table, "error", err)
		return nil, queryExecution("introspect schema")
	}
	for fkRows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			fkRows.Close()
			s.logger.Error("Schema introspection failed.", "table", table, "error", err)
			return nil, queryExecution("introspect schema")
		}
		fkCols[from] = true
	}
	fkRows.Close()

	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		s.logger.Error("Schema introspection failed.", "table", table, "error", err)
		return nil, queryExecution("introspect schema")
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid, notNull, pk int
		var name, typ string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			s.logger.Error("Schema introspection failed.", "table", table, "error", err)
			return nil, queryExecution("introspect schema")
		}
		cols = append(cols, Column{
			Name:     name,
			Type:     strings.ToUpper(typ),
			Nullable: notNull == 0 && pk == 0,
			IsKey:    pk > 0 || fkCols[name],
		})
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("Schema introspection failed.", "table", table, "error", err)
		return nil, queryExecution("introspect schema")
	}
	if len(cols) == 0 {
		return nil, unknownResource(table)
	}
	return cols, nil
}
