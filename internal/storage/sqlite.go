package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/fixgsm/fixgsm-server/internal/storage/sqlitepool"
)

//go:embed schema_sqlite.sql
var sqliteSchemaSQL string

var (
	errTxDone   = errors.New("transaction already finished")
	errRollback = errors.New("rollback")
)

// SQLiteOptions configures the embedded store
type SQLiteOptions struct {
	// Path of the database file, or sqlitepool.MemoryPath
	Path     string
	PoolSize int
}

// SQLiteStore implements Store on an embedded SQLite database. Transactions
// start with BEGIN IMMEDIATE, so a transaction holds the write lock from its
// first statement and concurrent transactions run one after another.
type SQLiteStore struct {
	pool *sqlitepool.Pool
	conn *sqlite.Conn
	end  func(*error)
	done bool
}

// NewSQLiteStore opens the database and applies the schema on every
// connection of the pool
func NewSQLiteStore(ctx context.Context, opts SQLiteOptions) (*SQLiteStore, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      opts.Path,
		PoolSize:  opts.PoolSize,
		OnConnect: prepareSQLite,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// prepare the first connection now so schema errors surface at startup
	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	pool.Put(conn)

	return &SQLiteStore{pool: pool}, nil
}

// prepareSQLite registers fold, a Unicode lower-casing function used for
// case-insensitive search, and creates the schema
func prepareSQLite(conn *sqlite.Conn) error {
	err := conn.CreateFunction("fold", &sqlite.FunctionImpl{
		NArgs:         1,
		Deterministic: true,
		Scalar: func(ctx sqlite.Context, args []sqlite.Value) (sqlite.Value, error) {
			if args[0].Type() == sqlite.TypeNull {
				return sqlite.Value{}, nil
			}
			return sqlite.TextValue(strings.ToLower(args[0].Text())), nil
		},
	})
	if err != nil {
		return fmt.Errorf("register fold: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, sqliteSchemaSQL, nil); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the pool. Closing a transaction handle is a no-op.
func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return nil
	}
	return s.pool.Close()
}

// BeginTx takes a connection for the lifetime of the transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (Store, error) {
	if s.conn != nil {
		return nil, errors.New("nested transactions are not supported")
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	end, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		s.pool.Put(conn)
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &SQLiteStore{pool: s.pool, conn: conn, end: end}, nil
}

// Commit commits the transaction and releases its connection
func (s *SQLiteStore) Commit() error {
	if s.conn == nil || s.done {
		return nil
	}
	s.done = true
	var err error
	s.end(&err)
	s.pool.Put(s.conn)
	return err
}

// Rollback discards the transaction. It is a no-op after Commit.
func (s *SQLiteStore) Rollback() error {
	if s.conn == nil || s.done {
		return nil
	}
	s.done = true
	err := errRollback
	s.end(&err)
	s.pool.Put(s.conn)
	if errors.Is(err, errRollback) {
		return nil
	}
	return err
}

// withConn runs fn on the transaction's connection, or on a pooled one
// outside a transaction
func (s *SQLiteStore) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	if s.conn != nil {
		if s.done {
			return errTxDone
		}
		return fn(s.conn)
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// withSavepoint runs fn inside a savepoint so multi-statement reads see one
// snapshot. fn gets a store bound to the savepoint's connection.
func (s *SQLiteStore) withSavepoint(ctx context.Context, fn func(v *SQLiteStore) error) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Save(conn)(&err)
		return fn(&SQLiteStore{pool: s.pool, conn: conn})
	})
}

// exec runs a statement and returns the number of changed rows
func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (int, error) {
	var changes int
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return mapSQLiteError(err)
		}
		changes = conn.Changes()
		return nil
	})
	return changes, err
}

// execOne runs an update or delete and returns ErrNotFound when it touched
// nothing
func (s *SQLiteStore) execOne(ctx context.Context, query string, args ...any) error {
	n, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// queryConn runs query on conn and calls fn for every row
func queryConn(conn *sqlite.Conn, query string, args []any, fn func(r *sqliteRow) error) error {
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			return fn(&sqliteRow{stmt: stmt})
		},
	})
	return mapSQLiteError(err)
}

// query runs query and calls fn for every row
func (s *SQLiteStore) query(ctx context.Context, query string, args []any, fn func(r *sqliteRow) error) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return queryConn(conn, query, args, fn)
	})
}

// sqliteCollect scans every row of query with scan
func sqliteCollect[T any](ctx context.Context, s *SQLiteStore, query string, args []any, scan func(r *sqliteRow) (*T, error)) ([]*T, error) {
	var out []*T
	err := s.query(ctx, query, args, func(r *sqliteRow) error {
		v, err := scan(r)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// sqliteOne scans the single row of query or returns ErrNotFound
func sqliteOne[T any](ctx context.Context, s *SQLiteStore, query string, args []any, scan func(r *sqliteRow) (*T, error)) (*T, error) {
	out, err := sqliteCollect(ctx, s, query+" LIMIT 1", args, scan)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

// count runs a COUNT(*) query
func (s *SQLiteStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := s.query(ctx, query, args, func(r *sqliteRow) error {
		n = r.i64()
		return nil
	})
	return n, err
}

// mapSQLiteError translates constraint violations into storage errors
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintUnique, sqlite.ResultConstraintPrimaryKey:
		return ErrDuplicateKey
	}
	return err
}

// sqlitePage appends LIMIT/OFFSET; limit <= 0 means no limit
func sqlitePage(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return query, args
	}
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, offset)
	return query + fmt.Sprintf(" LIMIT ?%d OFFSET ?%d", len(args)-1, len(args)), args
}

// ========== Value encoding ==========
//
// Ids are stored as text, times as UTC unix nanoseconds, money as decimal
// text and booleans as 0/1.

func idArg(id uuid.UUID) string {
	return id.String()
}

func optIDArg(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func timeArg(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func optTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeArg(*t)
}

func boolArg(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func decimalArg(d decimal.Decimal) string {
	return d.String()
}

// sqliteRow reads the columns of a result row in order. The first decode
// error is kept in err.
type sqliteRow struct {
	stmt *sqlite.Stmt
	col  int
	err  error
}

func (r *sqliteRow) next() int {
	c := r.col
	r.col++
	return c
}

func (r *sqliteRow) text() string {
	return r.stmt.ColumnText(r.next())
}

func (r *sqliteRow) i64() int64 {
	return r.stmt.ColumnInt64(r.next())
}

func (r *sqliteRow) integer() int {
	return int(r.i64())
}

func (r *sqliteRow) float() float64 {
	return r.stmt.ColumnFloat(r.next())
}

func (r *sqliteRow) flag() bool {
	return r.i64() != 0
}

func (r *sqliteRow) isNull() bool {
	return r.stmt.ColumnIsNull(r.col)
}

func (r *sqliteRow) id() uuid.UUID {
	raw := r.text()
	id, err := uuid.Parse(raw)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("column %d: %w", r.col-1, err)
	}
	return id
}

func (r *sqliteRow) optID() *uuid.UUID {
	if r.isNull() {
		r.col++
		return nil
	}
	id := r.id()
	return &id
}

func (r *sqliteRow) time() time.Time {
	n := r.i64()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (r *sqliteRow) optTime() *time.Time {
	if r.isNull() {
		r.col++
		return nil
	}
	t := r.time()
	return &t
}

func (r *sqliteRow) decimal() decimal.Decimal {
	raw := r.text()
	d, err := decimal.NewFromString(raw)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("column %d: %w", r.col-1, err)
	}
	return d
}
