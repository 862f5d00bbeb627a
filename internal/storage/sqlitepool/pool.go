// Package sqlitepool opens a fixed-size pool of SQLite connections with the
// pragmas every FixGSM SQLite database uses. It wraps zombiezen's
// sqlitex.Pool and exposes the same Take/Put model: a connection is owned by
// one goroutine between Take and Put.
package sqlitepool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// MemoryPath opens a private in-memory database. Every connection to it is a
// separate database, so the pool is forced to a single connection.
const MemoryPath = ":memory:"

// Config holds the parameters for opening a pool
type Config struct {
	// Path of the database file. A missing parent directory is created.
	Path string

	// PoolSize defaults to max(NumCPU, 4)
	PoolSize int

	// OnConnect runs once per connection after the pragmas, for schema
	// setup and function registration
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of SQLite connections
type Pool struct {
	inner *sqlitex.Pool
	path  string
	size  int
}

// Open creates the pool. Connections are prepared lazily on first Take.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: path is required")
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = runtime.NumCPU()
		if size < 4 {
			size = 4
		}
	}
	if cfg.Path == MemoryPath {
		size = 1
	} else if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitepool: %w", err)
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.Path == MemoryPath, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	log.Info().Str("path", cfg.Path).Int("pool_size", size).Msg("SQLite pool opened")
	return &Pool{inner: inner, path: cfg.Path, size: size}, nil
}

// Size returns the number of connections in the pool
func (p *Pool) Size() int {
	return p.size
}

// Take borrows a connection, blocking until one is free or ctx is done.
// Every Take must be paired with a Put.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Put(nil) is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	if conn == nil {
		return
	}
	p.inner.Put(conn)
}

// Close closes every connection, waiting for borrowed ones to come back
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		log.Error().Err(err).Str("path", p.path).Msg("SQLite pool close failed")
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	log.Info().Str("path", p.path).Msg("SQLite pool closed")
	return nil
}

func prepareConnection(conn *sqlite.Conn, memory bool, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}
	if !memory {
		pragmas = append(pragmas,
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: on connect: %w", err)
		}
	}
	return nil
}
