package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/tenantsrv/config"
	"github.com/tenantd/tenantd/internal/tenantsrv/tencommon"
)

// postgresConn represents one pooled connection and its current search path.
type postgresConn struct {
	conn          *sql.Conn
	cancel        context.CancelFunc
	searchPath    []string
	defaultSchema string
	pool          *postgresPool
}

// postgresPool represents a pool of PostgreSQL database connections.
type postgresPool struct {
	defaultSchema string
	connRequests  uint64
	connReturns   uint64
	db            *sql.DB
}

// NewPostgresqlDb creates a new PostgreSQL connection pool whose connections
// are scoped to the given default schema until a tenant schema is bound.
func NewPostgresqlDb(defaultSchema string) (ScopedDb, error) {
	if !tencommon.ValidSchemaName(defaultSchema) && defaultSchema != "public" {
		return nil, fmt.Errorf("invalid default schema name: %s", defaultSchema)
	}

	dsn := config.CatalogDSN()

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Error().Err(err).Msg("failed to open db")
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		log.Error().Err(err).Msg("failed to ping db")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &postgresPool{
		defaultSchema: defaultSchema,
		db:            sqlDB,
	}, nil
}

// Conn returns a connection from the pool with session timeouts applied and
// the search path unconditionally reset. Pooled connections retain session
// state between users, so the reset runs for every acquisition, fresh or
// reused.
func (p *postgresPool) Conn(ctx context.Context) (ScopedConn, error) {
	ctx, cancel := context.WithCancel(ctx)

	conn, err := p.db.Conn(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to obtain connection")
		cancel()
		return nil, fmt.Errorf("failed to obtain database connection: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			cancel()
			conn.Close()
			log.Error().Interface("panic", r).Msg("recovered from panic while setting up connection")
		}
	}()

	sessionParams := map[string]string{
		"lock_timeout":                        "5s",
		"statement_timeout":                   "5s",
		"idle_in_transaction_session_timeout": "5s",
	}

	for param, value := range sessionParams {
		query := fmt.Sprintf("SET %s = %s", pq.QuoteIdentifier(param), pq.QuoteLiteral(value))
		if _, err := conn.ExecContext(ctx, query); err != nil {
			cancel()
			conn.Close()
			return nil, fmt.Errorf("failed to set %s: %w", param, err)
		}
	}

	h := &postgresConn{
		defaultSchema: p.defaultSchema,
		cancel:        cancel,
		pool:          p,
		conn:          conn,
	}

	if err := h.ResetSearchPath(ctx); err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("failed to initialize search path: %w", err)
	}

	atomic.AddUint64(&p.connRequests, 1)
	return h, nil
}

// Stats returns the number of connection requests and returns.
func (p *postgresPool) Stats() (requests, returns uint64) {
	return atomic.LoadUint64(&p.connRequests), atomic.LoadUint64(&p.connReturns)
}

// OpenConns returns the number of open connections in the pool.
func (p *postgresPool) OpenConns() int {
	return p.db.Stats().OpenConnections
}

// Close resets the search path and returns the connection to the pool.
// Teardown is not skippable: even if the reset fails the connection is
// closed rather than returned with a stale binding.
func (h *postgresConn) Close(ctx context.Context) {
	if h.conn == nil {
		return
	}

	if err := h.ResetSearchPath(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to reset search path during connection close")
	}

	h.conn.Close()
	if h.cancel != nil {
		h.cancel()
	}

	atomic.AddUint64(&h.pool.connReturns, 1)
}

// SetSearchPath binds the connection to the given schemas. Every name is
// validated and quoted; an invalid name fails the whole call before any
// session state changes.
func (h *postgresConn) SetSearchPath(ctx context.Context, schemas ...string) error {
	if h.conn == nil {
		return fmt.Errorf("no active connection")
	}
	if len(schemas) == 0 {
		return fmt.Errorf("search path requires at least one schema")
	}

	quoted := make([]string, 0, len(schemas))
	for _, schema := range schemas {
		if !tencommon.ValidSchemaName(schema) && schema != h.defaultSchema {
			return fmt.Errorf("invalid schema name: %s", schema)
		}
		quoted = append(quoted, pq.QuoteIdentifier(schema))
	}

	query := "SET search_path TO " + strings.Join(quoted, ", ")
	if _, err := h.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to set search path: %w", err)
	}

	h.searchPath = append([]string(nil), schemas...)
	return nil
}

// SearchPath returns the currently bound schemas.
func (h *postgresConn) SearchPath() []string {
	return append([]string(nil), h.searchPath...)
}

// ResetSearchPath binds the connection to the configured default schema
// alone. The session default ("$user", public) is never used: catalog
// lookups and unscoped work must run on the same schema tenant-scoped binds
// fall back to, whatever default_schema is configured as.
func (h *postgresConn) ResetSearchPath(ctx context.Context) error {
	if h.conn == nil {
		return nil
	}

	query := "SET search_path TO " + pq.QuoteIdentifier(h.defaultSchema)
	if _, err := h.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to reset search path: %w", err)
	}
	h.searchPath = []string{h.defaultSchema}
	return nil
}

// Conn returns the underlying connection.
func (h *postgresConn) Conn() *sql.Conn {
	return h.conn
}
