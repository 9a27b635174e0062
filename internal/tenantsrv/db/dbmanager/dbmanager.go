// Package dbmanager manages the PostgreSQL connection pool and the
// search-path scoping of individual connections. Every unit of work draws
// one connection, binds it to its tenant's schema, and hands it back with
// the binding removed; a connection never leaves the pool carrying a
// previous unit of work's search path.
package dbmanager

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
)

// ScopedDb is a connection pool whose connections carry a managed schema
// search path.
type ScopedDb interface {
	// Conn returns a new connection with the search path reset to the
	// default schema, regardless of what any previous user set.
	Conn(ctx context.Context) (ScopedConn, error)
	// Stats returns the number of connection requests and returns.
	Stats() (requests, returns uint64)
}

// ScopedConn is a single database connection bound to at most one schema
// search path at a time. It is not concurrency safe: one unit of work owns
// the connection and uses it from a single goroutine, which is also what
// makes the search path safe as per-connection session state.
type ScopedConn interface {
	// SetSearchPath binds the connection to the given schemas in order,
	// e.g. [tenant, default] for tenant-scoped work or [default] otherwise.
	SetSearchPath(ctx context.Context, schemas ...string) error
	// SearchPath returns the currently bound schemas.
	SearchPath() []string
	// ResetSearchPath restores the connection's search path to the
	// configured default schema.
	ResetSearchPath(ctx context.Context) error
	// Conn returns the underlying *sql.Conn. Do not close it directly;
	// use Close so the search path is reset before the pool reuses it.
	Conn() *sql.Conn
	// Close resets the search path and returns the connection to the pool.
	Close(ctx context.Context)
}

// NewScopedDb returns a ScopedDb for the given database type. Only
// postgresql is supported; schema-per-tenant isolation needs real schemas.
func NewScopedDb(ctx context.Context, dbtype string, defaultSchema string) ScopedDb {
	switch dbtype {
	case "postgresql":
		db, err := NewPostgresqlDb(defaultSchema)
		if err != nil || db == nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to create PostgreSQL DB")
			return nil
		}
		return db
	}
	return nil
}
