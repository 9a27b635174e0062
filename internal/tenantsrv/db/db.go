// Package db provides the database access layer for the tenancy service.
// It defines three interfaces:
// - MetadataManager: tenant and domain catalog operations
// - SchemaManager: physical schema DDL (exists/create/rename/drop)
// - ConnectionManager: per-unit-of-work connection and search-path scoping
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/apperrors"
	"github.com/tenantd/tenantd/internal/tenantsrv/config"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dbmanager"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/models"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/postgresql"
	"github.com/tenantd/tenantd/internal/tenantsrv/tencommon"
)

// MetadataManager handles tenant and domain catalog rows. The catalog always
// lives in the default schema; operations here never touch tenant schemas.
type MetadataManager interface {
	// Tenant catalog
	CreateTenant(ctx context.Context, tenant *models.Tenant) apperrors.Error
	CreateTenantWithTransaction(ctx context.Context, tx *sql.Tx, tenant *models.Tenant) apperrors.Error
	GetTenant(ctx context.Context, name string) (*models.Tenant, apperrors.Error)
	ListTenants(ctx context.Context) ([]*models.Tenant, apperrors.Error)
	SetTenantDeactivated(ctx context.Context, name string, deactivated bool) apperrors.Error
	DeleteTenantWithTransaction(ctx context.Context, tx *sql.Tx, name string) apperrors.Error

	// Domain catalog
	CreateDomain(ctx context.Context, domain *models.Domain) apperrors.Error
	GetDomainByName(ctx context.Context, domainName string) (*models.Domain, apperrors.Error)
	ListDomainsByTenant(ctx context.Context, tenantName string) ([]*models.Domain, apperrors.Error)
	SetPrimaryDomain(ctx context.Context, tenantName, domainName string) apperrors.Error
	DeleteDomain(ctx context.Context, domainName string) apperrors.Error
	DeleteDomainsByTenantWithTransaction(ctx context.Context, tx *sql.Tx, tenantName string) apperrors.Error
}

// SchemaManager executes schema DDL. Single-operation methods run their own
// short transaction; WithTransaction variants participate in the caller's,
// which is how the lifecycle orchestrator keeps catalog rows and DDL atomic.
type SchemaManager interface {
	SchemaExists(ctx context.Context, name string) (bool, apperrors.Error)
	CreateSchema(ctx context.Context, name string, provision tencommon.TableProvisioner) apperrors.Error
	RenameSchema(ctx context.Context, oldName, newName string) apperrors.Error
	DropSchema(ctx context.Context, name string) apperrors.Error

	SchemaExistsWithTransaction(ctx context.Context, tx *sql.Tx, name string) (bool, apperrors.Error)
	CreateSchemaWithTransaction(ctx context.Context, tx *sql.Tx, name string, provision tencommon.TableProvisioner) apperrors.Error
	RenameSchemaWithTransaction(ctx context.Context, tx *sql.Tx, oldName, newName string) apperrors.Error
	DropSchemaWithTransaction(ctx context.Context, tx *sql.Tx, name string) apperrors.Error
	AcquireTenantDDLLock(ctx context.Context, tx *sql.Tx, name string) apperrors.Error
}

// ConnectionManager handles the unit of work's connection: search-path
// binding, transactions, and teardown.
type ConnectionManager interface {
	SetSearchPath(ctx context.Context, schemas ...string) error
	ResetSearchPath(ctx context.Context) error
	SearchPath() []string
	BeginTx(ctx context.Context) (*sql.Tx, apperrors.Error)

	// Close resets the search path and returns the connection to the pool.
	Close(ctx context.Context)
}

// Database combines the three managers into the unit-of-work interface
// handed to request handlers.
type Database interface {
	MetadataManager
	SchemaManager
	ConnectionManager
}

var pool dbmanager.ScopedDb

// Init initializes the database connection pool. Must be called after config
// is loaded and before any connection is requested.
func Init() {
	ctx := log.Logger.WithContext(context.Background())
	pg := dbmanager.NewScopedDb(ctx, "postgresql", config.Config().Tenancy.DefaultSchema)
	if pg == nil {
		panic("unable to create db pool")
	}
	pool = pg
}

// Conn returns a new scoped database connection from the pool.
func Conn(ctx context.Context) (dbmanager.ScopedConn, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to get db connection")
		return nil, err
	}
	return conn, nil
}

type ctxDbKeyType string

const ctxDbKey ctxDbKeyType = "TenantCatalogDb"

// ConnCtx adds a scoped database connection to the context.
func ConnCtx(ctx context.Context) (context.Context, error) {
	conn, err := Conn(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, ctxDbKey, conn), nil
}

type tenantCatalogDb struct {
	MetadataManager
	SchemaManager
	ConnectionManager
}

// DB returns the unit of work's database instance from the context. Returns
// nil if no connection was loaded into the context.
func DB(ctx context.Context) Database {
	if conn, ok := ctx.Value(ctxDbKey).(dbmanager.ScopedConn); ok {
		mm, sm, cm := postgresql.NewTenantCatalogDb(conn)
		return &tenantCatalogDb{
			MetadataManager:   mm,
			SchemaManager:     sm,
			ConnectionManager: cm,
		}
	}
	log.Ctx(ctx).Error().Msg("unable to get db connection from context")
	return nil
}

// EnsureCatalog creates the tenant catalog tables in the default schema if
// they do not exist. The domains FK is deferrable so a schema rename can
// update tenants and domains rows in one transaction.
func EnsureCatalog(ctx context.Context) error {
	conn, err := Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	ddl := []string{`
		CREATE TABLE IF NOT EXISTS tenants (
			name varchar(63) PRIMARY KEY,
			deactivated boolean NOT NULL DEFAULT false,
			info jsonb,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		);`, `
		CREATE TABLE IF NOT EXISTS domains (
			domain_id uuid PRIMARY KEY,
			tenant_name varchar(63) NOT NULL
				REFERENCES tenants(name) DEFERRABLE INITIALLY DEFERRED,
			domain_name varchar(255) NOT NULL UNIQUE,
			is_primary boolean NOT NULL DEFAULT false,
			created_at timestamptz NOT NULL DEFAULT now()
		);`, `
		CREATE INDEX IF NOT EXISTS domains_tenant_name_idx ON domains (tenant_name);`,
	}

	for _, stmt := range ddl {
		if _, err := conn.Conn().ExecContext(ctx, stmt); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to ensure tenant catalog tables")
			return err
		}
	}
	return nil
}
