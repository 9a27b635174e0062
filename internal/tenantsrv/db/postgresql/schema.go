package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/apperrors"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/tencommon"
)

// The schema manager is a stateless executor of schema DDL. Single-operation
// methods run their own short transaction; the WithTransaction variants run
// inside a caller's transaction so the lifecycle orchestrator can commit
// catalog rows and DDL together. Postgres DDL on schemas is transactional,
// which is what makes the atomicity guarantees below possible.

// queryRower is satisfied by both *sql.Conn and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SchemaExists reports whether a schema with the given name exists. Absence
// is not an error; only connectivity failures are.
func (sm *schemaManager) SchemaExists(ctx context.Context, name string) (bool, apperrors.Error) {
	return schemaExists(ctx, sm.conn(), name)
}

// SchemaExistsWithTransaction is SchemaExists inside a caller transaction.
func (sm *schemaManager) SchemaExistsWithTransaction(ctx context.Context, tx *sql.Tx, name string) (bool, apperrors.Error) {
	return schemaExists(ctx, tx, name)
}

func schemaExists(ctx context.Context, q queryRower, name string) (bool, apperrors.Error) {
	if !tencommon.ValidSchemaName(name) {
		return false, dberror.ErrInvalidInput.Msg("invalid schema name")
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM pg_catalog.pg_namespace WHERE nspname = $1
		);
	`
	var exists bool
	if err := q.QueryRowContext(ctx, query, name).Scan(&exists); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("schema", name).Msg("failed to check schema existence")
		return false, dberror.ErrDatabase.Err(err)
	}
	return exists, nil
}

// CreateSchema creates the schema and provisions its tenant table set in one
// transaction. A tenant never observes a schema without its required tables:
// if provisioning fails, the schema creation rolls back with it.
func (sm *schemaManager) CreateSchema(ctx context.Context, name string, provision tencommon.TableProvisioner) (err apperrors.Error) {
	tx, errdb := sm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return dberror.ErrSchemaCreation.Err(errdb)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = sm.CreateSchemaWithTransaction(ctx, tx, name, provision); err != nil {
		return err
	}

	if errdb = tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("schema", name).Msg("failed to commit schema creation")
		return dberror.ErrSchemaCreation.Err(errdb)
	}
	return nil
}

// CreateSchemaWithTransaction creates the schema and provisions its tables
// inside the caller's transaction. Fails with ErrSchemaAlreadyExists if the
// schema is present, ErrTableCreation if provisioning fails.
func (sm *schemaManager) CreateSchemaWithTransaction(ctx context.Context, tx *sql.Tx, name string, provision tencommon.TableProvisioner) apperrors.Error {
	exists, err := schemaExists(ctx, tx, name)
	if err != nil {
		return err
	}
	if exists {
		return dberror.ErrSchemaAlreadyExists.Msg("schema already exists: " + name)
	}

	if _, errdb := tx.ExecContext(ctx, "CREATE SCHEMA "+pq.QuoteIdentifier(name)); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("schema", name).Msg("failed to create schema")
		return dberror.ErrSchemaCreation.Err(errdb)
	}

	if provision != nil {
		if errdb := provision(ctx, tx, name); errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Str("schema", name).Msg("failed to provision tenant tables")
			return dberror.ErrTableCreation.Err(errdb)
		}
	}

	log.Ctx(ctx).Info().Str("schema", name).Msg("schema created")
	return nil
}

// RenameSchema renames the physical schema and updates every catalog row
// denormalizing the old name in one transaction, so catalog and schema never
// disagree after the operation completes.
func (sm *schemaManager) RenameSchema(ctx context.Context, oldName, newName string) (err apperrors.Error) {
	tx, errdb := sm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return dberror.ErrSchemaRename.Err(errdb)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = sm.RenameSchemaWithTransaction(ctx, tx, oldName, newName); err != nil {
		return err
	}

	if errdb = tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("schema", oldName).Msg("failed to commit schema rename")
		return dberror.ErrSchemaRename.Err(errdb)
	}
	return nil
}

// RenameSchemaWithTransaction performs the rename inside the caller's
// transaction: ALTER SCHEMA, then the tenants row, then the domains rows
// referencing the tenant by name. Any failure rolls all three back through
// the caller's transaction.
func (sm *schemaManager) RenameSchemaWithTransaction(ctx context.Context, tx *sql.Tx, oldName, newName string) apperrors.Error {
	exists, err := schemaExists(ctx, tx, oldName)
	if err != nil {
		return err
	}
	if !exists {
		return dberror.ErrSchemaDoesNotExist.Msg("schema does not exist: " + oldName)
	}

	exists, err = schemaExists(ctx, tx, newName)
	if err != nil {
		return err
	}
	if exists {
		return dberror.ErrSchemaAlreadyExists.Msg("schema already exists: " + newName)
	}

	query := fmt.Sprintf("ALTER SCHEMA %s RENAME TO %s",
		pq.QuoteIdentifier(oldName), pq.QuoteIdentifier(newName))
	if _, errdb := tx.ExecContext(ctx, query); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("old", oldName).Str("new", newName).Msg("failed to rename schema")
		return dberror.ErrSchemaRename.Err(errdb)
	}

	// Catalog rows denormalizing the schema name. The domains FK to
	// tenants(name) is deferred, so the intermediate state inside the
	// transaction is allowed.
	if _, errdb := tx.ExecContext(ctx, `
		UPDATE tenants SET name = $2, updated_at = now() WHERE name = $1;
	`, oldName, newName); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("old", oldName).Msg("failed to update tenant catalog row")
		return dberror.ErrSchemaRename.Err(errdb)
	}

	if _, errdb := tx.ExecContext(ctx, `
		UPDATE domains SET tenant_name = $2 WHERE tenant_name = $1;
	`, oldName, newName); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("old", oldName).Msg("failed to update domain catalog rows")
		return dberror.ErrSchemaRename.Err(errdb)
	}

	log.Ctx(ctx).Info().Str("old", oldName).Str("new", newName).Msg("schema renamed")
	return nil
}

// DropSchema drops the schema and everything inside it. Dropping a schema
// that does not exist is an error, for symmetry with create and rename.
func (sm *schemaManager) DropSchema(ctx context.Context, name string) (err apperrors.Error) {
	tx, errdb := sm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return dberror.ErrSchemaDrop.Err(errdb)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = sm.DropSchemaWithTransaction(ctx, tx, name); err != nil {
		return err
	}

	if errdb = tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("schema", name).Msg("failed to commit schema drop")
		return dberror.ErrSchemaDrop.Err(errdb)
	}
	return nil
}

// DropSchemaWithTransaction drops the schema inside the caller's transaction.
func (sm *schemaManager) DropSchemaWithTransaction(ctx context.Context, tx *sql.Tx, name string) apperrors.Error {
	exists, err := schemaExists(ctx, tx, name)
	if err != nil {
		return err
	}
	if !exists {
		return dberror.ErrSchemaDoesNotExist.Msg("schema does not exist: " + name)
	}

	if _, errdb := tx.ExecContext(ctx, "DROP SCHEMA "+pq.QuoteIdentifier(name)+" CASCADE"); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("schema", name).Msg("failed to drop schema")
		return dberror.ErrSchemaDrop.Err(errdb)
	}

	log.Ctx(ctx).Info().Str("schema", name).Msg("schema dropped")
	return nil
}

// AcquireTenantDDLLock takes a transaction-scoped advisory lock keyed by the
// tenant name. Postgres serializes DDL on the same namespace through its own
// locking; this lock additionally queues whole lifecycle operations, so a
// rename never interleaves with a drop for the same tenant.
func (sm *schemaManager) AcquireTenantDDLLock(ctx context.Context, tx *sql.Tx, name string) apperrors.Error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", tenantLockKey(name)); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("tenant", name).Msg("failed to acquire tenant DDL lock")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// tenantLockKey hashes a tenant name into the bigint key space used by
// pg_advisory_xact_lock.
func tenantLockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
