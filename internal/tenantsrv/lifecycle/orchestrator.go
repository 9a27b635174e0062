// Package lifecycle keeps physical schemas in lockstep with tenant catalog
// mutations. The orchestrator runs as a pre-commit hook inside the catalog
// transaction: schema DDL and catalog rows commit or roll back together.
package lifecycle

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/apperrors"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/tencommon"
)

// SchemaStore is the DDL surface the orchestrator drives. The db package's
// SchemaManager satisfies it.
type SchemaStore interface {
	CreateSchemaWithTransaction(ctx context.Context, tx *sql.Tx, name string, provision tencommon.TableProvisioner) apperrors.Error
	RenameSchemaWithTransaction(ctx context.Context, tx *sql.Tx, oldName, newName string) apperrors.Error
	DropSchemaWithTransaction(ctx context.Context, tx *sql.Tx, name string) apperrors.Error
	AcquireTenantDDLLock(ctx context.Context, tx *sql.Tx, name string) apperrors.Error
}

// DomainCatalog is the slice of the metadata catalog the orchestrator needs
// when a tenant is deleted.
type DomainCatalog interface {
	DeleteDomainsByTenantWithTransaction(ctx context.Context, tx *sql.Tx, tenantName string) apperrors.Error
}

// Config carries the orchestrator's explicit dependencies. There is no
// process-wide registry; every orchestrator instance owns its configuration.
type Config struct {
	// DefaultSchema is never created, renamed, or dropped by the
	// orchestrator.
	DefaultSchema string

	// Provisioner creates the tenant table set inside a freshly created
	// schema. May be nil when schemas start empty.
	Provisioner tencommon.TableProvisioner
}

type Orchestrator struct {
	cfg     Config
	store   SchemaStore
	catalog DomainCatalog
}

func New(cfg Config, store SchemaStore, catalog DomainCatalog) *Orchestrator {
	return &Orchestrator{cfg: cfg, store: store, catalog: catalog}
}

// BeforeCommit applies the pending changes' schema DDL inside tx, in order:
// creates, then renames, then deletes. Any error aborts the whole batch; the
// caller must roll back tx. The guard must be the transaction's own and is
// consulted and updated for every rename.
func (o *Orchestrator) BeforeCommit(ctx context.Context, tx *sql.Tx, changes *PendingChanges, guard *RenameGuard) apperrors.Error {
	if changes == nil || changes.Empty() {
		return nil
	}

	for _, name := range changes.Created {
		if name == o.cfg.DefaultSchema {
			continue
		}
		if err := o.store.AcquireTenantDDLLock(ctx, tx, name); err != nil {
			return err
		}
		if err := o.store.CreateSchemaWithTransaction(ctx, tx, name, o.cfg.Provisioner); err != nil {
			return err
		}
	}

	for _, change := range changes.Renamed {
		if err := o.renameOne(ctx, tx, change, guard); err != nil {
			return err
		}
	}

	for _, name := range changes.Deleted {
		if name == o.cfg.DefaultSchema {
			log.Ctx(ctx).Warn().Str("schema", name).Msg("refusing to drop the default schema")
			continue
		}
		if err := o.store.AcquireTenantDDLLock(ctx, tx, name); err != nil {
			return err
		}
		if err := o.catalog.DeleteDomainsByTenantWithTransaction(ctx, tx, name); err != nil {
			return err
		}
		if err := o.store.DropSchemaWithTransaction(ctx, tx, name); err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) renameOne(ctx context.Context, tx *sql.Tx, change NameChange, guard *RenameGuard) apperrors.Error {
	if change.Prior == change.Current {
		return nil
	}
	if change.Prior == o.cfg.DefaultSchema || change.Current == o.cfg.DefaultSchema {
		return dberror.ErrSchemaRename.Msg("the default schema cannot take part in a rename")
	}
	if guard.Renamed(change.Prior) {
		// Duplicate notification for a rename already applied in this
		// transaction.
		log.Ctx(ctx).Debug().Str("old", change.Prior).Msg("rename already applied, skipping")
		return nil
	}
	if guard.IsTarget(change.Prior) {
		return dberror.ErrSchemaRename.Msg(
			"multi-hop rename rejected: " + change.Prior + " is the target of an earlier rename in this transaction")
	}

	if err := o.store.AcquireTenantDDLLock(ctx, tx, change.Prior); err != nil {
		return err
	}
	if err := o.store.RenameSchemaWithTransaction(ctx, tx, change.Prior, change.Current); err != nil {
		return err
	}
	guard.Record(change.Prior, change.Current)
	return nil
}

// AfterCommit reports the outcome of a committed batch. It must not touch
// the database; the transaction is gone.
func (o *Orchestrator) AfterCommit(ctx context.Context, changes *PendingChanges) {
	if changes == nil || changes.Empty() {
		return
	}
	log.Ctx(ctx).Info().
		Int("created", len(changes.Created)).
		Int("renamed", len(changes.Renamed)).
		Int("deleted", len(changes.Deleted)).
		Msg("tenant schema changes committed")
}
