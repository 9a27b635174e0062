// Package tenantmanager implements the tenant mutation path: catalog writes
// and the lifecycle hooks that keep physical schemas in lockstep with them.
// Every mutation runs in a single transaction on the unit of work's scoped
// connection; schema DDL and catalog rows commit or roll back together.
package tenantmanager

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/apperrors"
	"github.com/tenantd/tenantd/internal/tenantsrv/db"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/models"
	"github.com/tenantd/tenantd/internal/tenantsrv/lifecycle"
	"github.com/tenantd/tenantd/internal/tenantsrv/tencommon"
)

// Manager carries the lifecycle configuration. The database connection is
// per unit of work and comes from the context; the orchestrator is built
// fresh around it for every mutation.
type Manager struct {
	lcfg lifecycle.Config
}

func New(defaultSchema string, provisioner tencommon.TableProvisioner) *Manager {
	return &Manager{
		lcfg: lifecycle.Config{
			DefaultSchema: defaultSchema,
			Provisioner:   provisioner,
		},
	}
}

// CreateTenant inserts the catalog row and creates + provisions the tenant's
// schema in one transaction.
func (m *Manager) CreateTenant(ctx context.Context, tenant *models.Tenant) apperrors.Error {
	return m.mutate(ctx, func(dbi db.Database, tx *sql.Tx, changes *lifecycle.PendingChanges) apperrors.Error {
		if err := dbi.CreateTenantWithTransaction(ctx, tx, tenant); err != nil {
			return err
		}
		changes.AddCreated(tenant)
		return nil
	})
}

// RenameTenant renames the tenant's schema and updates the catalog rows
// denormalizing the old name, all in one transaction.
func (m *Manager) RenameTenant(ctx context.Context, oldName, newName string) apperrors.Error {
	if !tencommon.ValidSchemaName(newName) {
		return dberror.ErrInvalidInput.Msg("tenant name is not a valid schema identifier")
	}
	return m.mutate(ctx, func(dbi db.Database, tx *sql.Tx, changes *lifecycle.PendingChanges) apperrors.Error {
		if _, err := dbi.GetTenant(ctx, oldName); err != nil {
			return err
		}
		// The catalog row updates ride along with the schema rename inside
		// the lifecycle hook.
		changes.AddRenamed(oldName, &models.Tenant{Name: newName})
		return nil
	})
}

// DeleteTenant removes the tenant's domain rows, catalog row, and schema in
// one transaction. A tenant whose schema is already gone is a hard error;
// losing a schema out from under the catalog means operator intervention,
// not silent cleanup.
func (m *Manager) DeleteTenant(ctx context.Context, name string) apperrors.Error {
	return m.mutate(ctx, func(dbi db.Database, tx *sql.Tx, changes *lifecycle.PendingChanges) apperrors.Error {
		tenant, err := dbi.GetTenant(ctx, name)
		if err != nil {
			return err
		}
		changes.AddDeleted(tenant)
		if err := dbi.DeleteDomainsByTenantWithTransaction(ctx, tx, name); err != nil {
			return err
		}
		return dbi.DeleteTenantWithTransaction(ctx, tx, name)
	})
}

// SetTenantDeactivated flips the admission flag; no schema DDL is involved.
func (m *Manager) SetTenantDeactivated(ctx context.Context, name string, deactivated bool) apperrors.Error {
	return db.DB(ctx).SetTenantDeactivated(ctx, name, deactivated)
}

func (m *Manager) GetTenant(ctx context.Context, name string) (*models.Tenant, apperrors.Error) {
	return db.DB(ctx).GetTenant(ctx, name)
}

func (m *Manager) ListTenants(ctx context.Context) ([]*models.Tenant, apperrors.Error) {
	return db.DB(ctx).ListTenants(ctx)
}

// CreateDomain registers a custom domain for a tenant.
func (m *Manager) CreateDomain(ctx context.Context, domain *models.Domain) apperrors.Error {
	if err := db.DB(ctx).CreateDomain(ctx, domain); err != nil {
		return err
	}
	if domain.IsPrimary {
		return db.DB(ctx).SetPrimaryDomain(ctx, domain.TenantName, domain.DomainName)
	}
	return nil
}

func (m *Manager) DeleteDomain(ctx context.Context, domainName string) apperrors.Error {
	return db.DB(ctx).DeleteDomain(ctx, domainName)
}

func (m *Manager) SetPrimaryDomain(ctx context.Context, tenantName, domainName string) apperrors.Error {
	return db.DB(ctx).SetPrimaryDomain(ctx, tenantName, domainName)
}

func (m *Manager) ListDomainsByTenant(ctx context.Context, tenantName string) ([]*models.Domain, apperrors.Error) {
	return db.DB(ctx).ListDomainsByTenant(ctx, tenantName)
}

// mutate runs one catalog mutation plus its lifecycle hooks in a single
// transaction: stage catalog changes, BeforeCommit applies the schema DDL,
// commit, then AfterCommit for post-commit reporting.
func (m *Manager) mutate(ctx context.Context, stage func(db.Database, *sql.Tx, *lifecycle.PendingChanges) apperrors.Error) (err apperrors.Error) {
	dbi := db.DB(ctx)
	if dbi == nil {
		return dberror.ErrDatabase.Msg("no database connection in context")
	}

	tx, err := dbi.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	changes := &lifecycle.PendingChanges{}
	if err = stage(dbi, tx, changes); err != nil {
		return err
	}

	orchestrator := lifecycle.New(m.lcfg, dbi, dbi)
	guard := lifecycle.NewRenameGuard()
	if err = orchestrator.BeforeCommit(ctx, tx, changes, guard); err != nil {
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit tenant mutation")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	orchestrator.AfterCommit(ctx, changes)
	return nil
}
