package db

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantd/tenantd/internal/tenantsrv/config"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/models"
)

var initOnce sync.Once

func newDb(c ...context.Context) context.Context {
	initOnce.Do(func() {
		config.TestInit()
		Init()
		if err := EnsureCatalog(context.Background()); err != nil {
			panic(err)
		}
	})
	var ctx context.Context
	var err error
	if len(c) > 0 {
		ctx, err = ConnCtx(c[0])
	} else {
		ctx, err = ConnCtx(context.Background())
	}
	if err != nil {
		log.Ctx(ctx).Fatal().Err(err).Msg("unable to get db connection")
	}
	return ctx
}

// deleteTenantRow is test cleanup: remove the catalog row regardless of
// domains or schema state.
func deleteTenantRow(ctx context.Context, name string) {
	tx, err := DB(ctx).BeginTx(ctx)
	if err != nil {
		return
	}
	DB(ctx).DeleteDomainsByTenantWithTransaction(ctx, tx, name)
	if err := DB(ctx).DeleteTenantWithTransaction(ctx, tx, name); err != nil {
		tx.Rollback()
		return
	}
	tx.Commit()
}

func dropSchemaIfExists(ctx context.Context, name string) {
	if exists, _ := DB(ctx).SchemaExists(ctx, name); exists {
		DB(ctx).DropSchema(ctx, name)
	}
}

func TestCreateTenant(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	defer DB(ctx).Close(ctx)

	tenant := &models.Tenant{Name: "t_create_test"}
	defer deleteTenantRow(ctx, tenant.Name)

	err := DB(ctx).CreateTenant(ctx, tenant)
	assert.NoError(t, err)
	assert.False(t, tenant.CreatedAt.IsZero())

	// Creating the same tenant again should return ErrAlreadyExists
	err = DB(ctx).CreateTenant(ctx, &models.Tenant{Name: "t_create_test"})
	assert.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)

	// A name that is not a valid schema identifier is rejected
	err = DB(ctx).CreateTenant(ctx, &models.Tenant{Name: "bad name"})
	assert.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrInvalidInput)
}

func TestGetTenant(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	defer DB(ctx).Close(ctx)

	tenant := &models.Tenant{Name: "t_get_test"}
	defer deleteTenantRow(ctx, tenant.Name)

	err := DB(ctx).CreateTenant(ctx, tenant)
	require.NoError(t, err)

	got, err := DB(ctx).GetTenant(ctx, tenant.Name)
	assert.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tenant.Name, got.Name)
	assert.False(t, got.Deactivated)

	got, err = DB(ctx).GetTenant(ctx, "no_such_tenant")
	assert.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, dberror.ErrTenantNotFound)
}

func TestSetTenantDeactivated(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	defer DB(ctx).Close(ctx)

	tenant := &models.Tenant{Name: "t_deact_test"}
	defer deleteTenantRow(ctx, tenant.Name)

	require.NoError(t, DB(ctx).CreateTenant(ctx, tenant))

	assert.NoError(t, DB(ctx).SetTenantDeactivated(ctx, tenant.Name, true))
	got, err := DB(ctx).GetTenant(ctx, tenant.Name)
	require.NoError(t, err)
	assert.True(t, got.Deactivated)

	assert.NoError(t, DB(ctx).SetTenantDeactivated(ctx, tenant.Name, false))
	got, err = DB(ctx).GetTenant(ctx, tenant.Name)
	require.NoError(t, err)
	assert.False(t, got.Deactivated)

	err = DB(ctx).SetTenantDeactivated(ctx, "no_such_tenant", true)
	assert.ErrorIs(t, err, dberror.ErrTenantNotFound)
}

func TestSchemaLifecycle(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	defer DB(ctx).Close(ctx)

	name := "t_schema_test"
	renamed := "t_schema_test_renamed"
	defer dropSchemaIfExists(ctx, name)
	defer dropSchemaIfExists(ctx, renamed)
	defer deleteTenantRow(ctx, name)
	defer deleteTenantRow(ctx, renamed)

	exists, err := DB(ctx).SchemaExists(ctx, name)
	require.NoError(t, err)
	require.False(t, exists)

	// Create with a provisioner so the schema comes up with its table set
	provision := func(ctx context.Context, tx *sql.Tx, schemaName string) error {
		_, errdb := tx.ExecContext(ctx, "CREATE TABLE "+schemaName+".widgets (id serial PRIMARY KEY, label text)")
		return errdb
	}
	require.NoError(t, DB(ctx).CreateSchema(ctx, name, provision))

	exists, err = DB(ctx).SchemaExists(ctx, name)
	require.NoError(t, err)
	assert.True(t, exists)

	// Creating it again should fail
	err = DB(ctx).CreateSchema(ctx, name, nil)
	assert.ErrorIs(t, err, dberror.ErrSchemaAlreadyExists)

	// Rename carries the catalog row along
	require.NoError(t, DB(ctx).CreateTenant(ctx, &models.Tenant{Name: name}))
	require.NoError(t, DB(ctx).RenameSchema(ctx, name, renamed))

	exists, err = DB(ctx).SchemaExists(ctx, name)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = DB(ctx).SchemaExists(ctx, renamed)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = DB(ctx).GetTenant(ctx, name)
	assert.ErrorIs(t, err, dberror.ErrTenantNotFound)
	got, err := DB(ctx).GetTenant(ctx, renamed)
	assert.NoError(t, err)
	assert.Equal(t, renamed, got.Name)

	// Renaming a missing schema is an error
	err = DB(ctx).RenameSchema(ctx, name, "t_other")
	assert.ErrorIs(t, err, dberror.ErrSchemaDoesNotExist)

	// Drop, then drop again
	require.NoError(t, DB(ctx).DropSchema(ctx, renamed))
	err = DB(ctx).DropSchema(ctx, renamed)
	assert.ErrorIs(t, err, dberror.ErrSchemaDoesNotExist)
}

func TestCreateSchemaProvisionFailureRollsBack(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	defer DB(ctx).Close(ctx)

	name := "t_provision_fail"
	defer dropSchemaIfExists(ctx, name)

	provision := func(ctx context.Context, tx *sql.Tx, schemaName string) error {
		_, errdb := tx.ExecContext(ctx, "CREATE TABLE this is not sql")
		return errdb
	}
	err := DB(ctx).CreateSchema(ctx, name, provision)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrTableCreation)

	// The schema creation rolled back with the failed provisioning
	exists, serr := DB(ctx).SchemaExists(ctx, name)
	require.NoError(t, serr)
	assert.False(t, exists)
}

func TestSearchPathScoping(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	defer DB(ctx).Close(ctx)

	name := "t_scope_test"
	defer dropSchemaIfExists(ctx, name)
	require.NoError(t, DB(ctx).CreateSchema(ctx, name, nil))

	require.NoError(t, DB(ctx).SetSearchPath(ctx, name, "public"))
	assert.Equal(t, []string{name, "public"}, DB(ctx).SearchPath())

	// Invalid schema names never make it into the session
	err := DB(ctx).SetSearchPath(ctx, "bad name")
	assert.Error(t, err)

	// Reset binds the configured default schema, not the session default.
	require.NoError(t, DB(ctx).ResetSearchPath(ctx))
	assert.Equal(t, []string{config.Config().Tenancy.DefaultSchema}, DB(ctx).SearchPath())
}

func TestFreshConnectionHasDefaultSearchPath(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)

	name := "t_leak_test"
	defer func() {
		cleanupCtx := newDb(log.Logger.WithContext(context.Background()))
		dropSchemaIfExists(cleanupCtx, name)
		DB(cleanupCtx).Close(cleanupCtx)
	}()

	require.NoError(t, DB(ctx).CreateSchema(ctx, name, nil))
	require.NoError(t, DB(ctx).SetSearchPath(ctx, name, "public"))
	DB(ctx).Close(ctx)

	// A new unit of work must never observe the previous one's binding; it
	// comes up on the default schema alone.
	ctx2 := newDb(log.Logger.WithContext(context.Background()))
	defer DB(ctx2).Close(ctx2)
	assert.Equal(t, []string{config.Config().Tenancy.DefaultSchema}, DB(ctx2).SearchPath())
}

func TestDomains(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	defer DB(ctx).Close(ctx)

	tenant := &models.Tenant{Name: "t_domain_test"}
	defer deleteTenantRow(ctx, tenant.Name)
	require.NoError(t, DB(ctx).CreateTenant(ctx, tenant))

	domain := &models.Domain{
		TenantName: tenant.Name,
		DomainName: "shop.t-domain-test.io",
	}
	err := DB(ctx).CreateDomain(ctx, domain)
	require.NoError(t, err)
	assert.NotEmpty(t, domain.DomainID)

	// Same domain name again conflicts
	err = DB(ctx).CreateDomain(ctx, &models.Domain{
		TenantName: tenant.Name,
		DomainName: "shop.t-domain-test.io",
	})
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)

	// Domain for a missing tenant violates the FK
	err = DB(ctx).CreateDomain(ctx, &models.Domain{
		TenantName: "no_such_tenant",
		DomainName: "orphan.t-domain-test.io",
	})
	assert.ErrorIs(t, err, dberror.ErrTenantNotFound)

	got, err := DB(ctx).GetDomainByName(ctx, "shop.t-domain-test.io")
	require.NoError(t, err)
	assert.Equal(t, tenant.Name, got.TenantName)

	_, err = DB(ctx).GetDomainByName(ctx, "unknown.t-domain-test.io")
	assert.ErrorIs(t, err, dberror.ErrNotFound)

	// Second domain, then flip primary between them
	second := &models.Domain{
		TenantName: tenant.Name,
		DomainName: "www.t-domain-test.io",
	}
	require.NoError(t, DB(ctx).CreateDomain(ctx, second))

	require.NoError(t, DB(ctx).SetPrimaryDomain(ctx, tenant.Name, second.DomainName))
	domains, err := DB(ctx).ListDomainsByTenant(ctx, tenant.Name)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, second.DomainName, domains[0].DomainName)
	assert.True(t, domains[0].IsPrimary)
	assert.False(t, domains[1].IsPrimary)

	require.NoError(t, DB(ctx).SetPrimaryDomain(ctx, tenant.Name, domain.DomainName))
	domains, err = DB(ctx).ListDomainsByTenant(ctx, tenant.Name)
	require.NoError(t, err)
	assert.Equal(t, domain.DomainName, domains[0].DomainName)

	err = DB(ctx).SetPrimaryDomain(ctx, tenant.Name, "unknown.t-domain-test.io")
	assert.ErrorIs(t, err, dberror.ErrNotFound)

	// Deleting an absent domain is fine; deleting a present one removes it
	assert.NoError(t, DB(ctx).DeleteDomain(ctx, "unknown.t-domain-test.io"))
	assert.NoError(t, DB(ctx).DeleteDomain(ctx, second.DomainName))
	domains, err = DB(ctx).ListDomainsByTenant(ctx, tenant.Name)
	require.NoError(t, err)
	assert.Len(t, domains, 1)
}

func TestDeleteTenantWithDomains(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	defer DB(ctx).Close(ctx)

	tenant := &models.Tenant{Name: "t_del_test"}
	defer deleteTenantRow(ctx, tenant.Name)
	require.NoError(t, DB(ctx).CreateTenant(ctx, tenant))
	require.NoError(t, DB(ctx).CreateDomain(ctx, &models.Domain{
		TenantName: tenant.Name,
		DomainName: "app.t-del-test.io",
	}))

	// Domains must go first in the same transaction
	tx, err := DB(ctx).BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, DB(ctx).DeleteDomainsByTenantWithTransaction(ctx, tx, tenant.Name))
	require.NoError(t, DB(ctx).DeleteTenantWithTransaction(ctx, tx, tenant.Name))
	require.NoError(t, tx.Commit())

	_, gerr := DB(ctx).GetTenant(ctx, tenant.Name)
	assert.ErrorIs(t, gerr, dberror.ErrTenantNotFound)

	// Deleting a missing tenant reports not found
	tx, err = DB(ctx).BeginTx(ctx)
	require.NoError(t, err)
	derr := DB(ctx).DeleteTenantWithTransaction(ctx, tx, tenant.Name)
	assert.ErrorIs(t, derr, dberror.ErrTenantNotFound)
	tx.Rollback()
}
