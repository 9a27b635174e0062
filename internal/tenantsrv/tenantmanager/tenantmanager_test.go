package tenantmanager

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantd/tenantd/internal/tenantsrv/config"
	"github.com/tenantd/tenantd/internal/tenantsrv/db"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/models"
)

var initOnce sync.Once

func newTestCtx(t *testing.T) context.Context {
	initOnce.Do(func() {
		config.TestInit()
		db.Init()
		if err := db.EnsureCatalog(context.Background()); err != nil {
			panic(err)
		}
	})
	ctx := log.Logger.WithContext(context.Background())
	ctx, err := db.ConnCtx(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.DB(ctx).Close(context.Background()) })
	return ctx
}

func provisionWidgets(ctx context.Context, tx *sql.Tx, schemaName string) error {
	_, err := tx.ExecContext(ctx, "CREATE TABLE "+schemaName+".widgets (id serial PRIMARY KEY, label text)")
	return err
}

func cleanupTenant(ctx context.Context, m *Manager, name string) {
	m.DeleteTenant(ctx, name)
}

func TestCreateTenantProvisionsSchema(t *testing.T) {
	ctx := newTestCtx(t)
	m := New("public", provisionWidgets)

	tenant := &models.Tenant{Name: "tm_create"}
	defer cleanupTenant(ctx, m, tenant.Name)

	require.NoError(t, m.CreateTenant(ctx, tenant))

	// Catalog row and schema came up together
	got, err := m.GetTenant(ctx, tenant.Name)
	require.NoError(t, err)
	assert.Equal(t, tenant.Name, got.Name)

	exists, err := db.DB(ctx).SchemaExists(ctx, tenant.Name)
	require.NoError(t, err)
	assert.True(t, exists)

	// Duplicate creation leaves no half-created schema behind
	err = m.CreateTenant(ctx, &models.Tenant{Name: tenant.Name})
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)
}

func TestCreateTenantSchemaFailureRollsBackCatalog(t *testing.T) {
	ctx := newTestCtx(t)

	failing := func(ctx context.Context, tx *sql.Tx, schemaName string) error {
		_, err := tx.ExecContext(ctx, "CREATE TABLE not valid sql")
		return err
	}
	m := New("public", failing)

	err := m.CreateTenant(ctx, &models.Tenant{Name: "tm_fail"})
	require.Error(t, err)

	// The catalog row rolled back with the failed schema DDL
	_, gerr := m.GetTenant(ctx, "tm_fail")
	assert.ErrorIs(t, gerr, dberror.ErrTenantNotFound)
	exists, serr := db.DB(ctx).SchemaExists(ctx, "tm_fail")
	require.NoError(t, serr)
	assert.False(t, exists)
}

func TestRenameTenant(t *testing.T) {
	ctx := newTestCtx(t)
	m := New("public", nil)

	tenant := &models.Tenant{Name: "tm_rename"}
	defer cleanupTenant(ctx, m, tenant.Name)
	defer cleanupTenant(ctx, m, "tm_renamed")

	require.NoError(t, m.CreateTenant(ctx, tenant))
	require.NoError(t, m.RenameTenant(ctx, "tm_rename", "tm_renamed"))

	// Schema and catalog moved together
	exists, err := db.DB(ctx).SchemaExists(ctx, "tm_rename")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = db.DB(ctx).SchemaExists(ctx, "tm_renamed")
	require.NoError(t, err)
	assert.True(t, exists)

	_, gerr := m.GetTenant(ctx, "tm_rename")
	assert.ErrorIs(t, gerr, dberror.ErrTenantNotFound)
	got, gerr := m.GetTenant(ctx, "tm_renamed")
	require.NoError(t, gerr)
	assert.Equal(t, "tm_renamed", got.Name)

	// Renaming an unknown tenant fails before any DDL
	err2 := m.RenameTenant(ctx, "tm_missing", "tm_whatever")
	assert.ErrorIs(t, err2, dberror.ErrTenantNotFound)

	// Invalid target name is rejected up front
	err2 = m.RenameTenant(ctx, "tm_renamed", "bad name")
	assert.ErrorIs(t, err2, dberror.ErrInvalidInput)
}

func TestRenameTenantCarriesDomains(t *testing.T) {
	ctx := newTestCtx(t)
	m := New("public", nil)

	tenant := &models.Tenant{Name: "tm_dom_rename"}
	defer cleanupTenant(ctx, m, tenant.Name)
	defer cleanupTenant(ctx, m, "tm_dom_renamed")

	require.NoError(t, m.CreateTenant(ctx, tenant))
	require.NoError(t, m.CreateDomain(ctx, &models.Domain{
		TenantName: tenant.Name,
		DomainName: "app.tm-dom-rename.io",
	}))

	require.NoError(t, m.RenameTenant(ctx, tenant.Name, "tm_dom_renamed"))

	domain, err := db.DB(ctx).GetDomainByName(ctx, "app.tm-dom-rename.io")
	require.NoError(t, err)
	assert.Equal(t, "tm_dom_renamed", domain.TenantName)
}

func TestDeleteTenant(t *testing.T) {
	ctx := newTestCtx(t)
	m := New("public", nil)

	tenant := &models.Tenant{Name: "tm_delete"}
	require.NoError(t, m.CreateTenant(ctx, tenant))
	require.NoError(t, m.CreateDomain(ctx, &models.Domain{
		TenantName: tenant.Name,
		DomainName: "app.tm-delete.io",
	}))

	require.NoError(t, m.DeleteTenant(ctx, tenant.Name))

	// Row, domains, and schema are all gone
	_, err := m.GetTenant(ctx, tenant.Name)
	assert.ErrorIs(t, err, dberror.ErrTenantNotFound)
	_, err = db.DB(ctx).GetDomainByName(ctx, "app.tm-delete.io")
	assert.ErrorIs(t, err, dberror.ErrNotFound)
	exists, serr := db.DB(ctx).SchemaExists(ctx, tenant.Name)
	require.NoError(t, serr)
	assert.False(t, exists)

	// Deleting again reports not found; the schema being gone already is a
	// catalog inconsistency, not silent cleanup.
	err = m.DeleteTenant(ctx, tenant.Name)
	assert.ErrorIs(t, err, dberror.ErrTenantNotFound)
}

func TestSetTenantDeactivated(t *testing.T) {
	ctx := newTestCtx(t)
	m := New("public", nil)

	tenant := &models.Tenant{Name: "tm_deact"}
	defer cleanupTenant(ctx, m, tenant.Name)
	require.NoError(t, m.CreateTenant(ctx, tenant))

	require.NoError(t, m.SetTenantDeactivated(ctx, tenant.Name, true))
	got, err := m.GetTenant(ctx, tenant.Name)
	require.NoError(t, err)
	assert.True(t, got.Deactivated)

	// Deactivation keeps the schema intact
	exists, serr := db.DB(ctx).SchemaExists(ctx, tenant.Name)
	require.NoError(t, serr)
	assert.True(t, exists)
}
