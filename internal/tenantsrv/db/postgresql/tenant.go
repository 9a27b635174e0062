package postgresql

import (
	"context"
	"database/sql"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/apperrors"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/models"
	"github.com/tenantd/tenantd/internal/tenantsrv/tencommon"
)

// CreateTenant inserts a new tenant catalog row. It does not create the
// physical schema; the lifecycle orchestrator does that in the same
// transaction via CreateTenantWithTransaction.
func (mm *metadataManager) CreateTenant(ctx context.Context, tenant *models.Tenant) (err apperrors.Error) {
	tx, errdb := mm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return dberror.ErrDatabase.Err(errdb)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = mm.CreateTenantWithTransaction(ctx, tx, tenant); err != nil {
		return err
	}

	if errdb = tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		return dberror.ErrDatabase.Err(errdb)
	}
	return nil
}

// CreateTenantWithTransaction inserts the tenant row inside the caller's
// transaction. The name must be a valid schema identifier since it doubles
// as the schema name.
func (mm *metadataManager) CreateTenantWithTransaction(ctx context.Context, tx *sql.Tx, tenant *models.Tenant) apperrors.Error {
	if !tencommon.ValidSchemaName(tenant.Name) {
		log.Ctx(ctx).Error().Str("name", tenant.Name).Msg("invalid tenant name")
		return dberror.ErrInvalidInput.Msg("tenant name is not a valid schema identifier")
	}
	if tenant.Info.Status == pgtype.Undefined {
		tenant.Info = pgtype.JSONB{Status: pgtype.Null}
	}

	query := `
		INSERT INTO tenants (name, info)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
		RETURNING name, created_at, updated_at;
	`

	row := tx.QueryRowContext(ctx, query, tenant.Name, tenant.Info)
	err := row.Scan(&tenant.Name, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("name", tenant.Name).Msg("tenant already exists")
			return dberror.ErrAlreadyExists.Msg("tenant already exists")
		}
		log.Ctx(ctx).Error().Err(err).Str("name", tenant.Name).Msg("failed to insert tenant")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

// GetTenant retrieves a tenant catalog row by name. The lookup always runs
// against the default schema's catalog regardless of the connection's
// current search path.
func (mm *metadataManager) GetTenant(ctx context.Context, name string) (*models.Tenant, apperrors.Error) {
	query := `
		SELECT name, deactivated, info, created_at, updated_at
		FROM tenants
		WHERE name = $1;
	`

	row := mm.conn().QueryRowContext(ctx, query, name)

	var tenant models.Tenant
	err := row.Scan(&tenant.Name, &tenant.Deactivated, &tenant.Info, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("name", name).Msg("tenant not found")
			return nil, dberror.ErrTenantNotFound
		}
		log.Ctx(ctx).Error().Err(err).Str("name", name).Msg("failed to retrieve tenant")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return &tenant, nil
}

// ListTenants returns all tenant catalog rows ordered by name.
func (mm *metadataManager) ListTenants(ctx context.Context) ([]*models.Tenant, apperrors.Error) {
	query := `
		SELECT name, deactivated, info, created_at, updated_at
		FROM tenants
		ORDER BY name;
	`

	rows, err := mm.conn().QueryContext(ctx, query)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list tenants")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var tenant models.Tenant
		if err := rows.Scan(&tenant.Name, &tenant.Deactivated, &tenant.Info, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan tenant row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		tenants = append(tenants, &tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}

	return tenants, nil
}

// SetTenantDeactivated flips the deactivation flag. A deactivated tenant is
// rejected at request admission; its schema and data stay untouched.
func (mm *metadataManager) SetTenantDeactivated(ctx context.Context, name string, deactivated bool) apperrors.Error {
	query := `
		UPDATE tenants
		SET deactivated = $2, updated_at = now()
		WHERE name = $1
		RETURNING name;
	`

	var updated string
	err := mm.conn().QueryRowContext(ctx, query, name, deactivated).Scan(&updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return dberror.ErrTenantNotFound
		}
		log.Ctx(ctx).Error().Err(err).Str("name", name).Msg("failed to update tenant deactivation")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// DeleteTenantWithTransaction deletes the tenant row inside the caller's
// transaction. Dependent domain rows must already be gone; a foreign key
// violation maps to ErrInvalidInput rather than a bare database error.
func (mm *metadataManager) DeleteTenantWithTransaction(ctx context.Context, tx *sql.Tx, name string) apperrors.Error {
	result, err := tx.ExecContext(ctx, `DELETE FROM tenants WHERE name = $1;`, name)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
			log.Ctx(ctx).Error().Str("name", name).Msg("tenant still referenced by domains")
			return dberror.ErrInvalidInput.Msg("tenant still has registered domains")
		}
		log.Ctx(ctx).Error().Err(err).Str("name", name).Msg("failed to delete tenant")
		return dberror.ErrDatabase.Err(err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return dberror.ErrTenantNotFound
	}
	return nil
}
