package postgresql

import (
	"context"
	"database/sql"

	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/apperrors"
	"github.com/tenantd/tenantd/internal/common/uuid"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/models"
)

// CreateDomain inserts a custom domain for a tenant. domain_name is unique
// across all tenants; a conflict means another tenant (or the same one)
// already claimed it.
func (mm *metadataManager) CreateDomain(ctx context.Context, domain *models.Domain) apperrors.Error {
	if domain.DomainID == uuid.Nil {
		domain.DomainID = uuid.New()
	}

	query := `
		INSERT INTO domains (domain_id, tenant_name, domain_name, is_primary)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (domain_name) DO NOTHING
		RETURNING domain_id, created_at;
	`

	row := mm.conn().QueryRowContext(ctx, query, domain.DomainID, domain.TenantName, domain.DomainName, domain.IsPrimary)
	err := row.Scan(&domain.DomainID, &domain.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("domain", domain.DomainName).Msg("domain already exists")
			return dberror.ErrAlreadyExists.Msg("domain already exists")
		}
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
			log.Ctx(ctx).Info().Str("tenant", domain.TenantName).Msg("tenant not found for domain")
			return dberror.ErrTenantNotFound
		}
		log.Ctx(ctx).Error().Err(err).Str("domain", domain.DomainName).Msg("failed to insert domain")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

// GetDomainByName retrieves a domain catalog row by exact domain name. Used
// by custom-domain tenant resolution, which always runs on the default
// search path.
func (mm *metadataManager) GetDomainByName(ctx context.Context, domainName string) (*models.Domain, apperrors.Error) {
	query := `
		SELECT domain_id, tenant_name, domain_name, is_primary, created_at
		FROM domains
		WHERE domain_name = $1;
	`

	row := mm.conn().QueryRowContext(ctx, query, domainName)

	var domain models.Domain
	err := row.Scan(&domain.DomainID, &domain.TenantName, &domain.DomainName, &domain.IsPrimary, &domain.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("domain not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("domain", domainName).Msg("failed to retrieve domain")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return &domain, nil
}

// ListDomainsByTenant returns a tenant's domains, primary first.
func (mm *metadataManager) ListDomainsByTenant(ctx context.Context, tenantName string) ([]*models.Domain, apperrors.Error) {
	query := `
		SELECT domain_id, tenant_name, domain_name, is_primary, created_at
		FROM domains
		WHERE tenant_name = $1
		ORDER BY is_primary DESC, domain_name;
	`

	rows, err := mm.conn().QueryContext(ctx, query, tenantName)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("tenant", tenantName).Msg("failed to list domains")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var domains []*models.Domain
	for rows.Next() {
		var domain models.Domain
		if err := rows.Scan(&domain.DomainID, &domain.TenantName, &domain.DomainName, &domain.IsPrimary, &domain.CreatedAt); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan domain row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		domains = append(domains, &domain)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}

	return domains, nil
}

// SetPrimaryDomain marks the given domain as the tenant's primary and clears
// the flag on every other row for that tenant in the same transaction, so at
// most one primary exists at any instant.
func (mm *metadataManager) SetPrimaryDomain(ctx context.Context, tenantName, domainName string) (err apperrors.Error) {
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

	if _, errdb = tx.ExecContext(ctx, `
		UPDATE domains SET is_primary = false
		WHERE tenant_name = $1 AND domain_name <> $2;
	`, tenantName, domainName); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("tenant", tenantName).Msg("failed to clear primary domains")
		return dberror.ErrDatabase.Err(errdb)
	}

	var updated string
	errdb = tx.QueryRowContext(ctx, `
		UPDATE domains SET is_primary = true
		WHERE tenant_name = $1 AND domain_name = $2
		RETURNING domain_name;
	`, tenantName, domainName).Scan(&updated)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			err = dberror.ErrNotFound.Msg("domain not found for tenant")
			return err
		}
		log.Ctx(ctx).Error().Err(errdb).Str("domain", domainName).Msg("failed to set primary domain")
		return dberror.ErrDatabase.Err(errdb)
	}

	if errdb = tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		return dberror.ErrDatabase.Err(errdb)
	}
	return nil
}

// DeleteDomain deletes a domain by name. Deleting an absent domain is not an
// error.
func (mm *metadataManager) DeleteDomain(ctx context.Context, domainName string) apperrors.Error {
	_, err := mm.conn().ExecContext(ctx, `DELETE FROM domains WHERE domain_name = $1;`, domainName)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("domain", domainName).Msg("failed to delete domain")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// DeleteDomainsByTenantWithTransaction removes all of a tenant's domain rows
// inside the caller's transaction. The lifecycle orchestrator runs this
// before dropping the tenant so no domain ever dangles against a dropped
// schema.
func (mm *metadataManager) DeleteDomainsByTenantWithTransaction(ctx context.Context, tx *sql.Tx, tenantName string) apperrors.Error {
	_, err := tx.ExecContext(ctx, `DELETE FROM domains WHERE tenant_name = $1;`, tenantName)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("tenant", tenantName).Msg("failed to delete tenant domains")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}
