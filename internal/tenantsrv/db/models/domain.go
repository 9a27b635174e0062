package models

import (
	"time"

	"github.com/tenantd/tenantd/internal/common/uuid"
)

/*
   Column    |          Type           | Collation | Nullable |      Default
-------------+-------------------------+-----------+----------+--------------------
 domain_id   | uuid                    |           | not null | uuid_generate_v4()
 tenant_name | character varying(63)   |           | not null |
 domain_name | character varying(255)  |           | not null |
 is_primary  | boolean                 |           | not null | false
 created_at  | timestamptz             |           | not null | now()

domain_name is unique across all tenants. tenant_name references
tenants(name) with a deferrable constraint so a rename can update both
tables in one transaction. At most one row per tenant has is_primary set.
*/

// Domain model definition
type Domain struct {
	DomainID   uuid.UUID `db:"domain_id"`
	TenantName string    `db:"tenant_name"`
	DomainName string    `db:"domain_name"`
	IsPrimary  bool      `db:"is_primary"`
	CreatedAt  time.Time `db:"created_at"`
}
