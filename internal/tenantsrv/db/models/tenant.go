package models

import (
	"time"

	"github.com/jackc/pgtype"
)

/*
   Column    |          Type           | Collation | Nullable |  Default
-------------+-------------------------+-----------+----------+-----------
 name        | character varying(63)   |           | not null |
 deactivated | boolean                 |           | not null | false
 info        | jsonb                   |           |          |
 created_at  | timestamptz             |           | not null | now()
 updated_at  | timestamptz             |           | not null | now()

The name is the primary key and doubles as the tenant's physical schema
name. Whenever a tenants row exists and is not mid-rename, exactly one
schema with that name exists.
*/

// Tenant model definition
type Tenant struct {
	Name        string       `db:"name"`
	Deactivated bool         `db:"deactivated"`
	Info        pgtype.JSONB `db:"info"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

// HasSchemaName returns the physical schema name owned by this tenant.
func (t *Tenant) HasSchemaName() string {
	return t.Name
}
