// Package tencommon provides shared types and context accessors for the
// tenancy service: the per-request tenant context, schema name validation,
// and the table-provisioning callback type used by the schema lifecycle.
package tencommon

import (
	"context"
	"database/sql"
	"regexp"
)

// TableProvisioner creates the tenant-scoped table set inside a freshly
// created schema. It runs inside the transaction that created the schema, so
// a provisioning failure rolls the schema back with it. Statements must
// schema-qualify table names with the given schema.
type TableProvisioner func(ctx context.Context, tx *sql.Tx, schemaName string) error

// validSchemaNameRegex ensures tenant names are safe PostgreSQL identifiers.
// A tenant name doubles as its schema name, so anything that would need
// quoting tricks or could smuggle SQL is rejected outright. Hyphens are
// allowed because subdomain labels carry them.
var validSchemaNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// reservedSchemaNames are Postgres catalog namespaces a tenant may never claim.
var reservedSchemaNames = map[string]struct{}{
	"pg_catalog":         {},
	"pg_toast":           {},
	"information_schema": {},
}

// ValidSchemaName reports whether name is usable as a tenant schema name.
func ValidSchemaName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	if _, reserved := reservedSchemaNames[name]; reserved {
		return false
	}
	return validSchemaNameRegex.MatchString(name)
}

// SchemaNamer is implemented by entities that own a physical schema. The
// lifecycle orchestrator accepts any entity satisfying this capability
// instead of probing concrete types.
type SchemaNamer interface {
	HasSchemaName() string
}
