// Package postgresql implements the tenant catalog and schema DDL managers
// over a scoped PostgreSQL connection.
package postgresql

import (
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dbmanager"
)

type tenantCatalogDb struct {
	mm *metadataManager
	sm *schemaManager
	cm *connectionManager
}

func NewTenantCatalogDb(c dbmanager.ScopedConn) (*metadataManager, *schemaManager, *connectionManager) {
	h := &tenantCatalogDb{}
	h.mm = newMetadataManager(c)
	h.sm = newSchemaManager(c)
	h.cm = newConnectionManager(c)
	return h.mm, h.sm, h.cm
}
