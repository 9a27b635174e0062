package postgresql

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/apperrors"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dbmanager"
)

// Metadata Manager
type metadataManager struct {
	c dbmanager.ScopedConn
}

func (mm *metadataManager) conn() *sql.Conn {
	return mm.c.Conn()
}

func newMetadataManager(c dbmanager.ScopedConn) *metadataManager {
	return &metadataManager{c: c}
}

// Schema Manager
type schemaManager struct {
	c dbmanager.ScopedConn
}

func (sm *schemaManager) conn() *sql.Conn {
	return sm.c.Conn()
}

func newSchemaManager(c dbmanager.ScopedConn) *schemaManager {
	return &schemaManager{c: c}
}

// Connection Manager
type connectionManager struct {
	c dbmanager.ScopedConn
}

func newConnectionManager(c dbmanager.ScopedConn) *connectionManager {
	return &connectionManager{c: c}
}

func (cm *connectionManager) SetSearchPath(ctx context.Context, schemas ...string) error {
	return cm.c.SetSearchPath(ctx, schemas...)
}

func (cm *connectionManager) ResetSearchPath(ctx context.Context) error {
	return cm.c.ResetSearchPath(ctx)
}

func (cm *connectionManager) SearchPath() []string {
	return cm.c.SearchPath()
}

// BeginTx starts a transaction on the scoped connection. The transaction is
// the unit the lifecycle orchestrator works within: catalog row mutations
// and schema DDL commit or roll back together.
func (cm *connectionManager) BeginTx(ctx context.Context) (*sql.Tx, apperrors.Error) {
	tx, err := cm.c.Conn().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to start transaction")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return tx, nil
}

func (cm *connectionManager) Close(ctx context.Context) {
	cm.c.Close(ctx)
}
