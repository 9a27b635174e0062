package lifecycle

import "github.com/tenantd/tenantd/internal/tenantsrv/tencommon"

// NameChange is one tenant rename: the name the schema currently has and the
// name it should have after the transaction commits.
type NameChange struct {
	Prior   string
	Current string
}

// PendingChanges collects the tenant entity changes of one transaction for
// the pre-commit hook. Entities enter by capability: anything with a schema
// name can be staged, the orchestrator never inspects concrete types.
type PendingChanges struct {
	Created []string
	Renamed []NameChange
	Deleted []string
}

func (pc *PendingChanges) Empty() bool {
	return len(pc.Created) == 0 && len(pc.Renamed) == 0 && len(pc.Deleted) == 0
}

// AddCreated stages a newly created tenant entity.
func (pc *PendingChanges) AddCreated(entity tencommon.SchemaNamer) {
	pc.Created = append(pc.Created, entity.HasSchemaName())
}

// AddRenamed stages a rename from the entity's prior schema name to its
// current one.
func (pc *PendingChanges) AddRenamed(prior string, entity tencommon.SchemaNamer) {
	pc.Renamed = append(pc.Renamed, NameChange{Prior: prior, Current: entity.HasSchemaName()})
}

// AddDeleted stages a deleted tenant entity.
func (pc *PendingChanges) AddDeleted(entity tencommon.SchemaNamer) {
	pc.Deleted = append(pc.Deleted, entity.HasSchemaName())
}
