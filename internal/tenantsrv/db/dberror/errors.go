// Package dberror defines the error kinds surfaced by the database layer,
// including the schema lifecycle errors. All derive from ErrDatabase so a
// single errors.Is check catches any database failure.
package dberror

import (
	"net/http"

	"github.com/tenantd/tenantd/internal/common/apperrors"
)

var (
	ErrDatabase      apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrAlreadyExists apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound      apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrInvalidInput  apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)

	// Schema lifecycle errors. The DDL layer raises the two detection
	// signals (already exists / does not exist); the orchestrator converts
	// failures it cannot proceed past into the operation errors below.
	ErrSchemaAlreadyExists apperrors.Error = ErrDatabase.New("schema already exists").SetStatusCode(http.StatusConflict)
	ErrSchemaDoesNotExist  apperrors.Error = ErrDatabase.New("schema does not exist").SetStatusCode(http.StatusNotFound)
	ErrSchemaCreation      apperrors.Error = ErrDatabase.New("schema creation failed")
	ErrTableCreation       apperrors.Error = ErrDatabase.New("table creation failed")
	ErrSchemaRename        apperrors.Error = ErrDatabase.New("schema rename failed")
	ErrSchemaDrop          apperrors.Error = ErrDatabase.New("schema drop failed")

	// Request admission errors. Both render as a client-facing not-found:
	// a deactivated tenant is indistinguishable from an absent one.
	ErrTenantNotFound    apperrors.Error = ErrDatabase.New("tenant not found").SetStatusCode(http.StatusNotFound)
	ErrTenantDeactivated apperrors.Error = ErrDatabase.New("tenant deactivated").SetStatusCode(http.StatusNotFound)
)
