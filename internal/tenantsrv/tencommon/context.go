package tencommon

import (
	"context"
)

// ctxKeyType represents the type for all context keys.
type ctxKeyType string

const (
	ctxTenantContextKey ctxKeyType = "TenantContext"
)

// TenantContext is the per-unit-of-work tenant binding. It is created when a
// request's tenant is resolved, carried in the request context, and dies with
// the request. It is never persisted and never shared across units of work.
type TenantContext struct {
	// TenantName is the resolved tenant name, or the default schema name
	// when the unit of work is not tenant-scoped.
	TenantName string
	// SchemaName is the schema the unit of work's connection is bound to.
	SchemaName string
	// Scoped reports whether the unit of work runs against a tenant schema
	// rather than the shared default schema.
	Scoped bool
}

// WithTenantContext sets the tenant context in the provided context.
func WithTenantContext(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, ctxTenantContextKey, tc)
}

// GetTenantContext retrieves the tenant context from the provided context.
// Returns nil if no tenant has been resolved for this unit of work.
func GetTenantContext(ctx context.Context) *TenantContext {
	if tc, ok := ctx.Value(ctxTenantContextKey).(*TenantContext); ok {
		return tc
	}
	return nil
}

// GetTenantName retrieves the resolved tenant name, or "" if the unit of
// work is not tenant-scoped.
func GetTenantName(ctx context.Context) string {
	if tc := GetTenantContext(ctx); tc != nil && tc.Scoped {
		return tc.TenantName
	}
	return ""
}

// IsTenantScoped reports whether the unit of work is bound to a tenant schema.
func IsTenantScoped(ctx context.Context) bool {
	if tc := GetTenantContext(ctx); tc != nil {
		return tc.Scoped
	}
	return false
}
