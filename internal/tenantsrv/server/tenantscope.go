package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/httpx"
	"github.com/tenantd/tenantd/internal/tenantsrv/config"
	"github.com/tenantd/tenantd/internal/tenantsrv/db"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/tencommon"
)

// TenantScopeMiddleware resolves the request's tenant, gates admission, and
// binds the unit of work's connection to the tenant schema. Runs after the
// scoped-db middleware so the resolver's catalog lookups and the admission
// checks use this request's connection on the default search path.
//
// Tenant-scoped requests are rewritten into the reserved tenant URL prefix
// before routing, so tenant routes and public routes cannot collide. A
// request that addresses the prefix directly without resolving to a tenant
// is rejected.
func (s *TenantServer) TenantScopeMiddleware(next http.Handler) http.Handler {
	prefix := config.Config().Tenancy.TenantURLPrefix
	defaultSchema := config.Config().Tenancy.DefaultSchema

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		dbi := db.DB(ctx)
		if dbi == nil {
			httpx.ErrUnableToServeRequest().Send(w)
			return
		}

		res, rerr := s.resolver.Resolve(ctx, r, dbi)
		if rerr != nil {
			httpx.SendError(w, rerr)
			return
		}

		if !res.Scoped {
			if strings.HasPrefix(r.URL.Path, prefix) {
				// The reserved space is reachable only through the rewrite.
				httpx.ErrTenantNotFound().Send(w)
				return
			}
			ctx = tencommon.WithTenantContext(ctx, &tencommon.TenantContext{
				SchemaName: defaultSchema,
				Scoped:     false,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		// Admission gate: the tenant must exist and be active. Both
		// failures render identically so probing cannot distinguish them.
		tenant, terr := dbi.GetTenant(ctx, res.TenantName)
		if terr != nil {
			log.Ctx(ctx).Info().Str("tenant", res.TenantName).Msg("request for unknown tenant")
			httpx.ErrTenantNotFound().Send(w)
			return
		}
		if tenant.Deactivated {
			// Classified internally; the response is the same not-found the
			// unknown-tenant case gets.
			log.Ctx(ctx).Info().Str("tenant", res.TenantName).Err(dberror.ErrTenantDeactivated).Msg("request for deactivated tenant")
			httpx.ErrTenantNotFound().Send(w)
			return
		}

		// Bind the connection to [tenant, default]. A failure here is a
		// server error for this request; serving it on the default schema
		// instead would leak one tenant's request into shared data.
		if err := dbi.SetSearchPath(ctx, res.SchemaName, defaultSchema); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("schema", res.SchemaName).Msg("failed to bind tenant schema")
			httpx.ErrSchemaSwitchFailed().Send(w)
			return
		}

		ctx = tencommon.WithTenantContext(ctx, &tencommon.TenantContext{
			TenantName: res.TenantName,
			SchemaName: res.SchemaName,
			Scoped:     true,
		})

		if !strings.HasPrefix(r.URL.Path, prefix) {
			r.URL.Path = rewriteTenantPath(prefix, r.URL.Path)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rewriteTenantPath maps a tenant request's path into the reserved prefix
// space the tenant routes are mounted under.
func rewriteTenantPath(prefix, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}
