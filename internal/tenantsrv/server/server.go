// Package server wires the HTTP surface: the public admin API, the
// tenant-scoped route space, and the middleware chain that resolves a tenant
// and binds the request's connection to its schema.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/httpx"
	commonmiddleware "github.com/tenantd/tenantd/internal/common/middleware"
	"github.com/tenantd/tenantd/internal/tenantsrv/config"
	"github.com/tenantd/tenantd/internal/tenantsrv/db"
	"github.com/tenantd/tenantd/internal/tenantsrv/resolver"
	"github.com/tenantd/tenantd/internal/tenantsrv/tencommon"
	"github.com/tenantd/tenantd/internal/tenantsrv/tenantmanager"
)

const (
	serverVersion = "0.1.0"
	apiVersion    = "v1"

	requestTimeout = 60 * time.Second
)

type TenantServer struct {
	Router   *chi.Mux
	manager  *tenantmanager.Manager
	resolver *resolver.Resolver

	tenantRouter chi.Router
}

// CreateNewServer builds the server around the configured tenancy mode. The
// provisioner creates the tenant table set whenever a tenant schema is
// created; nil means schemas start empty.
func CreateNewServer(provisioner tencommon.TableProvisioner) (*TenantServer, error) {
	tenancy := &config.Config().Tenancy
	s := &TenantServer{
		Router:   chi.NewRouter(),
		manager:  tenantmanager.New(tenancy.DefaultSchema, provisioner),
		resolver: resolver.New(tenancy),
	}
	return s, nil
}

func (s *TenantServer) MountHandlers() {
	s.Router.Use(commonmiddleware.RequestLogger)
	s.Router.Use(commonmiddleware.PanicHandler)
	if config.Config().HandleCORS {
		s.Router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"https://*", "http://*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Authorization", config.Config().Tenancy.TenantHeader},
			MaxAge:         300,
		}))
	}
	s.Router.Use(commonmiddleware.SetTimeout(requestTimeout))
	s.Router.Use(db.LoadScopedDBMiddleware)
	s.Router.Use(s.TenantScopeMiddleware)

	s.mountPublicHandlers(s.Router)

	// The reserved tenant route space. Requests reach it only through the
	// scope middleware's rewrite; direct hits from unscoped requests 404.
	prefix := config.Config().Tenancy.TenantURLPrefix
	s.Router.Route(prefix, func(r chi.Router) {
		r.Get("/whoami", httpx.WrapHttpRsp(s.whoami))
		s.tenantRouter = r
	})
}

// TenantRouter returns the router tenant-scoped application routes mount on.
// Handlers registered here see a connection bound to the tenant's schema and
// a TenantContext in the request context. MountHandlers must run first.
func (s *TenantServer) TenantRouter() chi.Router {
	return s.tenantRouter
}

// PublicRouter returns the unprefixed router for routes that always run on
// the default schema.
func (s *TenantServer) PublicRouter() chi.Router {
	return s.Router
}

func (s *TenantServer) mountPublicHandlers(r chi.Router) {
	r.Route("/tenants", func(r chi.Router) {
		r.Post("/", httpx.WrapHttpRsp(s.createTenant))
		r.Get("/", httpx.WrapHttpRsp(s.listTenants))
		r.Route("/{tenantName}", func(r chi.Router) {
			r.Get("/", httpx.WrapHttpRsp(s.getTenant))
			r.Patch("/", httpx.WrapHttpRsp(s.updateTenant))
			r.Delete("/", httpx.WrapHttpRsp(s.deleteTenant))
			r.Route("/domains", func(r chi.Router) {
				r.Post("/", httpx.WrapHttpRsp(s.createDomain))
				r.Get("/", httpx.WrapHttpRsp(s.listDomains))
				r.Delete("/{domainName}", httpx.WrapHttpRsp(s.deleteDomain))
				r.Put("/{domainName}/primary", httpx.WrapHttpRsp(s.setPrimaryDomain))
			})
		})
	})
	r.Get("/version", s.getVersion)
	r.Get("/ready", s.getReadiness)
}

// whoami reports the scope the request is being served under. Useful for
// verifying resolution and schema binding from the outside.
func (s *TenantServer) whoami(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()
	tc := tencommon.GetTenantContext(ctx)
	if tc == nil {
		return nil, httpx.ErrTenantNotFound()
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: map[string]any{
			"tenant":     tc.TenantName,
			"schema":     tc.SchemaName,
			"scoped":     tc.Scoped,
			"searchPath": db.DB(ctx).SearchPath(),
		},
	}, nil
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *TenantServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Tenantd Server: " + serverVersion,
		ApiVersion:    apiVersion,
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

func (s *TenantServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")

	ctx, err := db.ConnCtx(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("database connection failed during readiness check")
		httpx.SendJsonRsp(r.Context(), w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}
	defer db.DB(ctx).Close(ctx)

	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
