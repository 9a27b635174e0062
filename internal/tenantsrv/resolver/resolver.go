// Package resolver maps an incoming HTTP request to a tenant identity.
// Resolution is a pure function of the request and the configured mode; it
// never touches tenant-scoped data, and catalog lookups for custom domains
// run on the default search path.
package resolver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/apperrors"
	"github.com/tenantd/tenantd/internal/tenantsrv/config"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/dberror"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/models"
)

// DomainCatalog is the catalog lookup the custom-domain mode needs. The db
// package's MetadataManager satisfies it.
type DomainCatalog interface {
	GetDomainByName(ctx context.Context, domainName string) (*models.Domain, apperrors.Error)
}

// Resolution is the outcome of resolving one request. When Scoped is false
// the request runs against the default schema only.
type Resolution struct {
	TenantName string
	SchemaName string
	Scoped     bool
}

// Resolver resolves requests to tenants according to one of three modes:
// a tenant header, the leading subdomain label, or a registered custom
// domain.
type Resolver struct {
	mode          string
	defaultSchema string
	tenantHeader  string
	baseDomain    string
	excluded      map[string]bool
}

// New builds a resolver from the tenancy configuration.
func New(c *config.TenancyConfig) *Resolver {
	excluded := make(map[string]bool, len(c.ExcludedSubdomains))
	for _, sub := range c.ExcludedSubdomains {
		excluded[strings.ToLower(sub)] = true
	}
	return &Resolver{
		mode:          c.Mode,
		defaultSchema: c.DefaultSchema,
		tenantHeader:  c.TenantHeader,
		baseDomain:    strings.ToLower(c.BaseDomain),
		excluded:      excluded,
	}
}

// Resolve determines the tenant for the request. catalog is only consulted
// in custom-domain mode and may be nil in the other modes.
func (rv *Resolver) Resolve(ctx context.Context, r *http.Request, catalog DomainCatalog) (Resolution, apperrors.Error) {
	switch rv.mode {
	case config.ModeHeader:
		return rv.resolveHeader(r), nil
	case config.ModeSubdomain:
		return rv.resolveSubdomain(r), nil
	case config.ModeDomain:
		return rv.resolveDomain(ctx, r, catalog)
	default:
		return Resolution{}, dberror.ErrInvalidInput.Msg("unknown tenant resolution mode: " + rv.mode)
	}
}

func (rv *Resolver) resolveHeader(r *http.Request) Resolution {
	name := strings.TrimSpace(r.Header.Get(rv.tenantHeader))
	if name == "" {
		return rv.defaultResolution()
	}
	return rv.tenantResolution(name)
}

func (rv *Resolver) resolveSubdomain(r *http.Request) Resolution {
	host := stripPort(r.Host)
	if host == "" || host == rv.baseDomain {
		return rv.defaultResolution()
	}

	label, ok := leadingLabel(host, rv.baseDomain)
	if !ok {
		// Host is not under the base domain; treat the first label as the
		// tenant candidate so bare "acme.localtest" style hosts still work.
		label, _, _ = strings.Cut(host, ".")
	}
	if label == "" || rv.excluded[label] {
		return rv.defaultResolution()
	}
	return rv.tenantResolution(label)
}

func (rv *Resolver) resolveDomain(ctx context.Context, r *http.Request, catalog DomainCatalog) (Resolution, apperrors.Error) {
	host := stripPort(r.Host)
	if host == "" || host == rv.baseDomain {
		return rv.defaultResolution(), nil
	}

	if label, ok := leadingLabel(host, rv.baseDomain); ok {
		if label == "" || rv.excluded[label] {
			return rv.defaultResolution(), nil
		}
		return rv.tenantResolution(label), nil
	}

	if catalog == nil {
		return rv.defaultResolution(), nil
	}
	domain, err := catalog.GetDomainByName(ctx, host)
	if err != nil {
		if errors.Is(err, dberror.ErrNotFound) {
			return rv.defaultResolution(), nil
		}
		log.Ctx(ctx).Error().Err(err).Str("host", host).Msg("domain catalog lookup failed")
		return Resolution{}, err
	}
	return rv.tenantResolution(domain.TenantName), nil
}

func (rv *Resolver) defaultResolution() Resolution {
	return Resolution{
		TenantName: "",
		SchemaName: rv.defaultSchema,
		Scoped:     false,
	}
}

func (rv *Resolver) tenantResolution(name string) Resolution {
	name = strings.ToLower(name)
	// An identifier naming the default schema is not a tenant; the request
	// runs unscoped on the shared schema.
	if name == rv.defaultSchema {
		return rv.defaultResolution()
	}
	return Resolution{
		TenantName: name,
		SchemaName: name,
		Scoped:     true,
	}
}

// leadingLabel returns the host's label immediately before ".baseDomain".
// Reports false when the host is not a subdomain of baseDomain.
func leadingLabel(host, baseDomain string) (string, bool) {
	if baseDomain == "" || !strings.HasSuffix(host, "."+baseDomain) {
		return "", false
	}
	sub := strings.TrimSuffix(host, "."+baseDomain)
	// For nested subdomains like a.b.example.com the tenant is the leading
	// label.
	sub, _, _ = strings.Cut(sub, ".")
	return sub, true
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(host)
}
