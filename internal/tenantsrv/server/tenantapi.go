package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/httpx"
	"github.com/tenantd/tenantd/internal/tenantsrv/db/models"
	"github.com/tenantd/tenantd/internal/tenantsrv/tencommon"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type createTenantReq struct {
	Name string          `json:"name" validate:"required,max=63"`
	Info json.RawMessage `json:"info,omitempty"`
}

type tenantRsp struct {
	Name        string          `json:"name"`
	Deactivated bool            `json:"deactivated"`
	Info        json.RawMessage `json:"info,omitempty"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

func toTenantRsp(t *models.Tenant) *tenantRsp {
	rsp := &tenantRsp{
		Name:        t.Name,
		Deactivated: t.Deactivated,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if t.Info.Status == pgtype.Present {
		rsp.Info = json.RawMessage(t.Info.Bytes)
	}
	return rsp
}

func (s *TenantServer) createTenant(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	req := &createTenantReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	if !tencommon.ValidSchemaName(req.Name) {
		return nil, httpx.ErrInvalidRequest("tenant name is not a valid schema identifier")
	}

	tenant := &models.Tenant{Name: req.Name}
	if len(req.Info) > 0 {
		if err := tenant.Info.Set([]byte(req.Info)); err != nil {
			return nil, httpx.ErrInvalidRequest("invalid tenant info")
		}
	}

	if err := s.manager.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("tenant", tenant.Name).Msg("tenant created")
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Location:   "/tenants/" + tenant.Name,
		Response:   toTenantRsp(tenant),
	}, nil
}

func (s *TenantServer) getTenant(r *http.Request) (*httpx.Response, error) {
	tenant, err := s.manager.GetTenant(r.Context(), chi.URLParam(r, "tenantName"))
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   toTenantRsp(tenant),
	}, nil
}

func (s *TenantServer) listTenants(r *http.Request) (*httpx.Response, error) {
	tenants, err := s.manager.ListTenants(r.Context())
	if err != nil {
		return nil, err
	}
	rsp := make([]*tenantRsp, 0, len(tenants))
	for _, t := range tenants {
		rsp = append(rsp, toTenantRsp(t))
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   rsp,
	}, nil
}

// updateTenantReq carries the two tenant mutations PATCH supports: a rename
// and a deactivation flip. Either or both may be present.
type updateTenantReq struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=63"`
	Deactivated *bool   `json:"deactivated,omitempty"`
}

func (s *TenantServer) updateTenant(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()
	name := chi.URLParam(r, "tenantName")

	req := &updateTenantReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	if req.Name == nil && req.Deactivated == nil {
		return nil, httpx.ErrInvalidRequest("nothing to update")
	}

	if req.Deactivated != nil {
		if err := s.manager.SetTenantDeactivated(ctx, name, *req.Deactivated); err != nil {
			return nil, err
		}
	}

	if req.Name != nil && *req.Name != name {
		if err := s.manager.RenameTenant(ctx, name, *req.Name); err != nil {
			return nil, err
		}
		name = *req.Name
	}

	tenant, err := s.manager.GetTenant(ctx, name)
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   toTenantRsp(tenant),
	}, nil
}

func (s *TenantServer) deleteTenant(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()
	name := chi.URLParam(r, "tenantName")

	if err := s.manager.DeleteTenant(ctx, name); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("tenant", name).Msg("tenant deleted")
	return &httpx.Response{
		StatusCode: http.StatusNoContent,
	}, nil
}

type createDomainReq struct {
	DomainName string `json:"domainName" validate:"required,fqdn"`
	IsPrimary  bool   `json:"isPrimary,omitempty"`
}

type domainRsp struct {
	DomainID   string `json:"domainId"`
	TenantName string `json:"tenantName"`
	DomainName string `json:"domainName"`
	IsPrimary  bool   `json:"isPrimary"`
}

func toDomainRsp(d *models.Domain) *domainRsp {
	return &domainRsp{
		DomainID:   d.DomainID.String(),
		TenantName: d.TenantName,
		DomainName: d.DomainName,
		IsPrimary:  d.IsPrimary,
	}
}

func (s *TenantServer) createDomain(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()
	tenantName := chi.URLParam(r, "tenantName")

	req := &createDomainReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}

	domain := &models.Domain{
		TenantName: tenantName,
		DomainName: req.DomainName,
		IsPrimary:  req.IsPrimary,
	}
	if err := s.manager.CreateDomain(ctx, domain); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("tenant", tenantName).Str("domain", domain.DomainName).Msg("domain registered")
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Location:   "/tenants/" + tenantName + "/domains",
		Response:   toDomainRsp(domain),
	}, nil
}

func (s *TenantServer) listDomains(r *http.Request) (*httpx.Response, error) {
	domains, err := s.manager.ListDomainsByTenant(r.Context(), chi.URLParam(r, "tenantName"))
	if err != nil {
		return nil, err
	}
	rsp := make([]*domainRsp, 0, len(domains))
	for _, d := range domains {
		rsp = append(rsp, toDomainRsp(d))
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   rsp,
	}, nil
}

func (s *TenantServer) deleteDomain(r *http.Request) (*httpx.Response, error) {
	if err := s.manager.DeleteDomain(r.Context(), chi.URLParam(r, "domainName")); err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusNoContent,
	}, nil
}

func (s *TenantServer) setPrimaryDomain(r *http.Request) (*httpx.Response, error) {
	tenantName := chi.URLParam(r, "tenantName")
	domainName := chi.URLParam(r, "domainName")

	if err := s.manager.SetPrimaryDomain(r.Context(), tenantName, domainName); err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]string{"primaryDomain": domainName},
	}, nil
}
