package api

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/tenants"
)

func (s *Server) createTenant(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireHeader(w, r, actorHeader); !ok {
		return
	}

	var req tenants.CreateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	tenant, err := s.tenants.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, tenant)
}

func (s *Server) listTenants(w http.ResponseWriter, r *http.Request) {
	var status *tenants.Status
	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		st := tenants.Status(raw)
		if !st.Valid() {
			httputil.WriteFieldError(w, http.StatusBadRequest, "status", "unknown tenant status")
			return
		}
		status = &st
	}

	list, err := s.tenants.List(r.Context(), status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*tenants.Tenant{}
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) getTenant(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "tenant")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	tenant, err := s.tenants.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tenant)
}

func (s *Server) updateTenant(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireHeader(w, r, actorHeader); !ok {
		return
	}
	id, err := httputil.ParsePathString(r, "tenant")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var req tenants.UpdateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	tenant, err := s.tenants.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tenant)
}
