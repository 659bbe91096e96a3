package api

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/projection"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type createServiceAccountBody struct {
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Roles       []string   `json:"roles,omitempty"`
}

type updateServiceAccountBody struct {
	Description     *string                `json:"description,omitempty"`
	Status          *serviceaccount.Status `json:"status,omitempty"`
	ExpiresAt       *time.Time             `json:"expiresAt,omitempty"`
	ClearExpiration bool                   `json:"clearExpiration,omitempty"`
}

type rolesBody struct {
	Roles []string `json:"roles"`
}

type authenticateBody struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// target reads the tenant and service account path parameters
func target(w http.ResponseWriter, r *http.Request) (tenantID, id string, ok bool) {
	tenantID, err := httputil.ParsePathString(r, "tenant")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return "", "", false
	}
	id, err = httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return "", "", false
	}
	return tenantID, id, true
}

func (s *Server) createServiceAccount(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	tenantID, err := httputil.ParsePathString(r, "tenant")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var body createServiceAccountBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	created, err := s.accounts.Create(r.Context(), accounts.CreateRequest{
		Caller:      c,
		TenantID:    tenantID,
		Description: body.Description,
		ExpiresAt:   body.ExpiresAt,
		Roles:       body.Roles,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (s *Server) listServiceAccounts(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParsePathString(r, "tenant")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		httputil.WriteFieldError(w, http.StatusBadRequest, "limit", "limit must be between 1 and 500")
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httputil.WriteFieldError(w, http.StatusBadRequest, "offset", "offset must be a non-negative integer")
		return
	}

	filter := projection.Filter{
		Role:   httputil.ParseQueryString(r, "role", ""),
		Limit:  limit,
		Offset: offset,
	}
	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		status := serviceaccount.Status(raw)
		filter.Status = &status
	}

	views, err := s.accounts.List(r.Context(), tenantID, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if views == nil {
		views = []projection.View{}
	}
	httputil.WriteSuccess(w, views)
}

func (s *Server) getServiceAccount(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := target(w, r)
	if !ok {
		return
	}

	view, err := s.accounts.Get(r.Context(), tenantID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

func (s *Server) updateServiceAccount(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	tenantID, id, ok := target(w, r)
	if !ok {
		return
	}

	var body updateServiceAccountBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	view, err := s.accounts.UpdateDetails(r.Context(), accounts.UpdateDetailsRequest{
		Caller:          c,
		TenantID:        tenantID,
		ID:              id,
		Description:     body.Description,
		Status:          body.Status,
		ExpiresAt:       body.ExpiresAt,
		ClearExpiration: body.ClearExpiration,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

func (s *Server) assignRoles(w http.ResponseWriter, r *http.Request) {
	s.changeRoles(w, r, s.accounts.AssignRoles)
}

func (s *Server) removeRoles(w http.ResponseWriter, r *http.Request) {
	s.changeRoles(w, r, s.accounts.RemoveRoles)
}

type rolesFunc func(ctx context.Context, req accounts.RolesRequest) (*projection.View, error)

func (s *Server) changeRoles(w http.ResponseWriter, r *http.Request, apply rolesFunc) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	tenantID, id, ok := target(w, r)
	if !ok {
		return
	}

	var body rolesBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	view, err := apply(r.Context(), accounts.RolesRequest{
		Caller:   c,
		TenantID: tenantID,
		ID:       id,
		Roles:    body.Roles,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

func (s *Server) rotateSecret(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	tenantID, id, ok := target(w, r)
	if !ok {
		return
	}

	rotated, err := s.accounts.RotateSecret(r.Context(), accounts.AccountRequest{Caller: c, TenantID: tenantID, ID: id})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rotated)
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	s.changeStatus(w, r, s.accounts.Activate)
}

func (s *Server) deactivate(w http.ResponseWriter, r *http.Request) {
	s.changeStatus(w, r, s.accounts.Deactivate)
}

type statusFunc func(ctx context.Context, req accounts.AccountRequest) (*projection.View, error)

func (s *Server) changeStatus(w http.ResponseWriter, r *http.Request, apply statusFunc) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	tenantID, id, ok := target(w, r)
	if !ok {
		return
	}

	view, err := apply(r.Context(), accounts.AccountRequest{Caller: c, TenantID: tenantID, ID: id})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParsePathString(r, "tenant")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var body authenticateBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	view, err := s.accounts.Authenticate(r.Context(), accounts.AuthenticateRequest{
		TenantID:     tenantID,
		ClientID:     body.ClientID,
		ClientSecret: body.ClientSecret,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}
