package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/httputil"
)

const maxAuditExport = 10000

// exportAudit returns the tenant's audit trail, newest first.
// Query: format, serviceAccountId, actor, since, until (RFC 3339), limit.
func (s *Server) exportAudit(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParsePathString(r, "tenant")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if _, err := s.tenants.Get(r.Context(), tenantID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	format, err := audit.ParseExportFormat(httputil.ParseQueryString(r, "format", ""))
	if err != nil {
		httputil.WriteFieldError(w, http.StatusBadRequest, "format", err.Error())
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 1000)
	if err != nil || limit < 1 || limit > maxAuditExport {
		httputil.WriteFieldError(w, http.StatusBadRequest, "limit", "limit must be between 1 and 10000")
		return
	}

	filter := audit.SearchFilter{
		TenantID:   tenantID,
		ResourceID: httputil.ParseQueryString(r, "serviceAccountId", ""),
		Actor:      httputil.ParseQueryString(r, "actor", ""),
		Limit:      limit,
	}
	for _, bound := range []struct {
		key  string
		dest **time.Time
	}{{"since", &filter.StartTime}, {"until", &filter.EndTime}} {
		raw := httputil.ParseQueryString(r, bound.key, "")
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteFieldError(w, http.StatusBadRequest, bound.key, "must be an RFC 3339 timestamp")
			return
		}
		*bound.dest = &t
	}

	events, err := s.audit.Search(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	data, contentType, err := audit.Export(events, format)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
