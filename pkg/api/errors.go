package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/dispatch"
	"github.com/platinummonkey/warden/pkg/eventstore"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/projection"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, serviceaccount.ErrNotFound),
		errors.Is(err, tenants.ErrNotFound),
		errors.Is(err, projection.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, serviceaccount.ErrValidation),
		errors.Is(err, tenants.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, serviceaccount.ErrAlreadyExists),
		errors.Is(err, tenants.ErrInactive),
		errors.Is(err, tenants.ErrSlugTaken),
		errors.Is(err, tenants.ErrInvalidTransition),
		errors.Is(err, dispatch.ErrDuplicateCommand),
		errors.Is(err, eventstore.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, accounts.ErrClientIDUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status. Unexpected errors are
// logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var verr *serviceaccount.ValidationError
	switch {
	case status == http.StatusInternalServerError:
		observability.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		httputil.WriteInternalError(w)
	case status == http.StatusUnauthorized:
		httputil.WriteUnauthorized(w, accounts.ErrInvalidCredentials.Error())
	case errors.As(err, &verr):
		httputil.WriteFieldError(w, status, verr.Field, verr.Error())
	default:
		httputil.WriteError(w, status, err)
	}
}
