package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/dispatch"
	"github.com/platinummonkey/warden/pkg/eventstore"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
	"github.com/platinummonkey/warden/pkg/tenants"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: sa-1", serviceaccount.ErrNotFound), http.StatusNotFound},
		{tenants.ErrNotFound, http.StatusNotFound},
		{&serviceaccount.ValidationError{Field: "roles", Reason: "blank"}, http.StatusBadRequest},
		{serviceaccount.ErrTenantMismatch, http.StatusBadRequest},
		{tenants.ErrInvalid, http.StatusBadRequest},
		{serviceaccount.ErrAlreadyExists, http.StatusConflict},
		{tenants.ErrInactive, http.StatusConflict},
		{tenants.ErrSlugTaken, http.StatusConflict},
		{tenants.ErrInvalidTransition, http.StatusConflict},
		{dispatch.ErrDuplicateCommand, http.StatusConflict},
		{fmt.Errorf("%w: sa-1", eventstore.ErrConcurrencyConflict), http.StatusConflict},
		{accounts.ErrInvalidCredentials, http.StatusUnauthorized},
		{accounts.ErrClientIDUnavailable, http.StatusServiceUnavailable},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestActorContext(t *testing.T) {
	var got string
	h := actorContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = observability.GetActor(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(actorHeader, "deployer@example.com")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "deployer@example.com", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Empty(t, got)
}
