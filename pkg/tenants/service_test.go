package tenants

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService() *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewService(NewMemoryStore(), logger)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "MyOrg", "myorg"},
		{"name with spaces", "My Organization", "my-organization"},
		{"name with special chars", "My-Org-123", "my-org-123"},
		{"name with invalid chars", "My@Org!", "myorg"},
		{"leading and trailing dashes", " Acme ", "acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, generateSlug(tt.input))
		})
	}
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusSuspended, true},
		{StatusSuspended, StatusActive, true},
		{StatusActive, StatusDeleted, true},
		{StatusSuspended, StatusDeleted, true},
		{StatusDeleted, StatusActive, false},
		{StatusDeleted, StatusSuspended, false},
		{StatusDeleted, StatusDeleted, true},
		{StatusActive, StatusActive, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestService_Create(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tenant, err := svc.Create(ctx, CreateTenantRequest{Name: "  Acme Corp "})
	require.NoError(t, err)
	assert.NotEmpty(t, tenant.ID)
	assert.Equal(t, "Acme Corp", tenant.Name)
	assert.Equal(t, "acme-corp", tenant.Slug)
	assert.Equal(t, StatusActive, tenant.Status)
	assert.Equal(t, fixedNow, tenant.CreatedAt)

	_, err = svc.Create(ctx, CreateTenantRequest{Name: "Acme, Corp"})
	assert.ErrorIs(t, err, ErrSlugTaken)

	_, err = svc.Create(ctx, CreateTenantRequest{Name: " "})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Create(ctx, CreateTenantRequest{Name: "Other", Slug: "Not A Slug"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Create(ctx, CreateTenantRequest{Name: "!!!"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestService_UpdateStatusLattice(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tenant, err := svc.Create(ctx, CreateTenantRequest{Name: "Acme"})
	require.NoError(t, err)

	suspended := StatusSuspended
	updated, err := svc.Update(ctx, tenant.ID, UpdateTenantRequest{Status: &suspended})
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, updated.Status)
	assert.ErrorIs(t, svc.RequireActive(ctx, tenant.ID), ErrInactive)

	deleted := StatusDeleted
	_, err = svc.Update(ctx, tenant.ID, UpdateTenantRequest{Status: &deleted})
	require.NoError(t, err)

	active := StatusActive
	_, err = svc.Update(ctx, tenant.ID, UpdateTenantRequest{Status: &active})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	bogus := Status("archived")
	_, err = svc.Update(ctx, tenant.ID, UpdateTenantRequest{Status: &bogus})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestService_UpdateName(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tenant, err := svc.Create(ctx, CreateTenantRequest{Name: "Acme"})
	require.NoError(t, err)

	name := "Acme Holdings"
	updated, err := svc.Update(ctx, tenant.ID, UpdateTenantRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", updated.Name)
	assert.Equal(t, "acme", updated.Slug)

	got, err := svc.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", got.Name)

	_, err = svc.Update(ctx, "missing", UpdateTenantRequest{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_RequireActive(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tenant, err := svc.Create(ctx, CreateTenantRequest{Name: "Acme"})
	require.NoError(t, err)

	assert.NoError(t, svc.RequireActive(ctx, tenant.ID))
	assert.ErrorIs(t, svc.RequireActive(ctx, "missing"), ErrNotFound)
}

func TestService_List(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateTenantRequest{Name: "A"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateTenantRequest{Name: "B"})
	require.NoError(t, err)

	suspended := StatusSuspended
	_, err = svc.Update(ctx, a.ID, UpdateTenantRequest{Status: &suspended})
	require.NoError(t, err)

	all, err := svc.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := svc.List(ctx, &suspended)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, a.ID, only[0].ID)

	bogus := Status("nope")
	_, err = svc.List(ctx, &bogus)
	assert.ErrorIs(t, err, ErrInvalid)
}
