package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/dispatch"
	"github.com/platinummonkey/warden/pkg/projection"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// maxClientIDAttempts bounds client ID regeneration on a per-tenant collision
const maxClientIDAttempts = 3

// idempotentCreateNamespace scopes account IDs derived from create command IDs
var idempotentCreateNamespace = uuid.MustParse("6f1c8a52-3d4e-5b7a-9c0d-2e8f4a6b1c3d")

var (
	// ErrInvalidCredentials is returned for any failed credential check.
	// The reason is deliberately not distinguished to the caller.
	ErrInvalidCredentials = errors.New("invalid client credentials")
	// ErrClientIDUnavailable is returned when every generated client ID collided
	ErrClientIDUnavailable = errors.New("could not allocate a unique client ID")
)

// Dispatcher executes commands and serves event-sourced state
type Dispatcher interface {
	Execute(ctx context.Context, cmd serviceaccount.Command) (dispatch.Result, error)
	State(ctx context.Context, serviceAccountID string) (serviceaccount.State, error)
	// Current reads past any per-process state cache
	Current(ctx context.Context, serviceAccountID string) (serviceaccount.State, error)
}

// Views is the read model the service queries
type Views interface {
	Get(ctx context.Context, id string) (projection.View, error)
	FindByClientID(ctx context.Context, tenantID, clientID string) (projection.View, error)
	ClientIDExists(ctx context.Context, tenantID, clientID string) (bool, error)
	List(ctx context.Context, tenantID string, filter projection.Filter) ([]projection.View, error)
}

// Tenants answers whether a tenant exists and may be modified
type Tenants interface {
	Get(ctx context.Context, id string) (*tenants.Tenant, error)
	RequireActive(ctx context.Context, id string) error
}

// Credentials allocates client IDs and verifies secrets
type Credentials interface {
	GenerateClientID() string
	VerifyClientSecret(secret, salt, hash string) bool
}

// Caller identifies who is acting and, optionally, the redelivery key
type Caller struct {
	Actor     string
	CommandID string
}

// CreateRequest creates a service account
type CreateRequest struct {
	Caller
	TenantID    string
	Description string
	ExpiresAt   *time.Time
	Roles       []string
}

// UpdateDetailsRequest changes description, status or expiration
type UpdateDetailsRequest struct {
	Caller
	TenantID        string
	ID              string
	Description     *string
	Status          *serviceaccount.Status
	ExpiresAt       *time.Time
	ClearExpiration bool
}

// RolesRequest assigns or removes roles
type RolesRequest struct {
	Caller
	TenantID string
	ID       string
	Roles    []string
}

// AccountRequest addresses one account for rotate, activate and deactivate
type AccountRequest struct {
	Caller
	TenantID string
	ID       string
}

// AuthenticateRequest is a presented client credential
type AuthenticateRequest struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// CreatedAccount is returned once, on create, with the plaintext secret
type CreatedAccount struct {
	projection.View
	ClientSecret string `json:"clientSecret"`
}

// RotatedSecret is returned once, on rotation, with the new plaintext secret
type RotatedSecret struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"clientId"`
	ClientSecret    string    `json:"clientSecret"`
	SecretRotatedAt time.Time `json:"secretRotatedAt"`
	Version         int64     `json:"version"`
}
