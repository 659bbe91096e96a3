package serviceaccount

import "time"

// Command is a request to change one service account
type Command interface {
	// Meta returns the routing and audit fields shared by every command
	Meta() CommandMeta
	// Name identifies the command type in logs and metrics
	Name() string
}

// CommandMeta carries the fields every command has
type CommandMeta struct {
	// ServiceAccountID is the routing key
	ServiceAccountID string
	TenantID         string
	// InitiatedBy is the acting identity; it is required and never defaulted
	InitiatedBy string
	// CommandID optionally identifies a command for redelivery deduplication
	CommandID string
}

func (m CommandMeta) Meta() CommandMeta { return m }

// CreateCommand creates a service account
type CreateCommand struct {
	CommandMeta
	// ClientID must already be checked for uniqueness within the tenant.
	// When empty one is generated, unchecked.
	ClientID           string
	Description        string
	RequestedExpiresAt *time.Time
	Roles              []string
}

// UpdateDetailsCommand changes description, status or expiration.
// Nil fields are left unchanged.
type UpdateDetailsCommand struct {
	CommandMeta
	Description *string
	Status      *Status
	ExpiresAt   *time.Time
	// ClearExpiration removes the expiration; only allowed when policy permits
	ClearExpiration bool
}

// AssignRolesCommand grants roles
type AssignRolesCommand struct {
	CommandMeta
	Roles []string
}

// RemoveRolesCommand revokes roles
type RemoveRolesCommand struct {
	CommandMeta
	Roles []string
}

// RotateSecretCommand replaces the client secret
type RotateSecretCommand struct {
	CommandMeta
}

// DeactivateCommand disables the credential
type DeactivateCommand struct {
	CommandMeta
}

// ActivateCommand re-enables the credential
type ActivateCommand struct {
	CommandMeta
}

func (CreateCommand) Name() string        { return "create" }
func (UpdateDetailsCommand) Name() string { return "update_details" }
func (AssignRolesCommand) Name() string   { return "assign_roles" }
func (RemoveRolesCommand) Name() string   { return "remove_roles" }
func (RotateSecretCommand) Name() string  { return "rotate_secret" }
func (DeactivateCommand) Name() string    { return "deactivate" }
func (ActivateCommand) Name() string      { return "activate" }
