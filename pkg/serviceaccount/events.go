package serviceaccount

import "time"

// EventType names an event in the log
type EventType string

const (
	EventCreated        EventType = "ServiceAccountCreated"
	EventDetailsUpdated EventType = "ServiceAccountDetailsUpdated"
	EventRolesAssigned  EventType = "ServiceAccountRolesAssigned"
	EventRolesRemoved   EventType = "ServiceAccountRolesRemoved"
	EventSecretRotated  EventType = "ServiceAccountSecretRotated"
	EventDeactivated    EventType = "ServiceAccountDeactivated"
	EventActivated      EventType = "ServiceAccountActivated"
)

// Event is an immutable record of a state change that already happened
type Event interface {
	Type() EventType
	Meta() EventMeta
}

// EventMeta carries the fields every event has
type EventMeta struct {
	ServiceAccountID string    `json:"serviceAccountId"`
	OccurredOn       time.Time `json:"occurredOn"`
	InitiatedBy      string    `json:"initiatedBy"`
}

func (m EventMeta) Meta() EventMeta { return m }

// Created initializes every field of the account
type Created struct {
	EventMeta
	TenantID         string     `json:"tenantId"`
	ClientID         string     `json:"clientId"`
	ClientSecretHash string     `json:"clientSecretHash"`
	Salt             string     `json:"salt"`
	Description      string     `json:"description,omitempty"`
	Status           Status     `json:"status"`
	Roles            []string   `json:"roles"`
	CreatedAt        time.Time  `json:"createdAt"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
}

// DetailsUpdated carries the complete resulting details, not a diff
type DetailsUpdated struct {
	EventMeta
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// RolesAssigned carries the newly granted roles and the resulting set
type RolesAssigned struct {
	EventMeta
	AssignedRoles     []string `json:"assignedRoles"`
	AllEffectiveRoles []string `json:"allEffectiveRoles"`
}

// RolesRemoved carries the revoked roles and the resulting set
type RolesRemoved struct {
	EventMeta
	RemovedRoles      []string `json:"removedRoles"`
	AllEffectiveRoles []string `json:"allEffectiveRoles"`
}

// SecretRotated replaces the stored hash and salt
type SecretRotated struct {
	EventMeta
	NewClientSecretHash string `json:"newClientSecretHash"`
	NewSalt             string `json:"newSalt"`
}

type Deactivated struct {
	EventMeta
}

type Activated struct {
	EventMeta
}

func (Created) Type() EventType        { return EventCreated }
func (DetailsUpdated) Type() EventType { return EventDetailsUpdated }
func (RolesAssigned) Type() EventType  { return EventRolesAssigned }
func (RolesRemoved) Type() EventType   { return EventRolesRemoved }
func (SecretRotated) Type() EventType  { return EventSecretRotated }
func (Deactivated) Type() EventType    { return EventDeactivated }
func (Activated) Type() EventType      { return EventActivated }
