package tenants

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("tenant not found")
	ErrInactive          = errors.New("tenant is not active")
	ErrSlugTaken         = errors.New("tenant slug already in use")
	ErrInvalid           = errors.New("invalid tenant")
	ErrInvalidTransition = errors.New("invalid tenant status transition")
)

// Status represents tenant status
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// CanTransition reports whether a tenant may move from s to next.
// Staying in the same status is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusActive:
		return next == StatusSuspended || next == StatusDeleted
	case StatusSuspended:
		return next == StatusActive || next == StatusDeleted
	default:
		return false
	}
}

// Tenant owns a set of service accounts
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateTenantRequest represents request to create a tenant
type CreateTenantRequest struct {
	Name string `json:"name"`
	// Slug is derived from Name when empty
	Slug string `json:"slug,omitempty"`
}

// UpdateTenantRequest represents request to update a tenant
type UpdateTenantRequest struct {
	Name   *string `json:"name,omitempty"`
	Status *Status `json:"status,omitempty"`
}
