package serviceaccount

import (
	"time"
)

// MaxDescriptionLength is the longest description accepted, in characters
const MaxDescriptionLength = 1024

// Status governs whether a service account's credential may authenticate
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Policy controls how expiration is resolved and bounded
type Policy struct {
	DefaultExpiration time.Duration
	MaxExpiration     time.Duration
	AllowNoExpiration bool
}

// DefaultPolicy returns a 90 day default and a one year ceiling, with expiration required
func DefaultPolicy() Policy {
	return Policy{
		DefaultExpiration: 90 * 24 * time.Hour,
		MaxExpiration:     365 * 24 * time.Hour,
		AllowNoExpiration: false,
	}
}

// State is the folded state of one service account.
// The zero value is the "not yet created" state.
type State struct {
	ID               string
	TenantID         string
	ClientID         string
	ClientSecretHash string
	Salt             string
	Description      string
	Status           Status
	Roles            []string // sorted, unique
	CreatedAt        time.Time
	ExpiresAt        *time.Time
	SecretRotatedAt  *time.Time

	// Version is the number of events folded into this state
	Version int64
}

// Exists reports whether a Created event has been applied
func (s State) Exists() bool {
	return s.Version > 0
}

// HasRole reports whether role is currently granted
func (s State) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Expired reports whether the account has an expiration at or before now
func (s State) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// CanAuthenticate reports whether the credential is currently usable
func (s State) CanAuthenticate(now time.Time) bool {
	return s.Exists() && s.Status == StatusActive && !s.Expired(now)
}

// Clone returns a deep copy so cached states are never shared mutably
func (s State) Clone() State {
	c := s
	if s.Roles != nil {
		c.Roles = append([]string(nil), s.Roles...)
	}
	c.ExpiresAt = cloneTime(s.ExpiresAt)
	c.SecretRotatedAt = cloneTime(s.SecretRotatedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
