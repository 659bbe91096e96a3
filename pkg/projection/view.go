package projection

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

// ErrNotFound is returned when no view matches
var ErrNotFound = errors.New("view not found")

// View is one row of the service account read model
type View struct {
	ID              string                `json:"id"`
	TenantID        string                `json:"tenantId"`
	ClientID        string                `json:"clientId"`
	Description     string                `json:"description"`
	Status          serviceaccount.Status `json:"status"`
	Roles           []string              `json:"roles"`
	CreatedAt       time.Time             `json:"createdAt"`
	ExpiresAt       *time.Time            `json:"expiresAt,omitempty"`
	SecretRotatedAt *time.Time            `json:"secretRotatedAt,omitempty"`
	Version         int64                 `json:"version"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// Filter narrows List results
type Filter struct {
	Status *serviceaccount.Status
	Role   string
	Limit  int
	Offset int
}

// ViewStore persists views
type ViewStore interface {
	Get(ctx context.Context, id string) (View, error)
	// Upsert stores v unless a view with the same or a newer version exists.
	// It reports whether v was written.
	Upsert(ctx context.Context, v View) (bool, error)
	FindByClientID(ctx context.Context, tenantID, clientID string) (View, error)
	ClientIDExists(ctx context.Context, tenantID, clientID string) (bool, error)
	List(ctx context.Context, tenantID string, filter Filter) ([]View, error)
	// ListExpired returns ACTIVE views whose expiration is at or before now
	ListExpired(ctx context.Context, now time.Time, limit int) ([]View, error)
	// Reset removes every view ahead of a rebuild
	Reset(ctx context.Context) error
}

// FromState builds the view of a folded state
func FromState(s serviceaccount.State, updatedAt time.Time) View {
	roles := s.Roles
	if roles == nil {
		roles = []string{}
	}
	return View{
		ID:              s.ID,
		TenantID:        s.TenantID,
		ClientID:        s.ClientID,
		Description:     s.Description,
		Status:          s.Status,
		Roles:           append([]string(nil), roles...),
		CreatedAt:       s.CreatedAt,
		ExpiresAt:       copyTime(s.ExpiresAt),
		SecretRotatedAt: copyTime(s.SecretRotatedAt),
		Version:         s.Version,
		UpdatedAt:       updatedAt,
	}
}

// state rebuilds the non-secret part of the folded state so events can be
// applied with serviceaccount.Apply
func (v View) state() serviceaccount.State {
	return serviceaccount.State{
		ID:              v.ID,
		TenantID:        v.TenantID,
		ClientID:        v.ClientID,
		Description:     v.Description,
		Status:          v.Status,
		Roles:           append([]string(nil), v.Roles...),
		CreatedAt:       v.CreatedAt,
		ExpiresAt:       copyTime(v.ExpiresAt),
		SecretRotatedAt: copyTime(v.SecretRotatedAt),
		Version:         v.Version,
	}
}

// Expired reports whether the view has an expiration at or before now
func (v View) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && !v.ExpiresAt.After(now)
}

func (v View) hasRole(role string) bool {
	for _, r := range v.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func clone(v View) View {
	v.Roles = append([]string{}, v.Roles...)
	v.ExpiresAt = copyTime(v.ExpiresAt)
	v.SecretRotatedAt = copyTime(v.SecretRotatedAt)
	return v
}
