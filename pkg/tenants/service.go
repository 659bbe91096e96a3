package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxNameLength = 255

// Service applies tenant rules over a Store
type Service struct {
	store  Store
	logger *logrus.Logger
	now    func() time.Time
}

// NewService creates a tenant service
func NewService(store Store, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Create registers a new active tenant
func (s *Service) Create(ctx context.Context, req CreateTenantRequest) (*Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(name) > maxNameLength {
		return nil, fmt.Errorf("%w: name must be at most %d characters", ErrInvalid, maxNameLength)
	}

	slug := req.Slug
	if slug == "" {
		slug = generateSlug(name)
	}
	if slug == "" || slug != generateSlug(slug) {
		return nil, fmt.Errorf("%w: slug must contain only lowercase letters, digits and dashes", ErrInvalid)
	}

	now := s.now().UTC()
	t := &Tenant{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      slug,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"tenant_id": t.ID, "slug": t.Slug}).Info("tenant created")
	return t, nil
}

// Get returns a tenant by ID
func (s *Service) Get(ctx context.Context, id string) (*Tenant, error) {
	return s.store.Get(ctx, id)
}

// List returns tenants, optionally only those in status
func (s *Service) List(ctx context.Context, status *Status) ([]*Tenant, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, *status)
	}
	return s.store.List(ctx, status)
}

// Update renames a tenant or moves it through the status lattice
func (s *Service) Update(ctx context.Context, id string, req UpdateTenantRequest) (*Tenant, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > maxNameLength {
			return nil, fmt.Errorf("%w: name must be 1 to %d characters", ErrInvalid, maxNameLength)
		}
		if name != t.Name {
			t.Name = name
			changed = true
		}
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, *req.Status)
		}
		if !t.Status.CanTransition(*req.Status) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, *req.Status)
		}
		if *req.Status != t.Status {
			s.logger.WithFields(logrus.Fields{
				"tenant_id": t.ID,
				"from":      t.Status,
				"to":        *req.Status,
			}).Info("tenant status changed")
			t.Status = *req.Status
			changed = true
		}
	}

	if !changed {
		return t, nil
	}
	t.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RequireActive returns nil only for an existing, active tenant
func (s *Service) RequireActive(ctx context.Context, id string) error {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	if t.Status != StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrInactive, id, t.Status)
	}
	return nil
}

// generateSlug lowercases name, turns spaces into dashes and drops anything
// that is not a letter, digit or dash
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}
