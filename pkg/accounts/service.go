package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/projection"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

// Service implements the service account use cases
type Service struct {
	dispatcher Dispatcher
	views      Views
	tenants    Tenants
	creds      Credentials
	metrics    *observability.Metrics
	logger     *logrus.Logger
	now        func() time.Time
	newID      func() string

	reads singleflight.Group
}

// NewService wires the application service
func NewService(dispatcher Dispatcher, views Views, tenantSvc Tenants, creds Credentials, metrics *observability.Metrics, logger *logrus.Logger) *Service {
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		dispatcher: dispatcher,
		views:      views,
		tenants:    tenantSvc,
		creds:      creds,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Create allocates IDs and creates a service account in an active tenant
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreatedAccount, error) {
	if err := s.tenants.RequireActive(ctx, req.TenantID); err != nil {
		return nil, err
	}

	clientID, err := s.allocateClientID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	cmd := serviceaccount.CreateCommand{
		CommandMeta:        s.meta(req.Caller, req.TenantID, s.accountID(req.TenantID, req.CommandID)),
		ClientID:           clientID,
		Description:        req.Description,
		RequestedExpiresAt: req.ExpiresAt,
		Roles:              req.Roles,
	}
	res, err := s.dispatcher.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"service_account_id": res.State.ID,
		"tenant_id":          req.TenantID,
		"actor":              req.Actor,
	}).Info("service account created")

	return &CreatedAccount{
		View:         s.view(res.State),
		ClientSecret: res.Secret,
	}, nil
}

// accountID mints a fresh ID, or derives a stable one from the command ID so
// a retried create targets the same aggregate and is rejected as a duplicate
func (s *Service) accountID(tenantID, commandID string) string {
	if commandID == "" {
		return s.newID()
	}
	return uuid.NewSHA1(idempotentCreateNamespace, []byte(tenantID+":"+commandID)).String()
}

// allocateClientID draws client IDs until one is unused in the tenant
func (s *Service) allocateClientID(ctx context.Context, tenantID string) (string, error) {
	for attempt := 1; attempt <= maxClientIDAttempts; attempt++ {
		candidate := s.creds.GenerateClientID()
		exists, err := s.views.ClientIDExists(ctx, tenantID, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check client ID: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		s.logger.WithFields(logrus.Fields{"tenant_id": tenantID, "attempt": attempt}).Warn("client ID collision")
	}
	return "", ErrClientIDUnavailable
}

// Get returns one account of the tenant. Accounts of other tenants are
// reported as not found.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*projection.View, error) {
	// coalesced callers must not inherit the first caller's cancellation
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.reads.Do(tenantID+"/"+id, func() (interface{}, error) {
		return s.lookup(shared, id)
	})
	if err != nil {
		return nil, err
	}

	view := v.(projection.View)
	if view.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", serviceaccount.ErrNotFound, id)
	}
	return &view, nil
}

// lookup reads the projection, falling back to the event-sourced state when
// the view has not been projected yet
func (s *Service) lookup(ctx context.Context, id string) (projection.View, error) {
	v, err := s.views.Get(ctx, id)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, projection.ErrNotFound) {
		return projection.View{}, err
	}

	state, err := s.dispatcher.State(ctx, id)
	if err != nil {
		return projection.View{}, err
	}
	return s.view(state), nil
}

// List returns the tenant's accounts
func (s *Service) List(ctx context.Context, tenantID string, filter projection.Filter) ([]projection.View, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, &serviceaccount.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *filter.Status)}
	}
	return s.views.List(ctx, tenantID, filter)
}

// UpdateDetails changes description, status or expiration
func (s *Service) UpdateDetails(ctx context.Context, req UpdateDetailsRequest) (*projection.View, error) {
	return s.execute(ctx, req.TenantID, serviceaccount.UpdateDetailsCommand{
		CommandMeta:     s.meta(req.Caller, req.TenantID, req.ID),
		Description:     req.Description,
		Status:          req.Status,
		ExpiresAt:       req.ExpiresAt,
		ClearExpiration: req.ClearExpiration,
	})
}

// AssignRoles grants roles
func (s *Service) AssignRoles(ctx context.Context, req RolesRequest) (*projection.View, error) {
	return s.execute(ctx, req.TenantID, serviceaccount.AssignRolesCommand{
		CommandMeta: s.meta(req.Caller, req.TenantID, req.ID),
		Roles:       req.Roles,
	})
}

// RemoveRoles revokes roles
func (s *Service) RemoveRoles(ctx context.Context, req RolesRequest) (*projection.View, error) {
	return s.execute(ctx, req.TenantID, serviceaccount.RemoveRolesCommand{
		CommandMeta: s.meta(req.Caller, req.TenantID, req.ID),
		Roles:       req.Roles,
	})
}

// Activate re-enables the credential
func (s *Service) Activate(ctx context.Context, req AccountRequest) (*projection.View, error) {
	return s.execute(ctx, req.TenantID, serviceaccount.ActivateCommand{
		CommandMeta: s.meta(req.Caller, req.TenantID, req.ID),
	})
}

// Deactivate disables the credential
func (s *Service) Deactivate(ctx context.Context, req AccountRequest) (*projection.View, error) {
	return s.execute(ctx, req.TenantID, serviceaccount.DeactivateCommand{
		CommandMeta: s.meta(req.Caller, req.TenantID, req.ID),
	})
}

// RotateSecret issues a new client secret. The previous secret stops
// verifying immediately.
func (s *Service) RotateSecret(ctx context.Context, req AccountRequest) (*RotatedSecret, error) {
	if err := s.tenants.RequireActive(ctx, req.TenantID); err != nil {
		return nil, err
	}

	res, err := s.dispatcher.Execute(ctx, serviceaccount.RotateSecretCommand{
		CommandMeta: s.meta(req.Caller, req.TenantID, req.ID),
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"service_account_id": req.ID,
		"tenant_id":          req.TenantID,
		"actor":              req.Actor,
	}).Info("client secret rotated")

	rotated := &RotatedSecret{
		ID:           res.State.ID,
		ClientID:     res.State.ClientID,
		ClientSecret: res.Secret,
		Version:      res.Version,
	}
	if res.State.SecretRotatedAt != nil {
		rotated.SecretRotatedAt = *res.State.SecretRotatedAt
	}
	return rotated, nil
}

// Authenticate verifies a client ID and secret. Every failure returns
// ErrInvalidCredentials; the reason is only logged and counted.
func (s *Service) Authenticate(ctx context.Context, req AuthenticateRequest) (*projection.View, error) {
	outcome, state, err := s.authenticate(ctx, req)
	s.metrics.AuthenticationsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		return nil, err
	}
	if outcome != "success" {
		s.logger.WithFields(logrus.Fields{
			"tenant_id": req.TenantID,
			"client_id": req.ClientID,
			"outcome":   outcome,
		}).Info("client authentication rejected")
		return nil, ErrInvalidCredentials
	}

	v := s.view(state)
	return &v, nil
}

func (s *Service) authenticate(ctx context.Context, req AuthenticateRequest) (string, serviceaccount.State, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return "malformed", serviceaccount.State{}, nil
	}

	v, err := s.views.FindByClientID(ctx, req.TenantID, req.ClientID)
	if errors.Is(err, projection.ErrNotFound) {
		return "unknown_client", serviceaccount.State{}, nil
	}
	if err != nil {
		return "error", serviceaccount.State{}, err
	}

	state, err := s.dispatcher.Current(ctx, v.ID)
	if errors.Is(err, serviceaccount.ErrNotFound) {
		return "unknown_client", serviceaccount.State{}, nil
	}
	if err != nil {
		return "error", serviceaccount.State{}, err
	}
	if state.TenantID != req.TenantID || state.ClientID != req.ClientID {
		return "unknown_client", serviceaccount.State{}, nil
	}

	now := s.now().UTC()
	switch {
	case state.Status != serviceaccount.StatusActive:
		return "inactive", state, nil
	case state.Expired(now):
		return "expired", state, nil
	case !s.creds.VerifyClientSecret(req.ClientSecret, state.Salt, state.ClientSecretHash):
		return "invalid_secret", state, nil
	}
	return "success", state, nil
}

func (s *Service) execute(ctx context.Context, tenantID string, cmd serviceaccount.Command) (*projection.View, error) {
	if err := s.tenants.RequireActive(ctx, tenantID); err != nil {
		return nil, err
	}
	res, err := s.dispatcher.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	v := s.view(res.State)
	return &v, nil
}

func (s *Service) meta(caller Caller, tenantID, id string) serviceaccount.CommandMeta {
	return serviceaccount.CommandMeta{
		ServiceAccountID: id,
		TenantID:         tenantID,
		InitiatedBy:      caller.Actor,
		CommandID:        caller.CommandID,
	}
}

func (s *Service) view(state serviceaccount.State) projection.View {
	return projection.FromState(state, s.now().UTC())
}
