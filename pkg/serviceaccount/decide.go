package serviceaccount

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Credentials is the subset of the credential service the aggregate needs
type Credentials interface {
	GenerateClientID() string
	GenerateClientSecret() string
	HashClientSecret(secret string) (hash string, salt string)
}

// Decision is the outcome of a command: zero or one event
type Decision struct {
	// Event is nil when the command leaves the state unchanged
	Event Event
	// Secret is the plaintext client secret on Create and RotateSecret.
	// It exists only here and is never part of an event.
	Secret string
}

// NoOp reports whether the command produced no event
func (d Decision) NoOp() bool {
	return d.Event == nil
}

// Decider validates commands against a state and decides which event to emit.
// It never mutates state; Apply does that.
type Decider struct {
	creds Credentials
	now   func() time.Time
}

// NewDecider creates a decider. now may be nil to use time.Now.
func NewDecider(creds Credentials, now func() time.Time) *Decider {
	if now == nil {
		now = time.Now
	}
	return &Decider{creds: creds, now: now}
}

// Decide validates cmd against state under policy.
//
// The clock is read once per call so every check in one command sees the
// same instant. Errors wrap ErrNotFound, ErrAlreadyExists or ErrValidation.
func (d *Decider) Decide(state State, cmd Command, policy Policy) (Decision, error) {
	meta := cmd.Meta()
	if err := validateMeta(meta); err != nil {
		return Decision{}, err
	}

	now := d.now().UTC()
	em := EventMeta{
		ServiceAccountID: meta.ServiceAccountID,
		OccurredOn:       now,
		InitiatedBy:      meta.InitiatedBy,
	}

	if c, ok := cmd.(CreateCommand); ok {
		return d.decideCreate(state, c, policy, em)
	}

	if !state.Exists() {
		return Decision{}, fmt.Errorf("%w: %s", ErrNotFound, meta.ServiceAccountID)
	}
	if state.TenantID != meta.TenantID {
		return Decision{}, ErrTenantMismatch
	}

	switch c := cmd.(type) {
	case UpdateDetailsCommand:
		return decideUpdateDetails(state, c, policy, em)
	case AssignRolesCommand:
		return decideAssignRoles(state, c, em)
	case RemoveRolesCommand:
		return decideRemoveRoles(state, c, em)
	case RotateSecretCommand:
		return d.decideRotateSecret(em), nil
	case DeactivateCommand:
		if state.Status == StatusInactive {
			return Decision{}, nil
		}
		return Decision{Event: Deactivated{EventMeta: em}}, nil
	case ActivateCommand:
		if state.Status == StatusActive {
			return Decision{}, nil
		}
		return Decision{Event: Activated{EventMeta: em}}, nil
	default:
		return Decision{}, fmt.Errorf("%w: unsupported command %T", ErrValidation, cmd)
	}
}

func (d *Decider) decideCreate(state State, cmd CreateCommand, policy Policy, em EventMeta) (Decision, error) {
	if state.Exists() {
		return Decision{}, fmt.Errorf("%w: %s", ErrAlreadyExists, cmd.ServiceAccountID)
	}
	if err := validateDescription(cmd.Description); err != nil {
		return Decision{}, err
	}
	roles, err := normalizeRoles("roles", cmd.Roles)
	if err != nil {
		return Decision{}, err
	}
	expiresAt, err := resolveExpiration(em.OccurredOn, cmd.RequestedExpiresAt, policy)
	if err != nil {
		return Decision{}, err
	}

	clientID := cmd.ClientID
	if clientID == "" {
		clientID = d.creds.GenerateClientID()
	}
	secret := d.creds.GenerateClientSecret()
	hash, salt := d.creds.HashClientSecret(secret)

	return Decision{
		Event: Created{
			EventMeta:        em,
			TenantID:         cmd.TenantID,
			ClientID:         clientID,
			ClientSecretHash: hash,
			Salt:             salt,
			Description:      cmd.Description,
			Status:           StatusActive,
			Roles:            roles,
			CreatedAt:        em.OccurredOn,
			ExpiresAt:        expiresAt,
		},
		Secret: secret,
	}, nil
}

func decideUpdateDetails(state State, cmd UpdateDetailsCommand, policy Policy, em EventMeta) (Decision, error) {
	description := state.Description
	if cmd.Description != nil {
		if err := validateDescription(*cmd.Description); err != nil {
			return Decision{}, err
		}
		description = *cmd.Description
	}

	status := state.Status
	if cmd.Status != nil {
		if !cmd.Status.Valid() {
			return Decision{}, invalid("status", "must be %s or %s", StatusActive, StatusInactive)
		}
		status = *cmd.Status
	}

	expiresAt := cloneTime(state.ExpiresAt)
	switch {
	case cmd.ClearExpiration && cmd.ExpiresAt != nil:
		return Decision{}, invalid("expiresAt", "cannot be set and cleared in the same command")
	case cmd.ClearExpiration:
		if state.ExpiresAt != nil {
			if !policy.AllowNoExpiration {
				return Decision{}, invalid("expiresAt", "is required by policy")
			}
			expiresAt = nil
		}
	case cmd.ExpiresAt != nil && !sameTime(cmd.ExpiresAt, state.ExpiresAt):
		if err := validateExpiration(em.OccurredOn, *cmd.ExpiresAt, policy); err != nil {
			return Decision{}, err
		}
		t := cmd.ExpiresAt.UTC()
		expiresAt = &t
	}

	if description == state.Description && status == state.Status && sameTime(expiresAt, state.ExpiresAt) {
		return Decision{}, nil
	}

	return Decision{Event: DetailsUpdated{
		EventMeta:   em,
		Description: description,
		Status:      status,
		ExpiresAt:   expiresAt,
	}}, nil
}

func decideAssignRoles(state State, cmd AssignRolesCommand, em EventMeta) (Decision, error) {
	if len(cmd.Roles) == 0 {
		return Decision{}, invalid("rolesToAssign", "must not be empty")
	}
	requested, err := normalizeRoles("rolesToAssign", cmd.Roles)
	if err != nil {
		return Decision{}, err
	}

	delta := missingFrom(state.Roles, requested)
	if len(delta) == 0 {
		return Decision{}, nil
	}

	return Decision{Event: RolesAssigned{
		EventMeta:         em,
		AssignedRoles:     delta,
		AllEffectiveRoles: union(state.Roles, delta),
	}}, nil
}

func decideRemoveRoles(state State, cmd RemoveRolesCommand, em EventMeta) (Decision, error) {
	if len(cmd.Roles) == 0 {
		return Decision{}, invalid("rolesToRemove", "must not be empty")
	}
	requested, err := normalizeRoles("rolesToRemove", cmd.Roles)
	if err != nil {
		return Decision{}, err
	}

	delta := presentIn(state.Roles, requested)
	if len(delta) == 0 {
		return Decision{}, nil
	}

	return Decision{Event: RolesRemoved{
		EventMeta:         em,
		RemovedRoles:      delta,
		AllEffectiveRoles: subtract(state.Roles, delta),
	}}, nil
}

func (d *Decider) decideRotateSecret(em EventMeta) Decision {
	secret := d.creds.GenerateClientSecret()
	hash, salt := d.creds.HashClientSecret(secret)
	return Decision{
		Event: SecretRotated{
			EventMeta:           em,
			NewClientSecretHash: hash,
			NewSalt:             salt,
		},
		Secret: secret,
	}
}

func validateMeta(meta CommandMeta) error {
	if strings.TrimSpace(meta.ServiceAccountID) == "" {
		return invalid("serviceAccountId", "is required")
	}
	if strings.TrimSpace(meta.TenantID) == "" {
		return invalid("tenantId", "is required")
	}
	if strings.TrimSpace(meta.InitiatedBy) == "" {
		return invalid("initiatedBy", "is required")
	}
	return nil
}

func validateDescription(description string) error {
	if n := utf8.RuneCountInString(description); n > MaxDescriptionLength {
		return invalid("description", "must be at most %d characters, got %d", MaxDescriptionLength, n)
	}
	return nil
}

// resolveExpiration applies the policy default when nothing was requested
func resolveExpiration(now time.Time, requested *time.Time, policy Policy) (*time.Time, error) {
	if requested == nil {
		if policy.AllowNoExpiration {
			return nil, nil
		}
		t := now.Add(policy.DefaultExpiration)
		return &t, nil
	}
	if err := validateExpiration(now, *requested, policy); err != nil {
		return nil, err
	}
	t := requested.UTC()
	return &t, nil
}

// validateExpiration accepts (now, now+MaxExpiration]
func validateExpiration(now, expiresAt time.Time, policy Policy) error {
	if !expiresAt.After(now) {
		return invalid("expiresAt", "must be in the future")
	}
	if limit := now.Add(policy.MaxExpiration); expiresAt.After(limit) {
		return invalid("expiresAt", "must not be later than %s", limit.Format(time.RFC3339))
	}
	return nil
}
