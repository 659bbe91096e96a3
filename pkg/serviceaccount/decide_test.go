package serviceaccount

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/credentials"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeCredentials returns predictable values so events can be asserted exactly
type fakeCredentials struct {
	n int
}

func (f *fakeCredentials) GenerateClientID() string {
	f.n++
	return fmt.Sprintf("client-%d", f.n)
}

func (f *fakeCredentials) GenerateClientSecret() string {
	f.n++
	return fmt.Sprintf("secret-%d", f.n)
}

func (f *fakeCredentials) HashClientSecret(secret string) (string, string) {
	f.n++
	salt := fmt.Sprintf("salt-%d", f.n)
	return "hash(" + secret + "," + salt + ")", salt
}

func newTestDecider() *Decider {
	return NewDecider(&fakeCredentials{}, func() time.Time { return testNow })
}

func meta(id, tenant string) CommandMeta {
	return CommandMeta{ServiceAccountID: id, TenantID: tenant, InitiatedBy: "alice"}
}

// created returns the state after a successful Create in tenant T1 with roles
func created(t *testing.T, d *Decider, roles ...string) State {
	t.Helper()
	decision, err := d.Decide(State{}, CreateCommand{
		CommandMeta: meta("sa-1", "T1"),
		ClientID:    "client-abc",
		Description: "svc",
		Roles:       roles,
	}, DefaultPolicy())
	require.NoError(t, err)
	return Apply(State{}, decision.Event)
}

func mustApply(t *testing.T, d *Decider, state State, cmd Command) (State, Decision) {
	t.Helper()
	decision, err := d.Decide(state, cmd, DefaultPolicy())
	require.NoError(t, err)
	if decision.NoOp() {
		return state, decision
	}
	return Apply(state, decision.Event), decision
}

func ptr[T any](v T) *T { return &v }

func TestDecide_Create(t *testing.T) {
	t.Run("default expiration when none requested", func(t *testing.T) {
		d := newTestDecider()
		policy := Policy{DefaultExpiration: 90 * 24 * time.Hour, MaxExpiration: 365 * 24 * time.Hour}

		decision, err := d.Decide(State{}, CreateCommand{
			CommandMeta: meta("sa-1", "T1"),
			ClientID:    "client-abc",
			Description: "svc",
			Roles:       []string{"R1"},
		}, policy)
		require.NoError(t, err)

		ev, ok := decision.Event.(Created)
		require.True(t, ok)
		assert.Equal(t, "T1", ev.TenantID)
		assert.Equal(t, "client-abc", ev.ClientID)
		assert.Equal(t, StatusActive, ev.Status)
		assert.Equal(t, testNow, ev.CreatedAt)
		assert.Equal(t, testNow, ev.OccurredOn)
		assert.Equal(t, "alice", ev.InitiatedBy)
		assert.NotEmpty(t, decision.Secret)

		state := Apply(State{}, ev)
		assert.Equal(t, StatusActive, state.Status)
		assert.Equal(t, []string{"R1"}, state.Roles)
		require.NotNil(t, state.ExpiresAt)
		assert.Equal(t, state.CreatedAt.Add(90*24*time.Hour), *state.ExpiresAt)
	})

	t.Run("no expiration when policy allows", func(t *testing.T) {
		d := newTestDecider()
		policy := DefaultPolicy()
		policy.AllowNoExpiration = true

		decision, err := d.Decide(State{}, CreateCommand{CommandMeta: meta("sa-1", "T1")}, policy)
		require.NoError(t, err)
		assert.Nil(t, decision.Event.(Created).ExpiresAt)
	})

	t.Run("requested expiration is kept", func(t *testing.T) {
		d := newTestDecider()
		requested := testNow.Add(24 * time.Hour)

		decision, err := d.Decide(State{}, CreateCommand{
			CommandMeta:        meta("sa-1", "T1"),
			RequestedExpiresAt: &requested,
		}, DefaultPolicy())
		require.NoError(t, err)
		assert.Equal(t, requested, *decision.Event.(Created).ExpiresAt)
	})

	t.Run("client ID generated when not supplied", func(t *testing.T) {
		d := newTestDecider()
		decision, err := d.Decide(State{}, CreateCommand{CommandMeta: meta("sa-1", "T1")}, DefaultPolicy())
		require.NoError(t, err)
		assert.Equal(t, "client-1", decision.Event.(Created).ClientID)
	})

	t.Run("roles are deduplicated and sorted", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R2", "R1", "R2")
		assert.Equal(t, []string{"R1", "R2"}, state.Roles)
	})

	t.Run("already exists", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1")
		_, err := d.Decide(state, CreateCommand{CommandMeta: meta("sa-1", "T1")}, DefaultPolicy())
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestDecide_CreateValidation(t *testing.T) {
	past := testNow.Add(-time.Second)
	tooFar := testNow.Add(DefaultPolicy().MaxExpiration + time.Nanosecond)

	tests := []struct {
		name  string
		cmd   CreateCommand
		field string
	}{
		{"blank tenant", CreateCommand{CommandMeta: meta("sa-1", " ")}, "tenantId"},
		{"blank id", CreateCommand{CommandMeta: meta("", "T1")}, "serviceAccountId"},
		{"blank actor", CreateCommand{CommandMeta: CommandMeta{ServiceAccountID: "sa-1", TenantID: "T1"}}, "initiatedBy"},
		{"description too long", CreateCommand{CommandMeta: meta("sa-1", "T1"), Description: strings.Repeat("x", 1025)}, "description"},
		{"expiry in the past", CreateCommand{CommandMeta: meta("sa-1", "T1"), RequestedExpiresAt: &past}, "expiresAt"},
		{"expiry beyond horizon", CreateCommand{CommandMeta: meta("sa-1", "T1"), RequestedExpiresAt: &tooFar}, "expiresAt"},
		{"blank role", CreateCommand{CommandMeta: meta("sa-1", "T1"), Roles: []string{"R1", ""}}, "roles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecider()
			decision, err := d.Decide(State{}, tt.cmd, DefaultPolicy())
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.True(t, decision.NoOp())

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	t.Run("description of exactly 1024 multibyte characters", func(t *testing.T) {
		d := newTestDecider()
		_, err := d.Decide(State{}, CreateCommand{
			CommandMeta: meta("sa-1", "T1"),
			Description: strings.Repeat("é", 1024),
		}, DefaultPolicy())
		assert.NoError(t, err)
	})
}

func TestDecide_ExpirationBoundaries(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name    string
		at      time.Time
		wantErr bool
	}{
		{"exactly now is rejected", testNow, true},
		{"one nanosecond after now", testNow.Add(time.Nanosecond), false},
		{"exactly now plus max is accepted", testNow.Add(policy.MaxExpiration), false},
		{"one unit beyond max is rejected", testNow.Add(policy.MaxExpiration + time.Nanosecond), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecider()
			at := tt.at
			_, err := d.Decide(State{}, CreateCommand{
				CommandMeta:        meta("sa-1", "T1"),
				RequestedExpiresAt: &at,
			}, policy)
			if tt.wantErr {
				assert.True(t, IsValidation(err), "expected validation error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecide_NotFound(t *testing.T) {
	commands := []Command{
		UpdateDetailsCommand{CommandMeta: meta("sa-1", "T1"), Description: ptr("x")},
		AssignRolesCommand{CommandMeta: meta("sa-1", "T1"), Roles: []string{"R1"}},
		RemoveRolesCommand{CommandMeta: meta("sa-1", "T1"), Roles: []string{"R1"}},
		RotateSecretCommand{CommandMeta: meta("sa-1", "T1")},
		DeactivateCommand{CommandMeta: meta("sa-1", "T1")},
		ActivateCommand{CommandMeta: meta("sa-1", "T1")},
	}

	for _, cmd := range commands {
		t.Run(cmd.Name(), func(t *testing.T) {
			_, err := newTestDecider().Decide(State{}, cmd, DefaultPolicy())
			assert.True(t, IsNotFound(err))
		})
	}
}

func TestDecide_TenantMismatch(t *testing.T) {
	d := newTestDecider()
	state := created(t, d, "R1")

	commands := []Command{
		UpdateDetailsCommand{CommandMeta: meta("sa-1", "T2"), Description: ptr("changed")},
		AssignRolesCommand{CommandMeta: meta("sa-1", "T2"), Roles: []string{"R2"}},
		RemoveRolesCommand{CommandMeta: meta("sa-1", "T2"), Roles: []string{"R1"}},
		RotateSecretCommand{CommandMeta: meta("sa-1", "T2")},
		DeactivateCommand{CommandMeta: meta("sa-1", "T2")},
		ActivateCommand{CommandMeta: meta("sa-1", "T2")},
	}

	for _, cmd := range commands {
		t.Run(cmd.Name(), func(t *testing.T) {
			decision, err := d.Decide(state, cmd, DefaultPolicy())
			assert.ErrorIs(t, err, ErrTenantMismatch)
			assert.True(t, IsValidation(err))
			assert.True(t, decision.NoOp())
		})
	}
}

func TestDecide_UpdateDetails(t *testing.T) {
	t.Run("no-op when nothing changes", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1")

		decision, err := d.Decide(state, UpdateDetailsCommand{
			CommandMeta: meta("sa-1", "T1"),
			Description: ptr("svc"),
			Status:      ptr(StatusActive),
			ExpiresAt:   state.ExpiresAt,
		}, DefaultPolicy())
		require.NoError(t, err)
		assert.True(t, decision.NoOp())
	})

	t.Run("carries complete resulting details", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1")

		next, decision := mustApply(t, d, state, UpdateDetailsCommand{
			CommandMeta: meta("sa-1", "T1"),
			Description: ptr("renamed"),
		})
		ev := decision.Event.(DetailsUpdated)
		assert.Equal(t, "renamed", ev.Description)
		assert.Equal(t, StatusActive, ev.Status)
		assert.Equal(t, state.ExpiresAt, ev.ExpiresAt)
		assert.Equal(t, "renamed", next.Description)
		assert.Equal(t, int64(2), next.Version)
	})

	t.Run("status change through details", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1")

		next, _ := mustApply(t, d, state, UpdateDetailsCommand{
			CommandMeta: meta("sa-1", "T1"),
			Status:      ptr(StatusInactive),
		})
		assert.Equal(t, StatusInactive, next.Status)
	})

	t.Run("invalid status", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d)
		_, err := d.Decide(state, UpdateDetailsCommand{
			CommandMeta: meta("sa-1", "T1"),
			Status:      ptr(Status("SUSPENDED")),
		}, DefaultPolicy())
		assert.True(t, IsValidation(err))
	})

	t.Run("new expiration validated", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d)
		_, err := d.Decide(state, UpdateDetailsCommand{
			CommandMeta: meta("sa-1", "T1"),
			ExpiresAt:   ptr(testNow.Add(-time.Hour)),
		}, DefaultPolicy())
		assert.True(t, IsValidation(err))
	})

	t.Run("clearing expiration requires policy", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d)

		_, err := d.Decide(state, UpdateDetailsCommand{CommandMeta: meta("sa-1", "T1"), ClearExpiration: true}, DefaultPolicy())
		assert.True(t, IsValidation(err))

		policy := DefaultPolicy()
		policy.AllowNoExpiration = true
		decision, err := d.Decide(state, UpdateDetailsCommand{CommandMeta: meta("sa-1", "T1"), ClearExpiration: true}, policy)
		require.NoError(t, err)
		assert.Nil(t, decision.Event.(DetailsUpdated).ExpiresAt)
	})

	t.Run("set and clear together", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d)
		_, err := d.Decide(state, UpdateDetailsCommand{
			CommandMeta:     meta("sa-1", "T1"),
			ExpiresAt:       ptr(testNow.Add(time.Hour)),
			ClearExpiration: true,
		}, DefaultPolicy())
		assert.True(t, IsValidation(err))
	})
}

func TestDecide_Roles(t *testing.T) {
	t.Run("assign reports only the delta", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1")

		next, decision := mustApply(t, d, state, AssignRolesCommand{
			CommandMeta: meta("sa-1", "T1"),
			Roles:       []string{"R1", "R2"},
		})
		ev := decision.Event.(RolesAssigned)
		assert.Equal(t, []string{"R2"}, ev.AssignedRoles)
		assert.Equal(t, []string{"R1", "R2"}, ev.AllEffectiveRoles)
		assert.Equal(t, []string{"R1", "R2"}, next.Roles)
	})

	t.Run("assign already held roles is a no-op", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1")
		_, decision := mustApply(t, d, state, AssignRolesCommand{CommandMeta: meta("sa-1", "T1"), Roles: []string{"R1"}})
		assert.True(t, decision.NoOp())
	})

	t.Run("removing unheld roles is a no-op", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1", "R2")

		next, decision := mustApply(t, d, state, RemoveRolesCommand{
			CommandMeta: meta("sa-1", "T1"),
			Roles:       []string{"R3"},
		})
		assert.True(t, decision.NoOp())
		assert.Equal(t, state, next)
	})

	t.Run("remove reports only held roles", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1", "R2")

		next, decision := mustApply(t, d, state, RemoveRolesCommand{
			CommandMeta: meta("sa-1", "T1"),
			Roles:       []string{"R2", "R3"},
		})
		ev := decision.Event.(RolesRemoved)
		assert.Equal(t, []string{"R2"}, ev.RemovedRoles)
		assert.Equal(t, []string{"R1"}, ev.AllEffectiveRoles)
		assert.Equal(t, []string{"R1"}, next.Roles)
	})

	t.Run("removing every role leaves an empty set", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1")
		next, _ := mustApply(t, d, state, RemoveRolesCommand{CommandMeta: meta("sa-1", "T1"), Roles: []string{"R1"}})
		assert.Empty(t, next.Roles)
	})

	t.Run("empty requests rejected", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d, "R1")

		_, err := d.Decide(state, AssignRolesCommand{CommandMeta: meta("sa-1", "T1")}, DefaultPolicy())
		assert.True(t, IsValidation(err))
		_, err = d.Decide(state, RemoveRolesCommand{CommandMeta: meta("sa-1", "T1"), Roles: []string{}}, DefaultPolicy())
		assert.True(t, IsValidation(err))
	})
}

func TestDecide_Status(t *testing.T) {
	t.Run("activate on a fresh account is a no-op", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d)
		_, decision := mustApply(t, d, state, ActivateCommand{CommandMeta: meta("sa-1", "T1")})
		assert.True(t, decision.NoOp())
	})

	t.Run("deactivate twice yields one event", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d)

		var emitted []Event
		for i := 0; i < 2; i++ {
			var decision Decision
			state, decision = mustApply(t, d, state, DeactivateCommand{CommandMeta: meta("sa-1", "T1")})
			if !decision.NoOp() {
				emitted = append(emitted, decision.Event)
			}
		}
		require.Len(t, emitted, 1)
		assert.IsType(t, Deactivated{}, emitted[0])
		assert.Equal(t, StatusInactive, state.Status)

		state, decision := mustApply(t, d, state, ActivateCommand{CommandMeta: meta("sa-1", "T1")})
		assert.IsType(t, Activated{}, decision.Event)
		assert.Equal(t, StatusActive, state.Status)
	})
}

func TestDecide_RotateSecret(t *testing.T) {
	t.Run("always emits", func(t *testing.T) {
		d := newTestDecider()
		state := created(t, d)

		next, first := mustApply(t, d, state, RotateSecretCommand{CommandMeta: meta("sa-1", "T1")})
		next, second := mustApply(t, d, next, RotateSecretCommand{CommandMeta: meta("sa-1", "T1")})

		ev1 := first.Event.(SecretRotated)
		ev2 := second.Event.(SecretRotated)
		assert.NotEqual(t, ev1.NewClientSecretHash, ev2.NewClientSecretHash)
		assert.NotEqual(t, ev1.NewSalt, ev2.NewSalt)
		assert.Equal(t, ev2.NewClientSecretHash, next.ClientSecretHash)
		require.NotNil(t, next.SecretRotatedAt)
		assert.Equal(t, testNow, *next.SecretRotatedAt)
	})

	t.Run("only the last secret verifies", func(t *testing.T) {
		creds := credentials.NewService(credentials.Params{Time: 1, Memory: 1024, Threads: 1})
		d := NewDecider(creds, func() time.Time { return testNow })

		decision, err := d.Decide(State{}, CreateCommand{CommandMeta: meta("sa-1", "T1")}, DefaultPolicy())
		require.NoError(t, err)
		state := Apply(State{}, decision.Event)
		assert.True(t, creds.VerifyClientSecret(decision.Secret, state.Salt, state.ClientSecretHash))

		state, first := mustApply(t, d, state, RotateSecretCommand{CommandMeta: meta("sa-1", "T1")})
		state, second := mustApply(t, d, state, RotateSecretCommand{CommandMeta: meta("sa-1", "T1")})

		assert.NotEqual(t, first.Secret, second.Secret)
		assert.False(t, creds.VerifyClientSecret(decision.Secret, state.Salt, state.ClientSecretHash))
		assert.False(t, creds.VerifyClientSecret(first.Secret, state.Salt, state.ClientSecretHash))
		assert.True(t, creds.VerifyClientSecret(second.Secret, state.Salt, state.ClientSecretHash))
	})
}

func TestDecide_ClockReadOnce(t *testing.T) {
	calls := 0
	d := NewDecider(&fakeCredentials{}, func() time.Time {
		calls++
		return testNow.Add(time.Duration(calls) * time.Hour)
	})

	decision, err := d.Decide(State{}, CreateCommand{CommandMeta: meta("sa-1", "T1")}, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	ev := decision.Event.(Created)
	assert.Equal(t, ev.OccurredOn, ev.CreatedAt)
	assert.Equal(t, ev.CreatedAt.Add(DefaultPolicy().DefaultExpiration), *ev.ExpiresAt)
}
