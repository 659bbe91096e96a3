package projection

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/eventstore"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func em(id string) serviceaccount.EventMeta {
	return serviceaccount.EventMeta{ServiceAccountID: id, OccurredOn: t0, InitiatedBy: "admin"}
}

func createdEvent(id, tenant, clientID string, expiresAt *time.Time) serviceaccount.Created {
	return serviceaccount.Created{
		EventMeta:        em(id),
		TenantID:         tenant,
		ClientID:         clientID,
		ClientSecretHash: "$argon2id$hash",
		Salt:             "salt",
		Description:      "svc " + id,
		Status:           serviceaccount.StatusActive,
		Roles:            []string{"reader"},
		CreatedAt:        t0,
		ExpiresAt:        expiresAt,
	}
}

// appendEvents writes events for one aggregate and returns the stored envelopes
func appendEvents(t *testing.T, store eventstore.Store, tenant string, events ...serviceaccount.Event) []eventstore.Envelope {
	t.Helper()
	id := events[0].Meta().ServiceAccountID
	existing, err := store.Load(context.Background(), id)
	require.NoError(t, err)

	version := int64(len(existing))
	var envs []eventstore.Envelope
	for i, ev := range events {
		env, err := serviceaccount.NewEnvelope(ev, tenant, version+int64(i)+1)
		require.NoError(t, err)
		envs = append(envs, env)
	}
	stored, err := store.Append(context.Background(), id, version, envs)
	require.NoError(t, err)
	return stored
}

func newProjector(events eventstore.Store, views ViewStore) *Projector {
	p := NewProjector(events, views, quietLogger())
	p.now = func() time.Time { return t0.Add(time.Minute) }
	return p
}

func TestProjector_Handle(t *testing.T) {
	events := eventstore.NewMemoryStore()
	views := NewMemoryStore()
	p := newProjector(events, views)
	ctx := context.Background()

	created := appendEvents(t, events, "T1", createdEvent("sa-1", "T1", "client-1", nil))
	require.NoError(t, p.Handle(ctx, created))

	v, err := views.Get(ctx, "sa-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", v.ClientID)
	assert.Equal(t, "T1", v.TenantID)
	assert.Equal(t, []string{"reader"}, v.Roles)
	assert.Equal(t, int64(1), v.Version)
	assert.Equal(t, t0.Add(time.Minute), v.UpdatedAt)

	assigned := appendEvents(t, events, "T1", serviceaccount.RolesAssigned{
		EventMeta:         em("sa-1"),
		AssignedRoles:     []string{"writer"},
		AllEffectiveRoles: []string{"reader", "writer"},
	})
	require.NoError(t, p.Handle(ctx, assigned))

	rotated := appendEvents(t, events, "T1", serviceaccount.SecretRotated{
		EventMeta:           em("sa-1"),
		NewClientSecretHash: "$argon2id$new",
		NewSalt:             "new-salt",
	})
	require.NoError(t, p.Handle(ctx, rotated))

	v, err = views.Get(ctx, "sa-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"reader", "writer"}, v.Roles)
	assert.Equal(t, int64(3), v.Version)
	require.NotNil(t, v.SecretRotatedAt)
	assert.Equal(t, t0, *v.SecretRotatedAt)
}

func TestProjector_IdempotentRedelivery(t *testing.T) {
	events := eventstore.NewMemoryStore()
	views := NewMemoryStore()
	p := newProjector(events, views)
	ctx := context.Background()

	created := appendEvents(t, events, "T1", createdEvent("sa-1", "T1", "client-1", nil))
	deactivated := appendEvents(t, events, "T1", serviceaccount.Deactivated{EventMeta: em("sa-1")})

	require.NoError(t, p.Handle(ctx, created))
	require.NoError(t, p.Handle(ctx, deactivated))
	before, err := views.Get(ctx, "sa-1")
	require.NoError(t, err)

	// redelivering old envelopes changes nothing
	require.NoError(t, p.Handle(ctx, created))
	require.NoError(t, p.Handle(ctx, deactivated))

	after, err := views.Get(ctx, "sa-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, serviceaccount.StatusInactive, after.Status)
}

func TestProjector_GapTriggersReplay(t *testing.T) {
	events := eventstore.NewMemoryStore()
	views := NewMemoryStore()
	p := newProjector(events, views)
	ctx := context.Background()

	appendEvents(t, events, "T1", createdEvent("sa-1", "T1", "client-1", nil))
	appendEvents(t, events, "T1", serviceaccount.RolesAssigned{
		EventMeta: em("sa-1"), AssignedRoles: []string{"admin"}, AllEffectiveRoles: []string{"admin", "reader"},
	})
	third := appendEvents(t, events, "T1", serviceaccount.Deactivated{EventMeta: em("sa-1")})

	// only version 3 is delivered
	require.NoError(t, p.Handle(ctx, third))

	v, err := views.Get(ctx, "sa-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Version)
	assert.Equal(t, []string{"admin", "reader"}, v.Roles)
	assert.Equal(t, serviceaccount.StatusInactive, v.Status)
}

func TestProjector_Rebuild(t *testing.T) {
	events := eventstore.NewMemoryStore()
	views := NewMemoryStore()
	p := newProjector(events, views)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		appendEvents(t, events, "T1", createdEvent(fmt.Sprintf("sa-%d", i), "T1", fmt.Sprintf("client-%d", i), nil))
	}
	appendEvents(t, events, "T1", serviceaccount.Deactivated{EventMeta: em("sa-2")})

	// a stale row that no longer matches the log is discarded
	_, err := views.Upsert(ctx, View{ID: "sa-stale", TenantID: "T1", Version: 9})
	require.NoError(t, err)

	n, err := p.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := views.List(ctx, "T1", Filter{})
	require.NoError(t, err)
	require.Len(t, list, 3)

	v, err := views.Get(ctx, "sa-2")
	require.NoError(t, err)
	assert.Equal(t, serviceaccount.StatusInactive, v.Status)
	assert.Equal(t, int64(2), v.Version)

	_, err = views.Get(ctx, "sa-stale")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjector_RebuildPagesThroughLog(t *testing.T) {
	events := eventstore.NewMemoryStore()
	views := NewMemoryStore()
	p := newProjector(events, views)

	total := rebuildPageSize + 7
	for i := 0; i < total; i++ {
		appendEvents(t, events, "T1", createdEvent(fmt.Sprintf("sa-%04d", i), "T1", fmt.Sprintf("client-%04d", i), nil))
	}

	n, err := p.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, total, n)
}
