package audit

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/eventstore"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

var occurred = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func meta() serviceaccount.EventMeta {
	return serviceaccount.EventMeta{ServiceAccountID: "sa-1", OccurredOn: occurred, InitiatedBy: "alice"}
}

func envelope(t *testing.T, event serviceaccount.Event, version int64) eventstore.Envelope {
	t.Helper()
	env, err := serviceaccount.NewEnvelope(event, "tenant-1", version)
	require.NoError(t, err)
	return env
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestFromEnvelope(t *testing.T) {
	expires := occurred.Add(90 * 24 * time.Hour)

	tests := []struct {
		name     string
		event    serviceaccount.Event
		wantType EventType
		wantMeta map[string]interface{}
	}{
		{
			name: "created",
			event: serviceaccount.Created{
				EventMeta: meta(), TenantID: "tenant-1", ClientID: "client-1",
				ClientSecretHash: "$argon2id$secret-hash", Salt: "salty",
				Status: serviceaccount.StatusActive, Roles: []string{"reader"},
				CreatedAt: occurred, ExpiresAt: &expires,
			},
			wantType: EventTypeCreated,
			wantMeta: map[string]interface{}{"client_id": "client-1", "status": "ACTIVE", "expires_at": "2026-06-12T09:26:53Z"},
		},
		{
			name:     "roles assigned",
			event:    serviceaccount.RolesAssigned{EventMeta: meta(), AssignedRoles: []string{"writer"}, AllEffectiveRoles: []string{"reader", "writer"}},
			wantType: EventTypeRolesAssigned,
			wantMeta: map[string]interface{}{"assigned_roles": []string{"writer"}, "effective_roles": []string{"reader", "writer"}},
		},
		{
			name:     "roles removed",
			event:    serviceaccount.RolesRemoved{EventMeta: meta(), RemovedRoles: []string{"writer"}, AllEffectiveRoles: []string{"reader"}},
			wantType: EventTypeRolesRemoved,
			wantMeta: map[string]interface{}{"removed_roles": []string{"writer"}},
		},
		{
			name:     "details updated without expiration",
			event:    serviceaccount.DetailsUpdated{EventMeta: meta(), Description: "ci", Status: serviceaccount.StatusInactive},
			wantType: EventTypeDetailsUpdated,
			wantMeta: map[string]interface{}{"description": "ci", "status": "INACTIVE", "expires_at": nil},
		},
		{
			name:     "secret rotated",
			event:    serviceaccount.SecretRotated{EventMeta: meta(), NewClientSecretHash: "$argon2id$secret-hash", NewSalt: "salty"},
			wantType: EventTypeSecretRotated,
		},
		{name: "deactivated", event: serviceaccount.Deactivated{EventMeta: meta()}, wantType: EventTypeDeactivated},
		{name: "activated", event: serviceaccount.Activated{EventMeta: meta()}, wantType: EventTypeActivated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := envelope(t, tt.event, 3)

			entry, err := FromEnvelope(env)
			require.NoError(t, err)

			assert.Equal(t, tt.wantType, entry.EventType)
			assert.Equal(t, env.EventID, entry.EventID)
			assert.Equal(t, "alice", entry.Actor)
			assert.Equal(t, "tenant-1", entry.TenantID)
			assert.Equal(t, "sa-1", entry.ResourceID)
			assert.Equal(t, ResourceTypeServiceAccount, entry.ResourceType)
			assert.Equal(t, EventStatusSuccess, entry.Status)
			assert.True(t, occurred.Equal(entry.Timestamp))
			assert.Equal(t, int64(3), entry.Metadata["version"])
			assert.NotEmpty(t, entry.Message)
			for k, v := range tt.wantMeta {
				assert.Equal(t, v, entry.Metadata[k], k)
			}

			data, _, err := Export([]*AuditEvent{entry}, ExportFormatNDJSON)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "secret-hash")
			assert.NotContains(t, string(data), "salty")
		})
	}
}

func TestFromEnvelope_UnknownType(t *testing.T) {
	_, err := FromEnvelope(eventstore.Envelope{Type: "SomethingElse", Payload: []byte(`{}`)})
	assert.Error(t, err)
}

type failingLogger struct{ err error }

func (f failingLogger) Log(ctx context.Context, event *AuditEvent) error { return f.err }
func (f failingLogger) Close() error                                     { return f.err }

func TestRecorder_Handle(t *testing.T) {
	trail := NewMemoryLogger()
	recorder := NewRecorder(trail, quietLogger())
	assert.Equal(t, "audit", recorder.Name())

	ctx := observability.WithRequestID(context.Background(), "req-42")
	envs := []eventstore.Envelope{
		envelope(t, serviceaccount.Deactivated{EventMeta: meta()}, 2),
		envelope(t, serviceaccount.Activated{EventMeta: meta()}, 3),
	}
	require.NoError(t, recorder.Handle(ctx, envs))

	// redelivery does not duplicate the trail
	require.NoError(t, recorder.Handle(ctx, envs))

	events, err := trail.Search(context.Background(), SearchFilter{TenantID: "tenant-1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "req-42", e.RequestID)
	}
}

func TestRecorder_HandleContinuesPastFailures(t *testing.T) {
	trail := NewMemoryLogger()
	sink := NewMultiLogger(failingLogger{err: errors.New("disk full")}, trail)
	recorder := NewRecorder(sink, quietLogger())

	envs := []eventstore.Envelope{
		{EventID: "bad", Type: "Unknown", Payload: []byte(`{}`)},
		envelope(t, serviceaccount.Activated{EventMeta: meta()}, 2),
	}
	err := recorder.Handle(context.Background(), envs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit bad")

	events, err := trail.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMemoryLogger_Search(t *testing.T) {
	trail := NewMemoryLogger()
	ctx := context.Background()

	for i, typ := range []EventType{EventTypeCreated, EventTypeRolesAssigned, EventTypeDeactivated} {
		require.NoError(t, trail.Log(ctx, &AuditEvent{
			EventID:   string(typ),
			Timestamp: occurred.Add(time.Duration(i) * time.Minute),
			EventType: typ,
			Actor:     "alice",
			TenantID:  "tenant-1",
		}))
	}
	require.NoError(t, trail.Log(ctx, &AuditEvent{EventID: "other", Timestamp: occurred, TenantID: "tenant-2"}))

	all, err := trail.Search(ctx, SearchFilter{TenantID: "tenant-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, EventTypeDeactivated, all[0].EventType)

	page, err := trail.Search(ctx, SearchFilter{TenantID: "tenant-1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, EventTypeRolesAssigned, page[0].EventType)

	typed, err := trail.Search(ctx, SearchFilter{EventTypes: []EventType{EventTypeCreated}})
	require.NoError(t, err)
	assert.Len(t, typed, 1)

	start := occurred.Add(30 * time.Second)
	windowed, err := trail.Search(ctx, SearchFilter{TenantID: "tenant-1", StartTime: &start})
	require.NoError(t, err)
	assert.Len(t, windowed, 2)

	empty, err := trail.Search(ctx, SearchFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLogrusLogger(t *testing.T) {
	var buf strings.Builder
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	sink := NewLogrusLogger(logger)
	require.NoError(t, sink.Log(context.Background(), &AuditEvent{
		EventID:   "evt-1",
		EventType: EventTypeRolesAssigned,
		Actor:     "alice",
		Message:   "roles assigned",
		Metadata:  map[string]interface{}{"assigned_roles": []string{"writer"}},
	}))

	out := buf.String()
	assert.Contains(t, out, `"event_type":"service_account.roles_assigned"`)
	assert.Contains(t, out, `"actor":"alice"`)
	assert.Contains(t, out, `"meta_assigned_roles":["writer"]`)
	assert.Contains(t, out, `"msg":"roles assigned"`)
}

func TestMultiLogger(t *testing.T) {
	a, b := NewMemoryLogger(), NewMemoryLogger()
	multi := NewMultiLogger(failingLogger{err: errors.New("boom")}, a, b)

	err := multi.Log(context.Background(), &AuditEvent{EventID: "e1"})
	assert.ErrorContains(t, err, "boom")

	for _, l := range []*MemoryLogger{a, b} {
		events, err := l.Search(context.Background(), SearchFilter{})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	}

	events, err := multi.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = NewMultiLogger(failingLogger{}).Search(context.Background(), SearchFilter{})
	assert.Error(t, err)

	assert.ErrorContains(t, multi.Close(), "failed to close logger")
}
