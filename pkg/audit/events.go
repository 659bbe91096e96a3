package audit

import (
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/eventstore"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

var eventTypes = map[serviceaccount.EventType]EventType{
	serviceaccount.EventCreated:        EventTypeCreated,
	serviceaccount.EventDetailsUpdated: EventTypeDetailsUpdated,
	serviceaccount.EventRolesAssigned:  EventTypeRolesAssigned,
	serviceaccount.EventRolesRemoved:   EventTypeRolesRemoved,
	serviceaccount.EventSecretRotated:  EventTypeSecretRotated,
	serviceaccount.EventDeactivated:    EventTypeDeactivated,
	serviceaccount.EventActivated:      EventTypeActivated,
}

// FromEnvelope builds the audit entry for one stored service account event.
// Secret hashes and salts are never copied into the entry.
func FromEnvelope(env eventstore.Envelope) (*AuditEvent, error) {
	event, err := serviceaccount.FromEnvelope(env)
	if err != nil {
		return nil, err
	}
	eventType, ok := eventTypes[event.Type()]
	if !ok {
		return nil, fmt.Errorf("no audit mapping for event type %q", event.Type())
	}

	entry := &AuditEvent{
		EventID:      env.EventID,
		Timestamp:    env.OccurredOn.UTC(),
		EventType:    eventType,
		Status:       EventStatusSuccess,
		Actor:        env.InitiatedBy,
		TenantID:     env.TenantID,
		ResourceType: ResourceTypeServiceAccount,
		ResourceID:   env.AggregateID,
		Metadata: map[string]interface{}{
			"version": env.Version,
		},
	}

	switch e := event.(type) {
	case serviceaccount.Created:
		entry.Message = "service account created"
		entry.Metadata["client_id"] = e.ClientID
		entry.Metadata["status"] = string(e.Status)
		entry.Metadata["roles"] = e.Roles
		setTime(entry.Metadata, "expires_at", e.ExpiresAt)
	case serviceaccount.DetailsUpdated:
		entry.Message = "service account details updated"
		entry.Metadata["description"] = e.Description
		entry.Metadata["status"] = string(e.Status)
		setTime(entry.Metadata, "expires_at", e.ExpiresAt)
	case serviceaccount.RolesAssigned:
		entry.Message = "roles assigned"
		entry.Metadata["assigned_roles"] = e.AssignedRoles
		entry.Metadata["effective_roles"] = e.AllEffectiveRoles
	case serviceaccount.RolesRemoved:
		entry.Message = "roles removed"
		entry.Metadata["removed_roles"] = e.RemovedRoles
		entry.Metadata["effective_roles"] = e.AllEffectiveRoles
	case serviceaccount.SecretRotated:
		entry.Message = "client secret rotated"
	case serviceaccount.Deactivated:
		entry.Message = "service account deactivated"
	case serviceaccount.Activated:
		entry.Message = "service account activated"
	}

	return entry, nil
}

func setTime(metadata map[string]interface{}, key string, t *time.Time) {
	if t == nil {
		metadata[key] = nil
		return
	}
	metadata[key] = t.UTC().Format(time.RFC3339)
}
