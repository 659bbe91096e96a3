package serviceaccount

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/eventstore"
)

var decoders = map[EventType]func([]byte) (Event, error){
	EventCreated:        decodeAs[Created],
	EventDetailsUpdated: decodeAs[DetailsUpdated],
	EventRolesAssigned:  decodeAs[RolesAssigned],
	EventRolesRemoved:   decodeAs[RolesRemoved],
	EventSecretRotated:  decodeAs[SecretRotated],
	EventDeactivated:    decodeAs[Deactivated],
	EventActivated:      decodeAs[Activated],
}

func decodeAs[T Event](data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// DecodeEvent decodes a payload of the given type
func DecodeEvent(eventType EventType, payload []byte) (Event, error) {
	decode, ok := decoders[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	event, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", eventType, err)
	}
	return event, nil
}

// NewEnvelope wraps event for appending at version
func NewEnvelope(event Event, tenantID string, version int64) (eventstore.Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return eventstore.Envelope{}, fmt.Errorf("failed to encode %s: %w", event.Type(), err)
	}

	meta := event.Meta()
	return eventstore.Envelope{
		EventID:     uuid.New().String(),
		AggregateID: meta.ServiceAccountID,
		TenantID:    tenantID,
		Version:     version,
		Type:        string(event.Type()),
		OccurredOn:  meta.OccurredOn,
		InitiatedBy: meta.InitiatedBy,
		Payload:     payload,
	}, nil
}

// FromEnvelope decodes the event carried by env
func FromEnvelope(env eventstore.Envelope) (Event, error) {
	return DecodeEvent(EventType(env.Type), env.Payload)
}

// Load replays the stored history into a state
func Load(envelopes []eventstore.Envelope) (State, error) {
	var state State
	for _, env := range envelopes {
		event, err := FromEnvelope(env)
		if err != nil {
			return State{}, fmt.Errorf("aggregate %s version %d: %w", env.AggregateID, env.Version, err)
		}
		state = Apply(state, event)
	}
	return state, nil
}
