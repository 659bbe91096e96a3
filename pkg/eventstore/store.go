package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrConcurrencyConflict is returned by Append when the aggregate's current
// version is not the expected one
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// Envelope is one stored event with its routing metadata.
// Payload holds the JSON encoded event body.
type Envelope struct {
	Sequence    int64           `json:"sequence"`
	EventID     string          `json:"eventId"`
	AggregateID string          `json:"aggregateId"`
	TenantID    string          `json:"tenantId"`
	Version     int64           `json:"version"`
	Type        string          `json:"type"`
	OccurredOn  time.Time       `json:"occurredOn"`
	InitiatedBy string          `json:"initiatedBy"`
	Payload     json.RawMessage `json:"payload"`
}

// Store is an append-only, per-aggregate versioned event log
type Store interface {
	// Load returns the aggregate's events in version order. Unknown
	// aggregates yield an empty slice and no error.
	Load(ctx context.Context, aggregateID string) ([]Envelope, error)

	// Append records events at expectedVersion+1, expectedVersion+2, ...
	// and returns them with Sequence assigned.
	Append(ctx context.Context, aggregateID string, expectedVersion int64, events []Envelope) ([]Envelope, error)

	// LoadAll returns up to limit events with Sequence > afterSequence, in sequence order
	LoadAll(ctx context.Context, afterSequence int64, limit int) ([]Envelope, error)
}

// ConflictError carries the versions involved in a failed append
type ConflictError struct {
	AggregateID     string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s: expected version %d, found %d",
		e.AggregateID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConflictError) Unwrap() error {
	return ErrConcurrencyConflict
}

// IsConflict reports whether err is a concurrency conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

func validateAppend(aggregateID string, expectedVersion int64, events []Envelope) error {
	if aggregateID == "" {
		return fmt.Errorf("aggregate ID is required")
	}
	if expectedVersion < 0 {
		return fmt.Errorf("expected version must not be negative, got %d", expectedVersion)
	}
	for i, e := range events {
		if e.AggregateID != "" && e.AggregateID != aggregateID {
			return fmt.Errorf("event %d belongs to aggregate %s, not %s", i, e.AggregateID, aggregateID)
		}
		if e.Type == "" {
			return fmt.Errorf("event %d has no type", i)
		}
	}
	return nil
}

// stamp assigns aggregate ID and versions to the events being appended
func stamp(aggregateID string, expectedVersion int64, events []Envelope) []Envelope {
	out := make([]Envelope, len(events))
	for i, e := range events {
		e.AggregateID = aggregateID
		e.Version = expectedVersion + int64(i) + 1
		out[i] = e
	}
	return out
}
