package eventstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the event log in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	streams  map[string][]Envelope
	log      []Envelope
	sequence int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string][]Envelope),
	}
}

// Load returns a copy of the aggregate's events
func (s *MemoryStore) Load(ctx context.Context, aggregateID string) ([]Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	out := make([]Envelope, len(stream))
	copy(out, stream)
	return out, nil
}

// Append records events when the stream is still at expectedVersion
func (s *MemoryStore) Append(ctx context.Context, aggregateID string, expectedVersion int64, events []Envelope) ([]Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateAppend(aggregateID, expectedVersion, events); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(len(s.streams[aggregateID]))
	if current != expectedVersion {
		return nil, &ConflictError{AggregateID: aggregateID, ExpectedVersion: expectedVersion, ActualVersion: current}
	}

	stored := stamp(aggregateID, expectedVersion, events)
	for i := range stored {
		s.sequence++
		stored[i].Sequence = s.sequence
	}
	s.streams[aggregateID] = append(s.streams[aggregateID], stored...)
	s.log = append(s.log, stored...)

	out := make([]Envelope, len(stored))
	copy(out, stored)
	return out, nil
}

// LoadAll pages through every stream in append order
func (s *MemoryStore) LoadAll(ctx context.Context, afterSequence int64, limit int) ([]Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// sequences are dense from 1, so the index is the sequence itself
	start := afterSequence
	if start < 0 {
		start = 0
	}
	if start >= int64(len(s.log)) {
		return []Envelope{}, nil
	}
	end := int64(len(s.log))
	if limit > 0 && start+int64(limit) < end {
		end = start + int64(limit)
	}

	out := make([]Envelope, end-start)
	copy(out, s.log[start:end])
	return out, nil
}
