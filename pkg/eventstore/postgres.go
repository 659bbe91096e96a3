package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("warden/eventstore")

const uniqueViolation = "23505"

// PostgresStore stores events in the sa_events table.
// The schema is created by the storage migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed event store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load returns the aggregate's events in version order
func (s *PostgresStore) Load(ctx context.Context, aggregateID string) ([]Envelope, error) {
	ctx, span := tracer.Start(ctx, "eventstore.Load",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID)),
	)
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_id, aggregate_id, tenant_id, version, event_type, occurred_on, initiated_by, payload
		FROM sa_events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`, aggregateID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	events, err := scanEnvelopes(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("events.count", len(events)))
	return events, nil
}

// Append inserts events in one transaction after checking the stream version.
// A concurrent writer that wins the race trips the (aggregate_id, version)
// unique constraint, which is reported as ErrConcurrencyConflict.
func (s *PostgresStore) Append(ctx context.Context, aggregateID string, expectedVersion int64, events []Envelope) ([]Envelope, error) {
	ctx, span := tracer.Start(ctx, "eventstore.Append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int64("aggregate.expected_version", expectedVersion),
			attribute.Int("events.count", len(events)),
		),
	)
	defer span.End()

	if err := validateAppend(aggregateID, expectedVersion, events); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid append")
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM sa_events WHERE aggregate_id = $1",
		aggregateID,
	).Scan(&current); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "version check failed")
		return nil, fmt.Errorf("failed to read current version: %w", err)
	}
	if current != expectedVersion {
		err := &ConflictError{AggregateID: aggregateID, ExpectedVersion: expectedVersion, ActualVersion: current}
		span.SetStatus(codes.Error, "concurrency conflict")
		return nil, err
	}

	stored := stamp(aggregateID, expectedVersion, events)
	for i := range stored {
		e := &stored[i]
		err := tx.QueryRowContext(ctx, `
			INSERT INTO sa_events (event_id, aggregate_id, tenant_id, version, event_type, occurred_on, initiated_by, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING sequence
		`, e.EventID, e.AggregateID, e.TenantID, e.Version, e.Type, e.OccurredOn, e.InitiatedBy, []byte(e.Payload)).Scan(&e.Sequence)
		if err != nil {
			if isUniqueViolation(err) {
				span.SetStatus(codes.Error, "concurrency conflict")
				return nil, fmt.Errorf("%w: %s version %d already recorded", ErrConcurrencyConflict, aggregateID, e.Version)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert failed")
			return nil, fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrConcurrencyConflict, aggregateID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, fmt.Errorf("failed to commit events: %w", err)
	}

	return stored, nil
}

// LoadAll returns events in global sequence order
func (s *PostgresStore) LoadAll(ctx context.Context, afterSequence int64, limit int) ([]Envelope, error) {
	ctx, span := tracer.Start(ctx, "eventstore.LoadAll",
		trace.WithAttributes(
			attribute.Int64("after_sequence", afterSequence),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_id, aggregate_id, tenant_id, version, event_type, occurred_on, initiated_by, payload
		FROM sa_events
		WHERE sequence > $1
		ORDER BY sequence ASC
		LIMIT $2
	`, afterSequence, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	return scanEnvelopes(rows)
}

func scanEnvelopes(rows *sql.Rows) ([]Envelope, error) {
	events := make([]Envelope, 0)
	for rows.Next() {
		var (
			e       Envelope
			payload []byte
		)
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &e.AggregateID, &e.TenantID, &e.Version,
			&e.Type, &e.OccurredOn, &e.InitiatedBy, &payload,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.OccurredOn = e.OccurredOn.UTC()
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
