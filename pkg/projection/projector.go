package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/eventstore"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

var tracer = otel.Tracer("warden/projection")

const rebuildPageSize = 500

// Projector folds appended envelopes into views
type Projector struct {
	events  eventstore.Store
	views   ViewStore
	logger  *logrus.Logger
	now     func() time.Time
	workers int
}

// NewProjector creates a projector. events is used to replay aggregates
// when a delivery gap is detected and during Rebuild.
func NewProjector(events eventstore.Store, views ViewStore, logger *logrus.Logger) *Projector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Projector{
		events:  events,
		views:   views,
		logger:  logger,
		now:     time.Now,
		workers: 8,
	}
}

// Name identifies the projector as a dispatch subscriber
func (p *Projector) Name() string {
	return "projection"
}

// Handle applies envelopes in order
func (p *Projector) Handle(ctx context.Context, envelopes []eventstore.Envelope) error {
	for _, env := range envelopes {
		if err := p.apply(ctx, env); err != nil {
			return fmt.Errorf("failed to project %s v%d: %w", env.AggregateID, env.Version, err)
		}
	}
	return nil
}

func (p *Projector) apply(ctx context.Context, env eventstore.Envelope) error {
	current, err := p.views.Get(ctx, env.AggregateID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	switch {
	case env.Version <= current.Version:
		return nil
	case env.Version > current.Version+1:
		p.logger.WithFields(logrus.Fields{
			"aggregate_id": env.AggregateID,
			"view_version": current.Version,
			"event":        env.Version,
		}).Warn("projection gap, replaying aggregate")
		return p.Replay(ctx, env.AggregateID)
	}

	event, err := serviceaccount.FromEnvelope(env)
	if err != nil {
		return err
	}
	next := serviceaccount.Apply(current.state(), event)
	_, err = p.views.Upsert(ctx, FromState(next, p.now().UTC()))
	return err
}

// Replay rebuilds one aggregate's view from its full history
func (p *Projector) Replay(ctx context.Context, aggregateID string) error {
	envelopes, err := p.events.Load(ctx, aggregateID)
	if err != nil {
		return err
	}
	state, err := serviceaccount.Load(envelopes)
	if err != nil {
		return err
	}
	if !state.Exists() {
		return nil
	}
	_, err = p.views.Upsert(ctx, FromState(state, p.now().UTC()))
	return err
}

// Rebuild discards every view and replays the whole event log, fanning out
// by aggregate. It returns the number of aggregates projected.
func (p *Projector) Rebuild(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "projection.Rebuild")
	defer span.End()

	start := time.Now()
	if err := p.views.Reset(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reset failed")
		return 0, fmt.Errorf("failed to reset views: %w", err)
	}

	ids, err := p.aggregateIDs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return 0, err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.workers)
	for _, id := range ids {
		id := id
		eg.Go(func() error {
			if err := p.Replay(egCtx, id); err != nil {
				return fmt.Errorf("failed to replay %s: %w", id, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replay failed")
		return 0, err
	}

	span.SetAttributes(attribute.Int("aggregates.count", len(ids)))
	p.logger.WithFields(logrus.Fields{
		"aggregates":  len(ids),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("projection rebuilt")
	return len(ids), nil
}

// aggregateIDs pages through the global log collecting distinct aggregates
// in first-seen order
func (p *Projector) aggregateIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	var after int64

	for {
		page, err := p.events.LoadAll(ctx, after, rebuildPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read event log: %w", err)
		}
		for _, env := range page {
			if _, ok := seen[env.AggregateID]; !ok {
				seen[env.AggregateID] = struct{}{}
				ids = append(ids, env.AggregateID)
			}
			after = env.Sequence
		}
		if len(page) < rebuildPageSize {
			return ids, nil
		}
	}
}

// tracedGet is used by stores that want a span around single-row reads
func tracedGet(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("service_account.id", id)))
}
