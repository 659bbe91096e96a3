package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/warden/pkg/eventstore"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

var tracer = otel.Tracer("warden/dispatch")

// maxAttempts is the first try plus one retry after a concurrency conflict
const maxAttempts = 2

// PolicySource yields the expiration policy in effect. Execute reads it
// once per command.
type PolicySource interface {
	Current() serviceaccount.Policy
}

// StaticPolicy is a PolicySource that never changes
type StaticPolicy serviceaccount.Policy

func (p StaticPolicy) Current() serviceaccount.Policy {
	return serviceaccount.Policy(p)
}

// Subscriber receives envelopes after they are durably appended
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, envelopes []eventstore.Envelope) error
}

// Result is the outcome of one executed command
type Result struct {
	// State is the account after the command
	State serviceaccount.State
	// Event is nil for a no-op
	Event    serviceaccount.Event
	Envelope *eventstore.Envelope
	Version  int64
	// Secret is the plaintext client secret on Create and RotateSecret
	Secret string
	NoOp   bool
}

// Options configures a Dispatcher. Store, Decider and Policy are required.
type Options struct {
	Store          eventstore.Store
	Decider        *serviceaccount.Decider
	Policy         PolicySource
	Dedup          Deduplicator
	StateCacheSize int
	Subscribers    []Subscriber
	Metrics        *observability.Metrics
	Logger         *logrus.Logger
}

// Dispatcher executes commands against event-sourced service accounts
type Dispatcher struct {
	store   eventstore.Store
	decider *serviceaccount.Decider
	policy  PolicySource
	dedup   Deduplicator
	cache   *lru.Cache[string, serviceaccount.State]
	locks   *keyedMutex
	metrics *observability.Metrics
	logger  *logrus.Logger

	subMu       sync.RWMutex
	subscribers []Subscriber
}

// New creates a dispatcher
func New(opts Options) (*Dispatcher, error) {
	if opts.Store == nil || opts.Decider == nil || opts.Policy == nil {
		return nil, fmt.Errorf("store, decider and policy are required")
	}
	if opts.StateCacheSize <= 0 {
		opts.StateCacheSize = 10000
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNoopMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	cache, err := lru.New[string, serviceaccount.State](opts.StateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create state cache: %w", err)
	}

	return &Dispatcher{
		store:       opts.Store,
		decider:     opts.Decider,
		policy:      opts.Policy,
		dedup:       opts.Dedup,
		cache:       cache,
		locks:       newKeyedMutex(),
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		subscribers: append([]Subscriber(nil), opts.Subscribers...),
	}, nil
}

// Subscribe registers s to receive every appended envelope
func (d *Dispatcher) Subscribe(s Subscriber) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.subscribers = append(d.subscribers, s)
}

// Execute runs cmd against its service account.
//
// Errors wrap serviceaccount.ErrNotFound, ErrAlreadyExists or ErrValidation
// for rejected commands, ErrDuplicateCommand for a redelivered command ID,
// and eventstore.ErrConcurrencyConflict when the retry also lost the race.
func (d *Dispatcher) Execute(ctx context.Context, cmd serviceaccount.Command) (result Result, err error) {
	meta := cmd.Meta()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "dispatch.Execute",
		trace.WithAttributes(
			attribute.String("command", cmd.Name()),
			attribute.String("service_account.id", meta.ServiceAccountID),
			attribute.String("tenant.id", meta.TenantID),
		),
	)
	defer func() {
		outcome := outcomeOf(result, err)
		d.metrics.CommandsTotal.WithLabelValues(cmd.Name(), outcome).Inc()
		d.metrics.CommandDuration.WithLabelValues(cmd.Name()).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil && outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if meta.ServiceAccountID == "" {
		// routing needs an ID; let the decider produce the validation error
		_, err = d.decider.Decide(serviceaccount.State{}, cmd, d.policy.Current())
		if err == nil {
			err = fmt.Errorf("%w: serviceAccountId is required", serviceaccount.ErrValidation)
		}
		return Result{}, err
	}

	unlock := d.locks.Lock(meta.ServiceAccountID)
	defer unlock()

	dedupKey := ""
	if d.dedup != nil && meta.CommandID != "" {
		dedupKey = meta.TenantID + ":" + meta.ServiceAccountID + ":" + meta.CommandID
		claimed, claimErr := d.dedup.Claim(ctx, dedupKey)
		if claimErr != nil {
			return Result{}, claimErr
		}
		if !claimed {
			d.metrics.DuplicateCommandsTotal.Inc()
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateCommand, meta.CommandID)
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := d.dedup.Release(context.WithoutCancel(ctx), dedupKey); relErr != nil {
				d.logger.WithError(relErr).WithField("command_id", meta.CommandID).Warn("failed to release command ID")
			}
		}()
	}

	policy := d.policy.Current()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = d.attempt(ctx, cmd, policy)
		if err == nil || !eventstore.IsConflict(err) {
			return result, err
		}

		d.metrics.ConcurrencyConflicts.Inc()
		d.cache.Remove(meta.ServiceAccountID)
		d.logger.WithFields(logrus.Fields{
			"service_account_id": meta.ServiceAccountID,
			"command":            cmd.Name(),
			"attempt":            attempt,
		}).Warn("concurrency conflict, reloading state")
	}
	return Result{}, err
}

// attempt loads, decides and appends once
func (d *Dispatcher) attempt(ctx context.Context, cmd serviceaccount.Command, policy serviceaccount.Policy) (Result, error) {
	meta := cmd.Meta()

	state, err := d.load(ctx, meta.ServiceAccountID)
	if err != nil {
		return Result{}, err
	}

	decision, err := d.decider.Decide(state, cmd, policy)
	if err != nil {
		return Result{}, err
	}
	if decision.NoOp() {
		return Result{State: state, Version: state.Version, NoOp: true}, nil
	}

	tenantID := state.TenantID
	if tenantID == "" {
		tenantID = meta.TenantID
	}
	env, err := serviceaccount.NewEnvelope(decision.Event, tenantID, state.Version+1)
	if err != nil {
		return Result{}, err
	}

	stored, err := d.store.Append(ctx, meta.ServiceAccountID, state.Version, []eventstore.Envelope{env})
	if err != nil {
		return Result{}, err
	}

	next := serviceaccount.Apply(state, decision.Event)
	d.cache.Add(meta.ServiceAccountID, next.Clone())
	d.metrics.EventsAppendedTotal.WithLabelValues(env.Type).Inc()

	d.publish(ctx, stored)

	return Result{
		State:    next,
		Event:    decision.Event,
		Envelope: &stored[0],
		Version:  next.Version,
		Secret:   decision.Secret,
	}, nil
}

// State returns the current state of a service account, or an error
// wrapping serviceaccount.ErrNotFound
func (d *Dispatcher) State(ctx context.Context, serviceAccountID string) (serviceaccount.State, error) {
	state, err := d.load(ctx, serviceAccountID)
	if err != nil {
		return serviceaccount.State{}, err
	}
	if !state.Exists() {
		return serviceaccount.State{}, fmt.Errorf("%w: %s", serviceaccount.ErrNotFound, serviceAccountID)
	}
	return state, nil
}

// Invalidate drops the cached state of a service account
func (d *Dispatcher) Invalidate(serviceAccountID string) {
	d.cache.Remove(serviceAccountID)
}

// Current replays the account from the event store, bypassing the state
// cache, and refreshes the cache with the result. Use it where a decision
// must see events appended by other processes.
func (d *Dispatcher) Current(ctx context.Context, serviceAccountID string) (serviceaccount.State, error) {
	state, err := d.replay(ctx, serviceAccountID)
	if err != nil {
		return serviceaccount.State{}, err
	}
	if !state.Exists() {
		d.cache.Remove(serviceAccountID)
		return serviceaccount.State{}, fmt.Errorf("%w: %s", serviceaccount.ErrNotFound, serviceAccountID)
	}
	return state, nil
}

func (d *Dispatcher) load(ctx context.Context, id string) (serviceaccount.State, error) {
	if state, ok := d.cache.Get(id); ok {
		d.metrics.CacheHitsTotal.WithLabelValues("state").Inc()
		return state.Clone(), nil
	}
	d.metrics.CacheMissesTotal.WithLabelValues("state").Inc()
	return d.replay(ctx, id)
}

func (d *Dispatcher) replay(ctx context.Context, id string) (serviceaccount.State, error) {
	envelopes, err := d.store.Load(ctx, id)
	if err != nil {
		return serviceaccount.State{}, err
	}
	state, err := serviceaccount.Load(envelopes)
	if err != nil {
		return serviceaccount.State{}, err
	}
	if state.Exists() {
		d.cache.Add(id, state.Clone())
	}
	return state, nil
}

func (d *Dispatcher) publish(ctx context.Context, envelopes []eventstore.Envelope) {
	d.subMu.RLock()
	subscribers := d.subscribers
	d.subMu.RUnlock()

	for _, s := range subscribers {
		if err := s.Handle(ctx, envelopes); err != nil {
			d.metrics.SubscriberErrors.WithLabelValues(s.Name()).Inc()
			d.logger.WithError(err).WithFields(logrus.Fields{
				"subscriber":   s.Name(),
				"aggregate_id": envelopes[0].AggregateID,
				"version":      envelopes[0].Version,
			}).Error("subscriber failed to handle events")
		}
	}
}

func outcomeOf(result Result, err error) string {
	switch {
	case err == nil && result.NoOp:
		return "noop"
	case err == nil:
		return "applied"
	case errors.Is(err, ErrDuplicateCommand):
		return "duplicate"
	case eventstore.IsConflict(err):
		return "conflict"
	case errors.Is(err, serviceaccount.ErrValidation),
		errors.Is(err, serviceaccount.ErrNotFound),
		errors.Is(err, serviceaccount.ErrAlreadyExists):
		return "rejected"
	default:
		return "error"
	}
}
