// Package sweeper deactivates service accounts whose expiration has passed.
//
// Expired accounts already fail authentication. Deactivating them records the
// fact in the event log and the audit trail under a system actor.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/dispatch"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/projection"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

var tracer = otel.Tracer("warden/sweeper")

const (
	// DefaultActor is recorded as the initiator of sweeper deactivations
	DefaultActor = "system:expiry-sweeper"

	defaultBatchSize = 500
	defaultWorkers   = 8
	defaultTimeout   = 30 * time.Second
)

// Views finds expired, still active accounts
type Views interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]projection.View, error)
}

// Executor runs commands; *dispatch.Dispatcher satisfies it
type Executor interface {
	Execute(ctx context.Context, cmd serviceaccount.Command) (dispatch.Result, error)
}

// Options configures a Sweeper. Views and Executor are required.
type Options struct {
	Views     Views
	Executor  Executor
	Actor     string
	Workers   int
	Timeout   time.Duration
	BatchSize int
	Metrics   *observability.Metrics
	Logger    *logrus.Logger
	Now       func() time.Time
}

// Report summarizes one sweep
type Report struct {
	Found       int
	Deactivated int
	Skipped     int
	Failed      int
}

// Sweeper finds expired accounts and deactivates them
type Sweeper struct {
	views     Views
	executor  Executor
	actor     string
	workers   int
	timeout   time.Duration
	batchSize int
	metrics   *observability.Metrics
	logger    *logrus.Logger
	now       func() time.Time
}

// New creates a sweeper, filling unset options with defaults
func New(opts Options) (*Sweeper, error) {
	if opts.Views == nil || opts.Executor == nil {
		return nil, fmt.Errorf("sweeper: views and executor are required")
	}
	if opts.Actor == "" {
		opts.Actor = DefaultActor
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNoopMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Sweeper{
		views:     opts.Views,
		executor:  opts.Executor,
		actor:     opts.Actor,
		workers:   opts.Workers,
		timeout:   opts.Timeout,
		batchSize: opts.BatchSize,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
	}, nil
}

// Run sweeps until no expired active account is left or a round makes no
// progress. Per-account failures are counted, not returned.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "Sweeper.Run")
	defer span.End()

	now := s.now().UTC()
	var report Report

	for {
		expired, err := s.views.ListExpired(ctx, now, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("failed to list expired service accounts: %w", err)
		}
		if len(expired) == 0 {
			break
		}
		report.Found += len(expired)

		round := s.deactivate(ctx, expired)
		report.Deactivated += round.Deactivated
		report.Skipped += round.Skipped
		report.Failed += round.Failed

		if len(expired) < s.batchSize || round.Deactivated == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	span.SetAttributes(
		attribute.Int("sweeper.found", report.Found),
		attribute.Int("sweeper.deactivated", report.Deactivated),
		attribute.Int("sweeper.failed", report.Failed),
	)
	s.logger.WithFields(logrus.Fields{
		"found":       report.Found,
		"deactivated": report.Deactivated,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
	}).Info("expiry sweep finished")

	return report, nil
}

func (s *Sweeper) deactivate(ctx context.Context, views []projection.View) Report {
	var report Report

	indexes := make([]int, len(views))
	for i := range indexes {
		indexes[i] = i
	}

	// each task writes only its own slot
	skipped := make([]bool, len(views))
	errs := async.Batch(ctx, s.logger, indexes, s.workers, "deactivate-expired", s.timeout,
		func(ctx context.Context, i int) error {
			v := views[i]
			res, err := s.executor.Execute(ctx, serviceaccount.DeactivateCommand{
				CommandMeta: serviceaccount.CommandMeta{
					ServiceAccountID: v.ID,
					TenantID:         v.TenantID,
					InitiatedBy:      s.actor,
				},
			})
			if err != nil {
				return err
			}
			skipped[i] = res.NoOp
			return nil
		})

	failed := make(map[int]bool, len(errs))
	for _, err := range errs {
		var taskErr *async.TaskError
		if errors.As(err, &taskErr) {
			failed[taskErr.Index] = true
			s.logger.WithError(taskErr.Err).WithFields(logrus.Fields{
				"service_account_id": views[taskErr.Index].ID,
				"tenant_id":          views[taskErr.Index].TenantID,
			}).Warn("failed to deactivate expired service account")
		}
	}

	for i := range views {
		switch {
		case failed[i]:
			report.Failed++
			s.metrics.ExpiredDeactivationsTotal.WithLabelValues("failed").Inc()
		case skipped[i]:
			report.Skipped++
			s.metrics.ExpiredDeactivationsTotal.WithLabelValues("skipped").Inc()
		default:
			report.Deactivated++
			s.metrics.ExpiredDeactivationsTotal.WithLabelValues("deactivated").Inc()
		}
	}
	return report
}
