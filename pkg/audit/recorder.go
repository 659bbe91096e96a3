package audit

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/eventstore"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Recorder turns appended service account events into audit entries.
// It satisfies dispatch.Subscriber.
type Recorder struct {
	sink   Logger
	logger *logrus.Logger
}

// NewRecorder creates a recorder writing to sink
func NewRecorder(sink Logger, logger *logrus.Logger) *Recorder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Recorder{sink: sink, logger: logger}
}

func (r *Recorder) Name() string {
	return "audit"
}

// Handle records every envelope. It keeps going past a failed entry and
// returns the first error.
func (r *Recorder) Handle(ctx context.Context, envelopes []eventstore.Envelope) error {
	requestID := observability.GetRequestID(ctx)

	var firstErr error
	for _, env := range envelopes {
		entry, err := FromEnvelope(env)
		if err == nil {
			entry.RequestID = requestID
			err = r.sink.Log(ctx, entry)
		}
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"event_id":           env.EventID,
				"service_account_id": env.AggregateID,
			}).Error("failed to record audit event")
			if firstErr == nil {
				firstErr = fmt.Errorf("audit %s: %w", env.EventID, err)
			}
		}
	}
	return firstErr
}
