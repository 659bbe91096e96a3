package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a destination for audit events
type Logger interface {
	// Log records an event. Recording the same EventID twice is not an error.
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes any buffered events
	Close() error
}

// Searcher queries a recorded trail, newest first
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)
}

// LogrusLogger writes each audit event as one structured log line
type LogrusLogger struct {
	logger *logrus.Logger
}

// NewLogrusLogger creates a structured-log audit sink
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogrusLogger{logger: logger}
}

func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := logrus.Fields{
		"audit":         true,
		"event_id":      event.EventID,
		"event_type":    event.EventType,
		"status":        event.Status,
		"actor":         event.Actor,
		"tenant_id":     event.TenantID,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}
	l.logger.WithContext(ctx).WithFields(fields).Info(event.Message)
	return nil
}

func (l *LogrusLogger) Close() error {
	return nil
}

// MemoryLogger keeps the trail in process memory
type MemoryLogger struct {
	mu     sync.RWMutex
	events []*AuditEvent
	seen   map[string]struct{}
}

// NewMemoryLogger creates an empty in-memory trail
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{seen: make(map[string]struct{})}
}

func (m *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.EventID != "" {
		if _, ok := m.seen[event.EventID]; ok {
			return nil
		}
		m.seen[event.EventID] = struct{}{}
	}

	stored := *event
	stored.ID = int64(len(m.events) + 1)
	event.ID = stored.ID
	m.events = append(m.events, &stored)
	return nil
}

// Search returns matching events, newest first
func (m *MemoryLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	m.mu.RLock()
	var out []*AuditEvent
	for _, e := range m.events {
		if filter.matches(e) {
			copied := *e
			out = append(out, &copied)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})

	if filter.Offset >= len(out) {
		return []*AuditEvent{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryLogger) Close() error {
	return nil
}
