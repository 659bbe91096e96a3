package audit

import (
	"fmt"
	"time"
)

// EventType names an audit trail entry
type EventType string

const (
	EventTypeCreated        EventType = "service_account.created"
	EventTypeDetailsUpdated EventType = "service_account.details_updated"
	EventTypeRolesAssigned  EventType = "service_account.roles_assigned"
	EventTypeRolesRemoved   EventType = "service_account.roles_removed"
	EventTypeSecretRotated  EventType = "service_account.secret_rotated"
	EventTypeDeactivated    EventType = "service_account.deactivated"
	EventTypeActivated      EventType = "service_account.activated"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// ResourceType represents the type of resource being changed
type ResourceType string

const (
	ResourceTypeServiceAccount ResourceType = "service_account"
	ResourceTypeTenant         ResourceType = "tenant"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID int64 `json:"id,omitempty"`
	// EventID is the ID of the source event; the trail holds it at most once
	EventID   string      `json:"event_id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	Actor    string `json:"actor"`
	TenantID string `json:"tenant_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID    string                 `json:"request_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	TenantID   string
	ResourceID string
	Actor      string
	EventTypes []EventType
	StartTime  *time.Time
	EndTime    *time.Time

	// Limit 0 means no limit
	Limit  int
	Offset int
}

func (f SearchFilter) matches(e *AuditEvent) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if t == e.EventType {
			return true
		}
	}
	return false
}

// ExportFormat represents the export format for audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatNDJSON ExportFormat = "ndjson"
	ExportFormatCSV    ExportFormat = "csv"
)

// ParseExportFormat accepts json, ndjson and csv; empty means json
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", ExportFormatJSON:
		return ExportFormatJSON, nil
	case ExportFormatNDJSON:
		return ExportFormatNDJSON, nil
	case ExportFormatCSV:
		return ExportFormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}
