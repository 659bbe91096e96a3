package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Export renders events in format and returns the matching content type
func Export(events []*AuditEvent, format ExportFormat) ([]byte, string, error) {
	switch format {
	case ExportFormatJSON:
		data, err := exportJSON(events)
		return data, "application/json", err
	case ExportFormatNDJSON:
		data, err := exportNDJSON(events)
		return data, "application/x-ndjson", err
	case ExportFormatCSV:
		data, err := exportCSV(events)
		return data, "text/csv", err
	}
	return nil, "", fmt.Errorf("unsupported export format %q", format)
}

// exportJSON exports audit events as JSON array
func exportJSON(events []*AuditEvent) ([]byte, error) {
	if events == nil {
		events = []*AuditEvent{}
	}
	return json.MarshalIndent(events, "", "  ")
}

// exportNDJSON exports audit events as newline-delimited JSON
func exportNDJSON(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// exportCSV exports audit events as CSV. Metadata is flattened into one
// JSON column.
func exportCSV(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID",
		"EventID",
		"Timestamp",
		"EventType",
		"Status",
		"Actor",
		"TenantID",
		"ResourceType",
		"ResourceID",
		"RequestID",
		"Message",
		"ErrorMessage",
		"Metadata",
	}

	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		metadata, err := metadataColumn(event.Metadata)
		if err != nil {
			return nil, err
		}
		row := []string{
			strconv.FormatInt(event.ID, 10),
			event.EventID,
			event.Timestamp.UTC().Format(time.RFC3339),
			string(event.EventType),
			string(event.Status),
			event.Actor,
			event.TenantID,
			string(event.ResourceType),
			event.ResourceID,
			event.RequestID,
			event.Message,
			event.ErrorMessage,
			metadata,
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// metadataColumn encodes metadata with sorted keys for stable output
func metadataColumn(metadata map[string]interface{}) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		value, err := json.Marshal(metadata[k])
		if err != nil {
			return "", fmt.Errorf("failed to encode metadata %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}
