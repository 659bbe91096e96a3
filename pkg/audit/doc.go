// Package audit records who changed which service account, and when.
//
// # Overview
//
// The trail is derived from the event log rather than written alongside it:
// a Recorder subscribes to the dispatcher and turns every appended envelope
// into an AuditEvent. Client secret hashes and salts never reach the trail.
//
// # Event Types
//
//	service_account.created
//	service_account.details_updated
//	service_account.roles_assigned
//	service_account.roles_removed
//	service_account.secret_rotated
//	service_account.deactivated
//	service_account.activated
//
// # Sinks
//
// DBLogger writes to the audit_logs table and is searchable. MemoryLogger
// serves tests and the in-memory deployment. LogrusLogger emits one
// structured log line per event. MultiLogger fans out to several sinks.
//
// # Usage Example
//
//	trail, _ := audit.NewDBLogger(db)
//	recorder := audit.NewRecorder(audit.NewMultiLogger(trail, audit.NewLogrusLogger(logger)), logger)
//	dispatcher.Subscribe(recorder)
//
//	events, _ := trail.Search(ctx, audit.SearchFilter{TenantID: tenantID, Limit: 100})
//	data, contentType, _ := audit.Export(events, audit.ExportFormatCSV)
//
// # Archiving
//
// S3Archiver uploads a time window of the trail as one NDJSON object. Keys
// are derived from the window, so re-running an archive is a no-op.
package audit
