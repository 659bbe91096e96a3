// Package api exposes tenants, service accounts and the audit trail over
// HTTP.
//
// # Routes
//
// Every route lives under /api/v1:
//
//	POST   /tenants
//	GET    /tenants
//	GET    /tenants/{tenant}
//	PATCH  /tenants/{tenant}
//	POST   /tenants/{tenant}/service-accounts
//	GET    /tenants/{tenant}/service-accounts
//	POST   /tenants/{tenant}/service-accounts/authenticate
//	GET    /tenants/{tenant}/service-accounts/{id}
//	PATCH  /tenants/{tenant}/service-accounts/{id}
//	POST   /tenants/{tenant}/service-accounts/{id}/roles
//	DELETE /tenants/{tenant}/service-accounts/{id}/roles
//	POST   /tenants/{tenant}/service-accounts/{id}/rotate-secret
//	POST   /tenants/{tenant}/service-accounts/{id}/activate
//	POST   /tenants/{tenant}/service-accounts/{id}/deactivate
//	GET    /tenants/{tenant}/audit?format=json|ndjson|csv
//
// # Headers
//
// Mutations require X-Actor, the identity recorded as the initiator of the
// resulting events. An optional Idempotency-Key makes a service account
// command safe to retry: a repeated key is answered with 409.
//
// # Errors
//
// Errors are JSON objects {"error": "...", "field": "..."}. Validation
// failures map to 400, unknown resources to 404, state conflicts to 409 and
// failed authentication to 401 without saying which check failed.
//
// With Options.AuthLimiter set, authenticate attempts are budgeted per tenant
// and client IP and answered with 429 once the budget is spent.
package api
