// Package accounts is the application service in front of the service
// account aggregate.
//
// It turns API requests into commands, checks that the owning tenant is
// active, allocates service account and client IDs on create, and returns
// read-model views. Client secrets are only ever returned from Create and
// RotateSecret; they cannot be read back.
//
// Authenticate checks a presented client ID and secret against the
// event-sourced state of the account. It is a credential check only and
// does not issue tokens.
package accounts
