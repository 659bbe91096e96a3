// Package serviceaccount implements the service account aggregate.
//
// A service account is a machine identity owned by exactly one tenant. Its
// state is never stored directly: it is the fold of the events recorded for
// it, in append order.
//
// The package is split into two pure functions:
//
//	decision, err := decider.Decide(state, cmd, policy) // validate, emit 0 or 1 event
//	state = serviceaccount.Apply(state, decision.Event) // mutate, never validate
//
// Decide returns errors wrapping ErrNotFound, ErrAlreadyExists or
// ErrValidation (tenant mismatch included) and never touches state. A nil
// Decision.Event means the command was already satisfied (activating an
// active account, assigning roles it already holds, ...). RotateSecret always
// emits an event.
//
// Commands for the same account must be executed one at a time; the
// dispatch package provides that guarantee. The aggregate itself holds no
// locks and does no I/O apart from the credential service.
package serviceaccount
