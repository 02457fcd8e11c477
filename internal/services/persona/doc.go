// Package persona implements the persona and profile domain logic.
//
// Queries read the store directly and never fail on absence: a missing
// persona or profile is returned as a synthetic record holding only its
// identifier and timestamps. Every mutation runs inside exactly one
// WithWriteAccess scope, so multi-step changes such as detach-then-delete or
// create-then-attach are observed entirely or not at all. Outward values are
// projected views that never carry private or local keys.
package persona
