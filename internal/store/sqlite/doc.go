// Package sqlite provides a SQLite-backed domain.PersonaStore and
// domain.AvatarCache.
//
// Persona keys are stored as JWK JSON columns. Linked profiles are rows of
// persona_profiles ordered by position, and profiles point back at their
// persona through linked_persona. WithWriteAccess maps onto one SQL
// transaction.
package sqlite
