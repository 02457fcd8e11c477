// Package avatar provides domain.AvatarCache implementations: a process-local
// map and a Redis-backed cache with a TTL.
package avatar
