// Package session implements the thread-safe SessionId -> Session
// store: creation with capacity enforcement, lookup, append, and
// TTL-based expiry.
package session

import "errors"

var (
	// ErrNotFound is returned when a session id has no entry (never
	// existed, already deleted, or expired and swept).
	ErrNotFound = errors.New("session not found")

	// ErrMaxSessionsReached is returned by Create when the store is at
	// capacity even after an opportunistic eviction of expired entries.
	ErrMaxSessionsReached = errors.New("max sessions reached")
)
