// Package agentmodel holds the domain types shared between the agent
// runtime's internal packages and external callers: sessions, messages,
// tool calls, generation requests/responses, and the stopping and finish
// reason types used throughout the decode loop.
package agentmodel

import "github.com/google/uuid"

// SessionID identifies a session. It is a UUIDv7 string: the high bits
// encode a millisecond timestamp, so lexicographic order on the string
// tracks creation order.
type SessionID string

// ToolCallID identifies a single tool invocation, same shape as SessionID.
type ToolCallID string

// NewSessionID mints a fresh, time-sortable session identifier.
func NewSessionID() SessionID {
	return SessionID(newTimeSortableID())
}

// NewToolCallID mints a fresh, time-sortable tool-call identifier.
func NewToolCallID() ToolCallID {
	return ToolCallID(newTimeSortableID())
}

func newTimeSortableID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global random source errors; fall
		// back to v4 rather than panic in a library.
		return uuid.NewString()
	}
	return id.String()
}
