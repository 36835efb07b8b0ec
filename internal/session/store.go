package session

import (
	"context"
	"time"

	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// Config bounds the store's resource usage.
type Config struct {
	MaxSessions    int           `yaml:"max_sessions"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// DefaultConfig returns the default limits: 1000 sessions, 1 hour
// idle timeout.
func DefaultConfig() Config {
	return Config{MaxSessions: 1000, SessionTimeout: time.Hour}
}

func (c Config) normalized() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 1000
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = time.Hour
	}
	return c
}

// Store is the reader-writer-locked SessionId -> Session mapping.
type Store interface {
	// Create allocates a fresh session, failing with
	// ErrMaxSessionsReached if the store is at capacity after an
	// opportunistic eviction of expired entries.
	Create(ctx context.Context) (*agentmodel.Session, error)

	// Get returns a deep copy of the session, or ErrNotFound.
	Get(ctx context.Context, id agentmodel.SessionID) (*agentmodel.Session, error)

	// AppendMessage appends msg to the session and bumps UpdatedAt, or
	// returns ErrNotFound.
	AppendMessage(ctx context.Context, id agentmodel.SessionID, msg agentmodel.Message) (*agentmodel.Session, error)

	// Update replaces a session's mutable fields (MCPServers,
	// AvailableTools) and bumps UpdatedAt, or returns ErrNotFound.
	Update(ctx context.Context, id agentmodel.SessionID, mutate func(*agentmodel.Session)) (*agentmodel.Session, error)

	// Delete removes a session. It is not an error to delete a session
	// that does not exist.
	Delete(ctx context.Context, id agentmodel.SessionID) error

	// Sweep evicts every session idle longer than the configured
	// timeout and returns how many were removed. Called opportunistically
	// from Create and periodically by a background scheduler.
	Sweep() int

	// Len reports the current session count.
	Len() int
}
