package mcp

import (
	"context"
	"encoding/json"
)

// Transport is the line-delimited JSON-RPC channel to one MCP server.
// StdioTransport is the only production implementation (one child
// process per server); the interface exists so Client can be tested
// against a fake.
type Transport interface {
	Connect(ctx context.Context) error
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Events() <-chan *JSONRPCNotification
	Connected() bool
	// Healthy reports whether the underlying process is still alive,
	// independent of whether a specific RPC succeeded.
	Healthy() bool
	Close() error
}
