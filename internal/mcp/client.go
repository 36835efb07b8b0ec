package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Client owns one Transport (one MCP server) and caches its discovered
// tool inventory.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu         sync.RWMutex
	tools      []*Tool
	serverInfo ServerInfo
	down       bool
}

// NewClient constructs a Client around a fresh StdioTransport.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.normalized()
	return &Client{
		config:    cfg,
		transport: NewStdioTransport(cfg),
		logger:    logger.With("component", "mcp", "mcp_server", cfg.Name),
	}
}

// NewClientWithTransport constructs a Client around an injected
// Transport, for testing against a fake.
func NewClientWithTransport(cfg *ServerConfig, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{config: cfg.normalized(), transport: transport, logger: logger.With("component", "mcp", "mcp_server", cfg.Name)}
}

// Connect starts the transport, runs the "initialize" handshake, sends
// "notifications/initialized", and discovers tools via "tools/list".
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "llama-agent", "version": "1.0.0"},
	})
	if err != nil {
		_ = c.transport.Close()
		return err
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		_ = c.transport.Close()
		return newError(c.config.Name, ErrProtocol, "parse initialize result", err)
	}
	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	c.logger.Info("connected to MCP server", "name", initResult.ServerInfo.Name, "protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	if err := c.RefreshTools(ctx); err != nil {
		c.logger.Warn("failed to discover tools", "error", err)
	}

	return nil
}

// RefreshTools re-lists the server's tool inventory.
func (c *Client) RefreshTools(ctx context.Context) error {
	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var resp listToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return newError(c.config.Name, ErrProtocol, "parse tools/list result", err)
	}
	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	return nil
}

// Tools returns the cached tool inventory.
func (c *Client) Tools() []*Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// ServerInfo returns the connected server's identity.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Connected reports transport-level liveness.
func (c *Client) Connected() bool { return c.transport.Connected() }

// Healthy probes liveness independent of any specific RPC outcome.
func (c *Client) Healthy() bool { return c.transport.Healthy() }

// CallTool invokes a tool and unmarshals its result. A per-call context
// deadline enforces the configured per-call timeout; on timeout the pending
// response (if it arrives later) is discarded by Transport.Call.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error) {
	if !c.transport.Connected() {
		return nil, newError(c.config.Name, ErrServerDown, "server not connected", nil)
	}
	params := CallToolParams{Name: name, Arguments: arguments}
	result, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var callResult CallToolResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, newError(c.config.Name, ErrProtocol, "parse tools/call result", err)
	}
	return &callResult, nil
}

// Close tears down the transport without the graceful shutdown sequence
// (used for abrupt disconnects); Manager.Stop uses the full sequence.
func (c *Client) Close() error {
	return c.transport.Close()
}
