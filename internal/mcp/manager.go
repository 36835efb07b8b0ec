package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ServerStatus is the pool's health snapshot for one server.
type ServerStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Healthy   bool   `json:"healthy"`
	ToolCount int    `json:"tool_count"`
}

// Manager is the MCP client pool: one Client per configured server,
// connected independently and in parallel, with routing of tool calls
// by server name and pool-wide discovery/health queries.
type Manager struct {
	config *Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewManager builds a pool from cfg. Connect is not called yet; use
// Start.
func NewManager(cfg *Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	return &Manager{
		config:  cfg,
		logger:  logger.With("component", "mcp_pool"),
		clients: make(map[string]*Client),
	}
}

// Start connects every AutoStart server concurrently. A server that
// fails to connect is logged and left out of the pool rather than
// aborting the others.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	var wg sync.WaitGroup
	for _, sc := range m.config.Servers {
		if !sc.AutoStart {
			continue
		}
		sc := sc
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Connect(ctx, sc); err != nil {
				m.logger.Error("failed to start MCP server", "server", sc.Name, "error", err)
			}
		}()
	}
	wg.Wait()
	return nil
}

// Connect adds and connects a single server to the pool.
func (m *Manager) Connect(ctx context.Context, sc *ServerConfig) error {
	client := NewClient(sc, m.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.clients[sc.Name] = client
	m.mu.Unlock()
	m.logger.Info("MCP server connected", "server", sc.Name, "tools", len(client.Tools()))
	return nil
}

// Stop gracefully shuts down every connected server in parallel,
// bounding each by timeout.
func (m *Manager) Stop(ctx context.Context, timeout time.Duration) {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st, ok := c.transport.(*StdioTransport); ok {
				_ = st.Shutdown(ctx, timeout)
			} else {
				_ = c.Close()
			}
		}()
	}
	wg.Wait()
}

// AttachClient registers an already-constructed Client under name,
// bypassing Connect's own process-spawning construction. Used to wire a
// Client built against an injected Transport (tests, or any transport
// other than the default StdioTransport).
func (m *Manager) AttachClient(name string, c *Client) {
	m.mu.Lock()
	m.clients[name] = c
	m.mu.Unlock()
}

// Client returns the named server's client, or ErrServerNotFound.
func (m *Manager) Client(name string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	if !ok {
		return nil, newError(name, ErrServerNotFound, "server not found in pool", nil)
	}
	return c, nil
}

// ListServers returns the health snapshot of every connected server.
func (m *Manager) ListServers() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statuses := make([]ServerStatus, 0, len(m.clients))
	for name, c := range m.clients {
		statuses = append(statuses, ServerStatus{
			Name:      name,
			Connected: c.Connected(),
			Healthy:   c.Healthy(),
			ToolCount: len(c.Tools()),
		})
	}
	return statuses
}

// ServerHealth reports one server's status, or ErrServerNotFound.
func (m *Manager) ServerHealth(name string) (ServerStatus, error) {
	c, err := m.Client(name)
	if err != nil {
		return ServerStatus{}, err
	}
	return ServerStatus{Name: name, Connected: c.Connected(), Healthy: c.Healthy(), ToolCount: len(c.Tools())}, nil
}

// DiscoverTools returns every tool exposed by every connected server,
// keyed by server name; tool names are returned unprefixed.
func (m *Manager) DiscoverTools() map[string][]*Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]*Tool, len(m.clients))
	for name, c := range m.clients {
		out[name] = c.Tools()
	}
	return out
}

// FindTool locates which connected server owns a tool by name. Returns
// ErrServerNotFound if no server currently advertises it.
func (m *Manager) FindTool(toolName string) (string, *Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for serverName, c := range m.clients {
		for _, t := range c.Tools() {
			if t.Name == toolName {
				return serverName, t, nil
			}
		}
	}
	return "", nil, newError("", ErrServerNotFound, fmt.Sprintf("no server exposes tool %q", toolName), nil)
}

// CallTool routes a call to the named server. If the server has died
// (Healthy()==false) and AutoRestart is configured, it attempts one
// reconnect before failing.
func (m *Manager) CallTool(ctx context.Context, serverName, toolName string, arguments json.RawMessage) (*CallToolResult, error) {
	client, err := m.Client(serverName)
	if err != nil {
		return nil, err
	}

	if !client.Healthy() {
		if sc := m.serverConfig(serverName); sc != nil && sc.AutoRestart {
			m.logger.Warn("MCP server unhealthy, attempting restart", "server", serverName)
			if rerr := m.Connect(ctx, sc); rerr != nil {
				return nil, newError(serverName, ErrServerDown, "restart failed", rerr)
			}
			client, _ = m.Client(serverName)
		} else {
			return nil, newError(serverName, ErrServerDown, "server process is not healthy", nil)
		}
	}

	return client.CallTool(ctx, toolName, arguments)
}

func (m *Manager) serverConfig(name string) *ServerConfig {
	for _, sc := range m.config.Servers {
		if sc.Name == name {
			return sc
		}
	}
	return nil
}
