package agentmodel

import "time"

// MCPServerConfig describes one external MCP server a session may call
// tools on. Mirrored into internal/mcp.ServerConfig at the pool boundary.
type MCPServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
}

// ToolDefinition describes one tool exposed by an MCP server, keyed
// uniquely by (ServerName, Name).
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  map[string]any  `json:"parameters,omitempty"`
	ServerName  string          `json:"server_name"`
}

// Key returns the unique (server_name, name) key for this tool.
func (t ToolDefinition) Key() string {
	return t.ServerName + "\x00" + t.Name
}

// Session is an ordered, append-only conversation with associated tool
// availability and MCP server configuration. Session is exclusively owned
// by the session store; callers receive value copies by id.
type Session struct {
	ID             SessionID         `json:"id"`
	Messages       []Message         `json:"messages"`
	MCPServers     []MCPServerConfig `json:"mcp_servers,omitempty"`
	AvailableTools []ToolDefinition  `json:"available_tools,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// EligibleForGeneration reports whether the session has at least one
// message, the precondition for Generate/GenerateStream.
func (s *Session) EligibleForGeneration() bool {
	return len(s.Messages) > 0
}

// Clone returns a deep copy of the session so callers never alias the
// store's internal slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if len(s.Messages) > 0 {
		clone.Messages = append([]Message(nil), s.Messages...)
	}
	if len(s.MCPServers) > 0 {
		clone.MCPServers = append([]MCPServerConfig(nil), s.MCPServers...)
	}
	if len(s.AvailableTools) > 0 {
		clone.AvailableTools = append([]ToolDefinition(nil), s.AvailableTools...)
	}
	return &clone
}
