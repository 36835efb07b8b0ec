package agent

import (
	"github.com/haasonsaas/llama-agent/internal/mcp"
	"github.com/haasonsaas/llama-agent/internal/model"
)

// HealthStatus is the runtime's self-reported liveness snapshot.
type HealthStatus struct {
	QueueDepth   int                `json:"queue_depth"`
	WorkerBusy   bool               `json:"worker_busy"`
	SessionCount int                `json:"session_count"`
	MCPServers   []mcp.ServerStatus `json:"mcp_servers"`
	ModelCache   *model.CacheStats  `json:"model_cache,omitempty"`
}
