package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/haasonsaas/llama-agent/internal/mcp"
	"github.com/haasonsaas/llama-agent/internal/observability"
	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// ToolExecConfig bounds tool execution concurrency and per-call timeout.
type ToolExecConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	PerToolTimeout time.Duration `yaml:"per_tool_timeout"`
}

// DefaultToolExecConfig returns sensible tool-executor defaults.
func DefaultToolExecConfig() ToolExecConfig {
	return ToolExecConfig{Concurrency: 4, PerToolTimeout: 30 * time.Second}
}

func (c ToolExecConfig) normalized() ToolExecConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PerToolTimeout <= 0 {
		c.PerToolTimeout = 30 * time.Second
	}
	return c
}

// ToolRouter is the subset of *mcp.Manager the executor needs: locate
// which server owns a tool, then call it there. An interface so tests
// can exercise ToolExecutor against a fake router instead of a live MCP
// pool.
type ToolRouter interface {
	FindTool(toolName string) (string, *mcp.Tool, error)
	CallTool(ctx context.Context, serverName, toolName string, arguments json.RawMessage) (*mcp.CallToolResult, error)
}

// ToolExecutor dispatches ToolCalls through the MCP pool, concurrently
// or one at a time, always returning one ToolResult per call in the
// same order regardless of individual failures.
type ToolExecutor struct {
	pool    ToolRouter
	cfg     ToolExecConfig
	logger  *slog.Logger
	metrics *observability.Metrics
	emit    agentmodel.EventCallback
}

// NewToolExecutor builds a ToolExecutor bound to pool.
func NewToolExecutor(pool ToolRouter, cfg ToolExecConfig, logger *slog.Logger, metrics *observability.Metrics) *ToolExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolExecutor{pool: pool, cfg: cfg.normalized(), logger: logger.With("component", "tool_exec"), metrics: metrics}
}

// SetEventCallback installs cb to receive tool lifecycle events from
// every subsequent Execute call. Passing nil disables event delivery.
// Purely additive: no caller is required to set one.
func (e *ToolExecutor) SetEventCallback(cb agentmodel.EventCallback) {
	e.emit = cb
}

func (e *ToolExecutor) fire(ev *agentmodel.RuntimeEvent) {
	if e.emit != nil {
		e.emit(ev)
	}
}

// ExecuteConcurrently runs every call under a concurrency-limited
// semaphore and returns results in the same order as calls. A single
// call's failure never aborts the others.
func (e *ToolExecutor) ExecuteConcurrently(ctx context.Context, calls []agentmodel.ToolCall) []agentmodel.ToolResult {
	results := make([]agentmodel.ToolResult, len(calls))
	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call agentmodel.ToolCall) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = agentmodel.ToolResult{CallID: call.ID, Error: "context canceled before tool execution started"}
				return
			}
			results[idx] = e.Execute(ctx, call)
		}(i, call)
	}

	wg.Wait()
	return results
}

// ExecuteSequentially runs calls one at a time, in order. Used when the
// dependency analyzer decides a batch has ordering constraints.
func (e *ToolExecutor) ExecuteSequentially(ctx context.Context, calls []agentmodel.ToolCall) []agentmodel.ToolResult {
	results := make([]agentmodel.ToolResult, len(calls))
	for i, call := range calls {
		results[i] = e.Execute(ctx, call)
	}
	return results
}

// Execute runs one call: resolve which server owns it, call it with a
// per-call timeout, and translate the result (or any failure) into a
// ToolResult. It never returns an error itself; failures are carried in
// the returned ToolResult.
func (e *ToolExecutor) Execute(ctx context.Context, call agentmodel.ToolCall) agentmodel.ToolResult {
	serverName, _, err := e.pool.FindTool(call.Name)
	if err != nil {
		return agentmodel.ToolResult{CallID: call.ID, Error: err.Error()}
	}

	ctx, span := observability.StartSpan(ctx, tracer, "agent.ExecuteTool",
		attribute.String("mcp.server", serverName),
		attribute.String("mcp.tool", call.Name),
	)
	defer span.End()

	e.fire(agentmodel.NewToolEvent(agentmodel.EventToolStarted, call.Name, string(call.ID)).WithMeta("server", serverName))

	toolCtx, cancel := context.WithTimeout(ctx, e.cfg.PerToolTimeout)
	defer cancel()

	start := time.Now()
	res, callErr := e.pool.CallTool(toolCtx, serverName, call.Name, call.Arguments)
	elapsed := time.Since(start)

	outcome := "success"
	if callErr != nil {
		outcome = "error"
	}
	if e.metrics != nil {
		e.metrics.MCPCallDuration.WithLabelValues(serverName, call.Name).Observe(elapsed.Seconds())
		e.metrics.MCPCallCounter.WithLabelValues(serverName, call.Name, outcome).Inc()
	}

	if callErr != nil {
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "timeout")
			e.fire(agentmodel.NewToolEvent(agentmodel.EventToolTimeout, call.Name, string(call.ID)).WithMessage(callErr.Error()))
			return agentmodel.ToolResult{CallID: call.ID, Error: fmt.Sprintf("tool call timed out after %s: %v", e.cfg.PerToolTimeout, callErr)}
		}
		e.logger.Warn("tool call failed", "tool", call.Name, "server", serverName, "error", callErr)
		span.SetStatus(codes.Error, callErr.Error())
		e.fire(agentmodel.NewToolEvent(agentmodel.EventToolFailed, call.Name, string(call.ID)).WithMessage(callErr.Error()))
		return agentmodel.ToolResult{CallID: call.ID, Error: callErr.Error()}
	}

	result := toolResultFromContent(call.ID, res)
	ev := agentmodel.NewToolEvent(agentmodel.EventToolCompleted, call.Name, string(call.ID))
	if result.Error != "" {
		ev.Type = agentmodel.EventToolFailed
		ev.Message = result.Error
		span.SetStatus(codes.Error, result.Error)
	}
	e.fire(ev)
	return result
}

func toolResultFromContent(callID agentmodel.ToolCallID, res *mcp.CallToolResult) agentmodel.ToolResult {
	var texts []string
	for _, block := range res.Content {
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if res.IsError {
		return agentmodel.ToolResult{CallID: callID, Error: text}
	}
	raw, err := json.Marshal(text)
	if err != nil {
		return agentmodel.ToolResult{CallID: callID, Error: fmt.Sprintf("could not encode tool result: %v", err)}
	}
	return agentmodel.ToolResult{CallID: callID, Result: raw}
}
