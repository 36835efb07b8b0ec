package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/llama-agent/internal/mcp"
	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// fakeRouter is an in-process ToolRouter double: every tool name maps to
// a handler, optionally after a simulated delay.
type fakeRouter struct {
	mu       sync.Mutex
	handlers map[string]func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)
	calls    []string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{handlers: make(map[string]func(context.Context, json.RawMessage) (*mcp.CallToolResult, error))}
}

func (f *fakeRouter) on(name string, fn func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)) {
	f.handlers[name] = fn
}

func (f *fakeRouter) FindTool(toolName string) (string, *mcp.Tool, error) {
	if _, ok := f.handlers[toolName]; !ok {
		return "", nil, fmt.Errorf("no server exposes tool %q", toolName)
	}
	return "fake-server", &mcp.Tool{Name: toolName}, nil
}

func (f *fakeRouter) CallTool(ctx context.Context, serverName, toolName string, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, toolName)
	f.mu.Unlock()
	handler, ok := f.handlers[toolName]
	if !ok {
		return nil, fmt.Errorf("no handler for %q", toolName)
	}
	return handler(ctx, arguments)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: text}}}
}

func TestToolExecutorExecuteSuccess(t *testing.T) {
	router := newFakeRouter()
	router.on("get_forecast", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		return textResult("sunny"), nil
	})
	exec := NewToolExecutor(router, DefaultToolExecConfig(), nil, nil)

	call := toolCall("get_forecast", `{"city":"boston"}`)
	result := exec.Execute(context.Background(), call)
	require.Empty(t, result.Error)

	var got string
	require.NoError(t, json.Unmarshal(result.Result, &got))
	assert.Equal(t, "sunny", got)
}

func TestToolExecutorExecuteUnknownTool(t *testing.T) {
	exec := NewToolExecutor(newFakeRouter(), DefaultToolExecConfig(), nil, nil)
	result := exec.Execute(context.Background(), toolCall("ghost", `{}`))
	assert.NotEmpty(t, result.Error)
}

func TestToolExecutorExecuteServerReportedError(t *testing.T) {
	router := newFakeRouter()
	router.on("flaky", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{IsError: true, Content: []mcp.ContentBlock{{Type: "text", Text: "boom"}}}, nil
	})
	exec := NewToolExecutor(router, DefaultToolExecConfig(), nil, nil)
	result := exec.Execute(context.Background(), toolCall("flaky", `{}`))
	assert.Equal(t, "boom", result.Error)
}

func TestToolExecutorExecuteTimeout(t *testing.T) {
	router := newFakeRouter()
	router.on("slow", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	exec := NewToolExecutor(router, ToolExecConfig{Concurrency: 1, PerToolTimeout: 10 * time.Millisecond}, nil, nil)
	result := exec.Execute(context.Background(), toolCall("slow", `{}`))
	assert.NotEmpty(t, result.Error)
}

func TestToolExecutorExecuteConcurrentlyPreservesOrderAndIsolatesFailures(t *testing.T) {
	router := newFakeRouter()
	router.on("a", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		return textResult("a-ok"), nil
	})
	router.on("b", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		return nil, fmt.Errorf("b failed")
	})
	router.on("c", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		return textResult("c-ok"), nil
	})
	exec := NewToolExecutor(router, DefaultToolExecConfig(), nil, nil)

	calls := []agentmodel.ToolCall{toolCall("a", `{}`), toolCall("b", `{}`), toolCall("c", `{}`)}
	results := exec.ExecuteConcurrently(context.Background(), calls)

	require.Len(t, results, 3)
	assert.Empty(t, results[0].Error)
	assert.Empty(t, results[2].Error)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, calls[0].ID, results[0].CallID)
	assert.Equal(t, calls[2].ID, results[2].CallID)
}

func TestToolExecutorExecuteFiresStartedAndCompletedEvents(t *testing.T) {
	router := newFakeRouter()
	router.on("get_forecast", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		return textResult("sunny"), nil
	})
	exec := NewToolExecutor(router, DefaultToolExecConfig(), nil, nil)

	var mu sync.Mutex
	var events []*agentmodel.RuntimeEvent
	exec.SetEventCallback(func(ev *agentmodel.RuntimeEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	call := toolCall("get_forecast", `{"city":"boston"}`)
	exec.Execute(context.Background(), call)

	require.Len(t, events, 2)
	assert.Equal(t, agentmodel.EventToolStarted, events[0].Type)
	assert.Equal(t, "get_forecast", events[0].ToolName)
	assert.Equal(t, agentmodel.EventToolCompleted, events[1].Type)
	assert.Equal(t, string(call.ID), events[1].ToolCallID)
}

func TestToolExecutorExecuteFiresFailedEventOnServerError(t *testing.T) {
	router := newFakeRouter()
	router.on("flaky", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{IsError: true, Content: []mcp.ContentBlock{{Type: "text", Text: "boom"}}}, nil
	})
	exec := NewToolExecutor(router, DefaultToolExecConfig(), nil, nil)

	var events []*agentmodel.RuntimeEvent
	exec.SetEventCallback(func(ev *agentmodel.RuntimeEvent) { events = append(events, ev) })

	exec.Execute(context.Background(), toolCall("flaky", `{}`))

	require.Len(t, events, 2)
	assert.Equal(t, agentmodel.EventToolFailed, events[1].Type)
}

func TestToolExecutorExecuteFiresTimeoutEvent(t *testing.T) {
	router := newFakeRouter()
	router.on("slow", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	exec := NewToolExecutor(router, ToolExecConfig{Concurrency: 1, PerToolTimeout: 10 * time.Millisecond}, nil, nil)

	var events []*agentmodel.RuntimeEvent
	exec.SetEventCallback(func(ev *agentmodel.RuntimeEvent) { events = append(events, ev) })

	exec.Execute(context.Background(), toolCall("slow", `{}`))

	require.Len(t, events, 2)
	assert.Equal(t, agentmodel.EventToolTimeout, events[1].Type)
}

func TestToolExecutorExecuteNoEventCallbackIsANoop(t *testing.T) {
	router := newFakeRouter()
	router.on("get_forecast", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		return textResult("sunny"), nil
	})
	exec := NewToolExecutor(router, DefaultToolExecConfig(), nil, nil)
	result := exec.Execute(context.Background(), toolCall("get_forecast", `{}`))
	assert.Empty(t, result.Error)
}

func TestToolExecutorExecuteUnknownToolFiresNoEvents(t *testing.T) {
	exec := NewToolExecutor(newFakeRouter(), DefaultToolExecConfig(), nil, nil)
	var events []*agentmodel.RuntimeEvent
	exec.SetEventCallback(func(ev *agentmodel.RuntimeEvent) { events = append(events, ev) })

	exec.Execute(context.Background(), toolCall("ghost", `{}`))

	assert.Empty(t, events)
}

func TestToolExecutorExecuteSequentiallyRunsInOrder(t *testing.T) {
	router := newFakeRouter()
	var order []string
	var mu sync.Mutex
	router.on("first", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		return textResult("1"), nil
	})
	router.on("second", func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		return textResult("2"), nil
	})
	exec := NewToolExecutor(router, DefaultToolExecConfig(), nil, nil)

	calls := []agentmodel.ToolCall{toolCall("first", `{}`), toolCall("second", `{}`)}
	results := exec.ExecuteSequentially(context.Background(), calls)

	require.Equal(t, []string{"first", "second"}, order)
	assert.Empty(t, results[0].Error)
	assert.Empty(t, results[1].Error)
}
