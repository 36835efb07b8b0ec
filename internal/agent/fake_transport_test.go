package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/llama-agent/internal/mcp"
)

// fakeTransport is a minimal in-process mcp.Transport double driven by a
// method->handler map, letting tests build a real *mcp.Client/Manager
// without spawning a child process.
type fakeTransport struct {
	connected bool
	handlers  map[string]func(params json.RawMessage) (json.RawMessage, error)
	events    chan *mcp.JSONRPCNotification
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]func(json.RawMessage) (json.RawMessage, error)),
		events:   make(chan *mcp.JSONRPCNotification, 1),
	}
}

func (f *fakeTransport) on(method string, fn func(json.RawMessage) (json.RawMessage, error)) {
	f.handlers[method] = fn
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	handler, ok := f.handlers[method]
	if !ok {
		return json.RawMessage(`{}`), nil
	}
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	return handler(raw)
}

func (f *fakeTransport) Notify(ctx context.Context, method string, params any) error { return nil }
func (f *fakeTransport) Events() <-chan *mcp.JSONRPCNotification                     { return f.events }
func (f *fakeTransport) Connected() bool                                            { return f.connected }
func (f *fakeTransport) Healthy() bool                                              { return f.connected }
func (f *fakeTransport) Close() error {
	f.connected = false
	return nil
}

func initializeHandler(serverName string) func(json.RawMessage) (json.RawMessage, error) {
	return func(json.RawMessage) (json.RawMessage, error) {
		result := mcp.InitializeResult{ProtocolVersion: "2024-11-05", ServerInfo: mcp.ServerInfo{Name: serverName, Version: "1.0.0"}}
		raw, _ := json.Marshal(result)
		return raw, nil
	}
}

func toolsListHandler(tools ...*mcp.Tool) func(json.RawMessage) (json.RawMessage, error) {
	return func(json.RawMessage) (json.RawMessage, error) {
		raw, _ := json.Marshal(map[string]any{"tools": tools})
		return raw, nil
	}
}
