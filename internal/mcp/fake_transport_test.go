package mcp

import (
	"context"
	"encoding/json"
	"sync"
)

// fakeTransport is an in-process Transport double driven by a
// method->handler map, for exercising Client/Manager without spawning a
// real child process.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	healthy   bool
	handlers  map[string]func(params json.RawMessage) (json.RawMessage, error)
	events    chan *JSONRPCNotification
	calls     []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		healthy:  true,
		handlers: make(map[string]func(json.RawMessage) (json.RawMessage, error)),
		events:   make(chan *JSONRPCNotification, 10),
	}
}

func (f *fakeTransport) on(method string, fn func(json.RawMessage) (json.RawMessage, error)) {
	f.handlers[method] = fn
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	handler, ok := f.handlers[method]
	f.mu.Unlock()

	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	if !ok {
		return json.RawMessage(`{}`), nil
	}
	return handler(raw)
}

func (f *fakeTransport) Notify(ctx context.Context, method string, params any) error {
	return nil
}

func (f *fakeTransport) Events() <-chan *JSONRPCNotification { return f.events }

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected && f.healthy
}

func (f *fakeTransport) setHealthy(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = v
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}
