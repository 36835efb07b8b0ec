package queue

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/llama-agent/internal/observability"
	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

func newTestQueue(t *testing.T, engine Engine) *Queue {
	t.Helper()
	q, err := New(DefaultConfig(), engine, observability.NewMetrics(), nil)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	q.Start()
	t.Cleanup(func() { q.Stop(time.Second) })
	return q
}

func boolPtr(b bool) *bool { return &b }

func TestQueueBatchRequestStopsOnEOS(t *testing.T) {
	engine := &fakeEngine{pieces: []string{"hello", " world", "<EOS>"}, eosID: 99}
	q := newTestQueue(t, engine)

	req := NewBatchRequest(context.Background(), "say hi", 100, SamplingParams{}, nil,
		agentmodel.StoppingConfig{EOSDetection: boolPtr(true)})
	if err := q.Submit(req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if resp.Text != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", resp.Text)
	}
	if resp.FinishReason.Reason != agentmodel.FinishEOS().Reason {
		t.Fatalf("expected EOS finish reason, got %q", resp.FinishReason.Reason)
	}
}

func TestQueueBusyReflectsWorkerState(t *testing.T) {
	engine := &fakeEngine{pieces: []string{"hello", "<EOS>"}, eosID: 99}
	q := newTestQueue(t, engine)

	if q.Busy() {
		t.Fatal("expected queue to be idle before any request is submitted")
	}

	req := NewBatchRequest(context.Background(), "say hi", 100, SamplingParams{}, nil,
		agentmodel.StoppingConfig{EOSDetection: boolPtr(true)})
	if err := q.Submit(req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := req.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if q.Busy() {
		t.Fatal("expected queue to be idle again once the request completes")
	}
}

func TestQueueBatchRequestStopsOnMaxTokens(t *testing.T) {
	engine := &fakeEngine{pieces: []string{"a", "b", "c", "d", "e"}, eosID: 99}
	q := newTestQueue(t, engine)

	maxTokens := uint32(3)
	req := NewBatchRequest(context.Background(), "go", maxTokens, SamplingParams{}, nil, agentmodel.StoppingConfig{})
	if err := q.Submit(req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if resp.TokensGenerated != 3 {
		t.Fatalf("expected 3 tokens, got %d", resp.TokensGenerated)
	}
	if resp.FinishReason.Reason != agentmodel.FinishMaxTokens().Reason {
		t.Fatalf("expected max-tokens finish reason, got %q", resp.FinishReason.Reason)
	}
}

func TestQueueBatchRequestStopsOnStopToken(t *testing.T) {
	engine := &fakeEngine{pieces: []string{"the ", "answer ", "STOP", " more"}, eosID: 99}
	q := newTestQueue(t, engine)

	req := NewBatchRequest(context.Background(), "go", 100, SamplingParams{}, []string{"STOP"}, agentmodel.StoppingConfig{})
	if err := q.Submit(req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp, err := req.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if resp.Text != "the answer STOP" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	engine := &blockingEngine{release: make(chan struct{}), eosID: 99}
	cfg := Config{MaxQueueSize: 1, RequestTimeout: 10 * time.Second, WorkerThreads: 1}
	q, err := New(cfg, engine, observability.NewMetrics(), nil)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	q.Start()
	defer q.Stop(time.Second)
	defer close(engine.release)

	// First request is picked up by the worker and blocks there.
	first := NewBatchRequest(context.Background(), "x", 1, SamplingParams{}, nil, agentmodel.StoppingConfig{})
	if err := q.Submit(first); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Give the worker a moment to dequeue the first request so the
	// channel buffer (capacity 1) is genuinely empty before we fill it.
	for i := 0; i < 100 && q.Depth() != 0; i++ {
		time.Sleep(time.Millisecond)
	}

	second := NewBatchRequest(context.Background(), "y", 1, SamplingParams{}, nil, agentmodel.StoppingConfig{})
	if err := q.Submit(second); err != nil {
		t.Fatalf("second submit should fill the buffer: %v", err)
	}

	third := NewBatchRequest(context.Background(), "z", 1, SamplingParams{}, nil, agentmodel.StoppingConfig{})
	err = q.Submit(third)
	if err == nil {
		t.Fatal("expected QueueFull error")
	}
	qerr, ok := err.(*Error)
	if !ok || qerr.Kind != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueueSubmitAfterStopFailsShuttingDown(t *testing.T) {
	engine := &fakeEngine{pieces: []string{"<EOS>"}, eosID: 99}
	q, err := New(DefaultConfig(), engine, observability.NewMetrics(), nil)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	q.Start()
	q.Stop(time.Second)

	req := NewBatchRequest(context.Background(), "x", 1, SamplingParams{}, nil, agentmodel.StoppingConfig{})
	err = q.Submit(req)
	if err == nil {
		t.Fatal("expected error after shutdown")
	}
	qerr, ok := err.(*Error)
	if !ok || qerr.Kind != ErrShuttingDown {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
}

func TestQueueCancellationStopsDecode(t *testing.T) {
	engine := &fakeEngine{pieces: []string{"a", "b", "c"}, loop: true, eosID: 99}
	q := newTestQueue(t, engine)

	ctx, cancel := context.WithCancel(context.Background())
	req := NewBatchRequest(ctx, "go", 100000, SamplingParams{}, nil, agentmodel.StoppingConfig{})
	cancel()
	if err := q.Submit(req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := req.Wait(context.Background())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	qerr, ok := err.(*Error)
	if !ok || qerr.Kind != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestQueueStreamingEmitsChunksThenComplete(t *testing.T) {
	engine := &fakeEngine{pieces: []string{"a", "b", "<EOS>"}, eosID: 99}
	q := newTestQueue(t, engine)

	req := NewStreamingRequest(context.Background(), "go", 100, SamplingParams{}, nil, agentmodel.StoppingConfig{})
	if err := q.SubmitStreaming(req); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var texts []string
	var finish agentmodel.FinishReason
	for chunk := range req.Chunks {
		if chunk.IsComplete {
			finish = chunk.FinishReason
			continue
		}
		texts = append(texts, chunk.Text)
	}
	if len(texts) != 2 {
		t.Fatalf("expected 2 streamed pieces (the EOS token emits none), got %d: %v", len(texts), texts)
	}
	if finish.Reason != agentmodel.FinishEOS().Reason {
		t.Fatalf("expected EOS finish reason on final chunk, got %q", finish.Reason)
	}
	if err := req.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
}
