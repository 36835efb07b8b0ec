package queue

import (
	"context"
	"sync"

	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// decodeParams is the subset of GenerationRequest the worker's decode
// loop needs; the orchestrator renders the prompt and translates its
// GenerationRequest/session into this shape before submitting.
type decodeParams struct {
	Prompt         string
	MaxTokens      uint32
	Sampling       SamplingParams
	StopTokens     []string
	StoppingConfig agentmodel.StoppingConfig
}

// BatchRequest asks for a single complete GenerationResponse, returned
// over a one-shot reply channel.
type BatchRequest struct {
	Ctx    context.Context
	params decodeParams

	reply chan batchResult
}

type batchResult struct {
	resp *agentmodel.GenerationResponse
	err  error
}

// NewBatchRequest builds a BatchRequest. ctx governs both submission
// and, once dequeued, cancellation of decode.
func NewBatchRequest(ctx context.Context, prompt string, maxTokens uint32, sampling SamplingParams, stopTokens []string, stoppingConfig agentmodel.StoppingConfig) *BatchRequest {
	return &BatchRequest{
		Ctx: ctx,
		params: decodeParams{
			Prompt: prompt, MaxTokens: maxTokens, Sampling: sampling,
			StopTokens: stopTokens, StoppingConfig: stoppingConfig,
		},
		reply: make(chan batchResult, 1),
	}
}

// Wait blocks until the worker replies or ctx is done.
func (r *BatchRequest) Wait(ctx context.Context) (*agentmodel.GenerationResponse, error) {
	select {
	case res := <-r.reply:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StreamingRequest asks for token-by-token chunks over a bounded
// channel; the worker closes Chunks when decode terminates, and Err
// holds the terminal error (if any) once Chunks is closed.
type StreamingRequest struct {
	Ctx    context.Context
	params decodeParams

	Chunks chan agentmodel.StreamChunk

	mu       sync.Mutex
	finalErr error
}

// StreamChunkBufferSize is the fixed MPSC channel capacity.
const StreamChunkBufferSize = 100

// NewStreamingRequest builds a StreamingRequest with a capacity-100
// chunk channel.
func NewStreamingRequest(ctx context.Context, prompt string, maxTokens uint32, sampling SamplingParams, stopTokens []string, stoppingConfig agentmodel.StoppingConfig) *StreamingRequest {
	return &StreamingRequest{
		Ctx: ctx,
		params: decodeParams{
			Prompt: prompt, MaxTokens: maxTokens, Sampling: sampling,
			StopTokens: stopTokens, StoppingConfig: stoppingConfig,
		},
		Chunks: make(chan agentmodel.StreamChunk, StreamChunkBufferSize),
	}
}

// Err returns the terminal error, valid once Chunks has been drained
// to closed.
func (r *StreamingRequest) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalErr
}

func (r *StreamingRequest) setErr(err error) {
	r.mu.Lock()
	r.finalErr = err
	r.mu.Unlock()
}

// trySend attempts a non-blocking send; a full or absent receiver is
// treated as cancellation (the worker stops decoding this
// request and moves on).
func (r *StreamingRequest) trySend(chunk agentmodel.StreamChunk) bool {
	select {
	case r.Chunks <- chunk:
		return true
	default:
		return false
	}
}

// queuedRequest is the uniform envelope the worker dequeues; exactly
// one of batch/streaming is non-nil.
type queuedRequest struct {
	batch     *BatchRequest
	streaming *StreamingRequest
}

func (q queuedRequest) ctx() context.Context {
	if q.batch != nil {
		return q.batch.Ctx
	}
	return q.streaming.Ctx
}

func (q queuedRequest) params() decodeParams {
	if q.batch != nil {
		return q.batch.params
	}
	return q.streaming.params
}
