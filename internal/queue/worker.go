package queue

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/llama-agent/internal/observability"
	"github.com/haasonsaas/llama-agent/internal/stopper"
	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// defaultBatchSize sizes every per-request decode context; the model
// configuration's BatchSize is not passed down to the queue.
const defaultBatchSize = 512

// worker runs one request's decode loop. A fresh worker-scoped stopper
// vector is built per request; nothing here is shared across requests
// beyond the Engine handle itself.
type worker struct {
	engine    Engine
	logger    *slog.Logger
	metrics   *observability.Metrics
	recordTPS func(tokens uint32, elapsed time.Duration)
}

func (w *worker) runBatch(ctx context.Context, params decodeParams) (*agentmodel.GenerationResponse, error) {
	var text strings.Builder
	finish, tokens, err := w.decode(ctx, params, func(piece string, _ bool) bool {
		text.WriteString(piece)
		return true
	})
	if err != nil {
		return nil, err
	}
	return &agentmodel.GenerationResponse{
		Text:            text.String(),
		FinishReason:    *finish,
		TokensGenerated: tokens,
	}, nil
}

func (w *worker) runStreaming(ctx context.Context, params decodeParams, req *StreamingRequest) error {
	var tokenCount uint32
	finish, tokens, err := w.decode(ctx, params, func(piece string, _ bool) bool {
		tokenCount++
		if !req.trySend(agentmodel.StreamChunk{Text: piece, TokenCount: tokenCount}) {
			// Receiver full or gone: treat as cancellation, since the caller
			// requires for streaming backpressure.
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	req.trySend(agentmodel.StreamChunk{Text: "", IsComplete: true, TokenCount: tokens, FinishReason: *finish})
	return nil
}

// decode runs the tokenize -> stopper-vector -> sample loop shared by
// batch and streaming requests. emit is called once per sampled token
// with its decoded piece, except for an end-of-sequence token, which
// ends decode without being emitted or counted; returning false stops
// decode early exactly like a stopper firing (used for streaming
// backpressure).
func (w *worker) decode(ctx context.Context, params decodeParams, emit func(piece string, isFinal bool) bool) (*agentmodel.FinishReason, uint32, error) {
	start := time.Now()

	promptTokens, err := w.engine.Tokenize(params.Prompt)
	if err != nil {
		return nil, 0, err
	}

	stoppers := stopper.BuildDefault(w.engine.EOSTokenID(), params.MaxTokens, &params.StoppingConfig)

	var (
		accumulated strings.Builder
		tokenCount  uint32
		finish      *agentmodel.FinishReason
	)

	decodeErr := w.engine.Decode(ctx, promptTokens, defaultBatchSize, params.Sampling, func(tokenID int32, piece string) bool {
		select {
		case <-ctx.Done():
			finish = nil
			return false
		default:
		}

		tokenCount++
		accumulated.WriteString(piece)

		if fr := stopper.RunAll(stoppers, stopper.Batch{TokenIDs: []int32{tokenID}, PieceText: piece}); fr != nil {
			finish = fr
			if fr.Reason == agentmodel.FinishEOS().Reason {
				tokenCount--
				return false
			}
			emit(piece, true)
			return false
		}

		if tok, ok := matchStopToken(accumulated.String(), params.StopTokens); ok {
			fr := agentmodel.FinishStopToken(tok)
			finish = &fr
			emit(piece, true)
			return false
		}

		if !emit(piece, false) {
			finish = nil // signals cancellation/backpressure below
			return false
		}
		return true
	})

	elapsed := time.Since(start)
	if w.recordTPS != nil {
		w.recordTPS(tokenCount, elapsed)
	}
	if w.metrics != nil {
		w.metrics.DecodeDuration.Observe(elapsed.Seconds())
	}

	if decodeErr != nil {
		if ctx.Err() != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, tokenCount, errTimeout("request_timeout elapsed before termination")
			}
			return nil, tokenCount, errCancelled()
		}
		return nil, tokenCount, decodeErr
	}

	if ctx.Err() != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, tokenCount, errTimeout("request_timeout elapsed before termination")
		}
		return nil, tokenCount, errCancelled()
	}

	if finish == nil {
		// onToken returned false without a stopper firing: either
		// cancellation or a full/gone streaming receiver.
		return nil, tokenCount, errCancelled()
	}

	return finish, tokenCount, nil
}

// matchStopToken reports the first configured stop token found as a
// substring of the accumulated output.
func matchStopToken(accumulated string, stopTokens []string) (string, bool) {
	for _, tok := range stopTokens {
		if tok != "" && strings.Contains(accumulated, tok) {
			return tok, true
		}
	}
	return "", false
}
