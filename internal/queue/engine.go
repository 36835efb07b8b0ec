// Package queue owns the single in-memory model instance and
// serializes all decode activity onto one worker goroutine, serving
// both whole-response and token-streaming requests with timeouts,
// backpressure, and cancellation.
package queue

import "context"

// SamplingParams are the per-request sampling knobs; zero values mean
// "use the engine's default".
type SamplingParams struct {
	Temperature float32
	TopP        float32
}

// Engine is the abstraction over the native inference library (a
// realized model handle from internal/model). Implementations wrap
// whatever CGO/FFI binding loads the GGUF file; this package only
// needs the token-at-a-time contract below so it can run stoppers
// between samples.
type Engine interface {
	// Tokenize converts a rendered prompt into the model's token ids.
	Tokenize(prompt string) ([]int32, error)

	// Detokenize converts a single token id into its text piece.
	Detokenize(tokenID int32) (string, error)

	// EOSTokenID returns the model's end-of-sequence token id.
	EOSTokenID() int32

	// Decode feeds promptTokens into a fresh context sized from
	// batchSize and samples tokens one at a time, invoking onToken
	// after each. Decode returns when onToken returns false, when ctx
	// is cancelled, or when the engine exhausts its own internal
	// context window. onToken must not retain the piece slice.
	Decode(ctx context.Context, promptTokens []int32, batchSize int, params SamplingParams, onToken func(tokenID int32, piece string) (keepGoing bool)) error
}
