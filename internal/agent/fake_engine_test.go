package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/llama-agent/internal/queue"
)

// scriptedEngine is a deterministic queue.Engine double: Decode emits a
// fixed script of text pieces, terminating on a "<EOS>" marker piece
// that is reported with the configured EOS token id.
type scriptedEngine struct {
	pieces []string
	eosID  int32
}

func (f *scriptedEngine) Tokenize(prompt string) ([]int32, error) {
	words := strings.Fields(prompt)
	out := make([]int32, len(words))
	for i := range words {
		out[i] = int32(i + 1)
	}
	return out, nil
}

func (f *scriptedEngine) Detokenize(tokenID int32) (string, error) {
	return fmt.Sprintf("tok%d", tokenID), nil
}

func (f *scriptedEngine) EOSTokenID() int32 { return f.eosID }

func (f *scriptedEngine) Decode(ctx context.Context, promptTokens []int32, batchSize int, params queue.SamplingParams, onToken func(tokenID int32, piece string) bool) error {
	for i, piece := range f.pieces {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		tokenID := int32(i + 1)
		if piece == "<EOS>" {
			tokenID = f.eosID
		}
		if !onToken(tokenID, piece) {
			return nil
		}
	}
	return nil
}

// sequencedEngine returns a distinct scriptedEngine's worth of pieces
// per call to Decode, in order, so a test can make the orchestrator's
// successive iterations (tool call, then final answer) decode
// different scripts from the same underlying queue.
type sequencedEngine struct {
	scripts [][]string
	eosID   int32
	call    int
}

func (s *sequencedEngine) Tokenize(prompt string) ([]int32, error) {
	words := strings.Fields(prompt)
	out := make([]int32, len(words))
	for i := range words {
		out[i] = int32(i + 1)
	}
	return out, nil
}

func (s *sequencedEngine) Detokenize(tokenID int32) (string, error) {
	return fmt.Sprintf("tok%d", tokenID), nil
}

func (s *sequencedEngine) EOSTokenID() int32 { return s.eosID }

func (s *sequencedEngine) Decode(ctx context.Context, promptTokens []int32, batchSize int, params queue.SamplingParams, onToken func(tokenID int32, piece string) bool) error {
	idx := s.call
	if idx >= len(s.scripts) {
		idx = len(s.scripts) - 1
	}
	s.call++
	pieces := s.scripts[idx]
	for i, piece := range pieces {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		tokenID := int32(i + 1)
		if piece == "<EOS>" {
			tokenID = s.eosID
		}
		if !onToken(tokenID, piece) {
			return nil
		}
	}
	return nil
}
