package stopper

import "github.com/haasonsaas/llama-agent/pkg/agentmodel"

// MaxTokensStopper terminates decoding once a token budget is exhausted.
// A budget of 0 stops on the very first check, which is only useful in
// tests.
type MaxTokensStopper struct {
	maxTokens uint32
	count     uint32
}

// NewMaxTokensStopper constructs a MaxTokensStopper with the given budget.
func NewMaxTokensStopper(maxTokens uint32) *MaxTokensStopper {
	return &MaxTokensStopper{maxTokens: maxTokens}
}

func (s *MaxTokensStopper) Check(b Batch) *agentmodel.FinishReason {
	s.count += uint32(len(b.TokenIDs))
	if s.count >= s.maxTokens {
		fr := agentmodel.FinishMaxTokens()
		return &fr
	}
	return nil
}

// TokensGenerated reports the running total, used by tests asserting the
// requested [max_tokens, max_tokens+batch_size-1] bound.
func (s *MaxTokensStopper) TokensGenerated() uint32 {
	return s.count
}
