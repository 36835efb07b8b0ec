// Package stopper implements the decode-loop stop-condition engine: a
// small set of stateful predicates evaluated after each sampled token,
// any one of which can terminate generation with a FinishReason.
package stopper

import "github.com/haasonsaas/llama-agent/pkg/agentmodel"

// Batch is the slice of token ids produced by the most recent decode
// step, along with the text piece decoded for the most recently sampled
// token.
type Batch struct {
	TokenIDs []int32
	PieceText string
}

// Stopper is a stateful, single-request-scoped predicate. Implementations
// must not be shared across requests; a fresh set is constructed per
// request (see internal/queue).
type Stopper interface {
	// Check is invoked after each sampled token/batch. It returns a
	// non-nil FinishReason to terminate decoding, or nil to continue.
	Check(b Batch) *agentmodel.FinishReason
}

// TextAccumulator is implemented by stoppers that need to see decoded
// text incrementally (currently only the repetition stopper).
type TextAccumulator interface {
	AddTokenText(piece string)
}

// BuildDefault constructs the per-request stopper vector: EOS,
// max-tokens, repetition — any subset permitted by cfg.
func BuildDefault(eosTokenID int32, maxTokens uint32, cfg *agentmodel.StoppingConfig) []Stopper {
	var stoppers []Stopper

	eosEnabled := true
	if cfg != nil {
		eosEnabled = cfg.EOSEnabled()
	}
	if eosEnabled {
		stoppers = append(stoppers, NewEOSStopper(eosTokenID))
	}

	mt := maxTokens
	if mt == 0 {
		mt = 4096
	}
	if cfg != nil && cfg.MaxTokens != nil {
		mt = uint32(*cfg.MaxTokens)
	}
	stoppers = append(stoppers, NewMaxTokensStopper(mt))

	rep := agentmodel.DefaultRepetitionConfig()
	if cfg != nil && cfg.Repetition != nil {
		rep = *cfg.Repetition
	}
	if s := NewRepetitionStopper(rep); s != nil {
		stoppers = append(stoppers, s)
	}

	return stoppers
}

// RunAll evaluates stoppers in order, feeding text to any TextAccumulator
// first, and returns the first non-nil FinishReason (or nil).
func RunAll(stoppers []Stopper, b Batch) *agentmodel.FinishReason {
	for _, s := range stoppers {
		if acc, ok := s.(TextAccumulator); ok && b.PieceText != "" {
			acc.AddTokenText(b.PieceText)
		}
	}
	for _, s := range stoppers {
		if fr := s.Check(b); fr != nil {
			return fr
		}
	}
	return nil
}
