package stopper

import "github.com/haasonsaas/llama-agent/pkg/agentmodel"

// EOSStopper terminates decoding when the model's end-of-sequence token
// appears anywhere in the current batch.
type EOSStopper struct {
	eosTokenID int32
}

// NewEOSStopper constructs an EOSStopper for the given model EOS token id.
func NewEOSStopper(eosTokenID int32) *EOSStopper {
	return &EOSStopper{eosTokenID: eosTokenID}
}

func (s *EOSStopper) Check(b Batch) *agentmodel.FinishReason {
	for _, tok := range b.TokenIDs {
		if tok == s.eosTokenID {
			fr := agentmodel.FinishEOS()
			return &fr
		}
	}
	return nil
}
