package agentmodel

// RepetitionConfig configures the repetition stopper's sliding-window
// longest-match scan.
type RepetitionConfig struct {
	MinPatternLength int `json:"min_pattern_length"`
	MaxPatternLength int `json:"max_pattern_length"`
	MinRepetitions   int `json:"min_repetitions"`
	WindowSize       int `json:"window_size"`
}

// DefaultRepetitionConfig returns the default repetition-stopper
// tuning.
func DefaultRepetitionConfig() RepetitionConfig {
	return RepetitionConfig{
		MinPatternLength: 10,
		MaxPatternLength: 100,
		MinRepetitions:   3,
		WindowSize:       1000,
	}
}

// Valid reports whether this configuration is usable. An invalid config
// (Min > Max) disables the repetition stopper silently.
func (r RepetitionConfig) Valid() bool {
	return r.MinPatternLength > 0 && r.MaxPatternLength > 0 &&
		r.MinPatternLength <= r.MaxPatternLength && r.MinRepetitions > 0
}

// StoppingConfig selects which stop conditions apply to one request.
type StoppingConfig struct {
	MaxTokens     *int              `json:"max_tokens,omitempty"`
	Repetition    *RepetitionConfig `json:"repetition,omitempty"`
	EOSDetection  *bool             `json:"eos_detection,omitempty"`
}

// EOSEnabled reports whether EOS detection is on (default true).
func (s StoppingConfig) EOSEnabled() bool {
	return s.EOSDetection == nil || *s.EOSDetection
}

// GenerationRequest is a request to continue a session by one generation
// cycle. It references a session by id rather than embedding one, so that
// large message histories are never copied into the queue.
type GenerationRequest struct {
	SessionID      SessionID       `json:"session_id"`
	MaxTokens      *uint32         `json:"max_tokens,omitempty"`
	Temperature    *float32        `json:"temperature,omitempty"`
	TopP           *float32        `json:"top_p,omitempty"`
	StopTokens     []string        `json:"stop_tokens,omitempty"`
	StoppingConfig *StoppingConfig `json:"stopping_config,omitempty"`
}

// GenerationResponse is the result of one Generate call.
type GenerationResponse struct {
	Text            string       `json:"text"`
	FinishReason    FinishReason `json:"finish_reason"`
	TokensGenerated uint32       `json:"tokens_generated"`
	ToolCalls       []ToolCall   `json:"tool_calls,omitempty"`
	Iterations      int          `json:"iterations"`
}

// StreamChunk is one piece of a streaming generation. FinishReason is
// only populated on the final (IsComplete) chunk.
type StreamChunk struct {
	Text         string       `json:"text"`
	IsComplete   bool         `json:"is_complete"`
	TokenCount   uint32       `json:"token_count"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}
