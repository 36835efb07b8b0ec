package agent

import (
	"math"
	"strings"

	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// ValidationConfig tunes the boundary checks the orchestrator applies
// before a generation request reaches the queue.
type ValidationConfig struct {
	MaxMessageBytes    int      `yaml:"max_message_bytes"`
	DangerousTokens    []string `yaml:"dangerous_tokens"`
	RepetitionMinLen   int      `yaml:"repetition_min_length"`
	RepetitionMinCount int      `yaml:"repetition_min_count"`
	MaxStopTokens      int      `yaml:"max_stop_tokens"`
	MaxStopTokenLength int      `yaml:"max_stop_token_length"`
}

// DefaultValidationConfig returns the default boundary-validation limits.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessageBytes:    100 * 1024,
		DangerousTokens:    []string{"<script", "javascript:", "rm -rf"},
		RepetitionMinLen:   10,
		RepetitionMinCount: 5,
		MaxStopTokens:      20,
		MaxStopTokenLength: 100,
	}
}

func (c ValidationConfig) normalized() ValidationConfig {
	d := DefaultValidationConfig()
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	if len(c.DangerousTokens) == 0 {
		c.DangerousTokens = d.DangerousTokens
	}
	if c.RepetitionMinLen <= 0 {
		c.RepetitionMinLen = d.RepetitionMinLen
	}
	if c.RepetitionMinCount <= 0 {
		c.RepetitionMinCount = d.RepetitionMinCount
	}
	if c.MaxStopTokens <= 0 {
		c.MaxStopTokens = d.MaxStopTokens
	}
	if c.MaxStopTokenLength <= 0 {
		c.MaxStopTokenLength = d.MaxStopTokenLength
	}
	return c
}

// validateGenerationRequest enforces every request/session bound before the
// request is allowed to reach the queue.
func validateGenerationRequest(session *agentmodel.Session, req agentmodel.GenerationRequest, cfg ValidationConfig) error {
	if !session.EligibleForGeneration() {
		return newValidationError(ErrInvalidState, "append at least one message before generating",
			"session %s has no messages", session.ID)
	}

	for _, msg := range session.Messages {
		if err := validateMessageContent(msg, cfg); err != nil {
			return err
		}
	}

	if req.MaxTokens != nil {
		if *req.MaxTokens < 1 || *req.MaxTokens > 32768 {
			return newValidationError(ErrParameterBounds, "choose a value between 1 and 32768",
				"max_tokens %d out of range", *req.MaxTokens)
		}
	}

	if req.Temperature != nil {
		t := float64(*req.Temperature)
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0.0 || t > 2.0 {
			return newValidationError(ErrParameterBounds, "choose a finite value between 0.0 and 2.0",
				"temperature %v out of range", *req.Temperature)
		}
	}

	if req.TopP != nil {
		p := float64(*req.TopP)
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0.0 || p > 1.0 {
			return newValidationError(ErrParameterBounds, "choose a finite value between 0.0 and 1.0",
				"top_p %v out of range", *req.TopP)
		}
	}

	if len(req.StopTokens) > cfg.MaxStopTokens {
		return newValidationError(ErrParameterBounds, "reduce the number of stop tokens",
			"stop_tokens has %d entries, max %d", len(req.StopTokens), cfg.MaxStopTokens)
	}
	for _, tok := range req.StopTokens {
		if len(tok) > cfg.MaxStopTokenLength {
			return newValidationError(ErrParameterBounds, "shorten the stop token",
				"stop token %q exceeds max length %d", tok, cfg.MaxStopTokenLength)
		}
	}

	return nil
}

func validateMessageContent(msg agentmodel.Message, cfg ValidationConfig) error {
	if len(msg.Content) > cfg.MaxMessageBytes {
		return newValidationError(ErrContentValidation, "split the message into smaller pieces",
			"message is %d bytes, max %d", len(msg.Content), cfg.MaxMessageBytes)
	}

	lower := strings.ToLower(msg.Content)
	for _, tok := range cfg.DangerousTokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return newValidationError(ErrSecurityViolation, "remove script or shell-injection-like content",
				"message contains disallowed token %q", tok)
		}
	}

	if hasPathologicalRepetition(msg.Content, cfg.RepetitionMinLen, cfg.RepetitionMinCount) {
		return newValidationError(ErrSecurityViolation, "remove the repeated content",
			"message contains pathological repetition of a short substring")
	}

	return nil
}

// hasPathologicalRepetition reports whether text contains a run of at
// least minCount consecutive, non-overlapping occurrences of the same
// minLen-byte block, starting at any offset, in a single O(n) pass: such
// a run exists exactly when text[p] == text[p+minLen] holds for
// minLen*(minCount-1) consecutive positions p.
func hasPathologicalRepetition(text string, minLen, minCount int) bool {
	if minLen <= 0 || minCount <= 0 {
		return false
	}
	n := len(text)
	if n < minLen*minCount {
		return false
	}
	need := minLen * (minCount - 1)
	if need == 0 {
		return true
	}
	streak := 0
	for p := 0; p+minLen < n; p++ {
		if text[p] != text[p+minLen] {
			streak = 0
			continue
		}
		streak++
		if streak >= need {
			return true
		}
	}
	return false
}
