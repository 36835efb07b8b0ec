// Package template renders a Session into a model prompt and parses
// tool calls back out of the generated text.
package template

import "strings"

// Family is a model prompt-format variant.
type Family string

const (
	FamilyChatML  Family = "chatml"
	FamilyLlama   Family = "llama"
	FamilyPhi3    Family = "phi3"
	FamilyGeneric Family = "generic"
)

// DetectFamily infers the prompt family from a model source string (a
// HuggingFace repo id or local path), by substring match against known
// family markers. Unrecognized sources fall back to FamilyGeneric.
func DetectFamily(source string) Family {
	lower := strings.ToLower(source)
	switch {
	case strings.Contains(lower, "chatml"), strings.Contains(lower, "qwen"):
		return FamilyChatML
	case strings.Contains(lower, "llama"):
		return FamilyLlama
	case strings.Contains(lower, "phi3"), strings.Contains(lower, "phi-3"):
		return FamilyPhi3
	default:
		return FamilyGeneric
	}
}
