package stopper

import "github.com/haasonsaas/llama-agent/pkg/agentmodel"

// maxDisplayPatternRunes bounds how much of a detected repeating pattern
// is echoed back in the FinishReason message.
const maxDisplayPatternRunes = 50

// RepetitionStopper detects a short pattern repeating back-to-back at the
// tail of the generated text, using a bounded sliding window of runes
// (Unicode-safe: indexed by character, not byte).
type RepetitionStopper struct {
	cfg    agentmodel.RepetitionConfig
	window []rune
}

// NewRepetitionStopper constructs a RepetitionStopper, or returns nil if
// cfg is invalid (an invalid config disables the stopper silently
// rather than erroring).
func NewRepetitionStopper(cfg agentmodel.RepetitionConfig) *RepetitionStopper {
	if !cfg.Valid() {
		return nil
	}
	return &RepetitionStopper{cfg: cfg}
}

// AddTokenText appends a decoded token piece to the window, evicting from
// the front (oldest first) until the window is at most WindowSize
// characters.
func (s *RepetitionStopper) AddTokenText(piece string) {
	s.window = append(s.window, []rune(piece)...)
	if excess := len(s.window) - s.cfg.WindowSize; excess > 0 {
		s.window = append([]rune(nil), s.window[excess:]...)
	}
}

func (s *RepetitionStopper) Check(Batch) *agentmodel.FinishReason {
	for l := s.cfg.MaxPatternLength; l >= s.cfg.MinPatternLength; l-- {
		count := countBackwardRepeats(s.window, l)
		if count >= s.cfg.MinRepetitions {
			fr := agentmodel.FinishRepetition(displayPattern(s.window, l), count)
			return &fr
		}
	}
	return nil
}

// countBackwardRepeats counts how many consecutive, non-overlapping
// blocks of length L at the tail of window are identical to the last L
// characters.
func countBackwardRepeats(window []rune, l int) int {
	if l <= 0 || len(window) < l {
		return 0
	}
	pattern := window[len(window)-l:]
	count := 1
	pos := len(window) - l
	for pos-l >= 0 {
		candidate := window[pos-l : pos]
		if !runesEqual(candidate, pattern) {
			break
		}
		count++
		pos -= l
	}
	return count
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func displayPattern(window []rune, l int) string {
	pattern := window[len(window)-l:]
	if len(pattern) <= maxDisplayPatternRunes {
		return string(pattern)
	}
	return string(pattern[:maxDisplayPatternRunes]) + "..."
}
