package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// Strategy is the dependency analyzer's verdict for one batch of tool
// calls.
type Strategy string

const (
	Parallel   Strategy = "parallel"
	Sequential Strategy = "sequential"
)

// DependencyConfig tunes the analyzer's conflict detection beyond the
// placeholder-reference check, which always applies.
type DependencyConfig struct {
	// ResourceArgKey names the argument field compared across calls to
	// detect a conflicting resource pair (e.g. two calls writing the
	// same file path). Default "path".
	ResourceArgKey string `yaml:"resource_arg_key"`
	// NeverParallel lists tool-name pairs (in either order) that must
	// always run sequentially regardless of their arguments.
	NeverParallel [][2]string `yaml:"never_parallel"`
}

// DefaultDependencyConfig returns the default conflict-detection tuning.
func DefaultDependencyConfig() DependencyConfig {
	return DependencyConfig{ResourceArgKey: "path"}
}

func (c DependencyConfig) normalized() DependencyConfig {
	if c.ResourceArgKey == "" {
		c.ResourceArgKey = "path"
	}
	return c
}

var placeholderPattern = regexp.MustCompile(`\$\{[^}]+\}|@ref\b`)

// AnalyzeDependency inspects a batch of tool calls and decides whether
// they can run in parallel or must run one at a time. In
// doubt, choose Sequential.
func AnalyzeDependency(calls []agentmodel.ToolCall, cfg DependencyConfig) Strategy {
	cfg = cfg.normalized()
	if len(calls) <= 1 {
		return Parallel
	}

	for i := range calls {
		for j := i + 1; j < len(calls); j++ {
			if sameToolPlaceholderReference(calls[i], calls[j]) {
				return Sequential
			}
			if conflictingResource(calls[i], calls[j], cfg.ResourceArgKey) {
				return Sequential
			}
			if neverParallel(calls[i].Name, calls[j].Name, cfg.NeverParallel) {
				return Sequential
			}
		}
	}
	return Parallel
}

// sameToolPlaceholderReference reports whether either of two calls to
// the same tool carries a ${var} or @ref placeholder (whatever it
// names) or a result_of_<name> reference naming the other call's tool.
func sameToolPlaceholderReference(a, b agentmodel.ToolCall) bool {
	if a.Name != b.Name {
		return false
	}
	return referencesOther(string(a.Arguments), b.Name) || referencesOther(string(b.Arguments), a.Name)
}

func referencesOther(args, otherName string) bool {
	if placeholderPattern.MatchString(args) {
		return true
	}
	return strings.Contains(args, "result_of_"+otherName)
}

// conflictingResource reports whether two distinct calls name the same
// non-empty value for cfg.ResourceArgKey, the generic stand-in for
// "both write the same path" / "one reads what the other writes" since
// tool schemas don't distinguish read from write access.
func conflictingResource(a, b agentmodel.ToolCall, key string) bool {
	av, aok := resourceValue(a.Arguments, key)
	bv, bok := resourceValue(b.Arguments, key)
	return aok && bok && av == bv
}

func resourceValue(args json.RawMessage, key string) (string, bool) {
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return "", false
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func neverParallel(a, b string, pairs [][2]string) bool {
	for _, p := range pairs {
		if (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a) {
			return true
		}
	}
	return false
}
