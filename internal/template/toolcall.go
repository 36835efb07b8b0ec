package template

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// candidate is a raw extraction before validation/dedup: a possible
// tool name and its (not yet schema-checked) JSON arguments.
type candidate struct {
	name string
	args json.RawMessage
}

// ToolCallParser extracts tool-call candidates from one chunk of
// generated text. Multiple parsers run over the same text and their
// results are unioned.
type ToolCallParser interface {
	Parse(text string) []candidate
}

// ParserChain is the ordered set of tool-call parsers: JSON
// object scanning, XML-tag matching, and a natural-language phrasing.
var ParserChain = []ToolCallParser{
	jsonParser{},
	xmlParser{},
	naturalLanguageParser{},
}

// ExtractToolCalls runs the full parser chain over text, discards
// candidates whose name is unknown or whose arguments fail the tool's
// JSON schema, deduplicates by (name, canonical-JSON(arguments)), and
// assigns each surviving call a fresh ToolCallID.
func ExtractToolCalls(text string, tools []agentmodel.ToolDefinition, logger *slog.Logger) []agentmodel.ToolCall {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]agentmodel.ToolDefinition, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}

	var raw []candidate
	for _, p := range ParserChain {
		raw = append(raw, p.Parse(text)...)
	}

	seen := make(map[string]struct{})
	var calls []agentmodel.ToolCall
	for _, c := range raw {
		tool, ok := byName[c.name]
		if !ok {
			logger.Warn("tool call references unknown tool, discarding", "tool", c.name)
			continue
		}
		canonical, err := canonicalJSON(c.args)
		if err != nil {
			logger.Warn("tool call arguments are not valid JSON, discarding", "tool", c.name, "error", err)
			continue
		}
		if len(tool.Parameters) > 0 {
			schemaJSON, err := json.Marshal(tool.Parameters)
			if err != nil {
				logger.Warn("tool schema is not serializable, discarding call", "tool", c.name, "error", err)
				continue
			}
			if err := validateAgainstSchema(schemaJSON, canonical); err != nil {
				logger.Warn("tool call arguments fail schema validation, discarding", "tool", c.name, "error", err)
				continue
			}
		}
		key := c.name + "\x00" + string(canonical)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		calls = append(calls, agentmodel.ToolCall{
			ID:        agentmodel.NewToolCallID(),
			Name:      c.name,
			Arguments: canonical,
		})
	}
	return calls
}

// canonicalJSON re-marshals arbitrary JSON with sorted object keys so
// that equivalent argument sets dedupe regardless of field order.
func canonicalJSON(raw json.RawMessage) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validateAgainstSchema(schema json.RawMessage, args json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return err
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(args, &doc); err != nil {
		return err
	}
	return compiled.Validate(doc)
}

// --- JSON parser ---
//
// Scans for balanced top-level JSON objects and accepts any with the
// shapes {function_name, arguments}, {tool, parameters}, or {name, args}.

type jsonParser struct{}

func (jsonParser) Parse(text string) []candidate {
	var out []candidate
	for _, obj := range scanBalancedObjects(text) {
		if c, ok := decodeJSONCallShape(obj); ok {
			out = append(out, c)
		}
	}
	return out
}

func scanBalancedObjects(text string) []string {
	var objs []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					objs = append(objs, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return objs
}

func decodeJSONCallShape(obj string) (candidate, bool) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &generic); err != nil {
		return candidate{}, false
	}

	tryPair := func(nameKey, argsKey string) (candidate, bool) {
		nameRaw, hasName := generic[nameKey]
		argsRaw, hasArgs := generic[argsKey]
		if !hasName {
			return candidate{}, false
		}
		var name string
		if err := json.Unmarshal(nameRaw, &name); err != nil || name == "" {
			return candidate{}, false
		}
		if !hasArgs {
			argsRaw = json.RawMessage(`{}`)
		}
		return candidate{name: name, args: argsRaw}, true
	}

	if c, ok := tryPair("function_name", "arguments"); ok {
		return c, true
	}
	if c, ok := tryPair("tool", "parameters"); ok {
		return c, true
	}
	if c, ok := tryPair("name", "args"); ok {
		return c, true
	}
	return candidate{}, false
}

// --- XML parser ---
//
// Matches <function_call name="...">...</function_call> or
// <tool name="...">{json}</tool>.

type xmlParser struct{}

var (
	functionCallTag = regexp.MustCompile(`(?s)<function_call\s+name="([^"]+)">(.*?)</function_call>`)
	toolTag         = regexp.MustCompile(`(?s)<tool\s+name="([^"]+)">(.*?)</tool>`)
)

func (xmlParser) Parse(text string) []candidate {
	var out []candidate
	for _, m := range functionCallTag.FindAllStringSubmatch(text, -1) {
		args := strings.TrimSpace(m[2])
		if args == "" {
			args = "{}"
		}
		out = append(out, candidate{name: m[1], args: json.RawMessage(args)})
	}
	for _, m := range toolTag.FindAllStringSubmatch(text, -1) {
		args := strings.TrimSpace(m[2])
		if args == "" {
			args = "{}"
		}
		out = append(out, candidate{name: m[1], args: json.RawMessage(args)})
	}
	return out
}

// --- Natural-language parser ---
//
// Matches "call <name> with arguments <json>", case-insensitive.

type naturalLanguageParser struct{}

var naturalLanguagePattern = regexp.MustCompile(`(?is)call\s+(\w+)\s+with\s+arguments\s+(\{.*?\})`)

func (naturalLanguageParser) Parse(text string) []candidate {
	var out []candidate
	for _, m := range naturalLanguagePattern.FindAllStringSubmatch(text, -1) {
		out = append(out, candidate{name: m[1], args: json.RawMessage(m[2])})
	}
	return out
}

// HasToolCallMarkers reports whether text contains anything any parser
// in the chain would attempt to extract, independent of whether it
// ultimately validates — used to decide the FinishReason label before
// schema validation runs.
func HasToolCallMarkers(text string) bool {
	for _, p := range ParserChain {
		if len(p.Parse(text)) > 0 {
			return true
		}
	}
	return false
}
