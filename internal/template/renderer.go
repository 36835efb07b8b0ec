package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// toolInstructionsTmpl is appended to the system section whenever the
// session has available tools, instructing the model to emit
// machine-readable JSON when it wants to call one.
const toolInstructionsTmpl = `You have access to the following tools. When you need to use one, respond with a JSON object of the form {"function_name": "<tool name>", "arguments": {...}} and nothing else on that line.

Available tools:
{{.ToolsJSON}}`

var funcMap = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
}

// familyTemplates holds one family's fmt format strings, one per message
// role plus the trailing assistant-turn opener; RenderSession applies
// them message-by-message so each family controls only its own
// delimiters.
type familyTemplates struct {
	system    string // %s -> system body
	user      string
	assistant string
	tool      string // rendered tool-result message, correlates call id + name
	opener    string // assistant-turn opener appended after all messages
}

var templatesByFamily = map[Family]familyTemplates{
	FamilyChatML: {
		system:    "<|im_start|>system\n%s<|im_end|>\n",
		user:      "<|im_start|>user\n%s<|im_end|>\n",
		assistant: "<|im_start|>assistant\n%s<|im_end|>\n",
		tool:      "<|im_start|>tool\n[%s result for call %s]\n%s<|im_end|>\n",
		opener:    "<|im_start|>assistant\n",
	},
	FamilyLlama: {
		system:    "<<SYS>>\n%s\n<</SYS>>\n\n",
		user:      "[INST] %s [/INST]",
		assistant: " %s </s><s>",
		tool:      "[INST] Tool result from %s for call %s: %s [/INST]",
		opener:    " ",
	},
	FamilyPhi3: {
		system:    "<|system|>\n%s<|end|>\n",
		user:      "<|user|>\n%s<|end|>\n",
		assistant: "<|assistant|>\n%s<|end|>\n",
		tool:      "<|tool|>\n[%s result for call %s]\n%s<|end|>\n",
		opener:    "<|assistant|>\n",
	},
	FamilyGeneric: {
		system:    "System: %s\n\n",
		user:      "User: %s\n",
		assistant: "Assistant: %s\n",
		tool:      "Tool (%s, call %s): %s\n",
		opener:    "Assistant:",
	},
}

// Renderer turns a Session into a model prompt string.
type Renderer struct{}

// NewRenderer constructs a Renderer.
func NewRenderer() *Renderer { return &Renderer{} }

// RenderSession builds the full prompt for session, inferring the
// template family from modelSource (the model's configured Source
// string, e.g. a HuggingFace repo id).
func (r *Renderer) RenderSession(session *agentmodel.Session, modelSource string) (string, error) {
	family := DetectFamily(modelSource)
	tmpl, ok := templatesByFamily[family]
	if !ok {
		tmpl = templatesByFamily[FamilyGeneric]
	}

	var buf bytes.Buffer

	systemBody, err := r.renderSystemSection(session)
	if err != nil {
		return "", fmt.Errorf("render system section: %w", err)
	}
	if systemBody != "" {
		buf.WriteString(fmt.Sprintf(tmpl.system, systemBody))
	}

	for _, msg := range session.Messages {
		switch msg.Role {
		case agentmodel.RoleSystem:
			// Folded into the leading system section above.
		case agentmodel.RoleUser:
			buf.WriteString(fmt.Sprintf(tmpl.user, msg.Content))
		case agentmodel.RoleAssistant:
			buf.WriteString(fmt.Sprintf(tmpl.assistant, msg.Content))
		case agentmodel.RoleTool:
			buf.WriteString(fmt.Sprintf(tmpl.tool, msg.ToolName, msg.ToolCallID, msg.Content))
		}
	}

	buf.WriteString(tmpl.opener)
	return buf.String(), nil
}

// renderSystemSection assembles the leading system message (if any)
// plus tool-use instructions (if the session has available tools),
// using text/template so the instruction body can evolve without
// touching the per-family delimiter tables.
func (r *Renderer) renderSystemSection(session *agentmodel.Session) (string, error) {
	var parts []string

	for _, msg := range session.Messages {
		if msg.Role == agentmodel.RoleSystem {
			parts = append(parts, msg.Content)
		}
	}

	if len(session.AvailableTools) > 0 {
		toolsJSON, err := json.MarshalIndent(session.AvailableTools, "", "  ")
		if err != nil {
			return "", err
		}
		t, err := template.New("tools").Funcs(funcMap).Parse(toolInstructionsTmpl)
		if err != nil {
			return "", err
		}
		var out bytes.Buffer
		if err := t.Execute(&out, struct{ ToolsJSON string }{ToolsJSON: string(toolsJSON)}); err != nil {
			return "", err
		}
		parts = append(parts, out.String())
	}

	return strings.Join(parts, "\n\n"), nil
}
