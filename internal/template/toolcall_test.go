package template

import (
	"testing"

	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

func listDirTool() agentmodel.ToolDefinition {
	return agentmodel.ToolDefinition{
		Name:       "list_directory",
		ServerName: "fs",
		Parameters: map[string]any{
			"type":     "object",
			"required": []any{"path"},
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
		},
	}
}

func TestExtractToolCallsJSONShape(t *testing.T) {
	text := `Sure, let me check. {"function_name":"list_directory","arguments":{"path":"./tmp"}}`
	calls := ExtractToolCalls(text, []agentmodel.ToolDefinition{listDirTool()}, nil)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "list_directory" {
		t.Fatalf("expected list_directory, got %s", calls[0].Name)
	}
}

func TestExtractToolCallsXMLShape(t *testing.T) {
	text := `<function_call name="list_directory">{"path": "./tmp"}</function_call>`
	calls := ExtractToolCalls(text, []agentmodel.ToolDefinition{listDirTool()}, nil)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
}

func TestExtractToolCallsNaturalLanguageShape(t *testing.T) {
	text := `call list_directory with arguments {"path": "./tmp"}`
	calls := ExtractToolCalls(text, []agentmodel.ToolDefinition{listDirTool()}, nil)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
}

func TestExtractToolCallsDedupesAcrossParsers(t *testing.T) {
	// Same call phrased two ways (JSON and natural language) with
	// identical arguments should dedupe to one ToolCall.
	text := `{"function_name":"list_directory","arguments":{"path":"./tmp"}}
call list_directory with arguments {"path": "./tmp"}`
	calls := ExtractToolCalls(text, []agentmodel.ToolDefinition{listDirTool()}, nil)
	if len(calls) != 1 {
		t.Fatalf("expected dedup to 1 call, got %d", len(calls))
	}
}

func TestExtractToolCallsDiscardsUnknownTool(t *testing.T) {
	text := `{"function_name":"delete_everything","arguments":{}}`
	calls := ExtractToolCalls(text, []agentmodel.ToolDefinition{listDirTool()}, nil)
	if len(calls) != 0 {
		t.Fatalf("expected 0 calls for unknown tool, got %d", len(calls))
	}
}

func TestExtractToolCallsDiscardsSchemaViolation(t *testing.T) {
	// Missing required "path" argument.
	text := `{"function_name":"list_directory","arguments":{}}`
	calls := ExtractToolCalls(text, []agentmodel.ToolDefinition{listDirTool()}, nil)
	if len(calls) != 0 {
		t.Fatalf("expected schema violation to be discarded, got %d", len(calls))
	}
}

func TestHasToolCallMarkersFalseForPlainText(t *testing.T) {
	if HasToolCallMarkers("The weather today is sunny.") {
		t.Fatal("expected no markers in plain text")
	}
}
